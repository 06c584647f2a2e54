package billing

import (
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

type StripeConfig struct {
	WebhookSecret string
}

// StripeClient verifies and parses incoming webhook events. Checkout and
// payment flows live with the billing provider; only the event feed lands
// here.
type StripeClient struct {
	cfg StripeConfig
}

func NewStripeClient(cfg StripeConfig) *StripeClient {
	return &StripeClient{cfg: cfg}
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *StripeClient) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
}
