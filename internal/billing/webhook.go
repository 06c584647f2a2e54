package billing

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
)

type WebhookHandler struct {
	stripeClient *StripeClient
	service      *Service
	logger       *slog.Logger
}

func NewWebhookHandler(sc *StripeClient, service *Service, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{stripeClient: sc, service: service, logger: logger}
}

func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := h.stripeClient.ConstructWebhookEvent(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated":
		h.handleSubscriptionEvent(event, "")
	case "customer.subscription.deleted":
		h.handleSubscriptionEvent(event, "canceled")
	}

	w.WriteHeader(http.StatusOK)
}

// handleSubscriptionEvent reduces a Stripe subscription payload to a
// SubscriptionEvent. statusOverride forces "canceled" on deletion, where
// Stripe's payload still carries the pre-deletion status.
func (h *WebhookHandler) handleSubscriptionEvent(event stripe.Event, statusOverride string) {
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		h.logger.Error("webhook: unmarshal subscription", "error", err)
		return
	}

	userID, err := strconv.ParseInt(stripeSub.Metadata["user_id"], 10, 64)
	if err != nil {
		h.logger.Warn("webhook: subscription missing user_id metadata", "subscription", stripeSub.ID)
	}

	status := string(stripeSub.Status)
	if statusOverride != "" {
		status = statusOverride
	}

	ev := SubscriptionEvent{
		ProviderID: stripeSub.ID,
		UserID:     userID,
		Status:     status,
		PeriodEnd:  periodEndFromRaw(event.Data.Raw),
	}
	if err := h.service.ApplyEvent(ev); err != nil {
		h.logger.Error("webhook: apply subscription event", "subscription", stripeSub.ID, "error", err)
	}
}

// periodEndFromRaw digs current_period_end out of the raw payload. Stripe
// moved the field from the subscription to its items across API versions, so
// both locations are checked and the latest wins.
func periodEndFromRaw(raw []byte) *time.Time {
	var fields struct {
		CurrentPeriodEnd int64 `json:"current_period_end"`
		Items            struct {
			Data []struct {
				CurrentPeriodEnd int64 `json:"current_period_end"`
			} `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}

	end := fields.CurrentPeriodEnd
	for _, item := range fields.Items.Data {
		if item.CurrentPeriodEnd > end {
			end = item.CurrentPeriodEnd
		}
	}
	if end == 0 {
		return nil
	}
	t := time.Unix(end, 0).UTC()
	return &t
}
