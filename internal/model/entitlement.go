package model

import "time"

// Plan values for a household entitlement.
const (
	PlanFree    = "free"
	PlanPremium = "premium"
)

// Entitlement is one derived row per household, recomputed from the
// household's attached subscriptions.
type Entitlement struct {
	HouseholdID int64      `json:"household_id"`
	Plan        string     `json:"plan"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Subscription struct {
	ID                     int64      `json:"id"`
	UserID                 int64      `json:"user_id"`
	HouseholdID            *int64     `json:"household_id,omitempty"`
	ProviderSubscriptionID string     `json:"provider_subscription_id"`
	Status                 string     `json:"status"`
	CurrentPeriodEndAt     *time.Time `json:"current_period_end_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Funding reports whether the subscription currently justifies premium
// entitlement: a funding status and a period end that is absent or in the
// future.
func (s *Subscription) Funding(now time.Time) bool {
	switch s.Status {
	case "active", "trialing", "past_due":
	default:
		return false
	}
	return s.CurrentPeriodEndAt == nil || s.CurrentPeriodEndAt.After(now)
}
