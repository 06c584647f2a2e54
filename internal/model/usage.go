package model

// Metric names for usage counters.
const (
	MetricActiveMembers      = "active_members"
	MetricActiveExpenses     = "active_expenses"
	MetricChorePhotos        = "chore_photos"
	MetricShoppingItemPhotos = "shopping_item_photos"
)

// UsageCounter is one (household, metric) row, mutated only through signed
// deltas.
type UsageCounter struct {
	HouseholdID int64  `json:"household_id"`
	Metric      string `json:"metric"`
	Count       int64  `json:"count"`
}
