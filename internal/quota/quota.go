// Package quota decides whether a household may grow a usage metric under its
// effective plan, and applies the counter deltas that track that growth.
// Assert and Apply must run inside the same transaction as the state change
// they gate; a check outside the mutating transaction can over-admit.
package quota

import (
	"time"

	"github.com/fernhill/hearth/internal/apperr"
	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/model"
	"github.com/fernhill/hearth/internal/store"
)

// freeLimits caps quota metrics on the free plan. Premium households are
// uncapped.
var freeLimits = map[string]int64{
	model.MetricActiveMembers:      2,
	model.MetricActiveExpenses:     30,
	model.MetricChorePhotos:        5,
	model.MetricShoppingItemPhotos: 5,
}

// KnownMetric reports whether the metric name is one this core tracks.
func KnownMetric(metric string) bool {
	_, ok := freeLimits[metric]
	return ok
}

// Limit returns the ceiling for a metric under the given plan; ok is false
// when the metric is uncapped.
func Limit(plan, metric string) (int64, bool) {
	if plan == model.PlanPremium {
		return 0, false
	}
	limit, ok := freeLimits[metric]
	return limit, ok
}

// EffectivePlan resolves the household's plan, treating a stale premium
// expiry as free. A missing entitlement row reads as free.
func EffectivePlan(q database.DBTX, householdID int64, now time.Time) (string, error) {
	e, err := store.NewEntitlementStore(q).Get(householdID)
	if err != nil {
		return "", err
	}
	if e == nil || e.Plan != model.PlanPremium {
		return model.PlanFree, nil
	}
	if e.ExpiresAt != nil && !e.ExpiresAt.After(now) {
		return model.PlanFree, nil
	}
	return model.PlanPremium, nil
}

// Assert fails with QUOTA_EXCEEDED when any metric's counter plus its delta
// would exceed the plan ceiling. Negative deltas always pass.
func Assert(q database.DBTX, householdID int64, deltas map[string]int64) error {
	plan, err := EffectivePlan(q, householdID, time.Now())
	if err != nil {
		return err
	}

	usage := store.NewUsageStore(q)
	for metric, delta := range deltas {
		if delta <= 0 {
			continue
		}
		limit, capped := Limit(plan, metric)
		if !capped {
			continue
		}
		current, err := usage.Get(householdID, metric)
		if err != nil {
			return err
		}
		if current+delta > limit {
			return apperr.Newf(apperr.CodeQuotaExceeded, "%s limit reached for the %s plan", metric, plan).
				WithDetail("metric", metric).
				WithDetail("limit", limit).
				WithDetail("current", current)
		}
	}
	return nil
}

// Apply unconditionally adjusts counters by the signed deltas. Callers run
// Assert first in the same transaction.
func Apply(q database.DBTX, householdID int64, deltas map[string]int64) error {
	usage := store.NewUsageStore(q)
	for metric, delta := range deltas {
		if delta == 0 {
			continue
		}
		if err := usage.ApplyDelta(householdID, metric, delta); err != nil {
			return err
		}
	}
	return nil
}
