// Package entitlement maintains one derived entitlement row per household as
// a function of the household's attached subscriptions. Recompute is
// idempotent and order-independent: replaying any sequence of subscription
// events converges on the entitlement implied by the final snapshot.
package entitlement

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/model"
	"github.com/fernhill/hearth/internal/store"
)

// Notifier receives household-scoped events for realtime fan-out.
type Notifier interface {
	HouseholdEvent(householdID int64, event string, data map[string]any)
}

type Engine struct {
	db       *sql.DB
	notifier Notifier
	logger   *slog.Logger
}

func NewEngine(db *sql.DB, notifier Notifier, logger *slog.Logger) *Engine {
	return &Engine{db: db, notifier: notifier, logger: logger}
}

// Recompute scans the household's attached subscriptions and upserts
// (plan, expires_at): premium with the maximum funding expiry when any
// subscription funds the household, else free with no expiry.
func Recompute(q database.DBTX, householdID int64) (*model.Entitlement, error) {
	subs, err := store.NewSubscriptionStore(q).ListByHousehold(householdID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	plan := model.PlanFree
	var expiresAt *time.Time
	for i := range subs {
		sub := &subs[i]
		if !sub.Funding(now) {
			continue
		}
		plan = model.PlanPremium
		if sub.CurrentPeriodEndAt == nil {
			// An open-ended funding subscription never expires; it dominates.
			expiresAt = nil
			break
		}
		if expiresAt == nil || sub.CurrentPeriodEndAt.After(*expiresAt) {
			expiresAt = sub.CurrentPeriodEndAt
		}
	}

	return store.NewEntitlementStore(q).Upsert(householdID, plan, expiresAt)
}

// SeedFree writes the initial free entitlement for a new household.
func SeedFree(q database.DBTX, householdID int64) error {
	_, err := store.NewEntitlementStore(q).Upsert(householdID, model.PlanFree, nil)
	return err
}

// ReattachFloating attaches the user's floating subscriptions to the
// household and recomputes its entitlement when anything moved. Called on
// household creation and join so a dangling subscription follows its owner
// into the new home.
func ReattachFloating(q database.DBTX, userID, householdID int64) error {
	subs := store.NewSubscriptionStore(q)
	floating, err := subs.ListFloatingByUser(userID)
	if err != nil {
		return err
	}
	if len(floating) == 0 {
		return nil
	}
	for i := range floating {
		if err := subs.Attach(floating[i].ID, householdID); err != nil {
			return err
		}
	}
	_, err = Recompute(q, householdID)
	return err
}

// Detach floats the user's subscriptions away from the household and
// recomputes its entitlement. Called on leave and kick while other members
// remain.
func Detach(q database.DBTX, userID, householdID int64) error {
	n, err := store.NewSubscriptionStore(q).DetachByUser(userID, householdID)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	_, err = Recompute(q, householdID)
	return err
}

// SubscriptionMoved recomputes every household whose funding determination a
// subscription event can have changed: the household it left and the one it
// joined. Each recompute runs in its own transaction; households are
// independent, so ordering between them does not matter.
func (e *Engine) SubscriptionMoved(oldHouseholdID, newHouseholdID *int64) error {
	seen := make(map[int64]bool)
	for _, id := range []*int64{oldHouseholdID, newHouseholdID} {
		if id == nil || seen[*id] {
			continue
		}
		seen[*id] = true
		if err := e.recomputeOne(*id); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) recomputeOne(householdID int64) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ent, err := Recompute(tx, householdID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	e.logger.Info("entitlement recomputed",
		"household_id", householdID, "plan", ent.Plan, "expires_at", ent.ExpiresAt)
	if e.notifier != nil {
		e.notifier.HouseholdEvent(householdID, "entitlement_changed", map[string]any{"plan": ent.Plan})
	}
	return nil
}
