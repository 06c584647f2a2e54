// Package billing consumes the subscription event feed. It owns no payment
// logic: events mutate subscription rows, and the entitlement engine reacts.
package billing

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/fernhill/hearth/internal/entitlement"
	"github.com/fernhill/hearth/internal/store"
)

// SubscriptionEvent is one provider notification reduced to the fields this
// core consumes.
type SubscriptionEvent struct {
	ProviderID string
	UserID     int64
	Status     string
	PeriodEnd  *time.Time
}

type Service struct {
	db     *sql.DB
	engine *entitlement.Engine
	logger *slog.Logger
}

func NewService(db *sql.DB, engine *entitlement.Engine, logger *slog.Logger) *Service {
	return &Service{db: db, engine: engine, logger: logger}
}

// ApplyEvent upserts the subscription row for the event and recomputes the
// entitlement of every household whose funding determination may have
// changed. New subscriptions attach to the user's current household when one
// exists, else float until the user lands somewhere.
func (s *Service) ApplyEvent(ev SubscriptionEvent) error {
	if ev.ProviderID == "" {
		return fmt.Errorf("subscription event missing provider id")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	subs := store.NewSubscriptionStore(tx)
	sub, err := subs.GetByProviderID(ev.ProviderID)
	if err != nil {
		return err
	}

	var affected *int64
	if sub == nil {
		if ev.UserID == 0 {
			return fmt.Errorf("subscription event for unknown subscription %s has no user", ev.ProviderID)
		}
		var householdID *int64
		cur, err := store.NewMembershipStore(tx).CurrentByUser(ev.UserID)
		if err != nil {
			return err
		}
		if cur != nil {
			householdID = &cur.HouseholdID
		}
		if _, err := subs.Create(ev.UserID, householdID, ev.ProviderID, ev.Status, ev.PeriodEnd); err != nil {
			return err
		}
		affected = householdID
	} else {
		if err := subs.UpdateStatus(sub.ID, ev.Status, ev.PeriodEnd); err != nil {
			return err
		}
		affected = sub.HouseholdID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("subscription event applied",
		"provider_id", ev.ProviderID, "status", ev.Status)
	return s.engine.SubscriptionMoved(affected, affected)
}
