// Package invite issues, rotates, revokes, and redeems household join codes,
// holding the at-most-one-open-invite-per-household invariant.
package invite

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/fernhill/hearth/internal/apperr"
	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/model"
	"github.com/fernhill/hearth/internal/store"
)

// Notifier receives household-scoped events for realtime fan-out.
type Notifier interface {
	HouseholdEvent(householdID int64, event string, data map[string]any)
}

type Service struct {
	db       *sql.DB
	notifier Notifier
	logger   *slog.Logger
}

func NewService(db *sql.DB, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{db: db, notifier: notifier, logger: logger}
}

// RevokeResult reports what Revoke did; revoking with no open invite is
// informational, not an error.
type RevokeResult struct {
	Status   string `json:"status"`
	InviteID int64  `json:"invite_id,omitempty"`
}

const (
	RevokeStatusRevoked  = "revoked"
	RevokeStatusNoActive = "no_active_invite"
)

// Issue creates the open invite for a household inside an existing
// transaction. When the insert loses the one-open-invite uniqueness race it
// selects the invite that won instead of regenerating, so concurrent callers
// converge on a single code. A global open-code collision (different
// household) regenerates.
func Issue(q database.DBTX, householdID int64) (*model.Invite, error) {
	invites := store.NewInviteStore(q)
	for attempt := 0; attempt < 5; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return nil, err
		}
		inv, err := invites.Create(householdID, code)
		if err == nil {
			return inv, nil
		}
		if !store.IsUniqueViolation(err) {
			return nil, err
		}
		winner, werr := invites.OpenByHousehold(householdID)
		if werr != nil {
			return nil, werr
		}
		if winner != nil {
			return winner, nil
		}
		// Open code collided with another household's; try a fresh code.
	}
	return nil, fmt.Errorf("issue invite: exhausted code generation attempts")
}

// Rotate revokes the household's open invites and issues a replacement.
// Owner-only, active-household-only.
func (s *Service) Rotate(callerID, householdID int64) (*model.Invite, error) {
	if callerID == 0 {
		return nil, apperr.New(apperr.CodeUnauthenticated, "no caller identity")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireOwner(tx, householdID, callerID); err != nil {
		return nil, err
	}

	invites := store.NewInviteStore(tx)
	if _, err := invites.RevokeOpen(householdID); err != nil {
		return nil, err
	}
	inv, err := Issue(tx, householdID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("invite rotated", "household_id", householdID, "invite_id", inv.ID)
	s.notify(householdID, "invite_rotated", map[string]any{"invite_id": inv.ID})
	return inv, nil
}

// Revoke closes the household's open invite. Owner-only; deliberately
// non-strict when no open invite exists.
func (s *Service) Revoke(callerID, householdID int64) (*RevokeResult, error) {
	if callerID == 0 {
		return nil, apperr.New(apperr.CodeUnauthenticated, "no caller identity")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := requireOwner(tx, householdID, callerID); err != nil {
		return nil, err
	}

	invites := store.NewInviteStore(tx)
	open, err := invites.OpenByHousehold(householdID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return &RevokeResult{Status: RevokeStatusNoActive}, nil
	}
	if _, err := invites.RevokeOpen(householdID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("invite revoked", "household_id", householdID, "invite_id", open.ID)
	s.notify(householdID, "invite_revoked", map[string]any{"invite_id": open.ID})
	return &RevokeResult{Status: RevokeStatusRevoked, InviteID: open.ID}, nil
}

// Active returns the household's open invite. Any current member may read it.
func (s *Service) Active(callerID, householdID int64) (*model.Invite, error) {
	if callerID == 0 {
		return nil, apperr.New(apperr.CodeUnauthenticated, "no caller identity")
	}

	memberships := store.NewMembershipStore(s.db)
	m, err := memberships.CurrentInHousehold(householdID, callerID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.New(apperr.CodeNotMember, "caller is not a member of this household")
	}

	inv, err := store.NewInviteStore(s.db).OpenByHousehold(householdID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperr.New(apperr.CodeNotFound, "no active invite")
	}
	return inv, nil
}

func (s *Service) notify(householdID int64, event string, data map[string]any) {
	if s.notifier != nil {
		s.notifier.HouseholdEvent(householdID, event, data)
	}
}

// requireOwner verifies the household exists, is active, and the caller holds
// its current owner stint.
func requireOwner(q database.DBTX, householdID, callerID int64) error {
	h, err := store.NewHouseholdStore(q).GetByID(householdID)
	if err != nil {
		return err
	}
	if h == nil {
		return apperr.New(apperr.CodeNotFound, "household not found")
	}
	if !h.IsActive {
		return apperr.New(apperr.CodeForbidden, "household is deactivated")
	}

	m, err := store.NewMembershipStore(q).CurrentInHousehold(householdID, callerID)
	if err != nil {
		return err
	}
	if m == nil {
		return apperr.New(apperr.CodeNotMember, "caller is not a member of this household")
	}
	if m.Role != model.RoleOwner {
		return apperr.New(apperr.CodeForbidden, "owner role required")
	}
	return nil
}
