// Package household implements the membership lifecycle: creating a
// household, joining by invite code, leaving, transferring ownership, and
// removing members. Every mutating operation runs as a single immediate
// transaction; the household row re-read inside the transaction is the
// serialization point against concurrent joins, leaves, transfers, and kicks.
package household

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fernhill/hearth/internal/apperr"
	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/entitlement"
	"github.com/fernhill/hearth/internal/invite"
	"github.com/fernhill/hearth/internal/model"
	"github.com/fernhill/hearth/internal/quota"
	"github.com/fernhill/hearth/internal/store"
)

// ChoreReassigner moves a departing member's chores to another member. It is
// the one contact point with the chores module.
type ChoreReassigner interface {
	ReassignAll(q database.DBTX, householdID, fromUserID, toUserID int64) (int64, error)
}

// Notifier receives household-scoped events for realtime fan-out.
type Notifier interface {
	HouseholdEvent(householdID int64, event string, data map[string]any)
}

type Service struct {
	db       *sql.DB
	chores   ChoreReassigner
	notifier Notifier
	logger   *slog.Logger
}

func NewService(db *sql.DB, chores ChoreReassigner, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{db: db, chores: chores, notifier: notifier, logger: logger}
}

type CreateResult struct {
	Household  *model.Household  `json:"household"`
	Invite     *model.Invite     `json:"invite"`
	Membership *model.Membership `json:"membership"`
}

type JoinResult struct {
	Status     string            `json:"status"`
	HomeID     int64             `json:"home_id"`
	Membership *model.Membership `json:"membership,omitempty"`
}

type LeaveResult struct {
	Status string `json:"status"`
	HomeID int64  `json:"home_id"`
}

type TransferResult struct {
	Status     string `json:"status"`
	HomeID     int64  `json:"home_id"`
	NewOwnerID int64  `json:"new_owner_id"`
}

type KickResult struct {
	Status       string `json:"status"`
	HomeID       int64  `json:"home_id"`
	TargetUserID int64  `json:"target_user_id"`
}

type PlanStatus struct {
	Plan   string `json:"plan"`
	HomeID int64  `json:"home_id"`
}

const (
	StatusJoined        = "joined"
	StatusAlreadyMember = "already_member"
	StatusLeft          = "left"
	StatusDeactivated   = "household_deactivated"
	StatusTransferred   = "transferred"
	StatusKicked        = "kicked"
)

// Create inserts a new household with the caller as owner, seeds the first
// invite and a free entitlement, and reattaches any floating subscription the
// caller already holds.
func (s *Service) Create(callerID int64, name string) (*CreateResult, error) {
	if callerID == 0 {
		return nil, apperr.New(apperr.CodeUnauthenticated, "no caller identity")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "name is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	memberships := store.NewMembershipStore(tx)
	if cur, err := memberships.CurrentByUser(callerID); err != nil {
		return nil, err
	} else if cur != nil {
		return nil, apperr.New(apperr.CodeAlreadyInOtherHome, "caller already belongs to a household").
			WithDetail("home_id", cur.HouseholdID)
	}

	h, err := store.NewHouseholdStore(tx).Create(name, callerID)
	if err != nil {
		return nil, err
	}

	m, err := memberships.Open(h.ID, callerID, model.RoleOwner, assignAvatar(model.PlanFree, nil))
	if err != nil {
		return nil, err
	}
	if err := quota.Apply(tx, h.ID, map[string]int64{model.MetricActiveMembers: 1}); err != nil {
		return nil, err
	}
	if err := entitlement.SeedFree(tx, h.ID); err != nil {
		return nil, err
	}
	inv, err := invite.Issue(tx, h.ID)
	if err != nil {
		return nil, err
	}
	if err := entitlement.ReattachFloating(tx, callerID, h.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("household created", "household_id", h.ID, "owner_id", callerID)
	return &CreateResult{Household: h, Invite: inv, Membership: m}, nil
}

// Join redeems an invite code. Admission is quota-checked against the
// household's effective plan inside the same transaction that opens the
// stint, so concurrent joins cannot overshoot the member ceiling.
func (s *Service) Join(callerID int64, code string) (*JoinResult, error) {
	if callerID == 0 {
		return nil, apperr.New(apperr.CodeUnauthenticated, "no caller identity")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperr.New(apperr.CodeInvalidCode, "no invite matches this code")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	invites := store.NewInviteStore(tx)
	inv, err := invites.OpenByCode(code)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		latest, err := invites.LatestByCode(code)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			return nil, apperr.New(apperr.CodeInvalidCode, "no invite matches this code")
		}
		return nil, apperr.New(apperr.CodeInactiveInvite, "this invite has been revoked")
	}

	h, err := store.NewHouseholdStore(tx).GetByID(inv.HouseholdID)
	if err != nil {
		return nil, err
	}
	if h == nil || !h.IsActive {
		return nil, apperr.New(apperr.CodeInactiveInvite, "this household is no longer active")
	}

	memberships := store.NewMembershipStore(tx)
	cur, err := memberships.CurrentByUser(callerID)
	if err != nil {
		return nil, err
	}
	if cur != nil && cur.HouseholdID == h.ID {
		// Idempotent re-join: no mutation.
		return &JoinResult{Status: StatusAlreadyMember, HomeID: h.ID, Membership: cur}, nil
	}
	if cur != nil {
		return nil, apperr.New(apperr.CodeAlreadyInOtherHome, "caller already belongs to another household").
			WithDetail("home_id", cur.HouseholdID)
	}

	deltas := map[string]int64{model.MetricActiveMembers: 1}
	if err := quota.Assert(tx, h.ID, deltas); err != nil {
		return nil, err
	}

	plan, err := quota.EffectivePlan(tx, h.ID, time.Now())
	if err != nil {
		return nil, err
	}
	current, err := memberships.ListCurrent(h.ID)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(current))
	for i := range current {
		taken[current[i].Avatar] = true
	}

	m, err := memberships.Open(h.ID, callerID, model.RoleMember, assignAvatar(plan, taken))
	if err != nil {
		return nil, err
	}
	if err := quota.Apply(tx, h.ID, deltas); err != nil {
		return nil, err
	}
	if err := invites.IncrementUsed(inv.ID); err != nil {
		return nil, err
	}
	if err := entitlement.ReattachFloating(tx, callerID, h.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("member joined", "household_id", h.ID, "user_id", callerID)
	s.notify(h.ID, "member_joined", map[string]any{"user_id": callerID})
	return &JoinResult{Status: StatusJoined, HomeID: h.ID, Membership: m}, nil
}

// Leave closes the caller's stint. An owner may leave only as the last
// member; a fully vacated household is deactivated, never deleted, and its
// counters, entitlement, and invite are left in their terminal state.
func (s *Service) Leave(callerID, householdID int64) (*LeaveResult, error) {
	if callerID == 0 {
		return nil, apperr.New(apperr.CodeUnauthenticated, "no caller identity")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	households := store.NewHouseholdStore(tx)
	h, err := households.GetByID(householdID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperr.New(apperr.CodeNotFound, "household not found")
	}

	memberships := store.NewMembershipStore(tx)
	stint, err := memberships.CurrentInHousehold(householdID, callerID)
	if err != nil {
		return nil, err
	}
	if stint == nil {
		return nil, apperr.New(apperr.CodeNotMember, "caller is not a member of this household")
	}

	count, err := memberships.CountCurrent(householdID)
	if err != nil {
		return nil, err
	}
	if stint.Role == model.RoleOwner && count > 1 {
		return nil, apperr.New(apperr.CodeOwnerMustTransfer, "transfer ownership before leaving")
	}

	if n, err := memberships.Close(stint.ID); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, apperr.New(apperr.CodeStateChangedRetry, "membership changed concurrently, retry")
	}
	if err := quota.Apply(tx, householdID, map[string]int64{model.MetricActiveMembers: -1}); err != nil {
		return nil, err
	}

	status := StatusLeft
	if count == 1 {
		if n, err := households.Deactivate(householdID); err != nil {
			return nil, err
		} else if n == 0 {
			return nil, apperr.New(apperr.CodeStateChangedRetry, "household changed concurrently, retry")
		}
		status = StatusDeactivated
	} else {
		if err := entitlement.Detach(tx, callerID, householdID); err != nil {
			return nil, err
		}
		if _, err := s.chores.ReassignAll(tx, householdID, callerID, h.OwnerUserID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("member left", "household_id", householdID, "user_id", callerID, "status", status)
	s.notify(householdID, "member_left", map[string]any{"user_id": callerID})
	if status == StatusDeactivated {
		s.notify(householdID, "household_deactivated", nil)
	}
	return &LeaveResult{Status: status, HomeID: householdID}, nil
}

// TransferOwnership swaps the owner and a member in four stint mutations plus
// the household owner reference, all in one transaction. A partial swap is
// never observable.
func (s *Service) TransferOwnership(callerID, householdID, newOwnerID int64) (*TransferResult, error) {
	if callerID == 0 {
		return nil, apperr.New(apperr.CodeUnauthenticated, "no caller identity")
	}
	if newOwnerID == callerID {
		return nil, apperr.New(apperr.CodeInvalidArgument, "new owner must differ from the caller")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	households := store.NewHouseholdStore(tx)
	h, err := households.GetByID(householdID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperr.New(apperr.CodeNotFound, "household not found")
	}
	if !h.IsActive {
		return nil, apperr.New(apperr.CodeForbidden, "household is deactivated")
	}

	memberships := store.NewMembershipStore(tx)
	callerStint, err := memberships.CurrentInHousehold(householdID, callerID)
	if err != nil {
		return nil, err
	}
	if callerStint == nil {
		return nil, apperr.New(apperr.CodeNotMember, "caller is not a member of this household")
	}
	if callerStint.Role != model.RoleOwner {
		return nil, apperr.New(apperr.CodeForbidden, "owner role required")
	}

	targetStint, err := memberships.CurrentInHousehold(householdID, newOwnerID)
	if err != nil {
		return nil, err
	}
	if targetStint == nil {
		return nil, apperr.New(apperr.CodeNewOwnerNotMember, "new owner is not a member of this household")
	}

	// Demote the caller and promote the target as fresh stints; both keep
	// continuous membership and their avatars.
	if n, err := memberships.Close(callerStint.ID); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, apperr.New(apperr.CodeStateChangedRetry, "membership changed concurrently, retry")
	}
	if _, err := memberships.Open(householdID, callerID, model.RoleMember, callerStint.Avatar); err != nil {
		return nil, err
	}
	if n, err := memberships.Close(targetStint.ID); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, apperr.New(apperr.CodeStateChangedRetry, "membership changed concurrently, retry")
	}
	if _, err := memberships.Open(householdID, newOwnerID, model.RoleOwner, targetStint.Avatar); err != nil {
		return nil, err
	}
	if n, err := households.SetOwner(householdID, newOwnerID); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, apperr.New(apperr.CodeStateChangedRetry, "household changed concurrently, retry")
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("ownership transferred",
		"household_id", householdID, "from", callerID, "to", newOwnerID)
	s.notify(householdID, "owner_transferred", map[string]any{"from": callerID, "to": newOwnerID})
	return &TransferResult{Status: StatusTransferred, HomeID: householdID, NewOwnerID: newOwnerID}, nil
}

// Kick closes a non-owner member's stint. No replacement stint is opened; the
// target's subscriptions are floated and their chores move to the owner.
func (s *Service) Kick(callerID, householdID, targetID int64) (*KickResult, error) {
	if callerID == 0 {
		return nil, apperr.New(apperr.CodeUnauthenticated, "no caller identity")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	h, err := store.NewHouseholdStore(tx).GetByID(householdID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, apperr.New(apperr.CodeNotFound, "household not found")
	}
	if !h.IsActive {
		return nil, apperr.New(apperr.CodeForbidden, "household is deactivated")
	}

	memberships := store.NewMembershipStore(tx)
	callerStint, err := memberships.CurrentInHousehold(householdID, callerID)
	if err != nil {
		return nil, err
	}
	if callerStint == nil {
		return nil, apperr.New(apperr.CodeNotMember, "caller is not a member of this household")
	}
	if callerStint.Role != model.RoleOwner {
		return nil, apperr.New(apperr.CodeForbidden, "owner role required")
	}

	targetStint, err := memberships.CurrentInHousehold(householdID, targetID)
	if err != nil {
		return nil, err
	}
	if targetStint == nil {
		return nil, apperr.New(apperr.CodeTargetNotMember, "target is not a member of this household")
	}
	if targetStint.Role == model.RoleOwner {
		return nil, apperr.New(apperr.CodeCannotKickOwner, "the owner cannot be kicked")
	}

	if n, err := memberships.Close(targetStint.ID); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, apperr.New(apperr.CodeStateChangedRetry, "membership changed concurrently, retry")
	}
	if err := quota.Apply(tx, householdID, map[string]int64{model.MetricActiveMembers: -1}); err != nil {
		return nil, err
	}
	if err := entitlement.Detach(tx, targetID, householdID); err != nil {
		return nil, err
	}
	if _, err := s.chores.ReassignAll(tx, householdID, targetID, callerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("member kicked", "household_id", householdID, "target_id", targetID)
	s.notify(householdID, "member_kicked", map[string]any{"user_id": targetID})
	return &KickResult{Status: StatusKicked, HomeID: householdID, TargetUserID: targetID}, nil
}

// CurrentMembership returns the caller's current stint, or nil when the
// caller belongs to no household.
func (s *Service) CurrentMembership(callerID int64) (*model.Membership, error) {
	if callerID == 0 {
		return nil, apperr.New(apperr.CodeUnauthenticated, "no caller identity")
	}
	return store.NewMembershipStore(s.db).CurrentByUser(callerID)
}

// CurrentPlan reports the caller's household plan; callers without a
// household read as free with no home.
func (s *Service) CurrentPlan(callerID int64) (*PlanStatus, error) {
	if callerID == 0 {
		return nil, apperr.New(apperr.CodeUnauthenticated, "no caller identity")
	}
	cur, err := store.NewMembershipStore(s.db).CurrentByUser(callerID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return &PlanStatus{Plan: model.PlanFree}, nil
	}
	plan, err := quota.EffectivePlan(s.db, cur.HouseholdID, time.Now())
	if err != nil {
		return nil, err
	}
	return &PlanStatus{Plan: plan, HomeID: cur.HouseholdID}, nil
}

// AdmitUsage is the collaborator-facing admission call: the chores and
// expenses modules request counter deltas here before creating photo-bearing
// or countable resources. Check and increment run in one transaction.
// The active_members metric is owned by membership operations and rejected.
func (s *Service) AdmitUsage(callerID, householdID int64, deltas map[string]int64) error {
	if callerID == 0 {
		return apperr.New(apperr.CodeUnauthenticated, "no caller identity")
	}
	if len(deltas) == 0 {
		return apperr.New(apperr.CodeInvalidArgument, "no deltas given")
	}
	for metric := range deltas {
		if !quota.KnownMetric(metric) {
			return apperr.Newf(apperr.CodeInvalidArgument, "unknown metric %q", metric)
		}
		if metric == model.MetricActiveMembers {
			return apperr.New(apperr.CodeInvalidArgument, "active_members is managed by membership operations")
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	m, err := store.NewMembershipStore(tx).CurrentInHousehold(householdID, callerID)
	if err != nil {
		return err
	}
	if m == nil {
		return apperr.New(apperr.CodeNotMember, "caller is not a member of this household")
	}

	if err := quota.Assert(tx, householdID, deltas); err != nil {
		return err
	}
	if err := quota.Apply(tx, householdID, deltas); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Service) notify(householdID int64, event string, data map[string]any) {
	if s.notifier != nil {
		s.notifier.HouseholdEvent(householdID, event, data)
	}
}

// StoreChoreReassigner is the bundled ChoreReassigner backed by the chores
// table.
type StoreChoreReassigner struct{}

func (StoreChoreReassigner) ReassignAll(q database.DBTX, householdID, fromUserID, toUserID int64) (int64, error) {
	return store.NewChoreStore(q).ReassignAll(householdID, fromUserID, toUserID)
}
