package household

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fernhill/hearth/internal/apperr"
	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/model"
	"github.com/fernhill/hearth/internal/store"
)

func setupServiceTest(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db, StoreChoreReassigner{}, nil, logger), db
}

// setupServiceTestFile backs the database with a file so concurrent
// goroutines contend on the real writer lock instead of sharing one
// in-memory connection.
func setupServiceTestFile(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "hearth.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db, StoreChoreReassigner{}, nil, logger), db
}

func errCode(t *testing.T, err error) apperr.Code {
	t.Helper()
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("error = %v, want *apperr.Error", err)
	}
	return ae.Code
}

func TestCreateHousehold(t *testing.T) {
	svc, db := setupServiceTest(t)

	result, err := svc.Create(1, "Bag End")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Household.OwnerUserID != 1 {
		t.Errorf("owner = %d, want 1", result.Household.OwnerUserID)
	}
	if !result.Household.IsActive {
		t.Error("new household should be active")
	}
	if result.Membership.Role != model.RoleOwner {
		t.Errorf("role = %q, want owner", result.Membership.Role)
	}
	if result.Membership.Avatar == "" {
		t.Error("expected an avatar assignment")
	}
	if result.Invite == nil || !result.Invite.Open() {
		t.Errorf("invite = %+v, want an open invite", result.Invite)
	}
	if len(result.Invite.Code) != 6 {
		t.Errorf("invite code = %q, want 6 chars", result.Invite.Code)
	}

	ent, _ := store.NewEntitlementStore(db).Get(result.Household.ID)
	if ent == nil || ent.Plan != model.PlanFree {
		t.Errorf("entitlement = %+v, want seeded free", ent)
	}
	count, _ := store.NewUsageStore(db).Get(result.Household.ID, model.MetricActiveMembers)
	if count != 1 {
		t.Errorf("active_members = %d, want 1", count)
	}
}

func TestCreateRequiresName(t *testing.T) {
	svc, _ := setupServiceTest(t)

	_, err := svc.Create(1, "   ")
	if got := errCode(t, err); got != apperr.CodeInvalidArgument {
		t.Errorf("code = %q, want INVALID_ARGUMENT", got)
	}
}

func TestCreateWhileMemberElsewhere(t *testing.T) {
	svc, _ := setupServiceTest(t)

	if _, err := svc.Create(1, "Bag End"); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.Create(1, "Second Home")
	if got := errCode(t, err); got != apperr.CodeAlreadyInOtherHome {
		t.Errorf("code = %q, want ALREADY_IN_OTHER_HOME", got)
	}
}

func TestJoinByCode(t *testing.T) {
	svc, db := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	hid := created.Household.ID

	result, err := svc.Join(2, created.Invite.Code)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if result.Status != StatusJoined {
		t.Errorf("status = %q, want joined", result.Status)
	}
	if result.Membership.Role != model.RoleMember {
		t.Errorf("role = %q, want member", result.Membership.Role)
	}
	if result.Membership.Avatar == created.Membership.Avatar {
		t.Error("joiner should not share the owner's avatar")
	}

	count, _ := store.NewUsageStore(db).Get(hid, model.MetricActiveMembers)
	if count != 2 {
		t.Errorf("active_members = %d, want 2", count)
	}
	inv, _ := store.NewInviteStore(db).GetByID(created.Invite.ID)
	if inv.UsedCount != 1 {
		t.Errorf("used_count = %d, want 1", inv.UsedCount)
	}
}

func TestJoinCodeCaseInsensitive(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")

	lower := ""
	for _, r := range created.Invite.Code {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		lower += string(r)
	}
	result, err := svc.Join(2, lower)
	if err != nil {
		t.Fatalf("join with lowercase code: %v", err)
	}
	if result.Status != StatusJoined {
		t.Errorf("status = %q, want joined", result.Status)
	}
}

func TestJoinIdempotent(t *testing.T) {
	svc, db := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	svc.Join(2, created.Invite.Code)

	result, err := svc.Join(2, created.Invite.Code)
	if err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if result.Status != StatusAlreadyMember {
		t.Errorf("status = %q, want already_member", result.Status)
	}

	// Idempotent join mutates nothing
	count, _ := store.NewUsageStore(db).Get(created.Household.ID, model.MetricActiveMembers)
	if count != 2 {
		t.Errorf("active_members = %d, want 2", count)
	}
	inv, _ := store.NewInviteStore(db).GetByID(created.Invite.ID)
	if inv.UsedCount != 1 {
		t.Errorf("used_count = %d, want 1", inv.UsedCount)
	}
}

func TestJoinUnknownCode(t *testing.T) {
	svc, _ := setupServiceTest(t)

	_, err := svc.Join(2, "ZZZZZZ")
	if got := errCode(t, err); got != apperr.CodeInvalidCode {
		t.Errorf("code = %q, want INVALID_CODE", got)
	}
}

func TestJoinRevokedCode(t *testing.T) {
	svc, db := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	if _, err := store.NewInviteStore(db).RevokeOpen(created.Household.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	_, err := svc.Join(2, created.Invite.Code)
	if got := errCode(t, err); got != apperr.CodeInactiveInvite {
		t.Errorf("code = %q, want INACTIVE_INVITE", got)
	}
}

func TestJoinWhileMemberElsewhere(t *testing.T) {
	svc, _ := setupServiceTest(t)

	svc.Create(1, "Bag End")
	second, _ := svc.Create(2, "Brandy Hall")

	_, err := svc.Join(1, second.Invite.Code)
	if got := errCode(t, err); got != apperr.CodeAlreadyInOtherHome {
		t.Errorf("code = %q, want ALREADY_IN_OTHER_HOME", got)
	}
}

func TestJoinDeniedAtFreeCeiling(t *testing.T) {
	svc, db := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	if _, err := svc.Join(2, created.Invite.Code); err != nil {
		t.Fatalf("second member join: %v", err)
	}

	_, err := svc.Join(3, created.Invite.Code)
	if got := errCode(t, err); got != apperr.CodeQuotaExceeded {
		t.Fatalf("code = %q, want QUOTA_EXCEEDED", got)
	}

	// Denied join leaves no trace
	count, _ := store.NewUsageStore(db).Get(created.Household.ID, model.MetricActiveMembers)
	if count != 2 {
		t.Errorf("active_members = %d, want 2", count)
	}
	cur, _ := store.NewMembershipStore(db).CurrentByUser(3)
	if cur != nil {
		t.Errorf("denied joiner has a stint: %+v", cur)
	}
}

func TestJoinPremiumBypassesCeiling(t *testing.T) {
	svc, db := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	svc.Join(2, created.Invite.Code)

	if _, err := store.NewEntitlementStore(db).Upsert(created.Household.ID, model.PlanPremium, nil); err != nil {
		t.Fatalf("upsert entitlement: %v", err)
	}

	result, err := svc.Join(3, created.Invite.Code)
	if err != nil {
		t.Fatalf("premium join: %v", err)
	}
	if result.Status != StatusJoined {
		t.Errorf("status = %q, want joined", result.Status)
	}
}

func TestLeaveOwnerMustTransferFirst(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	svc.Join(2, created.Invite.Code)

	_, err := svc.Leave(1, created.Household.ID)
	if got := errCode(t, err); got != apperr.CodeOwnerMustTransfer {
		t.Errorf("code = %q, want OWNER_MUST_TRANSFER_FIRST", got)
	}
}

func TestLeaveMember(t *testing.T) {
	svc, db := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	hid := created.Household.ID
	svc.Join(2, created.Invite.Code)

	// Chores assigned to the departing member move to the owner
	from := int64(2)
	store.NewChoreStore(db).Create(hid, "Dishes", &from)

	result, err := svc.Leave(2, hid)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if result.Status != StatusLeft {
		t.Errorf("status = %q, want left", result.Status)
	}

	count, _ := store.NewUsageStore(db).Get(hid, model.MetricActiveMembers)
	if count != 1 {
		t.Errorf("active_members = %d, want 1", count)
	}
	ownerChores, _ := store.NewChoreStore(db).ListByAssignee(hid, 1)
	if len(ownerChores) != 1 {
		t.Errorf("owner chores = %d, want 1 reassigned", len(ownerChores))
	}

	// Second leave finds no stint
	_, err = svc.Leave(2, hid)
	if got := errCode(t, err); got != apperr.CodeNotMember {
		t.Errorf("code = %q, want NOT_MEMBER", got)
	}
}

func TestLeaveLastMemberDeactivates(t *testing.T) {
	svc, db := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	hid := created.Household.ID

	result, err := svc.Leave(1, hid)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if result.Status != StatusDeactivated {
		t.Errorf("status = %q, want household_deactivated", result.Status)
	}

	h, _ := store.NewHouseholdStore(db).GetByID(hid)
	if h.IsActive {
		t.Error("household should be deactivated, not deleted")
	}

	// The code survives but no longer admits anyone
	_, err = svc.Join(2, created.Invite.Code)
	if got := errCode(t, err); got != apperr.CodeInactiveInvite {
		t.Errorf("code = %q, want INACTIVE_INVITE on deactivated household", got)
	}
}

func TestLeaveUnknownHousehold(t *testing.T) {
	svc, _ := setupServiceTest(t)

	_, err := svc.Leave(1, 999)
	if got := errCode(t, err); got != apperr.CodeNotFound {
		t.Errorf("code = %q, want NOT_FOUND", got)
	}
}

func TestTransferOwnership(t *testing.T) {
	svc, db := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	hid := created.Household.ID
	joined, _ := svc.Join(2, created.Invite.Code)

	result, err := svc.TransferOwnership(1, hid, 2)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if result.Status != StatusTransferred || result.NewOwnerID != 2 {
		t.Errorf("result = %+v, want transferred to 2", result)
	}

	ms := store.NewMembershipStore(db)
	newOwner, _ := ms.CurrentInHousehold(hid, 2)
	if newOwner.Role != model.RoleOwner {
		t.Errorf("new owner role = %q, want owner", newOwner.Role)
	}
	if newOwner.Avatar != joined.Membership.Avatar {
		t.Errorf("avatar changed across transfer: %q vs %q", newOwner.Avatar, joined.Membership.Avatar)
	}
	oldOwner, _ := ms.CurrentInHousehold(hid, 1)
	if oldOwner.Role != model.RoleMember {
		t.Errorf("old owner role = %q, want member", oldOwner.Role)
	}
	h, _ := store.NewHouseholdStore(db).GetByID(hid)
	if h.OwnerUserID != 2 {
		t.Errorf("household owner = %d, want 2", h.OwnerUserID)
	}

	// The demoted owner can now leave
	if _, err := svc.Leave(1, hid); err != nil {
		t.Errorf("demoted owner leave: %v", err)
	}
}

func TestTransferToSelf(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	_, err := svc.TransferOwnership(1, created.Household.ID, 1)
	if got := errCode(t, err); got != apperr.CodeInvalidArgument {
		t.Errorf("code = %q, want INVALID_ARGUMENT", got)
	}
}

func TestTransferToNonMember(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	_, err := svc.TransferOwnership(1, created.Household.ID, 9)
	if got := errCode(t, err); got != apperr.CodeNewOwnerNotMember {
		t.Errorf("code = %q, want NEW_OWNER_NOT_MEMBER", got)
	}
}

func TestTransferByNonOwner(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	svc.Join(2, created.Invite.Code)

	_, err := svc.TransferOwnership(2, created.Household.ID, 1)
	if got := errCode(t, err); got != apperr.CodeForbidden {
		t.Errorf("code = %q, want FORBIDDEN", got)
	}
}

func TestKick(t *testing.T) {
	svc, db := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	hid := created.Household.ID
	svc.Join(2, created.Invite.Code)

	from := int64(2)
	store.NewChoreStore(db).Create(hid, "Dishes", &from)

	result, err := svc.Kick(1, hid, 2)
	if err != nil {
		t.Fatalf("kick: %v", err)
	}
	if result.Status != StatusKicked || result.TargetUserID != 2 {
		t.Errorf("result = %+v, want kicked user 2", result)
	}

	cur, _ := store.NewMembershipStore(db).CurrentByUser(2)
	if cur != nil {
		t.Errorf("kicked user still has a stint: %+v", cur)
	}
	count, _ := store.NewUsageStore(db).Get(hid, model.MetricActiveMembers)
	if count != 1 {
		t.Errorf("active_members = %d, want 1", count)
	}
	callerChores, _ := store.NewChoreStore(db).ListByAssignee(hid, 1)
	if len(callerChores) != 1 {
		t.Errorf("caller chores = %d, want 1 reassigned", len(callerChores))
	}
}

func TestKickOwnerRejected(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	svc.Join(2, created.Invite.Code)
	svc.TransferOwnership(1, created.Household.ID, 2)

	_, err := svc.Kick(2, created.Household.ID, 2)
	if got := errCode(t, err); got != apperr.CodeCannotKickOwner {
		t.Errorf("code = %q, want CANNOT_KICK_OWNER", got)
	}
}

func TestKickNonMember(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	_, err := svc.Kick(1, created.Household.ID, 9)
	if got := errCode(t, err); got != apperr.CodeTargetNotMember {
		t.Errorf("code = %q, want TARGET_NOT_MEMBER", got)
	}
}

func TestKickByNonOwner(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	svc.Join(2, created.Invite.Code)

	_, err := svc.Kick(2, created.Household.ID, 1)
	if got := errCode(t, err); got != apperr.CodeForbidden {
		t.Errorf("code = %q, want FORBIDDEN", got)
	}
}

func TestKickedUserCanJoinElsewhere(t *testing.T) {
	svc, _ := setupServiceTest(t)

	first, _ := svc.Create(1, "Bag End")
	svc.Join(2, first.Invite.Code)
	svc.Kick(1, first.Household.ID, 2)

	second, _ := svc.Create(3, "Brandy Hall")
	result, err := svc.Join(2, second.Invite.Code)
	if err != nil {
		t.Fatalf("join after kick: %v", err)
	}
	if result.Status != StatusJoined {
		t.Errorf("status = %q, want joined", result.Status)
	}
}

func TestFullLifecycle(t *testing.T) {
	svc, db := setupServiceTest(t)

	// U1 creates a household and U2 joins with the seeded code
	created, err := svc.Create(1, "Bag End")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	hid := created.Household.ID
	if _, err := svc.Join(2, created.Invite.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	count, _ := store.NewUsageStore(db).Get(hid, model.MetricActiveMembers)
	if count != 2 {
		t.Fatalf("active_members = %d, want 2", count)
	}

	// Ownership moves to U2, then U1 leaves
	if _, err := svc.TransferOwnership(1, hid, 2); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	result, err := svc.Leave(1, hid)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if result.Status != StatusLeft {
		t.Errorf("status = %q, want left", result.Status)
	}
	h, _ := store.NewHouseholdStore(db).GetByID(hid)
	if !h.IsActive {
		t.Fatal("household should remain active with U2 as sole member")
	}

	// U2 leaves as the last member and the household deactivates
	result, err = svc.Leave(2, hid)
	if err != nil {
		t.Fatalf("final leave: %v", err)
	}
	if result.Status != StatusDeactivated {
		t.Errorf("status = %q, want household_deactivated", result.Status)
	}
	h, _ = store.NewHouseholdStore(db).GetByID(hid)
	if h.IsActive {
		t.Error("household should be deactivated")
	}

	// Full stint history survives
	var stints int
	if err := db.QueryRow(`SELECT COUNT(*) FROM memberships WHERE household_id = ?`, hid).Scan(&stints); err != nil {
		t.Fatalf("count stints: %v", err)
	}
	if stints != 4 {
		t.Errorf("stint rows = %d, want 4 (owner, member, and the two transfer stints)", stints)
	}
	var current int
	if err := db.QueryRow(`SELECT COUNT(*) FROM memberships WHERE household_id = ? AND is_current = 1`, hid).Scan(&current); err != nil {
		t.Fatalf("count current: %v", err)
	}
	if current != 0 {
		t.Errorf("current stints = %d, want 0", current)
	}
}

func TestConcurrentJoinsTwoHouseholds(t *testing.T) {
	svc, db := setupServiceTestFile(t)

	first, err := svc.Create(1, "Bag End")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.Create(2, "Crickhollow")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	// The same user races to join both households; exactly one join may win.
	codes := []string{first.Invite.Code, second.Invite.Code}
	errs := make([]error, len(codes))
	var wg sync.WaitGroup
	for i, code := range codes {
		wg.Add(1)
		go func(i int, code string) {
			defer wg.Done()
			_, errs[i] = svc.Join(3, code)
		}(i, code)
	}
	wg.Wait()

	var joined int
	for _, err := range errs {
		if err == nil {
			joined++
			continue
		}
		if code := errCode(t, err); code != apperr.CodeAlreadyInOtherHome {
			t.Errorf("loser code = %q, want ALREADY_IN_OTHER_HOME", code)
		}
	}
	if joined != 1 {
		t.Fatalf("joined = %d, want exactly 1", joined)
	}

	m, err := store.NewMembershipStore(db).CurrentByUser(3)
	if err != nil {
		t.Fatalf("current by user: %v", err)
	}
	if m == nil {
		t.Fatal("winner should hold a current stint")
	}
	var stints int
	if err := db.QueryRow(`SELECT COUNT(*) FROM memberships WHERE user_id = 3 AND is_current = 1`).Scan(&stints); err != nil {
		t.Fatalf("count stints: %v", err)
	}
	if stints != 1 {
		t.Errorf("current stints = %d, want 1", stints)
	}
}

func TestCurrentMembershipAndPlan(t *testing.T) {
	svc, db := setupServiceTest(t)

	// No household yet
	m, err := svc.CurrentMembership(1)
	if err != nil {
		t.Fatalf("current membership: %v", err)
	}
	if m != nil {
		t.Errorf("membership = %+v, want nil", m)
	}
	plan, err := svc.CurrentPlan(1)
	if err != nil {
		t.Fatalf("current plan: %v", err)
	}
	if plan.Plan != model.PlanFree || plan.HomeID != 0 {
		t.Errorf("plan = %+v, want free with no home", plan)
	}

	created, _ := svc.Create(1, "Bag End")
	store.NewEntitlementStore(db).Upsert(created.Household.ID, model.PlanPremium, nil)

	plan, _ = svc.CurrentPlan(1)
	if plan.Plan != model.PlanPremium || plan.HomeID != created.Household.ID {
		t.Errorf("plan = %+v, want premium in household %d", plan, created.Household.ID)
	}
}

func TestAdmitUsage(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	hid := created.Household.ID

	for i := 0; i < 5; i++ {
		if err := svc.AdmitUsage(1, hid, map[string]int64{model.MetricChorePhotos: 1}); err != nil {
			t.Fatalf("admit %d: %v", i+1, err)
		}
	}
	err := svc.AdmitUsage(1, hid, map[string]int64{model.MetricChorePhotos: 1})
	if got := errCode(t, err); got != apperr.CodeQuotaExceeded {
		t.Errorf("code = %q, want QUOTA_EXCEEDED at the photo ceiling", got)
	}

	// Releasing makes room again
	if err := svc.AdmitUsage(1, hid, map[string]int64{model.MetricChorePhotos: -1}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := svc.AdmitUsage(1, hid, map[string]int64{model.MetricChorePhotos: 1}); err != nil {
		t.Errorf("re-admit after release: %v", err)
	}
}

func TestAdmitUsageRejectsManagedMetric(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	err := svc.AdmitUsage(1, created.Household.ID, map[string]int64{model.MetricActiveMembers: 1})
	if got := errCode(t, err); got != apperr.CodeInvalidArgument {
		t.Errorf("code = %q, want INVALID_ARGUMENT for active_members", got)
	}
}

func TestAdmitUsageUnknownMetric(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	err := svc.AdmitUsage(1, created.Household.ID, map[string]int64{"bogus": 1})
	if got := errCode(t, err); got != apperr.CodeInvalidArgument {
		t.Errorf("code = %q, want INVALID_ARGUMENT for unknown metric", got)
	}
}

func TestAdmitUsageNonMember(t *testing.T) {
	svc, _ := setupServiceTest(t)

	created, _ := svc.Create(1, "Bag End")
	err := svc.AdmitUsage(9, created.Household.ID, map[string]int64{model.MetricChorePhotos: 1})
	if got := errCode(t, err); got != apperr.CodeNotMember {
		t.Errorf("code = %q, want NOT_MEMBER", got)
	}
}
