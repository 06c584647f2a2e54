package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/model"
)

type InviteStore struct {
	db database.DBTX
}

func NewInviteStore(db database.DBTX) *InviteStore {
	return &InviteStore{db: db}
}

func scanInvite(scanner interface{ Scan(...any) error }) (*model.Invite, error) {
	var inv model.Invite
	var revokedAt sql.NullTime
	err := scanner.Scan(&inv.ID, &inv.HouseholdID, &inv.Code, &inv.UsedCount, &inv.CreatedAt, &revokedAt)
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		inv.RevokedAt = &revokedAt.Time
	}
	return &inv, nil
}

const inviteCols = `id, household_id, code, used_count, created_at, revoked_at`

// Create inserts a new open invite. The partial unique indexes reject a
// second open invite for the household and a duplicate open code; callers
// detect that with IsUniqueViolation.
func (s *InviteStore) Create(householdID int64, code string) (*model.Invite, error) {
	result, err := s.db.Exec(
		`INSERT INTO invites (household_id, code) VALUES (?, ?)`,
		householdID, strings.ToUpper(code),
	)
	if err != nil {
		return nil, fmt.Errorf("insert invite: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *InviteStore) GetByID(id int64) (*model.Invite, error) {
	row := s.db.QueryRow(`SELECT `+inviteCols+` FROM invites WHERE id = ?`, id)
	inv, err := scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get invite: %w", err)
	}
	return inv, nil
}

// OpenByHousehold returns the household's single open invite, if any.
func (s *InviteStore) OpenByHousehold(householdID int64) (*model.Invite, error) {
	row := s.db.QueryRow(
		`SELECT `+inviteCols+` FROM invites WHERE household_id = ? AND revoked_at IS NULL`,
		householdID,
	)
	inv, err := scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open invite by household: %w", err)
	}
	return inv, nil
}

// OpenByCode looks up an open invite by case-insensitive code.
func (s *InviteStore) OpenByCode(code string) (*model.Invite, error) {
	row := s.db.QueryRow(
		`SELECT `+inviteCols+` FROM invites WHERE code = ? AND revoked_at IS NULL`,
		strings.ToUpper(code),
	)
	inv, err := scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open invite by code: %w", err)
	}
	return inv, nil
}

// LatestByCode returns the most recently issued invite with the given code,
// open or revoked. Redeem uses it to distinguish a revoked code from one that
// never existed.
func (s *InviteStore) LatestByCode(code string) (*model.Invite, error) {
	row := s.db.QueryRow(
		`SELECT `+inviteCols+` FROM invites WHERE code = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		strings.ToUpper(code),
	)
	inv, err := scanInvite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest invite by code: %w", err)
	}
	return inv, nil
}

// RevokeOpen revokes every open invite for the household and returns how many
// were revoked.
func (s *InviteStore) RevokeOpen(householdID int64) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE invites SET revoked_at = CURRENT_TIMESTAMP WHERE household_id = ? AND revoked_at IS NULL`,
		householdID,
	)
	if err != nil {
		return 0, fmt.Errorf("revoke open invites: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (s *InviteStore) IncrementUsed(id int64) error {
	_, err := s.db.Exec(`UPDATE invites SET used_count = used_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment invite used count: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err is a SQLite uniqueness constraint
// failure, used by invite rotation to detect losing the insert race.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
