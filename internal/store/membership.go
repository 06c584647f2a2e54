package store

import (
	"database/sql"
	"fmt"

	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/model"
)

type MembershipStore struct {
	db database.DBTX
}

func NewMembershipStore(db database.DBTX) *MembershipStore {
	return &MembershipStore{db: db}
}

func scanMembership(scanner interface{ Scan(...any) error }) (*model.Membership, error) {
	var m model.Membership
	var validTo sql.NullTime
	var isCurrent int
	err := scanner.Scan(
		&m.ID, &m.HouseholdID, &m.UserID, &m.Role, &m.Avatar,
		&m.ValidFrom, &validTo, &isCurrent, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if validTo.Valid {
		m.ValidTo = &validTo.Time
	}
	m.IsCurrent = isCurrent != 0
	return &m, nil
}

const membershipCols = `id, household_id, user_id, role, avatar, valid_from, valid_to, is_current, created_at, updated_at`

// Open inserts a new open-ended stint. The partial unique indexes reject a
// second current stint for the user or a second current owner for the
// household.
func (s *MembershipStore) Open(householdID, userID int64, role, avatar string) (*model.Membership, error) {
	result, err := s.db.Exec(
		`INSERT INTO memberships (household_id, user_id, role, avatar) VALUES (?, ?, ?, ?)`,
		householdID, userID, role, avatar,
	)
	if err != nil {
		return nil, fmt.Errorf("open stint: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MembershipStore) GetByID(id int64) (*model.Membership, error) {
	row := s.db.QueryRow(`SELECT `+membershipCols+` FROM memberships WHERE id = ?`, id)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get stint: %w", err)
	}
	return m, nil
}

// CurrentByUser returns the user's single current stint system-wide, if any.
func (s *MembershipStore) CurrentByUser(userID int64) (*model.Membership, error) {
	row := s.db.QueryRow(
		`SELECT `+membershipCols+` FROM memberships WHERE user_id = ? AND is_current = 1`,
		userID,
	)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current stint by user: %w", err)
	}
	return m, nil
}

func (s *MembershipStore) CurrentInHousehold(householdID, userID int64) (*model.Membership, error) {
	row := s.db.QueryRow(
		`SELECT `+membershipCols+` FROM memberships WHERE household_id = ? AND user_id = ? AND is_current = 1`,
		householdID, userID,
	)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current stint in household: %w", err)
	}
	return m, nil
}

func (s *MembershipStore) CurrentOwner(householdID int64) (*model.Membership, error) {
	row := s.db.QueryRow(
		`SELECT `+membershipCols+` FROM memberships WHERE household_id = ? AND role = 'owner' AND is_current = 1`,
		householdID,
	)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current owner: %w", err)
	}
	return m, nil
}

func (s *MembershipStore) ListCurrent(householdID int64) ([]model.Membership, error) {
	rows, err := s.db.Query(
		`SELECT `+membershipCols+` FROM memberships WHERE household_id = ? AND is_current = 1 ORDER BY valid_from ASC, id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list current stints: %w", err)
	}
	defer rows.Close()

	var members []model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stint: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

func (s *MembershipStore) CountCurrent(householdID int64) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM memberships WHERE household_id = ? AND is_current = 1`,
		householdID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count current stints: %w", err)
	}
	return n, nil
}

// Close ends a stint. Closed stints are immutable; a zero row count means the
// stint was already closed by a concurrent operation.
func (s *MembershipStore) Close(id int64) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE memberships SET valid_to = CURRENT_TIMESTAMP, is_current = 0, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_current = 1`,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("close stint: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
