package store

import (
	"database/sql"
	"fmt"

	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/model"
)

type HouseholdStore struct {
	db database.DBTX
}

func NewHouseholdStore(db database.DBTX) *HouseholdStore {
	return &HouseholdStore{db: db}
}

func scanHousehold(scanner interface{ Scan(...any) error }) (*model.Household, error) {
	var h model.Household
	var isActive int
	var deactivatedAt sql.NullTime
	err := scanner.Scan(&h.ID, &h.Name, &h.OwnerUserID, &isActive, &deactivatedAt, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.IsActive = isActive != 0
	if deactivatedAt.Valid {
		h.DeactivatedAt = &deactivatedAt.Time
	}
	return &h, nil
}

const householdCols = `id, name, owner_user_id, is_active, deactivated_at, created_at, updated_at`

func (s *HouseholdStore) Create(name string, ownerUserID int64) (*model.Household, error) {
	result, err := s.db.Exec(
		`INSERT INTO households (name, owner_user_id) VALUES (?, ?)`,
		name, ownerUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert household: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *HouseholdStore) GetByID(id int64) (*model.Household, error) {
	row := s.db.QueryRow(`SELECT `+householdCols+` FROM households WHERE id = ?`, id)
	h, err := scanHousehold(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get household: %w", err)
	}
	return h, nil
}

// SetOwner updates the household's owner reference. Returns the number of
// rows affected so callers can detect a vanished household.
func (s *HouseholdStore) SetOwner(id, ownerUserID int64) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE households SET owner_user_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND is_active = 1`,
		ownerUserID, id,
	)
	if err != nil {
		return 0, fmt.Errorf("set household owner: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Deactivate marks the household inactive and stamps deactivated_at.
// Households are never physically deleted.
func (s *HouseholdStore) Deactivate(id int64) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE households SET is_active = 0, deactivated_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_active = 1`,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate household: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
