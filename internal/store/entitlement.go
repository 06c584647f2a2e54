package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/model"
)

type EntitlementStore struct {
	db database.DBTX
}

func NewEntitlementStore(db database.DBTX) *EntitlementStore {
	return &EntitlementStore{db: db}
}

func scanEntitlement(scanner interface{ Scan(...any) error }) (*model.Entitlement, error) {
	var e model.Entitlement
	var expiresAt sql.NullTime
	err := scanner.Scan(&e.HouseholdID, &e.Plan, &expiresAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		e.ExpiresAt = &expiresAt.Time
	}
	return &e, nil
}

const entitlementCols = `household_id, plan, expires_at, updated_at`

func (s *EntitlementStore) Get(householdID int64) (*model.Entitlement, error) {
	row := s.db.QueryRow(`SELECT `+entitlementCols+` FROM entitlements WHERE household_id = ?`, householdID)
	e, err := scanEntitlement(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entitlement: %w", err)
	}
	return e, nil
}

// Upsert writes the derived (plan, expires_at) pair for a household. The
// recompute that produces these values is idempotent, so replaying an upsert
// converges.
func (s *EntitlementStore) Upsert(householdID int64, plan string, expiresAt *time.Time) (*model.Entitlement, error) {
	var exp any
	if expiresAt != nil {
		exp = expiresAt.UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO entitlements (household_id, plan, expires_at, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (household_id) DO UPDATE SET
		   plan = excluded.plan,
		   expires_at = excluded.expires_at,
		   updated_at = CURRENT_TIMESTAMP`,
		householdID, plan, exp,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert entitlement: %w", err)
	}
	return s.Get(householdID)
}
