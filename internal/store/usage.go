package store

import (
	"database/sql"
	"fmt"

	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/model"
)

type UsageStore struct {
	db database.DBTX
}

func NewUsageStore(db database.DBTX) *UsageStore {
	return &UsageStore{db: db}
}

// Get returns the counter value, zero if no row exists yet.
func (s *UsageStore) Get(householdID int64, metric string) (int64, error) {
	var count int64
	err := s.db.QueryRow(
		`SELECT count FROM usage_counters WHERE household_id = ? AND metric = ?`,
		householdID, metric,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get usage counter: %w", err)
	}
	return count, nil
}

func (s *UsageStore) List(householdID int64) ([]model.UsageCounter, error) {
	rows, err := s.db.Query(
		`SELECT household_id, metric, count FROM usage_counters WHERE household_id = ? ORDER BY metric ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list usage counters: %w", err)
	}
	defer rows.Close()

	var counters []model.UsageCounter
	for rows.Next() {
		var c model.UsageCounter
		if err := rows.Scan(&c.HouseholdID, &c.Metric, &c.Count); err != nil {
			return nil, fmt.Errorf("scan usage counter: %w", err)
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

// ApplyDelta adjusts a counter by a signed delta. Counters are never
// recomputed from row scans; the CHECK constraint rejects a drop below zero.
// The insert arm clamps at zero because SQLite evaluates the CHECK on the
// proposed insert row before conflict resolution kicks in; a raw negative
// value there would abort even when the existing counter is positive.
func (s *UsageStore) ApplyDelta(householdID int64, metric string, delta int64) error {
	_, err := s.db.Exec(
		`INSERT INTO usage_counters (household_id, metric, count) VALUES (?, ?, max(?, 0))
		 ON CONFLICT (household_id, metric) DO UPDATE SET count = count + ?`,
		householdID, metric, delta, delta,
	)
	if err != nil {
		return fmt.Errorf("apply usage delta: %w", err)
	}
	return nil
}
