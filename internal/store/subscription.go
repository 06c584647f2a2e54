package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/model"
)

type SubscriptionStore struct {
	db database.DBTX
}

func NewSubscriptionStore(db database.DBTX) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var householdID sql.NullInt64
	var periodEnd sql.NullTime
	err := scanner.Scan(
		&sub.ID, &sub.UserID, &householdID, &sub.ProviderSubscriptionID,
		&sub.Status, &periodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if householdID.Valid {
		sub.HouseholdID = &householdID.Int64
	}
	if periodEnd.Valid {
		sub.CurrentPeriodEndAt = &periodEnd.Time
	}
	return &sub, nil
}

const subscriptionCols = `id, user_id, household_id, provider_subscription_id, status, current_period_end_at, created_at, updated_at`

func (s *SubscriptionStore) Create(userID int64, householdID *int64, providerID, status string, periodEnd *time.Time) (*model.Subscription, error) {
	var hh any
	if householdID != nil {
		hh = *householdID
	}
	var pe any
	if periodEnd != nil {
		pe = periodEnd.UTC()
	}
	result, err := s.db.Exec(
		`INSERT INTO subscriptions (user_id, household_id, provider_subscription_id, status, current_period_end_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, hh, providerID, status, pe,
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *SubscriptionStore) GetByID(id int64) (*model.Subscription, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscriptions WHERE id = ?`, id)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) GetByProviderID(providerID string) (*model.Subscription, error) {
	row := s.db.QueryRow(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE provider_subscription_id = ?`,
		providerID,
	)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by provider id: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionStore) ListByHousehold(householdID int64) ([]model.Subscription, error) {
	rows, err := s.db.Query(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE household_id = ? ORDER BY id ASC`,
		householdID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions by household: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// ListFloatingByUser returns the user's subscriptions not attached to any
// household, newest first.
func (s *SubscriptionStore) ListFloatingByUser(userID int64) ([]model.Subscription, error) {
	rows, err := s.db.Query(
		`SELECT `+subscriptionCols+` FROM subscriptions WHERE user_id = ? AND household_id IS NULL ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list floating subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *SubscriptionStore) UpdateStatus(id int64, status string, periodEnd *time.Time) error {
	var pe any
	if periodEnd != nil {
		pe = periodEnd.UTC()
	}
	_, err := s.db.Exec(
		`UPDATE subscriptions SET status = ?, current_period_end_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, pe, id,
	)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return nil
}

func (s *SubscriptionStore) Attach(id, householdID int64) error {
	_, err := s.db.Exec(
		`UPDATE subscriptions SET household_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		householdID, id,
	)
	if err != nil {
		return fmt.Errorf("attach subscription: %w", err)
	}
	return nil
}

// DetachByUser floats all of the user's subscriptions attached to the given
// household. Returns how many were detached.
func (s *SubscriptionStore) DetachByUser(userID, householdID int64) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE subscriptions SET household_id = NULL, updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ? AND household_id = ?`,
		userID, householdID,
	)
	if err != nil {
		return 0, fmt.Errorf("detach subscriptions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
