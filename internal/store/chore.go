package store

import (
	"database/sql"
	"fmt"

	"github.com/fernhill/hearth/internal/database"
	"github.com/fernhill/hearth/internal/model"
)

// ChoreStore covers the one slice of the chores module this core touches:
// reassigning a departing member's chores to the remaining owner.
type ChoreStore struct {
	db database.DBTX
}

func NewChoreStore(db database.DBTX) *ChoreStore {
	return &ChoreStore{db: db}
}

func scanChore(scanner interface{ Scan(...any) error }) (*model.Chore, error) {
	var c model.Chore
	var assignedTo sql.NullInt64
	err := scanner.Scan(&c.ID, &c.HouseholdID, &c.Name, &assignedTo, &c.PhotoURL, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if assignedTo.Valid {
		c.AssignedTo = &assignedTo.Int64
	}
	return &c, nil
}

const choreCols = `id, household_id, name, assigned_to, photo_url, created_at`

func (s *ChoreStore) Create(householdID int64, name string, assignedTo *int64) (*model.Chore, error) {
	var at any
	if assignedTo != nil {
		at = *assignedTo
	}
	result, err := s.db.Exec(
		`INSERT INTO chores (household_id, name, assigned_to) VALUES (?, ?, ?)`,
		householdID, name, at,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chore: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+choreCols+` FROM chores WHERE id = ?`, id)
	return scanChore(row)
}

func (s *ChoreStore) ListByAssignee(householdID, userID int64) ([]model.Chore, error) {
	rows, err := s.db.Query(
		`SELECT `+choreCols+` FROM chores WHERE household_id = ? AND assigned_to = ? ORDER BY id ASC`,
		householdID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list chores by assignee: %w", err)
	}
	defer rows.Close()

	var chores []model.Chore
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chore: %w", err)
		}
		chores = append(chores, *c)
	}
	return chores, rows.Err()
}

// ReassignAll moves every chore assigned to fromUserID onto toUserID and
// returns how many moved.
func (s *ChoreStore) ReassignAll(householdID, fromUserID, toUserID int64) (int64, error) {
	result, err := s.db.Exec(
		`UPDATE chores SET assigned_to = ? WHERE household_id = ? AND assigned_to = ?`,
		toUserID, householdID, fromUserID,
	)
	if err != nil {
		return 0, fmt.Errorf("reassign chores: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
