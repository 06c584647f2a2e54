package model

import "time"

// Role values for a membership stint.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

type Household struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	OwnerUserID   int64      `json:"owner_user_id"`
	IsActive      bool       `json:"is_active"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Membership is one continuous stint of a user's membership in a household.
// Stints are append-only: a closed stint (ValidTo set) is never reopened.
type Membership struct {
	ID          int64      `json:"id"`
	HouseholdID int64      `json:"household_id"`
	UserID      int64      `json:"user_id"`
	Role        string     `json:"role"`
	Avatar      string     `json:"avatar"`
	ValidFrom   time.Time  `json:"valid_from"`
	ValidTo     *time.Time `json:"valid_to,omitempty"`
	IsCurrent   bool       `json:"is_current"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Chore is the minimal slice of the chores module this core touches:
// reassignment of responsibility when a member departs.
type Chore struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	Name        string    `json:"name"`
	AssignedTo  *int64    `json:"assigned_to,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
