package model

import "time"

type Invite struct {
	ID          int64      `json:"id"`
	HouseholdID int64      `json:"household_id"`
	Code        string     `json:"code"`
	UsedCount   int        `json:"used_count"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Open reports whether the invite is still redeemable.
func (i *Invite) Open() bool {
	return i.RevokedAt == nil
}
