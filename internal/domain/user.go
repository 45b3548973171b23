// Package domain contains core domain types for the fika scheduler.
package domain

import (
	"time"
)

// User represents a user in the system together with their stored work preferences.
type User struct {
	UserID      string          `json:"user_id"`
	Username    string          `json:"username"`
	Preferences UserPreferences `json:"preferences"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HasPreferences returns true if the user has filled in the fields the scheduler consumes.
func (u *User) HasPreferences() bool {
	return u.Preferences.FocusPeriod != "" && u.Preferences.WorkStyle != ""
}
