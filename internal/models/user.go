package models

import "time"

// User represents a Telegram user known to the bot. The record exists so
// commands like /boot @name can resolve a username to an ID, and so
// notifications can be delivered by DM.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName returns the user's full name
func (u *User) FullName() string {
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

// DisplayName returns the best display name for the user
func (u *User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FullName()
}
