package models

import "time"

// Trip represents a carpool event scoped to one chat. At most one trip per
// chat is active at a time.
type Trip struct {
	ID        int64     `json:"id" db:"id"`
	ChatID    int64     `json:"chat_id" db:"chat_id"`
	Name      string    `json:"name" db:"name"`
	CreatedBy int64     `json:"created_by" db:"created_by"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
