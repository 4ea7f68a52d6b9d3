package models

import "time"

// Membership is a confirmed seat occupancy of one user in one car. The car
// owner's seat is implicit and never has a Membership row.
type Membership struct {
	TripID   int64     `json:"trip_id" db:"trip_id"`
	CarID    int       `json:"car_id" db:"car_id"`
	UserID   int64     `json:"user_id" db:"user_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}
