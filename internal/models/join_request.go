package models

import "time"

// RequestStatus represents the lifecycle state of a join request
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusDenied   RequestStatus = "denied"
	// RequestStatusCancelled means the requester withdrew the request before
	// the owner resolved it.
	RequestStatusCancelled RequestStatus = "cancelled"
)

// JoinRequest is a pending ask to occupy a seat in a car, resolved by the
// car owner. A user holds at most one pending request per trip.
type JoinRequest struct {
	ID          int64         `json:"id" db:"id"`
	TripID      int64         `json:"trip_id" db:"trip_id"`
	CarID       int           `json:"car_id" db:"car_id"`
	UserID      int64         `json:"user_id" db:"user_id"`
	Status      RequestStatus `json:"status" db:"status"`
	RequestedAt time.Time     `json:"requested_at" db:"requested_at"`
	ResolvedAt  *time.Time    `json:"resolved_at" db:"resolved_at"`
}

// IsPending returns true if the request has not been resolved yet
func (r *JoinRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}
