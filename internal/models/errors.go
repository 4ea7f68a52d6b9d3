package models

import "errors"

// Typed failures returned by the service layer. Handlers match them with
// errors.Is and render a user-facing message; anything not listed here is an
// internal error.
var (
	// ErrTripNotFound is returned when a chat has no active trip.
	ErrTripNotFound = errors.New("no active trip")

	// ErrTripExists is returned when an insert loses the race for a chat's
	// single active trip slot. The caller retries as a rename.
	ErrTripExists = errors.New("active trip already exists")

	// ErrCarNotFound is returned when the referenced car does not exist on
	// the active trip.
	ErrCarNotFound = errors.New("car not found")

	// ErrNotOwner is returned when the actor lacks the required ownership
	// (car owner for car operations, trip creator for trip deletion).
	ErrNotOwner = errors.New("not the owner")

	// ErrNotAMember is returned when the target has no membership to remove.
	ErrNotAMember = errors.New("not a member")

	// ErrAlreadyMember is returned when the user already occupies a seat
	// somewhere on the trip, either as a member or as a car owner.
	ErrAlreadyMember = errors.New("already occupies a seat on this trip")

	// ErrDuplicateRequest is returned when the user already has a pending
	// join request on the trip.
	ErrDuplicateRequest = errors.New("pending request already exists")

	// ErrCarFull is returned when the car's capacity is exhausted. Checked
	// both at submission and again at approval.
	ErrCarFull = errors.New("car is full")

	// ErrInvalidCapacity is returned when a seat count is non-positive or
	// below the car's current occupancy.
	ErrInvalidCapacity = errors.New("invalid seat count")

	// ErrCannotBootSelf is returned when an owner tries to boot themselves;
	// leaving or deleting the car is the way out.
	ErrCannotBootSelf = errors.New("cannot boot yourself")

	// ErrRequestNotFound is returned when no pending request exists for the
	// given car and requester.
	ErrRequestNotFound = errors.New("join request not found")

	// ErrAlreadyResolved is returned when the request was approved, denied
	// or cancelled before the current action.
	ErrAlreadyResolved = errors.New("join request already resolved")

	// ErrStoreUnavailable wraps transient infrastructure failures. It is the
	// only failure class a caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)
