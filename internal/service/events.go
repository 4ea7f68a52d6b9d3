package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the kind of state change an Event describes
type EventKind string

const (
	EventTripCreated      EventKind = "trip_created"
	EventTripRenamed      EventKind = "trip_renamed"
	EventTripDeleted      EventKind = "trip_deleted"
	EventCarCreated       EventKind = "car_created"
	EventCarUpdated       EventKind = "car_updated"
	EventCarDeleted       EventKind = "car_deleted"
	EventRequestCreated   EventKind = "request_created"
	EventRequestDenied    EventKind = "request_denied"
	EventRequestCancelled EventKind = "request_cancelled"
	EventMemberJoined     EventKind = "member_joined"
	EventMemberAdded      EventKind = "member_added"
	EventMemberLeft       EventKind = "member_left"
	EventMemberBooted     EventKind = "member_booted"
)

// Event describes one committed state change. It carries identifiers only;
// rendering text out of them is the dispatcher's job. Events are emitted
// after the owning transaction commits, at most once per state change, in
// commit order.
type Event struct {
	ID     uuid.UUID `json:"id"`
	Kind   EventKind `json:"kind"`
	ChatID int64     `json:"chat_id"`
	TripID int64     `json:"trip_id"`
	CarID  int       `json:"car_id,omitempty"`

	// Name is the trip or car name at emit time. Carried on the event
	// because the entity may already be deleted when it is rendered.
	Name string `json:"name,omitempty"`

	// ActorID is the user who triggered the change; SubjectID the user it
	// happened to (requester, booted member, ...); OwnerID the car owner.
	ActorID   int64 `json:"actor_id"`
	SubjectID int64 `json:"subject_id,omitempty"`
	OwnerID   int64 `json:"owner_id,omitempty"`

	// Seats carries the capacity for car creation and seat updates.
	Seats int `json:"seats,omitempty"`

	// Members lists the former members affected by a cascade (CarDeleted,
	// TripDeleted) so each can be notified individually.
	Members []int64 `json:"members,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// Dispatcher is the capability the engine depends on for delivering
// notifications. Implementations must tolerate being called for state that
// no longer exists (the car in a CarDeleted event is already gone).
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// DispatcherFunc adapts a function to the Dispatcher interface
type DispatcherFunc func(ctx context.Context, event Event) error

// Notify implements Dispatcher
func (f DispatcherFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

func newEvent(kind EventKind, chatID, tripID int64) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		ChatID:     chatID,
		TripID:     tripID,
		OccurredAt: time.Now(),
	}
}
