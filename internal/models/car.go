package models

import "time"

// Car represents a vehicle with finite capacity, owned by one user and
// belonging to one trip. Car IDs are scoped to the trip and kept small so
// people can type them in commands; deleted IDs are reused.
type Car struct {
	TripID    int64     `json:"trip_id" db:"trip_id"`
	ID        int       `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	OwnerID   int64     `json:"owner_id" db:"owner_id"`
	Seats     int       `json:"seats" db:"seats"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CarStatus is a read-only snapshot of a car's occupancy, as produced by
// listing queries. The owner occupies one seat implicitly and is not stored
// as a membership row.
type CarStatus struct {
	Car
	Members        []int64 `json:"members"`
	PendingCount   int     `json:"pending_count"`
	OccupiedSeats  int     `json:"occupied_seats"`
	AvailableSeats int     `json:"available_seats"`
}

// Occupancy returns the number of occupied seats for the given membership
// count: one for the owner plus one per approved member.
func Occupancy(memberCount int) int {
	return 1 + memberCount
}

// HasSpace reports whether a car with the given seat count can take another
// member on top of memberCount approved members.
func HasSpace(seats, memberCount int) bool {
	return Occupancy(memberCount) < seats
}
