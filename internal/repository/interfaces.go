package repository

import (
	"context"

	"github.com/avolkov/carpoolbot/internal/models"
)

// TripRepository defines the interface for trip data operations
type TripRepository interface {
	Create(ctx context.Context, trip *models.Trip) (*models.Trip, error)
	GetActiveByChatID(ctx context.Context, chatID int64) (*models.Trip, error)
	// GetActiveByChatIDForUpdate locks the active trip row for the duration
	// of the surrounding transaction. Used to serialize car creation.
	GetActiveByChatIDForUpdate(ctx context.Context, chatID int64) (*models.Trip, error)
	Rename(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, id int64) error
}

// CarRepository defines the interface for car data operations
type CarRepository interface {
	Create(ctx context.Context, car *models.Car) (*models.Car, error)
	GetByID(ctx context.Context, tripID int64, carID int) (*models.Car, error)
	// GetByIDForUpdate locks the car row for the duration of the surrounding
	// transaction, so concurrent approvals and seat changes serialize.
	GetByIDForUpdate(ctx context.Context, tripID int64, carID int) (*models.Car, error)
	GetByOwner(ctx context.Context, tripID, ownerID int64) (*models.Car, error)
	ListStatuses(ctx context.Context, tripID int64) ([]*models.CarStatus, error)
	UsedIDs(ctx context.Context, tripID int64) ([]int, error)
	UpdateSeats(ctx context.Context, tripID int64, carID, seats int) error
	Delete(ctx context.Context, tripID int64, carID int) error
}

// MembershipRepository defines the interface for membership data operations
type MembershipRepository interface {
	Create(ctx context.Context, m *models.Membership) (*models.Membership, error)
	Get(ctx context.Context, tripID int64, carID int, userID int64) (*models.Membership, error)
	// GetByUser finds the user's membership anywhere on the trip.
	GetByUser(ctx context.Context, tripID, userID int64) (*models.Membership, error)
	ListUserIDs(ctx context.Context, tripID int64, carID int) ([]int64, error)
	Count(ctx context.Context, tripID int64, carID int) (int, error)
	Delete(ctx context.Context, tripID int64, carID int, userID int64) error
}

// JoinRequestRepository defines the interface for join request operations
type JoinRequestRepository interface {
	Create(ctx context.Context, r *models.JoinRequest) (*models.JoinRequest, error)
	GetPending(ctx context.Context, tripID int64, carID int, userID int64) (*models.JoinRequest, error)
	// GetPendingByUser finds the user's pending request anywhere on the trip.
	GetPendingByUser(ctx context.Context, tripID, userID int64) (*models.JoinRequest, error)
	// GetLatest returns the most recent request for (car, user) regardless of
	// status, so resolved requests can be told apart from missing ones.
	GetLatest(ctx context.Context, tripID int64, carID int, userID int64) (*models.JoinRequest, error)
	Resolve(ctx context.Context, id int64, status models.RequestStatus) error
}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Upsert(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// Repositories bundles the entity repositories bound to one database handle,
// either the shared pool or a single transaction.
type Repositories struct {
	Trips    TripRepository
	Cars     CarRepository
	Members  MembershipRepository
	Requests JoinRequestRepository
	Users    UserRepository
}

// Store provides transactional access to the repositories. Every mutating
// engine operation runs inside exactly one ExecTx call: the callback either
// fully commits or the transaction is rolled back, so partial state is never
// observable.
type Store interface {
	// ExecTx runs fn inside a read-committed transaction. Row locks taken via
	// the ForUpdate getters are held until commit.
	ExecTx(ctx context.Context, fn func(r Repositories) error) error
	// Repos returns repositories bound to the shared pool for single-statement
	// reads that need no snapshot.
	Repos() Repositories
}
