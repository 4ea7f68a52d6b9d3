package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/avolkov/carpoolbot/internal/metrics"
	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

// nextAvailableCarID returns the smallest positive ID not present in used.
// Deleted IDs are reused so the numbers people type stay small. used must be
// sorted ascending, which is how the repository returns it.
func nextAvailableCarID(used []int) int {
	next := 1
	for _, id := range used {
		if id == next {
			next++
		} else if id > next {
			break
		}
	}
	return next
}

// CreateCar creates a car on the chat's active trip. The owner occupies one
// seat immediately, so a user who already holds a seat anywhere on the trip
// cannot create a car. The trip row is locked while the ID is assigned so
// two concurrent creates cannot pick the same one.
func (s *Service) CreateCar(ctx context.Context, chatID int64, name string, seats int, ownerID int64) (*models.Car, error) {
	defer metrics.TimeOp("create_car")()

	if seats < 1 {
		return nil, models.ErrInvalidCapacity
	}
	name = strings.TrimSpace(name)

	var (
		car    *models.Car
		events []Event
	)
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		trip, err := r.Trips.GetActiveByChatIDForUpdate(ctx, chatID)
		if err != nil {
			return err
		}
		if trip == nil {
			return models.ErrTripNotFound
		}

		taken, err := occupiesSeat(ctx, r, trip.ID, ownerID)
		if err != nil {
			return err
		}
		if taken {
			return models.ErrAlreadyMember
		}

		if name == "" {
			owner, err := r.Users.GetByID(ctx, ownerID)
			if err != nil {
				return err
			}
			if owner != nil {
				name = owner.FullName() + "'s car"
			}
		}

		used, err := r.Cars.UsedIDs(ctx, trip.ID)
		if err != nil {
			return err
		}

		car, err = r.Cars.Create(ctx, &models.Car{
			TripID:  trip.ID,
			ID:      nextAvailableCarID(used),
			Name:    name,
			OwnerID: ownerID,
			Seats:   seats,
		})
		if err != nil {
			return err
		}

		e := newEvent(EventCarCreated, chatID, trip.ID)
		e.CarID = car.ID
		e.Name = car.Name
		e.ActorID = ownerID
		e.OwnerID = ownerID
		e.Seats = seats
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"car_id":  car.ID,
		"owner":   ownerID,
		"seats":   seats,
	}).Info("Car created")

	s.dispatch(ctx, events)
	return car, nil
}

// UpdateSeats changes the capacity of the actor's own car. Owner-only; the
// new capacity must be at least 1 and no lower than the current occupancy.
func (s *Service) UpdateSeats(ctx context.Context, chatID int64, seats int, actorID int64) (*models.Car, error) {
	defer metrics.TimeOp("update_seats")()

	var (
		car    *models.Car
		events []Event
	)
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		trip, err := activeTrip(ctx, r, chatID)
		if err != nil {
			return err
		}

		owned, err := r.Cars.GetByOwner(ctx, trip.ID, actorID)
		if err != nil {
			return err
		}
		if owned == nil {
			return models.ErrNotOwner
		}

		// Re-read under lock so the occupancy check and the update are
		// serialized against concurrent approvals.
		car, err = r.Cars.GetByIDForUpdate(ctx, trip.ID, owned.ID)
		if err != nil {
			return err
		}
		if car == nil {
			return models.ErrCarNotFound
		}

		if seats < 1 {
			return models.ErrInvalidCapacity
		}
		memberCount, err := r.Members.Count(ctx, trip.ID, car.ID)
		if err != nil {
			return err
		}
		if seats < models.Occupancy(memberCount) {
			return models.ErrInvalidCapacity
		}

		if err := r.Cars.UpdateSeats(ctx, trip.ID, car.ID, seats); err != nil {
			return err
		}
		car.Seats = seats

		e := newEvent(EventCarUpdated, chatID, trip.ID)
		e.CarID = car.ID
		e.ActorID = actorID
		e.OwnerID = actorID
		e.Seats = seats
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, events)
	return car, nil
}

// DeleteCar deletes the actor's own car, cascading to all memberships and
// pending join requests exactly like an owner departure. The event carries
// the former member list so each of them can be notified.
func (s *Service) DeleteCar(ctx context.Context, chatID, actorID int64) error {
	defer metrics.TimeOp("delete_car")()

	var events []Event
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		trip, err := activeTrip(ctx, r, chatID)
		if err != nil {
			return err
		}

		owned, err := r.Cars.GetByOwner(ctx, trip.ID, actorID)
		if err != nil {
			return err
		}
		if owned == nil {
			return models.ErrNotOwner
		}

		e, err := deleteCarCascade(ctx, r, trip, owned, actorID)
		if err != nil {
			return err
		}
		events = append(events, e)
		return nil
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, events)
	return nil
}

// deleteCarCascade locks the car, collects its members and removes it.
// Memberships and join requests go with the car in the same transaction.
// Shared by explicit deletion and owner departure, which are the same
// operation with different triggers.
func deleteCarCascade(ctx context.Context, r repository.Repositories, trip *models.Trip, car *models.Car, actorID int64) (Event, error) {
	locked, err := r.Cars.GetByIDForUpdate(ctx, trip.ID, car.ID)
	if err != nil {
		return Event{}, err
	}
	if locked == nil {
		return Event{}, models.ErrCarNotFound
	}

	members, err := r.Members.ListUserIDs(ctx, trip.ID, locked.ID)
	if err != nil {
		return Event{}, err
	}

	if err := r.Cars.Delete(ctx, trip.ID, locked.ID); err != nil {
		return Event{}, err
	}

	e := newEvent(EventCarDeleted, trip.ChatID, trip.ID)
	e.CarID = locked.ID
	e.Name = locked.Name
	e.ActorID = actorID
	e.OwnerID = locked.OwnerID
	e.Members = members
	return e, nil
}
