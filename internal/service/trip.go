package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/avolkov/carpoolbot/internal/metrics"
	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

// UpsertTrip creates the chat's active trip, or renames it when one already
// exists. Renaming is open to any user in the chat; the trip is shared
// state, not the creator's property. Returns the trip and whether it was
// newly created.
func (s *Service) UpsertTrip(ctx context.Context, chatID int64, name string, actorID int64) (*models.Trip, bool, error) {
	defer metrics.TimeOp("upsert_trip")()

	name = strings.TrimSpace(name)

	var (
		trip    *models.Trip
		created bool
		events  []Event
	)
	upsert := func() error {
		return s.store.ExecTx(ctx, func(r repository.Repositories) error {
			existing, err := r.Trips.GetActiveByChatIDForUpdate(ctx, chatID)
			if err != nil {
				return err
			}

			if existing == nil {
				trip, err = r.Trips.Create(ctx, &models.Trip{
					ChatID:    chatID,
					Name:      name,
					CreatedBy: actorID,
				})
				if err != nil {
					return err
				}
				created = true

				e := newEvent(EventTripCreated, chatID, trip.ID)
				e.Name = name
				e.ActorID = actorID
				events = append(events, e)
				return nil
			}

			if err := r.Trips.Rename(ctx, existing.ID, name); err != nil {
				return err
			}
			existing.Name = name
			trip = existing

			e := newEvent(EventTripRenamed, chatID, existing.ID)
			e.Name = name
			e.ActorID = actorID
			events = append(events, e)
			return nil
		})
	}

	err := upsert()
	if errors.Is(err, models.ErrTripExists) {
		// Lost the insert race. The winner's row is committed and visible
		// now, so a second attempt resolves to a rename.
		events = nil
		err = upsert()
	}
	if err != nil {
		return nil, false, err
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id": chatID,
		"trip_id": trip.ID,
		"created": created,
	}).Info("Trip upserted")

	s.dispatch(ctx, events)
	return trip, created, nil
}

// DeleteTrip removes the chat's active trip and cascades to every car,
// membership and join request on it. Only the trip creator may delete it.
func (s *Service) DeleteTrip(ctx context.Context, chatID, actorID int64) error {
	defer metrics.TimeOp("delete_trip")()

	var events []Event
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		trip, err := r.Trips.GetActiveByChatIDForUpdate(ctx, chatID)
		if err != nil {
			return err
		}
		if trip == nil {
			return models.ErrTripNotFound
		}
		if trip.CreatedBy != actorID {
			return models.ErrNotOwner
		}

		// Collect everyone holding a seat so the dispatcher can tell each of
		// them the trip is gone.
		statuses, err := r.Cars.ListStatuses(ctx, trip.ID)
		if err != nil {
			return err
		}
		var affected []int64
		for _, st := range statuses {
			affected = append(affected, st.OwnerID)
			affected = append(affected, st.Members...)
		}

		if err := r.Trips.Delete(ctx, trip.ID); err != nil {
			return err
		}

		e := newEvent(EventTripDeleted, chatID, trip.ID)
		e.Name = trip.Name
		e.ActorID = actorID
		e.Members = affected
		events = append(events, e)
		return nil
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, events)
	return nil
}

// ListCars returns every car on the chat's active trip with occupancy and
// pending-request counts, read from one consistent transaction snapshot.
// Safe to call concurrently with any writer.
func (s *Service) ListCars(ctx context.Context, chatID int64) ([]*models.CarStatus, error) {
	defer metrics.TimeOp("list_cars")()

	var statuses []*models.CarStatus
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		trip, err := activeTrip(ctx, r, chatID)
		if err != nil {
			return err
		}
		statuses, err = r.Cars.ListStatuses(ctx, trip.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return statuses, nil
}
