package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/avolkov/carpoolbot/internal/metrics"
	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

// Service is the business logic layer: the trip/car lifecycle manager and the
// capacity & membership engine. It holds no cached state: every operation
// re-reads current rows inside its own transaction, so concurrent commands
// can never act on stale occupancy.
type Service struct {
	store      repository.Store
	dispatcher Dispatcher
	logger     *logrus.Logger
}

// New creates a new Service. The dispatcher receives events only after the
// owning transaction has committed; a nil dispatcher drops all events.
func New(store repository.Store, dispatcher Dispatcher, logger *logrus.Logger) *Service {
	if dispatcher == nil {
		dispatcher = DispatcherFunc(func(context.Context, Event) error { return nil })
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// dispatch delivers events in commit order. Delivery failures are logged and
// counted but never propagated: the state change is already committed.
func (s *Service) dispatch(ctx context.Context, events []Event) {
	for _, e := range events {
		metrics.EventsDispatched.WithLabelValues(string(e.Kind)).Inc()
		if err := s.dispatcher.Notify(ctx, e); err != nil {
			metrics.NotifyFailuresTotal.Inc()
			s.logger.WithError(err).WithFields(logrus.Fields{
				"event":   e.Kind,
				"chat_id": e.ChatID,
				"car_id":  e.CarID,
			}).Error("Failed to deliver notification")
		}
	}
}

// activeTrip resolves the chat's active trip inside the current transaction.
func activeTrip(ctx context.Context, r repository.Repositories, chatID int64) (*models.Trip, error) {
	trip, err := r.Trips.GetActiveByChatID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, models.ErrTripNotFound
	}
	return trip, nil
}

// occupiesSeat reports whether the user already holds a seat anywhere on the
// trip, either as an approved member or as the owner of a car.
func occupiesSeat(ctx context.Context, r repository.Repositories, tripID, userID int64) (bool, error) {
	m, err := r.Members.GetByUser(ctx, tripID, userID)
	if err != nil {
		return false, err
	}
	if m != nil {
		return true, nil
	}
	own, err := r.Cars.GetByOwner(ctx, tripID, userID)
	if err != nil {
		return false, err
	}
	return own != nil, nil
}

// EnsureUser records or refreshes the user's profile so @username lookups and
// DM routing work. Called by the gateway on every command.
func (s *Service) EnsureUser(ctx context.Context, user *models.User) (*models.User, error) {
	u, err := s.store.Repos().Users.Upsert(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("ensure user %d: %w", user.ID, err)
	}
	return u, nil
}

// GetUser returns the stored profile for the given user ID, or nil when the
// user has never talked to the bot.
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.store.Repos().Users.GetByID(ctx, id)
}

// ResolveUsername maps an @username to a known user, or nil when nobody with
// that name has talked to the bot yet.
func (s *Service) ResolveUsername(ctx context.Context, username string) (*models.User, error) {
	return s.store.Repos().Users.GetByUsername(ctx, username)
}

// ActiveTrip returns the chat's active trip, or nil when there is none.
func (s *Service) ActiveTrip(ctx context.Context, chatID int64) (*models.Trip, error) {
	return s.store.Repos().Trips.GetActiveByChatID(ctx, chatID)
}
