package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/avolkov/carpoolbot/internal/metrics"
	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

// SubmitJoinRequest creates a pending join request for the given car on the
// chat's active trip. The capacity check here is only a pre-check; it is
// re-validated at approval time, because seats can fill in between.
func (s *Service) SubmitJoinRequest(ctx context.Context, chatID int64, carID int, userID int64) (*models.JoinRequest, error) {
	defer metrics.TimeOp("submit_join_request")()

	var (
		req    *models.JoinRequest
		events []Event
	)
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		trip, err := activeTrip(ctx, r, chatID)
		if err != nil {
			return err
		}

		car, err := r.Cars.GetByIDForUpdate(ctx, trip.ID, carID)
		if err != nil {
			return err
		}
		if car == nil {
			return models.ErrCarNotFound
		}

		taken, err := occupiesSeat(ctx, r, trip.ID, userID)
		if err != nil {
			return err
		}
		if taken {
			return models.ErrAlreadyMember
		}

		pending, err := r.Requests.GetPendingByUser(ctx, trip.ID, userID)
		if err != nil {
			return err
		}
		if pending != nil {
			return models.ErrDuplicateRequest
		}

		memberCount, err := r.Members.Count(ctx, trip.ID, car.ID)
		if err != nil {
			return err
		}
		if !models.HasSpace(car.Seats, memberCount) {
			return models.ErrCarFull
		}

		req, err = r.Requests.Create(ctx, &models.JoinRequest{
			TripID: trip.ID,
			CarID:  car.ID,
			UserID: userID,
		})
		if err != nil {
			return err
		}

		e := newEvent(EventRequestCreated, chatID, trip.ID)
		e.CarID = car.ID
		e.ActorID = userID
		e.SubjectID = userID
		e.OwnerID = car.OwnerID
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, events)
	return req, nil
}

// ApproveRequest resolves a pending request in the requester's favor.
// Owner-only. Capacity and the requester's single-seat invariant are
// re-checked under the car row lock, so two concurrent approvals for the
// last seat resolve to exactly one success and one ErrCarFull. When the car
// turns out to be full, the request is auto-denied in the same transaction
// so it cannot be retried forever.
func (s *Service) ApproveRequest(ctx context.Context, chatID int64, carID int, requesterID, approverID int64) error {
	defer metrics.TimeOp("approve_request")()

	var (
		full   bool
		events []Event
	)
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		trip, err := activeTrip(ctx, r, chatID)
		if err != nil {
			return err
		}

		car, err := r.Cars.GetByIDForUpdate(ctx, trip.ID, carID)
		if err != nil {
			return err
		}
		if car == nil {
			return models.ErrCarNotFound
		}
		if car.OwnerID != approverID {
			return models.ErrNotOwner
		}

		req, err := pendingRequest(ctx, r, trip.ID, car.ID, requesterID)
		if err != nil {
			return err
		}

		// The requester may have been seated elsewhere since they asked.
		taken, err := occupiesSeat(ctx, r, trip.ID, requesterID)
		if err != nil {
			return err
		}
		if taken {
			return models.ErrAlreadyMember
		}

		memberCount, err := r.Members.Count(ctx, trip.ID, car.ID)
		if err != nil {
			return err
		}
		if !models.HasSpace(car.Seats, memberCount) {
			// Deny and commit; the surrounding call still reports ErrCarFull.
			if err := r.Requests.Resolve(ctx, req.ID, models.RequestStatusDenied); err != nil {
				return err
			}
			full = true

			e := newEvent(EventRequestDenied, chatID, trip.ID)
			e.CarID = car.ID
			e.ActorID = approverID
			e.SubjectID = requesterID
			e.OwnerID = car.OwnerID
			events = append(events, e)
			return nil
		}

		if err := r.Requests.Resolve(ctx, req.ID, models.RequestStatusApproved); err != nil {
			return err
		}
		if _, err := r.Members.Create(ctx, &models.Membership{
			TripID: trip.ID,
			CarID:  car.ID,
			UserID: requesterID,
		}); err != nil {
			return err
		}

		e := newEvent(EventMemberJoined, chatID, trip.ID)
		e.CarID = car.ID
		e.ActorID = approverID
		e.SubjectID = requesterID
		e.OwnerID = car.OwnerID
		events = append(events, e)
		return nil
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, events)
	if full {
		return models.ErrCarFull
	}

	s.logger.WithFields(logrus.Fields{
		"chat_id":   chatID,
		"car_id":    carID,
		"requester": requesterID,
	}).Info("Join request approved")
	return nil
}

// AddResult reports the outcome of an owner seating riders directly.
type AddResult struct {
	Car     *models.Car
	Added   []int64
	Skipped []int64
}

// AddMembers seats the given users in the actor's own car, skipping the
// request round-trip. Owner-only. Targets already holding a seat anywhere
// on the trip are skipped, not failed. When the remaining targets don't all
// fit the free seats, nothing is committed and ErrCarFull is returned. A
// pending request of an added user is resolved on the way: approved when it
// was for this car, cancelled otherwise, so no seated user keeps a pending
// request.
func (s *Service) AddMembers(ctx context.Context, chatID int64, targetIDs []int64, actorID int64) (*AddResult, error) {
	defer metrics.TimeOp("add_members")()

	res := &AddResult{}
	var events []Event
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		res.Added, res.Skipped = nil, nil
		events = nil

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

		car, err := r.Cars.GetByIDForUpdate(ctx, trip.ID, owned.ID)
		if err != nil {
			return err
		}
		if car == nil {
			return models.ErrCarNotFound
		}
		res.Car = car

		memberCount, err := r.Members.Count(ctx, trip.ID, car.ID)
		if err != nil {
			return err
		}

		seen := make(map[int64]bool)
		for _, target := range targetIDs {
			if target == actorID || seen[target] {
				continue
			}
			seen[target] = true

			taken, err := occupiesSeat(ctx, r, trip.ID, target)
			if err != nil {
				return err
			}
			if taken {
				res.Skipped = append(res.Skipped, target)
				continue
			}

			if !models.HasSpace(car.Seats, memberCount) {
				return models.ErrCarFull
			}

			pending, err := r.Requests.GetPendingByUser(ctx, trip.ID, target)
			if err != nil {
				return err
			}
			if pending != nil {
				status := models.RequestStatusCancelled
				if pending.CarID == car.ID {
					status = models.RequestStatusApproved
				}
				if err := r.Requests.Resolve(ctx, pending.ID, status); err != nil {
					return err
				}
			}

			if _, err := r.Members.Create(ctx, &models.Membership{
				TripID: trip.ID,
				CarID:  car.ID,
				UserID: target,
			}); err != nil {
				return err
			}
			memberCount++
			res.Added = append(res.Added, target)

			e := newEvent(EventMemberAdded, chatID, trip.ID)
			e.CarID = car.ID
			e.Name = car.Name
			e.ActorID = actorID
			e.SubjectID = target
			e.OwnerID = actorID
			events = append(events, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, events)
	return res, nil
}

// DenyRequest resolves a pending request against the requester. Owner-only.
func (s *Service) DenyRequest(ctx context.Context, chatID int64, carID int, requesterID, approverID int64) error {
	defer metrics.TimeOp("deny_request")()

	var events []Event
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		trip, err := activeTrip(ctx, r, chatID)
		if err != nil {
			return err
		}

		car, err := r.Cars.GetByIDForUpdate(ctx, trip.ID, carID)
		if err != nil {
			return err
		}
		if car == nil {
			return models.ErrCarNotFound
		}
		if car.OwnerID != approverID {
			return models.ErrNotOwner
		}

		req, err := pendingRequest(ctx, r, trip.ID, car.ID, requesterID)
		if err != nil {
			return err
		}

		if err := r.Requests.Resolve(ctx, req.ID, models.RequestStatusDenied); err != nil {
			return err
		}

		e := newEvent(EventRequestDenied, chatID, trip.ID)
		e.CarID = car.ID
		e.ActorID = approverID
		e.SubjectID = requesterID
		e.OwnerID = car.OwnerID
		events = append(events, e)
		return nil
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, events)
	return nil
}

// CancelRequest withdraws the user's own pending request, wherever it is on
// the chat's active trip.
func (s *Service) CancelRequest(ctx context.Context, chatID, userID int64) (*models.JoinRequest, error) {
	defer metrics.TimeOp("cancel_request")()

	var (
		req    *models.JoinRequest
		events []Event
	)
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		trip, err := activeTrip(ctx, r, chatID)
		if err != nil {
			return err
		}

		req, err = r.Requests.GetPendingByUser(ctx, trip.ID, userID)
		if err != nil {
			return err
		}
		if req == nil {
			return models.ErrRequestNotFound
		}

		car, err := r.Cars.GetByID(ctx, trip.ID, req.CarID)
		if err != nil {
			return err
		}

		if err := r.Requests.Resolve(ctx, req.ID, models.RequestStatusCancelled); err != nil {
			return err
		}

		e := newEvent(EventRequestCancelled, chatID, trip.ID)
		e.CarID = req.CarID
		e.ActorID = userID
		e.SubjectID = userID
		if car != nil {
			e.OwnerID = car.OwnerID
		}
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, events)
	return req, nil
}

// Leave removes the user's seat on the chat's active trip. For a regular
// member that deletes the membership. For a car owner it is an owner
// departure: a car's identity is inseparable from its owner, so the whole
// car, its memberships and its pending requests are deleted in one
// transaction.
func (s *Service) Leave(ctx context.Context, chatID, userID int64) error {
	defer metrics.TimeOp("leave")()

	var events []Event
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		trip, err := activeTrip(ctx, r, chatID)
		if err != nil {
			return err
		}

		owned, err := r.Cars.GetByOwner(ctx, trip.ID, userID)
		if err != nil {
			return err
		}
		if owned != nil {
			e, err := deleteCarCascade(ctx, r, trip, owned, userID)
			if err != nil {
				return err
			}
			events = append(events, e)
			return nil
		}

		membership, err := r.Members.GetByUser(ctx, trip.ID, userID)
		if err != nil {
			return err
		}
		if membership == nil {
			return models.ErrNotAMember
		}

		// The first read ran without the car lock, so the car or the seat
		// may be gone by the time we hold it. Either way there is nothing
		// left to leave.
		car, err := r.Cars.GetByIDForUpdate(ctx, trip.ID, membership.CarID)
		if err != nil {
			return err
		}
		if car == nil {
			return models.ErrNotAMember
		}
		membership, err = r.Members.Get(ctx, trip.ID, car.ID, userID)
		if err != nil {
			return err
		}
		if membership == nil {
			return models.ErrNotAMember
		}

		if err := r.Members.Delete(ctx, trip.ID, car.ID, userID); err != nil {
			return err
		}

		e := newEvent(EventMemberLeft, chatID, trip.ID)
		e.CarID = car.ID
		e.ActorID = userID
		e.SubjectID = userID
		e.OwnerID = car.OwnerID
		events = append(events, e)
		return nil
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, events)
	return nil
}

// Boot removes a member from the actor's own car. Owner-only; the owner
// cannot boot themselves. Leaving or deleting the car is the way out.
func (s *Service) Boot(ctx context.Context, chatID, targetID, actorID int64) error {
	defer metrics.TimeOp("boot")()

	if targetID == actorID {
		return models.ErrCannotBootSelf
	}

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

		car, err := r.Cars.GetByIDForUpdate(ctx, trip.ID, owned.ID)
		if err != nil {
			return err
		}
		if car == nil {
			return models.ErrCarNotFound
		}

		membership, err := r.Members.Get(ctx, trip.ID, car.ID, targetID)
		if err != nil {
			return err
		}
		if membership == nil {
			return models.ErrNotAMember
		}

		if err := r.Members.Delete(ctx, trip.ID, car.ID, targetID); err != nil {
			return err
		}

		e := newEvent(EventMemberBooted, chatID, trip.ID)
		e.CarID = car.ID
		e.ActorID = actorID
		e.SubjectID = targetID
		e.OwnerID = actorID
		events = append(events, e)
		return nil
	})
	if err != nil {
		return err
	}

	s.dispatch(ctx, events)
	return nil
}

// pendingRequest finds the pending request for (car, user), mapping its
// absence to ErrRequestNotFound or ErrAlreadyResolved depending on whether a
// resolved request exists.
func pendingRequest(ctx context.Context, r repository.Repositories, tripID int64, carID int, userID int64) (*models.JoinRequest, error) {
	req, err := r.Requests.GetPending(ctx, tripID, carID, userID)
	if err != nil {
		return nil, err
	}
	if req != nil {
		return req, nil
	}

	latest, err := r.Requests.GetLatest(ctx, tripID, carID, userID)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		return nil, models.ErrAlreadyResolved
	}
	return nil, models.ErrRequestNotFound
}
