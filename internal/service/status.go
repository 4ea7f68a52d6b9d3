package service

import (
	"context"

	"github.com/avolkov/carpoolbot/internal/metrics"
	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

// SeatStatus describes one user's standing on a trip: the car they drive,
// the car they ride in, or the request they are waiting on. At most one of
// the fields is set.
type SeatStatus struct {
	Trip     *models.Trip
	OwnedCar *models.CarStatus
	RideCar  *models.CarStatus
	Pending  *models.JoinRequest
}

// SeatStatus reports the user's standing on the chat's active trip, read
// from one consistent snapshot.
func (s *Service) SeatStatus(ctx context.Context, chatID, userID int64) (*SeatStatus, error) {
	defer metrics.TimeOp("seat_status")()

	st := &SeatStatus{}
	err := s.store.ExecTx(ctx, func(r repository.Repositories) error {
		trip, err := activeTrip(ctx, r, chatID)
		if err != nil {
			return err
		}
		st.Trip = trip

		statuses, err := r.Cars.ListStatuses(ctx, trip.ID)
		if err != nil {
			return err
		}
		for _, cs := range statuses {
			if cs.OwnerID == userID {
				st.OwnedCar = cs
				return nil
			}
			for _, m := range cs.Members {
				if m == userID {
					st.RideCar = cs
					return nil
				}
			}
		}

		st.Pending, err = r.Requests.GetPendingByUser(ctx, trip.ID, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
