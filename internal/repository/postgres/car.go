package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

type carRepository struct {
	db DBTX
}

// NewCarRepository creates a new car repository
func NewCarRepository(db DBTX) repository.CarRepository {
	return &carRepository{db: db}
}

func (r *carRepository) Create(ctx context.Context, car *models.Car) (*models.Car, error) {
	query := `
		INSERT INTO cars (trip_id, id, name, owner_id, seats, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	car.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		car.TripID,
		car.ID,
		car.Name,
		car.OwnerID,
		car.Seats,
		car.CreatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create car: %w", err)
	}

	return car, nil
}

const carColumns = `trip_id, id, name, owner_id, seats, created_at`

func (r *carRepository) scanCar(row *sql.Row, context string) (*models.Car, error) {
	car := &models.Car{}
	err := row.Scan(
		&car.TripID,
		&car.ID,
		&car.Name,
		&car.OwnerID,
		&car.Seats,
		&car.CreatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get car %s: %w", context, err)
	}

	return car, nil
}

func (r *carRepository) GetByID(ctx context.Context, tripID int64, carID int) (*models.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars WHERE trip_id = $1 AND id = $2`
	row := r.db.QueryRowContext(ctx, query, tripID, carID)
	return r.scanCar(row, fmt.Sprintf("by id %d", carID))
}

func (r *carRepository) GetByIDForUpdate(ctx context.Context, tripID int64, carID int) (*models.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars WHERE trip_id = $1 AND id = $2 FOR UPDATE`
	row := r.db.QueryRowContext(ctx, query, tripID, carID)
	return r.scanCar(row, fmt.Sprintf("for update %d", carID))
}

func (r *carRepository) GetByOwner(ctx context.Context, tripID, ownerID int64) (*models.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars WHERE trip_id = $1 AND owner_id = $2`
	row := r.db.QueryRowContext(ctx, query, tripID, ownerID)
	return r.scanCar(row, fmt.Sprintf("by owner %d", ownerID))
}

// ListStatuses returns every car on the trip with its member list and pending
// request count in one query, so the listing is a consistent snapshot.
func (r *carRepository) ListStatuses(ctx context.Context, tripID int64) ([]*models.CarStatus, error) {
	query := `
		SELECT c.trip_id, c.id, c.name, c.owner_id, c.seats, c.created_at,
		       COALESCE(ARRAY_AGG(m.user_id ORDER BY m.joined_at) FILTER (WHERE m.user_id IS NOT NULL), '{}') AS members,
		       (SELECT COUNT(*) FROM join_requests jr
		        WHERE jr.trip_id = c.trip_id AND jr.car_id = c.id AND jr.status = 'pending') AS pending
		FROM cars c
		LEFT JOIN car_members m ON m.trip_id = c.trip_id AND m.car_id = c.id
		WHERE c.trip_id = $1
		GROUP BY c.trip_id, c.id, c.name, c.owner_id, c.seats, c.created_at
		ORDER BY c.id`

	rows, err := r.db.QueryContext(ctx, query, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cars for trip %d: %w", tripID, err)
	}
	defer rows.Close()

	var statuses []*models.CarStatus
	for rows.Next() {
		st := &models.CarStatus{}
		var members pq.Int64Array
		err := rows.Scan(
			&st.TripID,
			&st.ID,
			&st.Name,
			&st.OwnerID,
			&st.Seats,
			&st.CreatedAt,
			&members,
			&st.PendingCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan car status: %w", err)
		}
		st.Members = []int64(members)
		st.OccupiedSeats = models.Occupancy(len(st.Members))
		st.AvailableSeats = st.Seats - st.OccupiedSeats
		statuses = append(statuses, st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate car statuses: %w", err)
	}

	return statuses, nil
}

func (r *carRepository) UsedIDs(ctx context.Context, tripID int64) ([]int, error) {
	query := `SELECT id FROM cars WHERE trip_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list car ids for trip %d: %w", tripID, err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan car id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate car ids: %w", err)
	}

	return ids, nil
}

func (r *carRepository) UpdateSeats(ctx context.Context, tripID int64, carID, seats int) error {
	query := `UPDATE cars SET seats = $3 WHERE trip_id = $1 AND id = $2`

	result, err := r.db.ExecContext(ctx, query, tripID, carID, seats)
	if err != nil {
		return fmt.Errorf("failed to update seats for car %d: %w", carID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("car %d not found on trip %d", carID, tripID)
	}

	return nil
}

// Delete removes the car; its memberships and join requests go with it via
// the schema's ON DELETE CASCADE, so a failed delete never leaves a partial
// cascade behind.
func (r *carRepository) Delete(ctx context.Context, tripID int64, carID int) error {
	query := `DELETE FROM cars WHERE trip_id = $1 AND id = $2`

	if _, err := r.db.ExecContext(ctx, query, tripID, carID); err != nil {
		return fmt.Errorf("failed to delete car %d: %w", carID, err)
	}

	return nil
}
