package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

type joinRequestRepository struct {
	db DBTX
}

// NewJoinRequestRepository creates a new join request repository
func NewJoinRequestRepository(db DBTX) repository.JoinRequestRepository {
	return &joinRequestRepository{db: db}
}

func (r *joinRequestRepository) Create(ctx context.Context, req *models.JoinRequest) (*models.JoinRequest, error) {
	query := `
		INSERT INTO join_requests (trip_id, car_id, user_id, status, requested_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	req.Status = models.RequestStatusPending
	req.RequestedAt = time.Now()

	err := r.db.QueryRowContext(ctx, query,
		req.TripID,
		req.CarID,
		req.UserID,
		req.Status,
		req.RequestedAt,
	).Scan(&req.ID)

	if err != nil {
		return nil, fmt.Errorf("failed to create join request: %w", err)
	}

	return req, nil
}

const joinRequestColumns = `id, trip_id, car_id, user_id, status, requested_at, resolved_at`

func scanJoinRequest(row *sql.Row, context string) (*models.JoinRequest, error) {
	req := &models.JoinRequest{}
	err := row.Scan(
		&req.ID,
		&req.TripID,
		&req.CarID,
		&req.UserID,
		&req.Status,
		&req.RequestedAt,
		&req.ResolvedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get join request %s: %w", context, err)
	}

	return req, nil
}

func (r *joinRequestRepository) GetPending(ctx context.Context, tripID int64, carID int, userID int64) (*models.JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE trip_id = $1 AND car_id = $2 AND user_id = $3 AND status = 'pending'`

	row := r.db.QueryRowContext(ctx, query, tripID, carID, userID)
	return scanJoinRequest(row, fmt.Sprintf("pending car=%d user=%d", carID, userID))
}

func (r *joinRequestRepository) GetPendingByUser(ctx context.Context, tripID, userID int64) (*models.JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE trip_id = $1 AND user_id = $2 AND status = 'pending'`

	row := r.db.QueryRowContext(ctx, query, tripID, userID)
	return scanJoinRequest(row, fmt.Sprintf("pending user=%d", userID))
}

func (r *joinRequestRepository) GetLatest(ctx context.Context, tripID int64, carID int, userID int64) (*models.JoinRequest, error) {
	query := `
		SELECT ` + joinRequestColumns + `
		FROM join_requests
		WHERE trip_id = $1 AND car_id = $2 AND user_id = $3
		ORDER BY requested_at DESC
		LIMIT 1`

	row := r.db.QueryRowContext(ctx, query, tripID, carID, userID)
	return scanJoinRequest(row, fmt.Sprintf("latest car=%d user=%d", carID, userID))
}

func (r *joinRequestRepository) Resolve(ctx context.Context, id int64, status models.RequestStatus) error {
	query := `
		UPDATE join_requests
		SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, id, status, time.Now())
	if err != nil {
		return fmt.Errorf("failed to resolve join request %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("join request %d is not pending", id)
	}

	return nil
}
