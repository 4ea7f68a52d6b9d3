package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

type membershipRepository struct {
	db DBTX
}

// NewMembershipRepository creates a new membership repository
func NewMembershipRepository(db DBTX) repository.MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) Create(ctx context.Context, m *models.Membership) (*models.Membership, error) {
	query := `
		INSERT INTO car_members (trip_id, car_id, user_id, joined_at)
		VALUES ($1, $2, $3, $4)`

	m.JoinedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query, m.TripID, m.CarID, m.UserID, m.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	return m, nil
}

func (r *membershipRepository) Get(ctx context.Context, tripID int64, carID int, userID int64) (*models.Membership, error) {
	query := `
		SELECT trip_id, car_id, user_id, joined_at
		FROM car_members
		WHERE trip_id = $1 AND car_id = $2 AND user_id = $3`

	m := &models.Membership{}
	err := r.db.QueryRowContext(ctx, query, tripID, carID, userID).Scan(
		&m.TripID, &m.CarID, &m.UserID, &m.JoinedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}

	return m, nil
}

func (r *membershipRepository) GetByUser(ctx context.Context, tripID, userID int64) (*models.Membership, error) {
	query := `
		SELECT trip_id, car_id, user_id, joined_at
		FROM car_members
		WHERE trip_id = $1 AND user_id = $2`

	m := &models.Membership{}
	err := r.db.QueryRowContext(ctx, query, tripID, userID).Scan(
		&m.TripID, &m.CarID, &m.UserID, &m.JoinedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get membership for user %d: %w", userID, err)
	}

	return m, nil
}

func (r *membershipRepository) ListUserIDs(ctx context.Context, tripID int64, carID int) ([]int64, error) {
	query := `
		SELECT user_id FROM car_members
		WHERE trip_id = $1 AND car_id = $2
		ORDER BY joined_at`

	rows, err := r.db.QueryContext(ctx, query, tripID, carID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members for car %d: %w", carID, err)
	}
	defer rows.Close()

	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		userIDs = append(userIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	return userIDs, nil
}

func (r *membershipRepository) Count(ctx context.Context, tripID int64, carID int) (int, error) {
	query := `SELECT COUNT(*) FROM car_members WHERE trip_id = $1 AND car_id = $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, tripID, carID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count members for car %d: %w", carID, err)
	}

	return count, nil
}

func (r *membershipRepository) Delete(ctx context.Context, tripID int64, carID int, userID int64) error {
	query := `DELETE FROM car_members WHERE trip_id = $1 AND car_id = $2 AND user_id = $3`

	result, err := r.db.ExecContext(ctx, query, tripID, carID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete membership: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// The seat may have vanished between the caller's read and the row
		// lock; surface that as the domain error, not an internal one.
		return fmt.Errorf("car %d, user %d: %w", carID, userID, models.ErrNotAMember)
	}

	return nil
}
