package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

type tripRepository struct {
	db DBTX
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db DBTX) repository.TripRepository {
	return &tripRepository{db: db}
}

func (r *tripRepository) Create(ctx context.Context, trip *models.Trip) (*models.Trip, error) {
	query := `
		INSERT INTO trips (chat_id, name, created_by, active, created_at, updated_at)
		VALUES ($1, $2, $3, TRUE, $4, $5)
		RETURNING id`

	now := time.Now()
	trip.Active = true
	trip.CreatedAt = now
	trip.UpdatedAt = now

	err := r.db.QueryRowContext(ctx, query,
		trip.ChatID,
		trip.Name,
		trip.CreatedBy,
		trip.CreatedAt,
		trip.UpdatedAt,
	).Scan(&trip.ID)

	if err != nil {
		// Two first /trip commands can race past the empty read; the loser
		// hits the active-per-chat unique index.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, models.ErrTripExists
		}
		return nil, fmt.Errorf("failed to create trip: %w", err)
	}

	return trip, nil
}

const tripColumns = `id, chat_id, name, created_by, active, created_at, updated_at`

func (r *tripRepository) getActiveByChatID(ctx context.Context, chatID int64, forUpdate bool) (*models.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE chat_id = $1 AND active`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	trip := &models.Trip{}
	err := r.db.QueryRowContext(ctx, query, chatID).Scan(
		&trip.ID,
		&trip.ChatID,
		&trip.Name,
		&trip.CreatedBy,
		&trip.Active,
		&trip.CreatedAt,
		&trip.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active trip for chat %d: %w", chatID, err)
	}

	return trip, nil
}

func (r *tripRepository) GetActiveByChatID(ctx context.Context, chatID int64) (*models.Trip, error) {
	return r.getActiveByChatID(ctx, chatID, false)
}

func (r *tripRepository) GetActiveByChatIDForUpdate(ctx context.Context, chatID int64) (*models.Trip, error) {
	return r.getActiveByChatID(ctx, chatID, true)
}

func (r *tripRepository) Rename(ctx context.Context, id int64, name string) error {
	query := `UPDATE trips SET name = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id, name, time.Now())
	if err != nil {
		return fmt.Errorf("failed to rename trip %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trip %d not found", id)
	}

	return nil
}

// Delete removes the trip; cars, memberships and join requests go with it via
// the schema's ON DELETE CASCADE.
func (r *tripRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM trips WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete trip %d: %w", id, err)
	}

	return nil
}
