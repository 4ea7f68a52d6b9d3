package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

type userRepository struct {
	db DBTX
}

// NewUserRepository creates a new user repository
func NewUserRepository(db DBTX) repository.UserRepository {
	return &userRepository{db: db}
}

// Upsert records the user, refreshing profile fields on conflict so @username
// lookups stay current.
func (r *userRepository) Upsert(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO UPDATE
		SET username = $2, first_name = $3, last_name = $4, updated_at = $5
		RETURNING created_at, updated_at`

	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		user.ID,
		user.Username,
		user.FirstName,
		user.LastName,
		now,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to upsert user %d: %w", user.ID, err)
	}

	return user, nil
}

const userColumns = `id, username, first_name, last_name, created_at, updated_at`

func scanUser(row *sql.Row, context string) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.FirstName,
		&user.LastName,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user %s: %w", context, err)
	}

	return user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	row := r.db.QueryRowContext(ctx, query, id)
	return scanUser(row, fmt.Sprintf("by id %d", id))
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1)`
	row := r.db.QueryRowContext(ctx, query, username)
	return scanUser(row, fmt.Sprintf("by username %s", username))
}
