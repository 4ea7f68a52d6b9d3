package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/repository"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx, so every
// repository works both against the pool and inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements repository.Store on top of a Postgres connection pool.
type Store struct {
	db *sql.DB
}

// NewStore creates a new transactional store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func newRepositories(db DBTX) repository.Repositories {
	return repository.Repositories{
		Trips:    NewTripRepository(db),
		Cars:     NewCarRepository(db),
		Members:  NewMembershipRepository(db),
		Requests: NewJoinRequestRepository(db),
		Users:    NewUserRepository(db),
	}
}

// Repos returns repositories bound to the shared pool.
func (s *Store) Repos() repository.Repositories {
	return newRepositories(s.db)
}

// ExecTx runs fn inside a single read-committed transaction. Repository row
// locks (SELECT ... FOR UPDATE) taken by fn are held until commit, which is
// what serializes concurrent approvals against the same car. Infrastructure
// failures around the transaction boundary are wrapped in ErrStoreUnavailable
// so callers can tell retryable failures from validation ones.
func (s *Store) ExecTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", models.ErrStoreUnavailable, err)
	}

	if err := fn(newRepositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", models.ErrStoreUnavailable, err)
	}
	return nil
}
