// Package store persists job records, connections, credentials, backup
// policies and API keys in the state database.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB defines the database operations used by the stores.
// *pgxpool.Pool satisfies this interface.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	ErrNotFound = errors.New("not found")
	// ErrJobInProgress is returned when a connection already has a live
	// loading job.
	ErrJobInProgress = errors.New("a backup is already in progress for this connection")
	// ErrNotLoading is returned by progress updates once the job has left the
	// loading state or was deleted.
	ErrNotLoading = errors.New("job is no longer loading")
	// ErrRestoreInProgress is returned when a restore is already loading.
	ErrRestoreInProgress = errors.New("a restore is already in progress for this backup")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation &&
		(constraint == "" || pgErr.ConstraintName == constraint)
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}
