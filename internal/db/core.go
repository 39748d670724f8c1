package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// connectTimeout bounds how long startup waits for the state database.
const connectTimeout = time.Minute

// NewCorePool connects to the state database that holds job records,
// connections and policies, retrying while the server comes up.
func NewCorePool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse state db config: %w", err)
	}
	// Progress writes of concurrent jobs share the pool with API traffic.
	if cfg.MaxConns < 8 {
		cfg.MaxConns = 8
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create state db pool: %w", err)
	}
	if err := waitForPing(ctx, pool.Ping, connectTimeout); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// waitForPing retries ping with a doubling delay capped at five seconds.
func waitForPing(ctx context.Context, ping func(context.Context) error, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	delay := 250 * time.Millisecond
	for {
		err := ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping state db: %w", err)
		case <-time.After(delay):
		}
		delay = min(delay*2, 5*time.Second)
	}
}
