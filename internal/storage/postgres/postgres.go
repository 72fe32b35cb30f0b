// Package postgres persists the party roster and the stash in PostgreSQL
// using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/crawler/internal/config"
)

// applicationName tags the simulator's sessions in pg_stat_activity.
const applicationName = "crawl"

// Store is a connection pool together with the repositories sharing it.
type Store struct {
	pool  *pgxpool.Pool
	Party *PartyRepository
	Stash *StashRepository
}

// Open connects to the database described by cfg.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a Store whose pool answered a ping, or a non-nil error.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return NewStore(pool), nil
}

// NewStore builds the repositories over an open pool. Close closes the pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:  pool,
		Party: NewPartyRepository(pool),
		Stash: NewStashRepository(pool),
	}
}

// Health checks that the database answers within timeout.
func (s *Store) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close releases the pool. The Store is unusable afterwards.
func (s *Store) Close() {
	s.pool.Close()
}

// DB returns the underlying pool.
func (s *Store) DB() *pgxpool.Pool {
	return s.pool
}
