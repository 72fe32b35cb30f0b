// Package testutil provides test helpers for container-backed storage tests.
package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cory-johannsen/crawler/internal/config"
	"github.com/cory-johannsen/crawler/internal/storage/postgres"
)

// PostgresContainer is a throwaway PostgreSQL server with the crawler's
// schema applied.
type PostgresContainer struct {
	Store  *postgres.Store
	Config config.DatabaseConfig
}

// NewPostgresContainer starts PostgreSQL in a container, migrates it to the
// latest schema version and opens a Store on it. Both are torn down by
// t.Cleanup.
//
// Precondition: Docker must be available; the test is skipped otherwise.
// Postcondition: Returns a migrated database with an open Store, or fails the test.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	start := time.Now()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "crawl",
				"POSTGRES_PASSWORD": "crawl",
				"POSTGRES_DB":       "crawl_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("starting postgres container: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("getting container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("getting mapped port: %v", err)
	}
	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "crawl",
		Password:        "crawl",
		Name:            "crawl_test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	Migrate(t, cfg)

	store, err := postgres.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("opening store: %v [%s]", err, time.Since(start))
	}
	t.Cleanup(store.Close)
	t.Logf("postgres container ready [%s]", time.Since(start))

	return &PostgresContainer{Store: store, Config: cfg}
}

// MigrationsSource returns the file:// URL of the repository's migrations.
func MigrationsSource() string {
	_, file, _, _ := runtime.Caller(0)
	return "file://" + filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// Migrate brings the database described by cfg to the latest schema version.
func Migrate(t *testing.T, cfg config.DatabaseConfig) {
	t.Helper()
	start := time.Now()
	m, err := migrate.New(MigrationsSource(), cfg.DSN())
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("applying migrations: %v", err)
	}
	version, _, _ := m.Version()
	t.Logf("schema at version %d [%s]", version, time.Since(start))
}

// NewStore returns an open Store on a fresh, migrated database.
func NewStore(t *testing.T) *postgres.Store {
	t.Helper()
	return NewPostgresContainer(t).Store
}

// NewPool returns the pool of a fresh, migrated database.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	return NewStore(t).DB()
}
