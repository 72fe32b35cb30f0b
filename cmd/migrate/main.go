// Package main applies, rolls back or inspects the crawler's schema
// migrations.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/cory-johannsen/crawler/internal/config"
	"github.com/cory-johannsen/crawler/internal/observability"
)

// migrator is the subset of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	source := flag.String("source", "file://migrations", "migration source URL")
	command := flag.String("command", "up", "up, down, status or force")
	steps := flag.Int("steps", 0, "with up or down, number of steps (0 = all)")
	version := flag.Int("version", -1, "with force, schema version to record as clean")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	m, err := migrate.New(*source, cfg.Database.DSN())
	if err != nil {
		logger.Fatal("creating migrator", zap.Error(err))
	}
	defer m.Close()

	changed, err := run(m, *command, *steps, *version)
	if err != nil {
		logger.Fatal("migration failed", zap.String("command", *command), zap.Error(err))
	}

	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Fatal("reading schema version", zap.Error(err))
	}
	logger.Info("schema",
		zap.String("command", *command),
		zap.Bool("changed", changed),
		zap.Uint("version", v),
		zap.Bool("dirty", dirty),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// run executes command against m and reports whether the schema changed.
//
// Precondition: for force, version must be >= 0.
// Postcondition: migrate.ErrNoChange is reported as (false, nil).
func run(m migrator, command string, steps, version int) (bool, error) {
	var err error
	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "status":
		return false, nil
	case "force":
		if version < 0 {
			return false, errors.New("force requires -version")
		}
		err = m.Force(version)
	default:
		return false, fmt.Errorf("unknown command %q: want up, down, status or force", command)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
