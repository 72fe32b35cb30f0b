package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crawler/internal/config"
	"github.com/cory-johannsen/crawler/internal/game/character"
	"github.com/cory-johannsen/crawler/internal/game/combat"
	"github.com/cory-johannsen/crawler/internal/game/equipment"
	"github.com/cory-johannsen/crawler/internal/game/inventory"
	"github.com/cory-johannsen/crawler/internal/game/monster"
	"github.com/cory-johannsen/crawler/internal/game/spell"
	"github.com/cory-johannsen/crawler/internal/storage/postgres"
)

// library is the static content encounters draw on.
type library struct {
	monsters  *monster.Registry
	spells    *spell.Registry
	equipment *equipment.Registry
	items     *inventory.Registry
}

// loadLibrary reads every content directory in cfg. Optional directories
// left empty yield empty registries.
func loadLibrary(cfg config.ContentConfig, logger *zap.Logger) (library, error) {
	start := time.Now()
	lib := library{
		spells:    spell.NewRegistry(),
		equipment: equipment.NewRegistry(),
		items:     inventory.NewRegistry(),
	}
	var err error
	if lib.monsters, err = monster.Load(cfg.MonstersDir, cfg.TreasureFile); err != nil {
		return lib, fmt.Errorf("loading monsters: %w", err)
	}
	if cfg.SpellsDir != "" {
		if lib.spells, err = spell.LoadDirectory(cfg.SpellsDir); err != nil {
			return lib, fmt.Errorf("loading spells: %w", err)
		}
	}
	if cfg.EquipmentDir != "" {
		if lib.equipment, err = equipment.LoadDirectory(cfg.EquipmentDir); err != nil {
			return lib, fmt.Errorf("loading equipment: %w", err)
		}
	}
	if cfg.ItemsDir != "" {
		if lib.items, err = inventory.LoadRegistry(cfg.ItemsDir); err != nil {
			return lib, fmt.Errorf("loading items: %w", err)
		}
	}
	logger.Info("content loaded",
		zap.Int("monsters", len(lib.monsters.Templates())),
		zap.Int("spells", len(lib.spells.All())),
		zap.Int("equipment", len(lib.equipment.All())),
		zap.Int("items", len(lib.items.All())),
		zap.Duration("elapsed", time.Since(start)),
	)
	return lib, nil
}

// loadParty reads the party file and checks every prepared spell exists.
func loadParty(path string, spells *spell.Registry) ([]*character.Character, error) {
	members, err := character.LoadParty(path)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if err := spells.ValidatePrepared(m.PreparedSpells); err != nil {
			return nil, fmt.Errorf("party member %q: %w", m.ID, err)
		}
	}
	return members, nil
}

// store is where the party and stash live between encounters.
type store struct {
	party combat.PartyProvider
	stash *inventory.Stash
	// save persists the stash after an encounter; nil for the in-memory store.
	save  func(ctx context.Context) error
	close func()
}

func memoryStore(partyFile string, lib library) (store, error) {
	members, err := loadParty(partyFile, lib.spells)
	if err != nil {
		return store{}, err
	}
	return store{
		party: character.NewRoster(members),
		stash: inventory.NewStash(lib.items),
		close: func() {},
	}, nil
}

// databaseStore connects to PostgreSQL. With seed set, the party file is
// written to the database first.
func databaseStore(ctx context.Context, cfg config.Config, lib library, seed bool, logger *zap.Logger) (store, error) {
	dbStart := time.Now()
	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return store{}, fmt.Errorf("connecting to database: %w", err)
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Name),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	if seed {
		members, err := loadParty(cfg.Content.PartyFile, lib.spells)
		if err != nil {
			db.Close()
			return store{}, err
		}
		if err := db.Party.Save(ctx, members); err != nil {
			db.Close()
			return store{}, fmt.Errorf("seeding party: %w", err)
		}
		logger.Info("party seeded", zap.Int("members", len(members)))
	}

	stash := inventory.NewStash(lib.items)
	if err := db.Stash.LoadInto(ctx, stash); err != nil {
		db.Close()
		return store{}, fmt.Errorf("loading stash: %w", err)
	}
	return store{
		party: db.Party,
		stash: stash,
		save: func(ctx context.Context) error {
			if err := db.Health(ctx, 5*time.Second); err != nil {
				return fmt.Errorf("database unavailable: %w", err)
			}
			return db.Stash.Save(ctx, stash)
		},
		close: db.Close,
	}, nil
}
