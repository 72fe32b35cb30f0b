// Package main provides the crawl encounter simulator. It loads monsters,
// spells, equipment, items and a party, then plays encounters with the party
// on autopilot and prints the combat log as it goes.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cory-johannsen/crawler/internal/config"
	"github.com/cory-johannsen/crawler/internal/game/ai"
	"github.com/cory-johannsen/crawler/internal/game/combat"
	"github.com/cory-johannsen/crawler/internal/game/dice"
	"github.com/cory-johannsen/crawler/internal/game/monster"
	"github.com/cory-johannsen/crawler/internal/observability"
	"github.com/cory-johannsen/crawler/internal/scripting"
	"github.com/cory-johannsen/crawler/internal/server"
	"github.com/cory-johannsen/crawler/internal/sim"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	monsterID := flag.String("monster", "", "monster template ID used for every wave (random when empty)")
	kind := flag.String("kind", "", "restrict random monsters to this kind")
	level := flag.Int("level", 1, "dungeon level used to pick monsters")
	waves := flag.Int("waves", 1, "enemy waves per encounter")
	maxGroup := flag.Int("max-group", 4, "largest enemy group per wave")
	surpriseFlag := flag.String("surprise", "none", "surprised side: none, party or enemies")
	encounters := flag.Int("encounters", 1, "encounters to play back to back; play stops at the first defeat")
	useDB := flag.Bool("db", false, "load the party and stash from PostgreSQL and persist results")
	seedDB := flag.Bool("seed-db", false, "with -db, write the party file to the database first")
	quiet := flag.Bool("quiet", false, "do not print the combat log")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	surprise, err := parseSurprise(*surpriseFlag)
	if err != nil {
		logger.Fatal("parsing flags", zap.Error(err))
	}

	lib, err := loadLibrary(cfg.Content, logger)
	if err != nil {
		logger.Fatal("loading content", zap.Error(err))
	}

	var src dice.Source = dice.NewCryptoSource()
	if cfg.Combat.Seed != 0 {
		src = dice.NewSeededSource(cfg.Combat.Seed)
	}
	roller := dice.NewLoggedRoller(src, logger)

	scripts := scripting.NewManager(roller, logger)
	defer scripts.Close()
	if cfg.Content.ScriptsDir != "" {
		limit := cfg.Content.ScriptInstructionLimit
		if limit == 0 {
			limit = scripting.DefaultInstructionLimit
		}
		if err := scripts.LoadTree(cfg.Content.ScriptsDir, limit); err != nil {
			logger.Fatal("loading scripts", zap.Error(err))
		}
	}

	ctx := context.Background()
	var st store
	if *useDB {
		st, err = databaseStore(ctx, cfg, lib, *seedDB, logger)
	} else {
		st, err = memoryStore(cfg.Content.PartyFile, lib)
	}
	if err != nil {
		logger.Fatal("opening party store", zap.Error(err))
	}
	defer st.close()

	registry := prometheus.NewRegistry()
	metrics := observability.NewCombatMetrics(registry)

	monsters := ai.New(ai.DefaultRegistry(scripts), logger)
	bus := combat.NewBus()
	var out io.Writer = os.Stdout
	if *quiet {
		out = io.Discard
	}
	bus.Subscribe(narrate(out))

	s := &simulation{
		lib:      lib,
		store:    st,
		rules:    combat.RulesFromConfig(cfg.Combat),
		roller:   roller,
		monsters: monsters,
		pilot:    sim.NewAutopilot(lib.spells, st.stash, sim.HealingItems(lib.items), monsters, logger),
		metrics:  metrics,
		bus:      bus,
		desc: monster.Descriptor{
			Level:     *level,
			Kind:      *kind,
			MonsterID: *monsterID,
			Waves:     *waves,
			MaxGroup:  *maxGroup,
		},
		surprise: surprise,
		count:    *encounters,
		logger:   logger,
		out:      out,
	}

	lifecycle := server.NewLifecycle(logger)
	if cfg.Metrics.Enabled {
		lifecycle.Add("metrics", server.ServiceFunc(func(ctx context.Context) error {
			return observability.ServeMetrics(ctx, cfg.Metrics.Addr, registry, logger)
		}))
	}
	lifecycle.AddPrimary("simulation", s)

	logger.Info("simulator initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("encounters", *encounters),
		zap.Bool("database", *useDB),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("simulation failed", zap.Error(err))
	}
}

func parseSurprise(s string) (combat.Surprise, error) {
	switch s {
	case "none", "":
		return combat.SurpriseNone, nil
	case "party":
		return combat.SurpriseParty, nil
	case "enemies":
		return combat.SurpriseEnemies, nil
	}
	return combat.SurpriseNone, fmt.Errorf("unknown surprise %q: want none, party or enemies", s)
}

// narrate prints the combat log as the engine produces it.
func narrate(out io.Writer) func(combat.Event) {
	return func(ev combat.Event) {
		switch e := ev.(type) {
		case combat.CombatStarted:
			fmt.Fprintf(out, "== %d wave(s), difficulty %s ==\n", e.Encounter.Waves, e.Difficulty)
			for _, c := range e.Encounter.Enemies {
				fmt.Fprintf(out, "   %s (%d hp, AC %d)\n", c.Name, c.CurrentHP, c.ArmorClass())
			}
		case combat.ActionProcessed:
			for _, entry := range e.CombatLog {
				fmt.Fprintf(out, "[%s] %s\n", entry.Icon, entry.Message)
			}
		}
	}
}

// simulation plays encounters back to back until one is lost or count is
// reached. It is the lifecycle's primary service.
type simulation struct {
	lib      library
	store    store
	rules    combat.Rules
	roller   *dice.Roller
	monsters combat.MonsterController
	pilot    combat.MonsterController
	metrics  combat.Metrics
	bus      *combat.Bus
	desc     monster.Descriptor
	surprise combat.Surprise
	count    int
	logger   *zap.Logger
	out      io.Writer
}

// Run satisfies server.Service.
func (s *simulation) Run(ctx context.Context) error {
	provider := monster.NewProvider(s.lib.monsters, s.roller)
	for i := 1; i <= s.count; i++ {
		living, err := s.store.party.Living(ctx)
		if err != nil {
			return fmt.Errorf("loading party: %w", err)
		}
		if len(living) == 0 {
			s.logger.Info("no party member can fight; stopping", zap.Int("encounter", i))
			return nil
		}

		elog := observability.EncounterLogger(s.logger, i)
		engine := combat.NewEngine(combat.Dependencies{
			Random:     s.roller,
			Controller: s.monsters,
			Equipment:  s.lib.equipment,
			Spells:     s.lib.spells,
			Inventory:  s.store.stash,
			Party:      s.store.party,
			Monsters:   provider,
			Events:     s.bus,
		},
			combat.WithRules(s.rules),
			combat.WithLogger(elog),
			combat.WithMetrics(s.metrics),
		)
		if err := engine.StartEncounter(ctx, s.desc, s.surprise); err != nil {
			return fmt.Errorf("encounter %d: %w", i, err)
		}
		report, err := sim.NewRunner(engine, s.bus, s.pilot, s.roller, elog, 0).Run(ctx)
		if err != nil {
			return fmt.Errorf("encounter %d: %w", i, err)
		}
		s.summarize(i, report)

		if s.store.save != nil {
			if err := s.store.save(ctx); err != nil {
				return fmt.Errorf("saving stash: %w", err)
			}
		}
		if !report.Victory {
			return nil
		}
	}
	return nil
}

func (s *simulation) summarize(n int, r sim.Report) {
	result := "defeat"
	if r.Victory {
		result = "victory"
	}
	fmt.Fprintf(s.out, "-- encounter %d: %s after %d round(s), %d turn(s)\n", n, result, r.Rounds, r.Turns)
	if r.Victory {
		fmt.Fprintf(s.out, "   +%d xp, +%d gold, %d item(s); stash holds %d gold\n",
			r.Rewards.Experience, r.Rewards.Gold, len(r.Rewards.Loot), s.store.stash.Gold())
	}
	s.logger.Info("encounter finished",
		zap.Int("encounter", n),
		zap.String("result", result),
		zap.Int("rounds", r.Rounds),
		zap.Int("turns", r.Turns),
		zap.Strings("casualties", r.Casualties),
		zap.Strings("fled", r.Fled),
	)
}
