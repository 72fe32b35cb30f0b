package sim

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crawler/internal/game/combat"
)

// ErrStalemate is returned when an encounter is still running after the
// runner's turn limit.
var ErrStalemate = errors.New("encounter exceeded turn limit")

// DefaultMaxTurns bounds a single encounter.
const DefaultMaxTurns = 1000

// Report summarizes a finished encounter.
type Report struct {
	Victory    bool
	Rounds     int
	Turns      int
	Rewards    combat.Rewards
	Casualties []string
	Fled       []string
	Log        []combat.LogEntry
}

// Runner drives one engine until its encounter resolves.
type Runner struct {
	engine   *combat.Engine
	bus      *combat.Bus
	party    combat.MonsterController
	rnd      combat.Random
	logger   *zap.Logger
	maxTurns int
}

// NewRunner creates a Runner. bus must be the engine's event sink; party
// chooses actions for party members.
//
// Precondition: engine, bus, party and rnd must be non-nil.
// Postcondition: a maxTurns <= 0 is replaced by DefaultMaxTurns.
func NewRunner(engine *combat.Engine, bus *combat.Bus, party combat.MonsterController, rnd combat.Random, logger *zap.Logger, maxTurns int) *Runner {
	if engine == nil || bus == nil || party == nil || rnd == nil {
		panic("sim.NewRunner: engine, bus, party and rnd must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Runner{engine: engine, bus: bus, party: party, rnd: rnd, logger: logger, maxTurns: maxTurns}
}

// Run plays turns until the encounter started on the engine resolves.
//
// Precondition: combat has been started on the engine.
// Postcondition: on nil error the engine phase is victory or defeat and the
// report reflects it. Errors from the engine's reward or write-back
// collaborators are returned together with the completed report.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	var report Report
	unsubscribe := r.bus.Subscribe(func(ev combat.Event) {
		switch e := ev.(type) {
		case combat.CombatEnded:
			report.Victory = true
			report.Rewards = e.Rewards
			report.Casualties = e.Casualties
			report.Fled = e.DisconnectedCharacters
		case combat.PartyDefeated:
			report.Casualties = e.Casualties
			report.Fled = e.DisconnectedCharacters
		}
	})
	defer unsubscribe()

	for {
		switch r.engine.Phase() {
		case combat.PhaseVictory, combat.PhaseDefeat:
			report.Rounds = r.engine.Round()
			report.Log = r.engine.Log()
			return report, nil
		case combat.PhaseNotStarted:
			return report, combat.ErrCombatNotStarted
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if report.Turns >= r.maxTurns {
			return report, fmt.Errorf("%w: %d turns", ErrStalemate, report.Turns)
		}
		actor, err := r.engine.CurrentActor()
		if err != nil {
			return report, err
		}
		if actor.IsPlayer() {
			err = r.playerTurn(ctx, actor.ID)
		} else {
			_, err = r.engine.Step(ctx)
		}
		report.Turns++
		if err != nil {
			if r.engine.Phase() == combat.PhaseVictory || r.engine.Phase() == combat.PhaseDefeat {
				report.Rounds = r.engine.Round()
				report.Log = r.engine.Log()
			}
			return report, err
		}
	}
}

// playerTurn asks the autopilot for id's action, defending when the engine
// refuses it.
func (r *Runner) playerTurn(ctx context.Context, id string) error {
	bf := r.engine.Battlefield()
	live, ok := bf.Combatant(id)
	if !ok {
		return fmt.Errorf("current actor %q is not on the battlefield", id)
	}
	a, err := r.party.ChooseAction(live, bf, r.rnd)
	if err != nil {
		return fmt.Errorf("choosing action for %q: %w", id, err)
	}
	_, err = r.engine.ProcessAction(ctx, a)
	if errors.Is(err, combat.ErrInvalidTarget) || errors.Is(err, combat.ErrIllegalActionForActor) {
		r.logger.Warn("party action rejected; defending instead",
			zap.String("actor", id),
			zap.String("action", string(a.Type)),
			zap.Error(err),
		)
		_, err = r.engine.ProcessAction(ctx, combat.Action{Type: combat.ActionDefend, ActorID: id})
	}
	return err
}
