package ai

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/crawler/internal/game/combat"
)

// MonsterAI chooses attacks and targets for enemy combatants. It satisfies
// combat.MonsterController and holds no per-encounter state.
type MonsterAI struct {
	registry *Registry
	logger   *zap.Logger
}

// New returns a MonsterAI that resolves policies from registry.
//
// Precondition: registry must be non-nil. A nil logger is replaced by a no-op logger.
func New(registry *Registry, logger *zap.Logger) *MonsterAI {
	if registry == nil {
		panic("ai.New: registry must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MonsterAI{registry: registry, logger: logger}
}

// ChooseAction picks actor's action for this turn.
//
// Postcondition: returns an attack the engine will accept, or Defend when
// actor has no usable attack or no legal target. Never returns flee or item.
func (m *MonsterAI) ChooseAction(actor *combat.Combatant, bf *combat.Battlefield, rnd combat.Random) (combat.Action, error) {
	defend := combat.Action{Type: combat.ActionDefend, ActorID: actor.ID}
	opponents := bf.Opponents(actor)
	if len(actor.Attacks) == 0 || len(opponents) == 0 {
		return defend, nil
	}

	idx := m.chooseAttack(actor, bf.Rules(), len(opponents), rnd)
	if !actor.Attacks[idx].Ranged && !bf.CanMelee(actor) {
		idx = firstAttack(actor.Attacks, func(a combat.Attack) bool { return a.Ranged })
		if idx < 0 {
			m.logger.Debug("ai: no attack reaches from the back row", zap.String("actor", actor.ID))
			return defend, nil
		}
	}
	atk := actor.Attacks[idx]
	action := combat.Action{Type: combat.ActionAttack, ActorID: actor.ID, AttackIndex: idx}
	if atk.AreaEffect {
		return action, nil
	}

	candidates := bf.TargetsFor(actor, atk)
	if len(candidates) == 0 {
		return defend, nil
	}
	s := Situation{Actor: actor, Attack: atk, Candidates: candidates, Battlefield: bf, Random: rnd}
	target := m.policyFor(actor.AIType).SelectTarget(s)
	if target == nil {
		target = Aggressive(s)
	}
	action.TargetID = target.ID
	m.logger.Debug("ai: chose action",
		zap.String("actor", actor.ID),
		zap.String("ai_type", actor.AIType),
		zap.String("attack", atk.Name),
		zap.String("target", target.ID),
	)
	return action, nil
}

// chooseAttack prefers an area attack against enough opponents, then a ranged
// attack with the configured probability, then the first declared attack.
func (m *MonsterAI) chooseAttack(actor *combat.Combatant, rules combat.Rules, opponents int, rnd combat.Random) int {
	if opponents >= rules.AreaAttackMinTargets {
		if i := firstAttack(actor.Attacks, func(a combat.Attack) bool { return a.AreaEffect }); i >= 0 {
			return i
		}
	}
	if i := firstAttack(actor.Attacks, func(a combat.Attack) bool { return a.Ranged }); i >= 0 {
		if rnd.Chance(rules.RangedPreferenceChance) {
			return i
		}
	}
	return 0
}

func (m *MonsterAI) policyFor(aiType string) Policy {
	if p, ok := m.registry.PolicyFor(aiType); ok {
		return p
	}
	return Aggressive
}

func firstAttack(attacks []combat.Attack, match func(combat.Attack) bool) int {
	for i, a := range attacks {
		if match(a) {
			return i
		}
	}
	return -1
}
