// Package sim plays encounters to completion without a player at the
// keyboard. Party turns are chosen by an Autopilot and enemy turns by the
// engine's monster controller.
package sim

import (
	"sort"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crawler/internal/game/combat"
	"github.com/cory-johannsen/crawler/internal/game/inventory"
	"github.com/cory-johannsen/crawler/internal/game/spell"
)

// Autopilot chooses party actions. In order of preference it heals a badly
// wounded ally with a spell, drinks a healing item when the actor itself is
// near death, casts an area spell against a crowd, and casts a single-target
// spell when it has no weapon attack that reaches. Anything else is left to
// the fallback controller.
//
// Autopilot satisfies combat.MonsterController.
type Autopilot struct {
	spells   combat.SpellProvider
	items    combat.InventoryProvider
	healing  []string
	fallback combat.MonsterController
	logger   *zap.Logger
}

// NewAutopilot creates an Autopilot. healingItems lists the item IDs it may
// use on the actor; spells and items may be nil, which disables casting and
// item use.
//
// Precondition: fallback must be non-nil.
func NewAutopilot(spells combat.SpellProvider, items combat.InventoryProvider, healingItems []string, fallback combat.MonsterController, logger *zap.Logger) *Autopilot {
	if fallback == nil {
		panic("sim.NewAutopilot: fallback must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autopilot{
		spells:   spells,
		items:    items,
		healing:  healingItems,
		fallback: fallback,
		logger:   logger,
	}
}

// HealingItems returns the IDs of reg's healing items that can target their user.
func HealingItems(reg *inventory.Registry) []string {
	var ids []string
	for _, d := range reg.All() {
		if d.Effect != inventory.EffectHeal {
			continue
		}
		if d.Target == inventory.TargetSelf || d.Target == inventory.TargetSingleAlly {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// ChooseAction picks actor's action for this turn.
func (a *Autopilot) ChooseAction(actor *combat.Combatant, bf *combat.Battlefield, rnd combat.Random) (combat.Action, error) {
	if act, ok := a.heal(actor, bf); ok {
		return act, nil
	}
	if act, ok := a.drink(actor); ok {
		return act, nil
	}
	if act, ok := a.blast(actor, bf); ok {
		return act, nil
	}
	return a.fallback.ChooseAction(actor, bf, rnd)
}

// prepared returns actor's spells with casts remaining, sorted by ID.
func (a *Autopilot) prepared(actor *combat.Combatant) []*spell.Def {
	if a.spells == nil {
		return nil
	}
	ids := make([]string, 0, len(actor.PreparedSpells))
	for id, n := range actor.PreparedSpells {
		if n > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	defs := make([]*spell.Def, 0, len(ids))
	for _, id := range ids {
		if d, ok := a.spells.Spell(id); ok {
			defs = append(defs, d)
		}
	}
	return defs
}

// mostWounded returns the ally below half health with the lowest HP fraction.
func mostWounded(allies []*combat.Combatant) *combat.Combatant {
	var pick *combat.Combatant
	for _, c := range allies {
		if c.MaxHP <= 0 || c.CurrentHP*2 >= c.MaxHP {
			continue
		}
		if pick == nil || c.CurrentHP*pick.MaxHP < pick.CurrentHP*c.MaxHP {
			pick = c
		}
	}
	return pick
}

func (a *Autopilot) heal(actor *combat.Combatant, bf *combat.Battlefield) (combat.Action, bool) {
	wounded := mostWounded(bf.Allies(actor))
	if wounded == nil {
		return combat.Action{}, false
	}
	for _, d := range a.prepared(actor) {
		if d.Effect != spell.EffectHeal {
			continue
		}
		act := combat.Action{Type: combat.ActionSpell, ActorID: actor.ID, SpellID: d.ID}
		switch d.Target {
		case spell.TargetSingleAlly:
			act.TargetID = wounded.ID
		case spell.TargetAllAllies:
		case spell.TargetSelf:
			if wounded.ID != actor.ID {
				continue
			}
		default:
			continue
		}
		a.logger.Debug("autopilot: healing",
			zap.String("actor", actor.ID),
			zap.String("spell", d.ID),
			zap.String("wounded", wounded.ID),
		)
		return act, true
	}
	return combat.Action{}, false
}

func (a *Autopilot) drink(actor *combat.Combatant) (combat.Action, bool) {
	if a.items == nil || actor.CurrentHP*3 >= actor.MaxHP {
		return combat.Action{}, false
	}
	for _, id := range a.healing {
		if a.items.Count(id) <= 0 {
			continue
		}
		d, ok := a.items.Item(id)
		if !ok {
			continue
		}
		act := combat.Action{Type: combat.ActionItem, ActorID: actor.ID, ItemID: id}
		if d.NeedsTarget() {
			act.TargetID = actor.ID
		}
		return act, true
	}
	return combat.Action{}, false
}

func (a *Autopilot) blast(actor *combat.Combatant, bf *combat.Battlefield) (combat.Action, bool) {
	opponents := bf.Opponents(actor)
	if len(opponents) == 0 {
		return combat.Action{}, false
	}
	defs := a.prepared(actor)
	if len(opponents) >= bf.Rules().AreaAttackMinTargets {
		for _, d := range defs {
			if d.Effect == spell.EffectDamage && d.Target == spell.TargetAllEnemies {
				return combat.Action{Type: combat.ActionSpell, ActorID: actor.ID, SpellID: d.ID}, true
			}
		}
	}
	if bf.CanMelee(actor) || hasRanged(actor) {
		return combat.Action{}, false
	}
	for _, d := range defs {
		if d.Effect == spell.EffectDamage && d.Target == spell.TargetSingleEnemy {
			return combat.Action{Type: combat.ActionSpell, ActorID: actor.ID, SpellID: d.ID, TargetID: weakest(opponents).ID}, true
		}
	}
	return combat.Action{}, false
}

func hasRanged(c *combat.Combatant) bool {
	for _, atk := range c.Attacks {
		if atk.Ranged {
			return true
		}
	}
	return false
}

func weakest(cs []*combat.Combatant) *combat.Combatant {
	pick := cs[0]
	for _, c := range cs[1:] {
		if c.CurrentHP < pick.CurrentHP {
			pick = c
		}
	}
	return pick
}
