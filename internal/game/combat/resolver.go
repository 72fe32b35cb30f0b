package combat

import (
	"fmt"
	"math"
	"strings"

	"github.com/cory-johannsen/crawler/internal/game/dice"
	"github.com/cory-johannsen/crawler/internal/game/formation"
	"github.com/cory-johannsen/crawler/internal/game/inventory"
	"github.com/cory-johannsen/crawler/internal/game/spell"
)

// Effect is one state change a resolution asks the engine to apply.
type Effect struct {
	TargetID string
	// HPDelta is added to CurrentHP (negative for damage) and clamped to [0, MaxHP].
	HPDelta int
	// Kill forces CurrentHP to 0 regardless of HPDelta.
	Kill bool
	// ACDelta is added to the target's ACModifier.
	ACDelta int
	// Hold makes the target lose its next turn.
	Hold        bool
	Defend      bool
	ClearDefend bool
	// Status, when set, replaces the target's status.
	Status Status
}

// Result is the outcome of one resolved action. Game-rule failures (a miss,
// a fizzled spell, a failed flee) are results with Success false, never errors.
type Result struct {
	Action   ActionType
	ActorID  string
	Success  bool
	Damage   int
	Healing  int
	Critical bool
	// Instant is set when a critical strike slew the target outright.
	Instant bool
	// Roll is the natural d20 of an attack or the percentage roll of a spell.
	Roll    int
	Message string
	Effects []Effect
	// FreeAttack is the opportunity attack provoked by a failed flee.
	FreeAttack *Result
}

// Resolver is the single source of combat arithmetic. It reads combatants
// and never mutates them; the engine applies the returned effects.
type Resolver struct {
	rules Rules
	rnd   Random
}

// NewResolver creates a Resolver.
//
// Precondition: rnd must not be nil.
func NewResolver(rules Rules, rnd Random) *Resolver {
	if rnd == nil {
		panic("combat.NewResolver: random must not be nil")
	}
	return &Resolver{rules: rules, rnd: rnd}
}

func (r *Resolver) rollDamage(expr dice.Expression) int {
	return r.rnd.Dice(expr.Count, expr.Sides) + expr.Modifier
}

// takenDamage scales dmg by the target row's damage-taken multiplier.
//
// Postcondition: result >= 1 when dmg >= 1.
func takenDamage(dmg int, row formation.Row) int {
	scaled := int(math.Floor(float64(dmg) * formation.ModifiersFor(row).DamageTakenMultiplier))
	return max(1, scaled)
}

func hitBonus(actor *Combatant, atk Attack) int {
	mods := formation.ModifiersFor(actor.Row)
	if atk.Ranged {
		return atk.HitBonus + mods.RangedAccuracyBonus
	}
	return atk.HitBonus + mods.MeleeAccuracyBonus
}

// HitChance returns the percentage chance that atk made by actor hits target
// on a d20, ignoring critical hits.
//
// Postcondition: result in [0, 100].
func HitChance(actor *Combatant, atk Attack, target *Combatant) int {
	need := target.ArmorClass() - hitBonus(actor, atk)
	return max(0, min(100, (21-need)*5))
}

// Attack resolves one attack of actor against target.
// RNG order: d20; on a hit the damage dice; on a natural 20 a crit d20; on a
// crit roll of 20 an instant-kill Chance.
//
// Postcondition: the target's defend flag is cleared, hit or miss.
func (r *Resolver) Attack(actor *Combatant, atk Attack, target *Combatant) Result {
	natural := r.rnd.Die(20)
	mods := formation.ModifiersFor(actor.Row)
	res := Result{Action: ActionAttack, ActorID: actor.ID, Roll: natural}
	eff := Effect{TargetID: target.ID, ClearDefend: true}
	if natural+hitBonus(actor, atk) < target.ArmorClass() {
		res.Message = fmt.Sprintf("%s attacks %s with %s and misses.", actor.Name, target.Name, atk.Name)
		res.Effects = []Effect{eff}
		return res
	}

	dmg := r.rollDamage(atk.Damage) + AbilityMod(actor.Attributes.Strength) + atk.DamageBonus
	if !atk.Ranged {
		dmg += mods.MeleeDamageBonus
	}
	dmg = max(1, dmg)
	if natural == 20 {
		crit := r.rnd.Die(20)
		if crit >= r.rules.CritDoubleThreshold {
			dmg *= 2
			res.Critical = true
		}
		if crit == 20 && r.rnd.Chance(r.rules.InstantKillChance) {
			res.Instant = true
		}
	}
	dmg = takenDamage(dmg, target.Row)

	res.Success = true
	res.Damage = dmg
	eff.HPDelta = -dmg
	eff.Kill = res.Instant
	res.Effects = []Effect{eff}
	switch {
	case res.Instant:
		res.Message = fmt.Sprintf("%s strikes a deadly blow with %s and slays %s outright!", actor.Name, atk.Name, target.Name)
	case res.Critical:
		res.Message = fmt.Sprintf("%s lands a critical hit on %s with %s for %d damage!", actor.Name, target.Name, atk.Name, dmg)
	default:
		res.Message = fmt.Sprintf("%s hits %s with %s for %d damage.", actor.Name, target.Name, atk.Name, dmg)
	}
	return res
}

// AreaAttack resolves atk separately against every target.
func (r *Resolver) AreaAttack(actor *Combatant, atk Attack, targets []*Combatant) Result {
	res := Result{Action: ActionAttack, ActorID: actor.ID}
	msgs := []string{fmt.Sprintf("%s unleashes %s!", actor.Name, atk.Name)}
	for _, t := range targets {
		one := r.Attack(actor, atk, t)
		res.Success = res.Success || one.Success
		res.Critical = res.Critical || one.Critical
		res.Instant = res.Instant || one.Instant
		res.Damage += one.Damage
		res.Effects = append(res.Effects, one.Effects...)
		msgs = append(msgs, one.Message)
	}
	res.Message = strings.Join(msgs, " ")
	return res
}

// SpellChance returns the percentage chance caster succeeds with def:
// base + (caster level - spell level) * step + attribute bonus, clamped.
// Arcane spells use intelligence, divine spells piety.
func (r *Resolver) SpellChance(caster *Combatant, def *spell.Def) int {
	attr := caster.Attributes.Intelligence
	if def.School == spell.Divine {
		attr = caster.Attributes.Piety
	}
	chance := r.rules.SpellBaseChance + (caster.Level-def.Level)*r.rules.SpellLevelStep + AbilityMod(attr)
	return max(r.rules.SpellMinChance, min(chance, r.rules.SpellMaxChance))
}

// Spell resolves a cast of def by caster against the already-selected targets.
// RNG order: Integer(1,100) success roll, then per-target effect dice.
func (r *Resolver) Spell(caster *Combatant, def *spell.Def, targets []*Combatant) Result {
	chance := r.SpellChance(caster, def)
	roll := r.rnd.Integer(1, 100)
	res := Result{Action: ActionSpell, ActorID: caster.ID, Roll: roll}
	if roll > chance {
		res.Message = fmt.Sprintf("%s casts %s, but the spell fizzles.", caster.Name, def.Name)
		return res
	}
	res.Success = true
	detail := r.applyEffect(&res, string(def.Effect), def.Dice, def.ACBonus, targets)
	res.Message = strings.TrimSpace(fmt.Sprintf("%s casts %s. %s", caster.Name, def.Name, detail))
	return res
}

// Item resolves user applying def to targets. Items never fail.
func (r *Resolver) Item(user *Combatant, def *inventory.ItemDef, targets []*Combatant) Result {
	res := Result{Action: ActionItem, ActorID: user.ID, Success: true}
	detail := r.applyEffect(&res, def.Effect, def.Dice, def.ACBonus, targets)
	res.Message = strings.TrimSpace(fmt.Sprintf("%s uses %s. %s", user.Name, def.Name, detail))
	return res
}

// applyEffect rolls and records one effect kind against each target.
func (r *Resolver) applyEffect(res *Result, kind, diceExpr string, acBonus int, targets []*Combatant) string {
	var msgs []string
	for _, t := range targets {
		switch kind {
		case string(spell.EffectDamage):
			dmg := takenDamage(max(1, r.rollDamage(dice.MustParse(diceExpr))), t.Row)
			res.Damage += dmg
			res.Effects = append(res.Effects, Effect{TargetID: t.ID, HPDelta: -dmg})
			msgs = append(msgs, fmt.Sprintf("%s takes %d damage.", t.Name, dmg))
		case string(spell.EffectHeal):
			healed := min(max(1, r.rollDamage(dice.MustParse(diceExpr))), t.MaxHP-t.CurrentHP)
			res.Healing += healed
			res.Effects = append(res.Effects, Effect{TargetID: t.ID, HPDelta: healed})
			msgs = append(msgs, fmt.Sprintf("%s recovers %d HP.", t.Name, healed))
		case string(spell.EffectBuff):
			res.Effects = append(res.Effects, Effect{TargetID: t.ID, ACDelta: acBonus})
			msgs = append(msgs, fmt.Sprintf("%s's armor class improves by %d.", t.Name, acBonus))
		case string(spell.EffectControl):
			res.Effects = append(res.Effects, Effect{TargetID: t.ID, Hold: true})
			msgs = append(msgs, fmt.Sprintf("%s is held fast.", t.Name))
		}
	}
	return strings.Join(msgs, " ")
}

// Defend puts actor on guard until it is next attacked or its next turn begins.
func (r *Resolver) Defend(actor *Combatant) Result {
	return Result{
		Action:  ActionDefend,
		ActorID: actor.ID,
		Success: true,
		Message: fmt.Sprintf("%s takes a defensive stance.", actor.Name),
		Effects: []Effect{{TargetID: actor.ID, Defend: true}},
	}
}

// Flee resolves an escape attempt. On failure one opponent, picked with
// Choice, makes a free attack with its first declared attack.
// RNG order: Chance(FleeChance); on failure Choice(len(opponents)) then the
// free attack's rolls.
func (r *Resolver) Flee(actor *Combatant, opponents []*Combatant) Result {
	res := Result{Action: ActionFlee, ActorID: actor.ID}
	if r.rnd.Chance(r.rules.FleeChance) {
		res.Success = true
		res.Message = fmt.Sprintf("%s flees from combat!", actor.Name)
		res.Effects = []Effect{{TargetID: actor.ID, Status: StatusFled}}
		return res
	}
	res.Message = fmt.Sprintf("%s tries to flee but cannot escape!", actor.Name)
	if len(opponents) == 0 {
		return res
	}
	attacker := opponents[r.rnd.Choice(len(opponents))]
	if len(attacker.Attacks) == 0 {
		return res
	}
	free := r.Attack(attacker, attacker.Attacks[0], actor)
	res.FreeAttack = &free
	return res
}
