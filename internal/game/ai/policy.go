// Package ai chooses actions for monster combatants. Target selection is a
// stateless Policy keyed by the monster's declared AI type.
package ai

import (
	"github.com/cory-johannsen/crawler/internal/game/combat"
	"github.com/cory-johannsen/crawler/internal/game/formation"
)

// Built-in AI types.
const (
	TypeCowardly    = "cowardly"
	TypeAggressive  = "aggressive"
	TypeTactical    = "tactical"
	TypePack        = "pack"
	TypeIntelligent = "intelligent"
	TypeScripted    = "scripted"
)

// Situation is everything a Policy may consult when picking a target.
//
// Invariant: Candidates is non-empty and every candidate is eligible.
type Situation struct {
	Actor       *combat.Combatant
	Attack      combat.Attack
	Candidates  []*combat.Combatant
	Battlefield *combat.Battlefield
	Random      combat.Random
}

// Policy selects the target of a single-target attack.
type Policy interface {
	// SelectTarget returns one of s.Candidates, or nil to defer to the
	// aggressive policy.
	SelectTarget(s Situation) *combat.Combatant
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(s Situation) *combat.Combatant

// SelectTarget calls f(s).
func (f PolicyFunc) SelectTarget(s Situation) *combat.Combatant { return f(s) }

func random(s Situation, list []*combat.Combatant) *combat.Combatant {
	return list[s.Random.Choice(len(list))]
}

// Cowardly targets the candidate with the lowest current HP, first on ties.
var Cowardly = PolicyFunc(func(s Situation) *combat.Combatant {
	best := s.Candidates[0]
	for _, c := range s.Candidates[1:] {
		if c.CurrentHP < best.CurrentHP {
			best = c
		}
	}
	return best
})

// Aggressive targets a random front-row candidate, or any random candidate
// when none stands in the front row.
var Aggressive = PolicyFunc(func(s Situation) *combat.Combatant {
	var front []*combat.Combatant
	for _, c := range s.Candidates {
		if c.Row == formation.Front {
			front = append(front, c)
		}
	}
	if len(front) > 0 {
		return random(s, front)
	}
	return random(s, s.Candidates)
})

// Tactical targets the first spellcaster, otherwise behaves as Aggressive.
var Tactical = PolicyFunc(func(s Situation) *combat.Combatant {
	for _, c := range s.Candidates {
		if c.IsSpellcaster() {
			return c
		}
	}
	return Aggressive(s)
})

// Pack targets the first candidate standing alone in its row, otherwise a
// random candidate.
var Pack = PolicyFunc(func(s Situation) *combat.Combatant {
	for _, c := range s.Candidates {
		if s.Battlefield.Isolated(c) {
			return c
		}
	}
	return random(s, s.Candidates)
})

// Intelligent scores every candidate and targets the highest, first on ties.
var Intelligent = PolicyFunc(func(s Situation) *combat.Combatant {
	best, bestScore := s.Candidates[0], Score(s.Actor, s.Attack, s.Candidates[0])
	for _, c := range s.Candidates[1:] {
		if sc := Score(s.Actor, s.Attack, c); sc > bestScore {
			best, bestScore = c, sc
		}
	}
	return best
})

// Score rates target for the intelligent policy:
//
//	(1 - hp/maxHP)*30 + 20 if spellcaster + max(0, 15-AC)*2 + hit chance percent
func Score(actor *combat.Combatant, atk combat.Attack, target *combat.Combatant) float64 {
	var score float64
	if target.MaxHP > 0 {
		score += (1 - float64(target.CurrentHP)/float64(target.MaxHP)) * 30
	}
	if target.IsSpellcaster() {
		score += 20
	}
	score += float64(max(0, 15-target.ArmorClass()) * 2)
	score += float64(combat.HitChance(actor, atk, target))
	return score
}
