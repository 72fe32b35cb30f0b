// Package combat implements the turn-based party combat engine: combatant
// normalization, initiative, action resolution, multi-wave encounters and the
// combat event stream.
package combat

import (
	"strings"

	"github.com/cory-johannsen/crawler/internal/game/dice"
	"github.com/cory-johannsen/crawler/internal/game/formation"
	"github.com/cory-johannsen/crawler/internal/game/monster"
)

// Side distinguishes player combatants from enemies.
type Side int

const (
	SidePlayer Side = iota
	SideEnemy
)

// String returns "player" or "enemy".
func (s Side) String() string {
	if s == SideEnemy {
		return "enemy"
	}
	return "player"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SidePlayer {
		return SideEnemy
	}
	return SidePlayer
}

func (s Side) formationSide() formation.Side {
	if s == SideEnemy {
		return formation.EnemySide
	}
	return formation.PartySide
}

// Status is a combatant's in-encounter status.
type Status string

const (
	StatusOK          Status = "ok"
	StatusUnconscious Status = "unconscious"
	StatusFled        Status = "fled"
)

// defendACBonus is subtracted from armor class while defending.
const defendACBonus = 2

// Attributes are the six core attribute scores.
type Attributes struct {
	Strength     int
	Intelligence int
	Piety        int
	Vitality     int
	Agility      int
	Luck         int
}

// Attack is one attack a combatant can make.
type Attack struct {
	Name        string
	Damage      dice.Expression
	Ranged      bool
	AreaEffect  bool
	HitBonus    int
	DamageBonus int
}

// Combatant is the normalized in-combat view of a party member or a monster.
//
// Invariant: 0 <= CurrentHP <= MaxHP; CurrentHP == 0 implies Status != StatusOK.
type Combatant struct {
	ID    string
	Name  string
	Side  Side
	Class string
	Level int

	CurrentHP int
	MaxHP     int

	Attributes Attributes
	// ArmorClassBase is 10 for party members; for monsters it is chosen so
	// ArmorClass reproduces the declared AC.
	ArmorClassBase int
	ArmorBonus     int
	ShieldBonus    int
	// ACModifier accumulates in-combat buffs.
	ACModifier int

	Attacks []Attack
	// Reach is true when the combatant wields a reach weapon.
	Reach bool

	IsDefending bool
	// Held combatants lose their next turn.
	Held   bool
	Row    formation.Row
	Status Status

	// PreparedSpells maps spell ID to casts remaining.
	PreparedSpells map[string]int

	// Monster-only metadata.
	TemplateID      string
	AIType          string
	ExperienceValue int
	Loot            *monster.LootTable
}

// AbilityMod returns floor((score-10)/2).
func AbilityMod(score int) int {
	diff := score - 10
	if diff < 0 {
		return (diff - 1) / 2
	}
	return diff / 2
}

// ArmorClass returns the combatant's effective armor class. An attack hits
// when its roll is at least the target's armor class, so a lower armor class
// is easier to hit; every bonus, defending included, lowers it.
//
// Postcondition: ArmorClassBase - AbilityMod(Agility) - ArmorBonus -
// ShieldBonus - ACModifier, minus 2 more while defending.
func (c *Combatant) ArmorClass() int {
	ac := c.ArmorClassBase - AbilityMod(c.Attributes.Agility) - c.ArmorBonus - c.ShieldBonus - c.ACModifier
	if c.IsDefending {
		ac -= defendACBonus
	}
	return ac
}

// IsPlayer reports whether the combatant is a party member.
func (c *Combatant) IsPlayer() bool { return c.Side == SidePlayer }

// Eligible reports whether the combatant may act and be targeted.
func (c *Combatant) Eligible() bool {
	return c.Status == StatusOK && c.CurrentHP > 0
}

var spellcasterClasses = map[string]bool{"mage": true, "priest": true, "bishop": true}

// IsSpellcaster reports whether the combatant is a caster class or holds any
// prepared spell.
func (c *Combatant) IsSpellcaster() bool {
	if spellcasterClasses[strings.ToLower(c.Class)] {
		return true
	}
	for _, n := range c.PreparedSpells {
		if n > 0 {
			return true
		}
	}
	return false
}

// RangedOnly reports whether every attack the combatant declares is ranged.
func (c *Combatant) RangedOnly() bool {
	if len(c.Attacks) == 0 {
		return false
	}
	for _, a := range c.Attacks {
		if !a.Ranged {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of c.
func (c *Combatant) Clone() Combatant {
	out := *c
	out.Attacks = append([]Attack(nil), c.Attacks...)
	if c.PreparedSpells != nil {
		out.PreparedSpells = make(map[string]int, len(c.PreparedSpells))
		for k, v := range c.PreparedSpells {
			out.PreparedSpells[k] = v
		}
	}
	return out
}

// applyHP sets CurrentHP to hp clamped into [0, MaxHP] and knocks the
// combatant out when it reaches 0.
//
// Postcondition: returns true iff the combatant went from ok to unconscious.
func (c *Combatant) applyHP(hp int) bool {
	c.CurrentHP = max(0, min(hp, c.MaxHP))
	if c.CurrentHP == 0 && c.Status == StatusOK {
		c.Status = StatusUnconscious
		return true
	}
	return false
}
