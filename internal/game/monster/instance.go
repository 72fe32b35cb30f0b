package monster

import (
	"github.com/google/uuid"

	"github.com/cory-johannsen/crawler/internal/game/dice"
)

// Random is the randomness monster spawning and loot generation draw from.
// dice.Roller satisfies it.
type Random interface {
	Dice(count, sides int) int
	Integer(min, max int) int
	Chance(p float64) bool
	Choice(n int) int
}

// Instance is one spawned monster taking part in an encounter.
type Instance struct {
	// ID uniquely identifies this spawn.
	ID string
	// TemplateID is the source template's ID.
	TemplateID string
	// Name is the display name; numbered when a group holds several of a kind.
	Name       string
	Kind       string
	Level      int
	MaxHP      int
	CurrentHP  int
	AC         int
	Abilities  Abilities
	AIType     string
	Experience int
	Attacks    []Attack
	// Loot is the resolved loot table (template override or treasure type); nil means no loot.
	Loot *LootTable
}

// RangedOnly reports whether every attack of the instance is ranged.
func (i *Instance) RangedOnly() bool {
	if len(i.Attacks) == 0 {
		return false
	}
	for _, a := range i.Attacks {
		if !a.Ranged {
			return false
		}
	}
	return true
}

// NewInstance spawns a monster from tmpl with a fresh uuid.
//
// Precondition: tmpl must have passed Validate; rnd must not be nil when
// tmpl.HitDice is set.
// Postcondition: CurrentHP == MaxHP >= 1. MaxHP is rolled from HitDice when
// set, otherwise copied from the template.
func NewInstance(tmpl *Template, loot *LootTable, rnd Random) *Instance {
	hp := tmpl.MaxHP
	if tmpl.HitDice != "" {
		expr := dice.MustParse(tmpl.HitDice)
		hp = max(1, rnd.Dice(expr.Count, expr.Sides)+expr.Modifier)
	}
	attacks := make([]Attack, len(tmpl.Attacks))
	copy(attacks, tmpl.Attacks)
	return &Instance{
		ID:         uuid.New().String(),
		TemplateID: tmpl.ID,
		Name:       tmpl.Name,
		Kind:       tmpl.Kind,
		Level:      tmpl.Level,
		MaxHP:      hp,
		CurrentHP:  hp,
		AC:         tmpl.AC,
		Abilities:  tmpl.Abilities,
		AIType:     tmpl.AIType,
		Experience: tmpl.Experience,
		Attacks:    attacks,
		Loot:       loot,
	}
}
