// Package spell provides spell definitions loaded from YAML and the registry
// the combat engine resolves cast actions against.
package spell

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/crawler/internal/game/dice"
)

// School decides which attribute feeds the casting check.
type School string

const (
	Arcane School = "arcane" // intelligence
	Divine School = "divine" // piety
)

// EffectKind is what a successful cast does to each target.
type EffectKind string

const (
	EffectDamage  EffectKind = "damage"
	EffectHeal    EffectKind = "heal"
	EffectBuff    EffectKind = "buff"
	EffectControl EffectKind = "control"
)

// TargetKind selects the set of combatants a spell resolves against.
type TargetKind string

const (
	TargetSingleEnemy TargetKind = "single_enemy"
	TargetAllEnemies  TargetKind = "all_enemies"
	TargetSingleAlly  TargetKind = "single_ally"
	TargetAllAllies   TargetKind = "all_allies"
	TargetSelf        TargetKind = "self"
)

// NeedsTarget reports whether a cast must name an explicit target.
func (k TargetKind) NeedsTarget() bool {
	return k == TargetSingleEnemy || k == TargetSingleAlly
}

// Def is a spell definition.
type Def struct {
	ID     string     `yaml:"id"`
	Name   string     `yaml:"name"`
	School School     `yaml:"school"`
	Level  int        `yaml:"level"`
	Effect EffectKind `yaml:"effect"`
	// Dice is the damage or healing expression; empty for buff and control.
	Dice   string     `yaml:"dice"`
	Target TargetKind `yaml:"target"`
	// ACBonus is the armor class improvement granted by a buff.
	ACBonus     int    `yaml:"ac_bonus"`
	Description string `yaml:"description"`
}

// Validate checks that the definition is well-formed.
//
// Postcondition: returns nil iff ID and Name are set, school, effect and
// target are known, Level >= 1, damage/heal spells carry a parseable dice
// expression and buffs grant a positive AC bonus.
func (d *Def) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if d.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if d.School != Arcane && d.School != Divine {
		errs = append(errs, fmt.Errorf("school %q must be arcane or divine", d.School))
	}
	if d.Level < 1 {
		errs = append(errs, fmt.Errorf("level must be >= 1, got %d", d.Level))
	}
	switch d.Effect {
	case EffectDamage, EffectHeal:
		if _, err := dice.Parse(d.Dice); err != nil {
			errs = append(errs, fmt.Errorf("dice: %w", err))
		}
	case EffectBuff:
		if d.ACBonus <= 0 {
			errs = append(errs, errors.New("ac_bonus must be > 0 for buffs"))
		}
	case EffectControl:
	default:
		errs = append(errs, fmt.Errorf("unknown effect %q", d.Effect))
	}
	switch d.Target {
	case TargetSingleEnemy, TargetAllEnemies, TargetSingleAlly, TargetAllAllies, TargetSelf:
	default:
		errs = append(errs, fmt.Errorf("unknown target %q", d.Target))
	}
	if len(errs) > 0 {
		return fmt.Errorf("spell validation failed: %v", errs)
	}
	return nil
}

// Registry indexes spell definitions by ID.
type Registry struct {
	spells map[string]*Def
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{spells: make(map[string]*Def)}
}

// Register adds d to the registry.
func (r *Registry) Register(d *Def) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("spell %q: %w", d.ID, err)
	}
	if _, exists := r.spells[d.ID]; exists {
		return fmt.Errorf("spell: ID %q already registered", d.ID)
	}
	r.spells[d.ID] = d
	return nil
}

// Spell returns the definition for id.
func (r *Registry) Spell(id string) (*Def, bool) {
	d, ok := r.spells[id]
	return d, ok
}

// All returns every definition sorted by level then ID.
func (r *Registry) All() []*Def {
	out := make([]*Def, 0, len(r.spells))
	for _, d := range r.spells {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ValidatePrepared checks a caster's prepared-spell list.
//
// Postcondition: returns nil iff every ID is registered and every count is >= 0.
func (r *Registry) ValidatePrepared(prepared map[string]int) error {
	ids := make([]string, 0, len(prepared))
	for id := range prepared {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, ok := r.spells[id]; !ok {
			return fmt.Errorf("prepared spell %q is not defined", id)
		}
		if prepared[id] < 0 {
			return fmt.Errorf("prepared spell %q has negative count %d", id, prepared[id])
		}
	}
	return nil
}

// LoadDirectory reads every *.yaml file in dir; each file holds a list of spells.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading spell dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		var defs []*Def
		if err := yaml.Unmarshal(data, &defs); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		for _, d := range defs {
			if err := reg.Register(d); err != nil {
				return nil, fmt.Errorf("loading %q: %w", path, err)
			}
		}
	}
	return reg, nil
}
