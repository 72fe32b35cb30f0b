// Package inventory provides consumable item definitions and the party stash
// that holds gold and item instances between encounters.
package inventory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/crawler/internal/game/dice"
)

// Effect constants for ItemDef.Effect.
const (
	EffectHeal   = "heal"
	EffectDamage = "damage"
	EffectBuff   = "buff"
)

// Target constants for ItemDef.Target.
const (
	TargetSelf        = "self"
	TargetSingleAlly  = "single_ally"
	TargetSingleEnemy = "single_enemy"
	TargetAllEnemies  = "all_enemies"
)

var validEffects = map[string]bool{EffectHeal: true, EffectDamage: true, EffectBuff: true}

var validTargets = map[string]bool{
	TargetSelf:        true,
	TargetSingleAlly:  true,
	TargetSingleEnemy: true,
	TargetAllEnemies:  true,
}

// ItemDef defines a usable item loaded from YAML.
type ItemDef struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Effect      string `yaml:"effect"`
	Dice        string `yaml:"dice"`
	ACBonus     int    `yaml:"ac_bonus"`
	Target      string `yaml:"target"`
	MaxStack    int    `yaml:"max_stack"`
	Value       int    `yaml:"value"`
}

// NeedsTarget reports whether using the item requires an explicit target.
func (d *ItemDef) NeedsTarget() bool {
	return d.Target == TargetSingleAlly || d.Target == TargetSingleEnemy
}

// Validate checks that the ItemDef satisfies its invariants.
//
// Precondition: d is non-nil.
// Postcondition: returns nil iff all fields are valid.
func (d *ItemDef) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("ID must not be empty"))
	}
	if d.Name == "" {
		errs = append(errs, errors.New("Name must not be empty"))
	}
	if !validEffects[d.Effect] {
		errs = append(errs, fmt.Errorf("Effect must be one of heal, damage, buff; got %q", d.Effect))
	}
	if !validTargets[d.Target] {
		errs = append(errs, fmt.Errorf("Target must be one of self, single_ally, single_enemy, all_enemies; got %q", d.Target))
	}
	if d.Effect == EffectHeal || d.Effect == EffectDamage {
		if _, err := dice.Parse(d.Dice); err != nil {
			errs = append(errs, fmt.Errorf("Dice: %w", err))
		}
	}
	if d.Effect == EffectBuff && d.ACBonus <= 0 {
		errs = append(errs, errors.New("ACBonus must be > 0 for buff items"))
	}
	if d.MaxStack < 1 {
		errs = append(errs, errors.New("MaxStack must be >= 1"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("item validation failed: %v", errs)
	}
	return nil
}

// LoadItems reads all *.yaml files from dir, parses each as a list of
// ItemDefs, validates them, and returns the collected slice.
//
// Precondition: dir is a readable directory path.
// Postcondition: returns all valid ItemDefs or the first encountered error.
func LoadItems(dir string) ([]*ItemDef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("LoadItems: cannot read dir %q: %w", dir, err)
	}
	var out []*ItemDef
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("LoadItems: cannot read file %q: %w", path, err)
		}
		var defs []*ItemDef
		if err := yaml.Unmarshal(data, &defs); err != nil {
			return nil, fmt.Errorf("LoadItems: cannot parse file %q: %w", path, err)
		}
		for _, d := range defs {
			if err := d.Validate(); err != nil {
				return nil, fmt.Errorf("LoadItems: invalid item in %q: %w", path, err)
			}
			out = append(out, d)
		}
	}
	return out, nil
}
