// Package equipment provides weapon, armor and shield definitions and the
// registry the combat engine queries for equipment bonuses.
package equipment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Slot is the equipment slot an item occupies.
type Slot string

const (
	SlotWeapon Slot = "weapon"
	SlotArmor  Slot = "armor"
	SlotShield Slot = "shield"
)

// reachWeaponTypes are the weapon types that let a back-row wielder melee.
var reachWeaponTypes = map[string]bool{
	"spear":   true,
	"halberd": true,
	"pike":    true,
	"poleaxe": true,
}

// Def defines the static properties of one equipment item loaded from YAML.
type Def struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Slot        Slot   `yaml:"slot"`
	WeaponType  string `yaml:"weapon_type"` // sword, mace, spear, bow, ...
	Ranged      bool   `yaml:"ranged"`
	HitBonus    int    `yaml:"hit_bonus"`
	DamageBonus int    `yaml:"damage_bonus"`
	ACBonus     int    `yaml:"ac_bonus"`
	Value       int    `yaml:"value"`
}

// IsReach reports whether the item is a reach weapon (spear, halberd, pike or poleaxe).
func (d *Def) IsReach() bool {
	return d.Slot == SlotWeapon && reachWeaponTypes[strings.ToLower(d.WeaponType)]
}

// Validate checks that the definition is well-formed.
//
// Postcondition: returns nil iff ID and Name are set, Slot is known, weapons
// declare a weapon type, and armor/shield AC bonuses are non-negative.
func (d *Def) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if d.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	switch d.Slot {
	case SlotWeapon:
		if d.WeaponType == "" {
			errs = append(errs, errors.New("weapon_type must not be empty for weapons"))
		}
	case SlotArmor, SlotShield:
		if d.ACBonus < 0 {
			errs = append(errs, errors.New("ac_bonus must be >= 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("slot %q must be weapon, armor or shield", d.Slot))
	}
	if len(errs) > 0 {
		return fmt.Errorf("equipment validation failed: %v", errs)
	}
	return nil
}

// Registry indexes equipment definitions by ID.
type Registry struct {
	defs map[string]*Def
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Def)}
}

// Register adds d to the registry.
//
// Postcondition: returns an error if d is invalid or its ID is already registered.
func (r *Registry) Register(d *Def) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("equipment %q: %w", d.ID, err)
	}
	if _, exists := r.defs[d.ID]; exists {
		return fmt.Errorf("equipment: ID %q already registered", d.ID)
	}
	r.defs[d.ID] = d
	return nil
}

// Item returns the definition for id.
func (r *Registry) Item(id string) (*Def, bool) {
	d, ok := r.defs[id]
	return d, ok
}

// IsReachWeapon reports whether id names a registered reach weapon.
func (r *Registry) IsReachWeapon(id string) bool {
	d, ok := r.defs[id]
	return ok && d.IsReach()
}

// All returns every definition sorted by ID.
func (r *Registry) All() []*Def {
	out := make([]*Def, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDirectory reads every *.yaml file in dir. Each file holds a YAML list
// of definitions.
//
// Postcondition: returns a populated Registry or the first read, parse or
// validation error, naming the file.
func LoadDirectory(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading equipment dir %q: %w", dir, err)
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
