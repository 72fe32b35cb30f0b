// Package monster provides monster template definitions, treasure tables,
// spawned instances and the encounter provider that builds enemy waves.
package monster

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/crawler/internal/game/dice"
)

// Abilities holds the six core attribute scores for a monster template.
// Zero scores are treated as 10 by the combat adapter.
type Abilities struct {
	Strength     int `yaml:"strength"`
	Intelligence int `yaml:"intelligence"`
	Piety        int `yaml:"piety"`
	Vitality     int `yaml:"vitality"`
	Agility      int `yaml:"agility"`
	Luck         int `yaml:"luck"`
}

// Attack is one attack a monster can make.
type Attack struct {
	Name       string `yaml:"name"`
	Damage     string `yaml:"damage"` // dice expression, e.g. "1d6+1"
	Ranged     bool   `yaml:"ranged"`
	AreaEffect bool   `yaml:"area_effect"`
	HitBonus   int    `yaml:"hit_bonus"`
}

// Template defines a reusable monster archetype loaded from YAML.
type Template struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Kind        string    `yaml:"kind"` // humanoid, undead, beast, ...
	Level       int       `yaml:"level"`
	MaxHP       int       `yaml:"max_hp"`
	HitDice     string    `yaml:"hit_dice"` // rolled per spawn when set
	AC          int       `yaml:"ac"`
	Abilities   Abilities `yaml:"abilities"`
	AIType      string    `yaml:"ai_type"`
	Experience  int       `yaml:"experience"`
	// TreasureType names a shared treasure table; Loot overrides it.
	TreasureType string     `yaml:"treasure_type"`
	Loot         *LootTable `yaml:"loot"`
	Attacks      []Attack   `yaml:"attacks"`
}

// Validate checks that the template satisfies basic invariants.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, Level >= 1, the
// template has a positive MaxHP or a parseable HitDice, Experience >= 0, at
// least one attack is declared and every attack damage expression parses.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("monster template: id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("monster template %q: name must not be empty", t.ID)
	}
	if t.Level < 1 {
		return fmt.Errorf("monster template %q: level must be >= 1", t.ID)
	}
	if t.HitDice != "" {
		if _, err := dice.Parse(t.HitDice); err != nil {
			return fmt.Errorf("monster template %q: hit_dice: %w", t.ID, err)
		}
	} else if t.MaxHP < 1 {
		return fmt.Errorf("monster template %q: max_hp must be >= 1 when hit_dice is empty", t.ID)
	}
	if t.Experience < 0 {
		return fmt.Errorf("monster template %q: experience must be >= 0", t.ID)
	}
	if len(t.Attacks) == 0 {
		return fmt.Errorf("monster template %q: at least one attack is required", t.ID)
	}
	for i, a := range t.Attacks {
		if a.Name == "" {
			return fmt.Errorf("monster template %q: attack[%d] must have a name", t.ID, i)
		}
		if _, err := dice.Parse(a.Damage); err != nil {
			return fmt.Errorf("monster template %q: attack %q: %w", t.ID, a.Name, err)
		}
	}
	if t.Loot != nil {
		if err := t.Loot.Validate(); err != nil {
			return fmt.Errorf("monster template %q: %w", t.ID, err)
		}
	}
	return nil
}

// LoadTemplateFromBytes parses a single monster template from raw YAML bytes.
//
// Postcondition: Returns a validated *Template, or an error.
func LoadTemplateFromBytes(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parsing template YAML: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LoadTemplates reads all *.yaml files in dir and returns the parsed templates.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all templates or an error on the first parse or validate
// failure; on error, the partial result is discarded.
func LoadTemplates(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading monster dir %q: %w", dir, err)
	}

	var templates []*Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}

		tmpl, err := LoadTemplateFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}
