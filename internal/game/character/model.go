// Package character defines the party member domain model, the YAML party
// loader and an in-memory roster that accepts post-combat write-back.
package character

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Attributes holds the six core attribute scores of a character.
type Attributes struct {
	Strength     int `yaml:"strength"`
	Intelligence int `yaml:"intelligence"`
	Piety        int `yaml:"piety"`
	Vitality     int `yaml:"vitality"`
	Agility      int `yaml:"agility"`
	Luck         int `yaml:"luck"`
}

// Status is the persistent condition of a character outside combat.
type Status string

const (
	StatusOK          Status = "ok"
	StatusUnconscious Status = "unconscious"
	// StatusDisoriented marks a character that fled an encounter and was
	// returned to town.
	StatusDisoriented Status = "disoriented"
	StatusDead        Status = "dead"
	StatusAshes       Status = "ashes"
	StatusLost        Status = "lost"
)

var validStatuses = map[Status]bool{
	StatusOK: true, StatusUnconscious: true, StatusDisoriented: true,
	StatusDead: true, StatusAshes: true, StatusLost: true,
}

// Equipment lists the equipped item IDs; empty means the slot is empty.
type Equipment struct {
	Weapon string `yaml:"weapon"`
	Armor  string `yaml:"armor"`
	Shield string `yaml:"shield"`
}

// Character represents a party member's persistent state.
type Character struct {
	ID         string     `yaml:"id"`
	Name       string     `yaml:"name"`
	Class      string     `yaml:"class"`
	Level      int        `yaml:"level"`
	Experience int        `yaml:"experience"`
	Attributes Attributes `yaml:"attributes"`
	MaxHP      int        `yaml:"max_hp"`
	CurrentHP  int        `yaml:"current_hp"`
	Status     Status     `yaml:"status"`
	Equipment  Equipment  `yaml:"equipment"`
	// PreparedSpells maps spell ID to the number of casts remaining.
	PreparedSpells map[string]int `yaml:"prepared_spells"`

	UpdatedAt time.Time `yaml:"-"`
}

// CanFight reports whether the character may join an encounter.
func (c *Character) CanFight() bool {
	return (c.Status == StatusOK || c.Status == "") && c.CurrentHP > 0
}

// Validate checks the character's invariants.
//
// Postcondition: returns nil iff ID, Name and Class are set, Level >= 1,
// MaxHP >= 1, 0 <= CurrentHP <= MaxHP and Status is known (empty means ok).
func (c *Character) Validate() error {
	var errs []error
	if c.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if c.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if strings.TrimSpace(c.Class) == "" {
		errs = append(errs, errors.New("class must not be empty"))
	}
	if c.Level < 1 {
		errs = append(errs, fmt.Errorf("level must be >= 1, got %d", c.Level))
	}
	if c.MaxHP < 1 {
		errs = append(errs, fmt.Errorf("max_hp must be >= 1, got %d", c.MaxHP))
	}
	if c.CurrentHP < 0 || c.CurrentHP > c.MaxHP {
		errs = append(errs, fmt.Errorf("current_hp must be in [0, %d], got %d", c.MaxHP, c.CurrentHP))
	}
	if c.Status != "" && !validStatuses[c.Status] {
		errs = append(errs, fmt.Errorf("unknown status %q", c.Status))
	}
	for id, n := range c.PreparedSpells {
		if n < 0 {
			errs = append(errs, fmt.Errorf("prepared spell %q has negative count", id))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("character %q: %v", c.ID, errs)
	}
	return nil
}

// Update is the post-combat write-back for one party member.
type Update struct {
	ID               string
	CurrentHP        int
	Status           Status
	ExperienceGained int
	// PreparedSpells is the remaining prepared list after the encounter.
	PreparedSpells map[string]int
}

// Apply writes u onto c.
//
// Precondition: u.ID == c.ID.
// Postcondition: CurrentHP is clamped to [0, MaxHP].
func (c *Character) Apply(u Update) {
	c.CurrentHP = max(0, min(u.CurrentHP, c.MaxHP))
	if u.Status != "" {
		c.Status = u.Status
	}
	c.Experience += u.ExperienceGained
	if u.PreparedSpells != nil {
		c.PreparedSpells = make(map[string]int, len(u.PreparedSpells))
		for id, n := range u.PreparedSpells {
			c.PreparedSpells[id] = n
		}
	}
}
