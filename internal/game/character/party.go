package character

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// MaxPartySize is the largest party the loader accepts.
const MaxPartySize = 6

// ErrUnknownCharacter is returned when a write-back names a character not in the roster.
var ErrUnknownCharacter = errors.New("unknown character")

type partyFile struct {
	Party []*Character `yaml:"party"`
}

// LoadParty parses a party YAML file of the form `party: [...]`.
//
// Precondition: path must be a readable YAML file.
// Postcondition: returns 1..MaxPartySize validated characters with unique IDs,
// or an error naming the file.
func LoadParty(path string) ([]*Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading party file %q: %w", path, err)
	}
	var pf partyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing party file %q: %w", path, err)
	}
	if len(pf.Party) == 0 || len(pf.Party) > MaxPartySize {
		return nil, fmt.Errorf("party file %q: party size must be 1-%d, got %d", path, MaxPartySize, len(pf.Party))
	}
	seen := make(map[string]bool, len(pf.Party))
	for _, c := range pf.Party {
		if c.Status == "" {
			c.Status = StatusOK
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("party file %q: %w", path, err)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("party file %q: duplicate character id %q", path, c.ID)
		}
		seen[c.ID] = true
	}
	return pf.Party, nil
}

// Roster is an in-memory party store.
//
// Roster is safe for concurrent use.
type Roster struct {
	mu      sync.RWMutex
	members []*Character
}

// NewRoster creates a Roster holding members in the given order.
func NewRoster(members []*Character) *Roster {
	return &Roster{members: members}
}

// Living returns copies of the members that can join an encounter, in roster order.
func (r *Roster) Living(_ context.Context) ([]*Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Character
	for _, c := range r.members {
		if c.CanFight() {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Get returns a copy of the member with id.
func (r *Roster) Get(id string) (Character, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.members {
		if c.ID == id {
			return *c, true
		}
	}
	return Character{}, false
}

// WriteBack applies post-combat updates.
//
// Postcondition: if any update names an unknown character, ErrUnknownCharacter
// is returned and no member changes.
func (r *Roster) WriteBack(_ context.Context, updates []Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	targets := make([]*Character, len(updates))
	for i, u := range updates {
		for _, c := range r.members {
			if c.ID == u.ID {
				targets[i] = c
				break
			}
		}
		if targets[i] == nil {
			return fmt.Errorf("%w: %q", ErrUnknownCharacter, u.ID)
		}
	}
	for i, u := range updates {
		targets[i].Apply(u)
	}
	return nil
}
