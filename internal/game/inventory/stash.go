package inventory

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrUnknownItem is returned for an item ID not present in the registry.
	ErrUnknownItem = errors.New("unknown item")
	// ErrOutOfStock is returned when consuming an item the stash does not hold.
	ErrOutOfStock = errors.New("item out of stock")
)

// ItemInstance represents a concrete stack of one item in the stash.
type ItemInstance struct {
	InstanceID string
	ItemDefID  string
	Quantity   int
}

// Stash is the shared party inventory: gold plus stacked item instances.
//
// Stash is not safe for concurrent use; the combat engine only touches it
// from its single turn loop.
type Stash struct {
	reg   *Registry
	gold  int
	items []ItemInstance
}

// NewStash creates an empty Stash backed by reg.
//
// Precondition: reg must not be nil.
func NewStash(reg *Registry) *Stash {
	if reg == nil {
		panic("inventory.NewStash: registry must not be nil")
	}
	return &Stash{reg: reg}
}

// Item resolves an item definition by ID.
func (s *Stash) Item(id string) (*ItemDef, bool) {
	return s.reg.Item(id)
}

// Gold returns the stash's gold total.
func (s *Stash) Gold() int {
	return s.gold
}

// Add places quantity units of itemDefID into the stash, topping up existing
// stacks before opening new ones.
//
// Precondition: quantity > 0.
// Postcondition: on error the stash is unchanged; on success returns the last
// stack touched.
func (s *Stash) Add(itemDefID string, quantity int) (*ItemInstance, error) {
	def, ok := s.reg.Item(itemDefID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownItem, itemDefID)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("stash: quantity must be > 0, got %d", quantity)
	}
	remaining := quantity
	last := -1
	for i := range s.items {
		if remaining == 0 {
			break
		}
		if s.items[i].ItemDefID != def.ID || s.items[i].Quantity >= def.MaxStack {
			continue
		}
		take := min(remaining, def.MaxStack-s.items[i].Quantity)
		s.items[i].Quantity += take
		remaining -= take
		last = i
	}
	for remaining > 0 {
		q := min(remaining, def.MaxStack)
		s.items = append(s.items, ItemInstance{
			InstanceID: uuid.New().String(),
			ItemDefID:  def.ID,
			Quantity:   q,
		})
		remaining -= q
		last = len(s.items) - 1
	}
	return &s.items[last], nil
}

// Count returns the total quantity held of itemDefID.
func (s *Stash) Count(itemDefID string) int {
	n := 0
	for _, inst := range s.items {
		if inst.ItemDefID == itemDefID {
			n += inst.Quantity
		}
	}
	return n
}

// Consume removes one unit of itemDefID, emptying the newest stack first.
//
// Postcondition: returns ErrUnknownItem or ErrOutOfStock without mutation.
func (s *Stash) Consume(itemDefID string) error {
	if _, ok := s.reg.Item(itemDefID); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, itemDefID)
	}
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].ItemDefID != itemDefID {
			continue
		}
		if s.items[i].Quantity == 1 {
			s.items = append(s.items[:i], s.items[i+1:]...)
		} else {
			s.items[i].Quantity--
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrOutOfStock, itemDefID)
}

// Deposit adds gold and loot to the stash.
//
// Precondition: gold >= 0.
// Postcondition: every loot entry names a registered item or nothing is
// deposited.
func (s *Stash) Deposit(gold int, loot []ItemInstance) error {
	if gold < 0 {
		return fmt.Errorf("stash: cannot deposit negative gold %d", gold)
	}
	for _, l := range loot {
		if _, ok := s.reg.Item(l.ItemDefID); !ok {
			return fmt.Errorf("stash: deposit: %w: %q", ErrUnknownItem, l.ItemDefID)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("stash: deposit: %q has quantity %d", l.ItemDefID, l.Quantity)
		}
	}
	s.gold += gold
	for _, l := range loot {
		if _, err := s.Add(l.ItemDefID, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// Items returns a snapshot copy of all stacks.
func (s *Stash) Items() []ItemInstance {
	out := make([]ItemInstance, len(s.items))
	copy(out, s.items)
	return out
}
