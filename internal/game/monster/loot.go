package monster

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/crawler/internal/game/inventory"
)

// GoldDrop defines the range of gold a monster can drop when defeated.
type GoldDrop struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// ItemDrop defines a single item entry in a loot table with a drop chance.
type ItemDrop struct {
	ItemID string  `yaml:"item"`
	Chance float64 `yaml:"chance"`
	MinQty int     `yaml:"min_qty"`
	MaxQty int     `yaml:"max_qty"`
}

// LootTable defines the possible drops of a defeated monster.
type LootTable struct {
	Gold  *GoldDrop  `yaml:"gold"`
	Items []ItemDrop `yaml:"items"`
}

// Validate checks that the loot table satisfies its invariants.
//
// Precondition: lt must not be nil.
// Postcondition: Returns nil iff all gold and item constraints hold;
// an empty loot table (no gold, no items) is valid.
func (lt *LootTable) Validate() error {
	if lt.Gold != nil {
		if lt.Gold.Min < 0 {
			return fmt.Errorf("loot table: gold min must be >= 0, got %d", lt.Gold.Min)
		}
		if lt.Gold.Min > lt.Gold.Max {
			return fmt.Errorf("loot table: gold min (%d) must be <= max (%d)", lt.Gold.Min, lt.Gold.Max)
		}
	}
	for i, item := range lt.Items {
		if item.ItemID == "" {
			return fmt.Errorf("loot table: item[%d] must have a non-empty item id", i)
		}
		if item.Chance <= 0 || item.Chance > 1.0 {
			return fmt.Errorf("loot table: item[%d] chance must be in (0, 1.0], got %f", i, item.Chance)
		}
		if item.MinQty < 1 {
			return fmt.Errorf("loot table: item[%d] min_qty must be >= 1, got %d", i, item.MinQty)
		}
		if item.MinQty > item.MaxQty {
			return fmt.Errorf("loot table: item[%d] min_qty (%d) must be <= max_qty (%d)", i, item.MinQty, item.MaxQty)
		}
	}
	return nil
}

// LootResult holds the generated loot from one defeated monster.
type LootResult struct {
	Gold  int
	Items []inventory.ItemInstance
}

// GenerateLoot rolls loot from lt: gold via Integer, then for each item a
// Chance roll followed by an Integer quantity roll.
//
// Precondition: lt must have passed Validate(); rnd must not be nil.
// Postcondition: Gold is in [Gold.Min, Gold.Max] if gold is set; each item's
// Quantity is in [MinQty, MaxQty] for items that pass the chance roll.
func GenerateLoot(lt *LootTable, rnd Random) LootResult {
	var result LootResult
	if lt == nil {
		return result
	}
	if lt.Gold != nil && lt.Gold.Max > 0 {
		result.Gold = rnd.Integer(lt.Gold.Min, lt.Gold.Max)
	}
	for _, item := range lt.Items {
		if !rnd.Chance(item.Chance) {
			continue
		}
		result.Items = append(result.Items, inventory.ItemInstance{
			InstanceID: uuid.New().String(),
			ItemDefID:  item.ItemID,
			Quantity:   rnd.Integer(item.MinQty, item.MaxQty),
		})
	}
	return result
}

// LoadTreasure parses a treasure file mapping treasure type names to loot tables.
//
// Postcondition: every returned table has passed Validate.
func LoadTreasure(path string) (map[string]*LootTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading treasure file %q: %w", path, err)
	}
	var tables map[string]*LootTable
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parsing treasure file %q: %w", path, err)
	}
	for name, lt := range tables {
		if lt == nil {
			return nil, fmt.Errorf("treasure file %q: type %q is empty", path, name)
		}
		if err := lt.Validate(); err != nil {
			return nil, fmt.Errorf("treasure file %q: type %q: %w", path, name, err)
		}
	}
	return tables, nil
}
