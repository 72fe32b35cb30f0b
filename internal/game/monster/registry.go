package monster

import (
	"fmt"
	"sort"
)

// Registry holds monster templates and named treasure tables.
type Registry struct {
	templates map[string]*Template
	treasure  map[string]*LootTable
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		templates: make(map[string]*Template),
		treasure:  make(map[string]*LootTable),
	}
}

// AddTreasure registers a named treasure table.
//
// Postcondition: returns an error if lt is invalid or name is taken.
func (r *Registry) AddTreasure(name string, lt *LootTable) error {
	if err := lt.Validate(); err != nil {
		return fmt.Errorf("treasure type %q: %w", name, err)
	}
	if _, exists := r.treasure[name]; exists {
		return fmt.Errorf("treasure type %q already registered", name)
	}
	r.treasure[name] = lt
	return nil
}

// Register adds t to the registry.
//
// Precondition: treasure tables referenced by t must be registered first.
// Postcondition: returns an error if t is invalid, its ID is taken, or its
// treasure type is unknown.
func (r *Registry) Register(t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, exists := r.templates[t.ID]; exists {
		return fmt.Errorf("monster template %q already registered", t.ID)
	}
	if t.TreasureType != "" && t.Loot == nil {
		if _, ok := r.treasure[t.TreasureType]; !ok {
			return fmt.Errorf("monster template %q: unknown treasure type %q", t.ID, t.TreasureType)
		}
	}
	r.templates[t.ID] = t
	return nil
}

// Template returns the template for id.
func (r *Registry) Template(id string) (*Template, bool) {
	t, ok := r.templates[id]
	return t, ok
}

// Templates returns every template sorted by level then ID.
func (r *Registry) Templates() []*Template {
	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// LootFor resolves the loot table of t: its own Loot when set, else its treasure type.
func (r *Registry) LootFor(t *Template) *LootTable {
	if t.Loot != nil {
		return t.Loot
	}
	if t.TreasureType == "" {
		return nil
	}
	return r.treasure[t.TreasureType]
}

// Load builds a Registry from a treasure file (optional, "" to skip) and a
// directory of template files.
func Load(templatesDir, treasureFile string) (*Registry, error) {
	reg := NewRegistry()
	if treasureFile != "" {
		tables, err := LoadTreasure(treasureFile)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(tables))
		for name := range tables {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := reg.AddTreasure(name, tables[name]); err != nil {
				return nil, err
			}
		}
	}
	templates, err := LoadTemplates(templatesDir)
	if err != nil {
		return nil, err
	}
	for _, t := range templates {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
