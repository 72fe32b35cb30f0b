package monster

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	defaultWaves    = 1
	defaultMaxGroup = 4
	// levelBand is how far below the descriptor level a template may be and
	// still be picked for a random encounter.
	levelBand = 2
)

var (
	// ErrUnknownMonster is returned when a descriptor names an unregistered template.
	ErrUnknownMonster = errors.New("unknown monster")
	// ErrNoCandidates is returned when no template fits the descriptor.
	ErrNoCandidates = errors.New("no monster fits the encounter")
)

// Descriptor describes the encounter to build.
type Descriptor struct {
	// Level is the dungeon level; random picks favour templates within a small band below it.
	Level int
	// Kind restricts random picks to one template kind; empty allows any.
	Kind string
	// MonsterID fixes the template for every wave.
	MonsterID string
	// Waves is the number of waves; <= 0 means 1.
	Waves int
	// MaxGroup caps the group size per wave; <= 0 means 4.
	MaxGroup int
}

// Provider builds enemy waves from a Registry.
type Provider struct {
	reg *Registry
	rnd Random
}

// NewProvider creates an encounter Provider.
//
// Precondition: reg and rnd must not be nil.
func NewProvider(reg *Registry, rnd Random) *Provider {
	if reg == nil || rnd == nil {
		panic("monster.NewProvider: registry and random must not be nil")
	}
	return &Provider{reg: reg, rnd: rnd}
}

// Encounter builds the waves for d. Each wave is a group of one template,
// sized Integer(1, MaxGroup); members of a group larger than one are numbered.
//
// Postcondition: returns at least one non-empty wave, or ErrUnknownMonster /
// ErrNoCandidates.
func (p *Provider) Encounter(ctx context.Context, d Descriptor) ([][]*Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	candidates, err := p.candidates(d)
	if err != nil {
		return nil, err
	}
	waves := d.Waves
	if waves <= 0 {
		waves = defaultWaves
	}
	maxGroup := d.MaxGroup
	if maxGroup <= 0 {
		maxGroup = defaultMaxGroup
	}
	out := make([][]*Instance, 0, waves)
	for w := 0; w < waves; w++ {
		tmpl := candidates[p.rnd.Choice(len(candidates))]
		n := p.rnd.Integer(1, maxGroup)
		loot := p.reg.LootFor(tmpl)
		wave := make([]*Instance, 0, n)
		for i := 0; i < n; i++ {
			inst := NewInstance(tmpl, loot, p.rnd)
			if n > 1 {
				inst.Name = fmt.Sprintf("%s %d", tmpl.Name, i+1)
			}
			wave = append(wave, inst)
		}
		out = append(out, wave)
	}
	return out, nil
}

func (p *Provider) candidates(d Descriptor) ([]*Template, error) {
	if d.MonsterID != "" {
		t, ok := p.reg.Template(d.MonsterID)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMonster, d.MonsterID)
		}
		return []*Template{t}, nil
	}
	var banded, below []*Template
	for _, t := range p.reg.Templates() {
		if d.Kind != "" && !strings.EqualFold(t.Kind, d.Kind) {
			continue
		}
		if t.Level > d.Level {
			continue
		}
		below = append(below, t)
		if t.Level >= d.Level-levelBand {
			banded = append(banded, t)
		}
	}
	if len(banded) > 0 {
		return banded, nil
	}
	if len(below) > 0 {
		return below, nil
	}
	return nil, fmt.Errorf("%w: level %d kind %q", ErrNoCandidates, d.Level, d.Kind)
}
