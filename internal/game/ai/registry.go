package ai

import (
	"fmt"

	"github.com/cory-johannsen/crawler/internal/scripting"
)

// Registry indexes Policies by AI type.
//
// Invariant: each AI type is registered at most once.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]Policy)}
}

// DefaultRegistry returns a Registry holding every built-in policy. scripts
// backs the scripted policy and may be nil.
func DefaultRegistry(scripts *scripting.Manager) *Registry {
	r := NewRegistry()
	for name, p := range map[string]Policy{
		TypeCowardly:    Cowardly,
		TypeAggressive:  Aggressive,
		TypeTactical:    Tactical,
		TypePack:        Pack,
		TypeIntelligent: Intelligent,
		TypeScripted:    Scripted(scripts),
	} {
		_ = r.Register(name, p)
	}
	return r
}

// Register stores p under aiType.
//
// Precondition: p must not be nil.
// Postcondition: returns error on an empty type or a collision.
func (r *Registry) Register(aiType string, p Policy) error {
	if aiType == "" {
		return fmt.Errorf("ai.Registry: AI type must not be empty")
	}
	if _, exists := r.policies[aiType]; exists {
		return fmt.Errorf("ai.Registry: AI type %q already registered", aiType)
	}
	r.policies[aiType] = p
	return nil
}

// PolicyFor returns the Policy for aiType, or false if not registered.
func (r *Registry) PolicyFor(aiType string) (Policy, bool) {
	p, ok := r.policies[aiType]
	return p, ok
}
