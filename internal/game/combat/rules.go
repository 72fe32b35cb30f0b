package combat

import "github.com/cory-johannsen/crawler/internal/config"

// Random is the randomness the combat engine draws from. dice.Roller
// satisfies it; tests substitute scripted sequences.
type Random interface {
	// Die returns a value in [1, sides].
	Die(sides int) int
	// Dice returns the sum of count dice of the given sides.
	Dice(count, sides int) int
	// Integer returns a value in [min, max].
	Integer(min, max int) int
	// Chance returns true with probability p.
	Chance(p float64) bool
	// Choice returns an index in [0, n).
	Choice(n int) int
}

// Rules holds the tunable constants of combat resolution.
type Rules struct {
	MaxFrontRow int
	MaxBackRow  int
	// FleeChance is the probability a flee attempt succeeds.
	FleeChance float64
	// InstantKillChance is the probability a crit roll of 20 slays outright.
	InstantKillChance float64
	// CritDoubleThreshold is the minimum crit roll that doubles damage.
	CritDoubleThreshold int
	// RangedPreferenceChance is the probability a monster prefers its ranged attack.
	RangedPreferenceChance float64
	// AreaAttackMinTargets is the number of eligible targets at which a monster
	// prefers an area attack.
	AreaAttackMinTargets int
	SpellBaseChance      int
	SpellLevelStep       int
	SpellMinChance       int
	SpellMaxChance       int
}

// DefaultRules returns the standard rule constants.
func DefaultRules() Rules {
	return Rules{
		MaxFrontRow:            3,
		MaxBackRow:             3,
		FleeChance:             0.5,
		InstantKillChance:      0.05,
		CritDoubleThreshold:    18,
		RangedPreferenceChance: 0.3,
		AreaAttackMinTargets:   3,
		SpellBaseChance:        85,
		SpellLevelStep:         5,
		SpellMinChance:         5,
		SpellMaxChance:         95,
	}
}

// RulesFromConfig overlays cfg onto DefaultRules. Zero values keep the default.
func RulesFromConfig(cfg config.CombatConfig) Rules {
	r := DefaultRules()
	if cfg.MaxFrontRow > 0 {
		r.MaxFrontRow = cfg.MaxFrontRow
	}
	if cfg.MaxBackRow > 0 {
		r.MaxBackRow = cfg.MaxBackRow
	}
	if cfg.FleeChance > 0 {
		r.FleeChance = cfg.FleeChance
	}
	if cfg.InstantKillChance > 0 {
		r.InstantKillChance = cfg.InstantKillChance
	}
	if cfg.CritDoubleThreshold > 0 {
		r.CritDoubleThreshold = cfg.CritDoubleThreshold
	}
	if cfg.RangedPreferenceChance > 0 {
		r.RangedPreferenceChance = cfg.RangedPreferenceChance
	}
	if cfg.AreaAttackMinTargets > 0 {
		r.AreaAttackMinTargets = cfg.AreaAttackMinTargets
	}
	return r
}
