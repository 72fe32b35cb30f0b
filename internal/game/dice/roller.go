package dice

import "go.uber.org/zap"

// chanceResolution is the granularity of Chance rolls.
const chanceResolution = 1_000_000

// Roller wraps a Source and logger. Every roll is logged at debug level.
//
// Roller satisfies the combat engine's random source contract.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs each roll to logger.
//
// Precondition: src must be non-nil. A nil logger is replaced by a no-op logger.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	if src == nil {
		panic("dice.NewLoggedRoller: src must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Roller{src: src, logger: logger}
}

// Die rolls a single die with the given number of sides.
//
// Precondition: sides >= 1.
// Postcondition: result in [1, sides].
func (r *Roller) Die(sides int) int {
	v := r.src.Intn(sides) + 1
	r.logger.Debug("die", zap.Int("sides", sides), zap.Int("result", v))
	return v
}

// Dice rolls count dice of the given sides and returns their sum.
//
// Postcondition: result in [count, count*sides]; 0 when count <= 0.
func (r *Roller) Dice(count, sides int) int {
	total := 0
	for i := 0; i < count; i++ {
		total += r.src.Intn(sides) + 1
	}
	r.logger.Debug("dice", zap.Int("count", count), zap.Int("sides", sides), zap.Int("total", total))
	return total
}

// Integer returns a uniformly distributed integer in [min, max].
// The bounds are swapped when min > max.
func (r *Roller) Integer(min, max int) int {
	if min > max {
		min, max = max, min
	}
	v := min + r.src.Intn(max-min+1)
	r.logger.Debug("integer", zap.Int("min", min), zap.Int("max", max), zap.Int("result", v))
	return v
}

// Chance reports true with probability p. p <= 0 never succeeds and p >= 1
// always succeeds; neither case consumes randomness.
func (r *Roller) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	ok := r.src.Intn(chanceResolution) < int(p*chanceResolution)
	r.logger.Debug("chance", zap.Float64("p", p), zap.Bool("result", ok))
	return ok
}

// Choice returns a uniformly chosen index in [0, n).
//
// Precondition: n > 0.
func (r *Roller) Choice(n int) int {
	v := r.src.Intn(n)
	r.logger.Debug("choice", zap.Int("n", n), zap.Int("result", v))
	return v
}

// Roll evaluates expr and logs the full audit trail.
func (r *Roller) Roll(expr Expression) RollResult {
	result := Roll(expr, r.src)
	r.logger.Debug("dice roll",
		zap.String("expression", result.Expression),
		zap.Ints("dice", result.Dice),
		zap.Int("modifier", result.Modifier),
		zap.Int("total", result.Total()),
	)
	return result
}

// RollExpr parses expr and rolls it.
func (r *Roller) RollExpr(expr string) (RollResult, error) {
	e, err := Parse(expr)
	if err != nil {
		return RollResult{}, err
	}
	return r.Roll(e), nil
}

// Chooser is the subset of Roller needed by Pick.
type Chooser interface {
	Choice(n int) int
}

// Pick returns a uniformly chosen element of list.
//
// Precondition: len(list) > 0.
func Pick[T any](c Chooser, list []T) T {
	return list[c.Choice(len(list))]
}
