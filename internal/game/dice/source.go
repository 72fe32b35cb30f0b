package dice

import (
	"crypto/rand"
	"math/big"
	mrand "math/rand"
	"sync"
)

type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Intn panics when n <= 0 or when crypto/rand fails.
func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	return int(v.Int64())
}

// SeededSource is a reproducible Source: two instances built from the same
// seed yield the same sequence of values.
type SeededSource struct {
	mu   sync.Mutex
	seed int64
	rng  *mrand.Rand
	pos  int64
}

// NewSeededSource returns a SeededSource starting at position zero.
func NewSeededSource(seed int64) *SeededSource {
	return &SeededSource{seed: seed, rng: mrand.New(mrand.NewSource(seed))}
}

// Intn returns a value in [0, n) and advances the position.
//
// Precondition: n > 0.
func (s *SeededSource) Intn(n int) int {
	if n <= 0 {
		panic("dice: Intn called with n <= 0")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos++
	return s.rng.Intn(n)
}

// Seed returns the seed the source was created with.
func (s *SeededSource) Seed() int64 { return s.seed }

// Position returns the number of values drawn so far.
func (s *SeededSource) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}
