package engine

import "math/rand"

// RandomSource is the randomness a single trial consumes. Each trial owns its
// own source, so trials never contend on shared RNG state and any trial is
// reproducible in isolation from its seed.
type RandomSource interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// Intn returns a uniform value in [0, n).
	Intn(n int) int
}

// NewSource returns a seeded pseudo-random source.
func NewSource(seed int64) RandomSource {
	return rand.New(rand.NewSource(seed))
}
