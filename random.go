package main

// SeededRandom is a linear congruential generator shared by every peer in a
// match. The server hands out one seed per game, and as long as each client
// consumes the stream in the same order they all end up with an identical
// map without it ever crossing the wire.
type SeededRandom struct {
	seed int64
}

const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

func NewSeededRandom(seed int64) *SeededRandom {
	return &SeededRandom{seed: seed}
}

// Next returns the next value in [0, 1). The intermediate product stays in
// int64 range so the sequence is identical on every platform.
func (r *SeededRandom) Next() float64 {
	r.seed = (r.seed*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(r.seed) / lcgModulus
}

// NextInt returns a random integer in [min, max] inclusive.
func (r *SeededRandom) NextInt(min, max int) int {
	return int(r.Next()*float64(max-min+1)) + min
}

// Chance reports true with the given probability (0–1 range).
func (r *SeededRandom) Chance(probability float64) bool {
	return r.Next() < probability
}
