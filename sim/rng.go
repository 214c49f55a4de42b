package sim

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// SimulationKey uniquely identifies a reproducible simulation run.
// Two runs with the same SimulationKey and identical configuration
// produce identical results.
type SimulationKey int64

// NewSimulationKey creates a SimulationKey from a seed value.
func NewSimulationKey(seed int64) SimulationKey {
	return SimulationKey(seed)
}

// RNG is the single pseudo-random source of a run. It is seeded once and
// passed explicitly to every component that draws random numbers; no
// component may create its own source.
//
// Thread-safety: NOT thread-safe. Must be called from single goroutine.
type RNG struct {
	key SimulationKey
	r   *rand.Rand
}

// NewRNG creates the run's random source from key.
func NewRNG(key SimulationKey) *RNG {
	seed := uint64(key)
	return &RNG{
		key: key,
		r:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Key returns the SimulationKey used to create this RNG.
func (g *RNG) Key() SimulationKey { return g.key }

// Float64 returns a uniform value in [0, 1).
func (g *RNG) Float64() float64 { return g.r.Float64() }

// IntN returns a uniform value in [0, n).
func (g *RNG) IntN(n int) int { return g.r.IntN(n) }

// Boolean returns true with probability p.
func (g *RNG) Boolean(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return g.r.Float64() < p
}

// Binomial returns the number of successes in n trials of probability p.
func (g *RNG) Binomial(n int, p float64) int {
	switch {
	case n <= 0 || p <= 0 || math.IsNaN(p):
		return 0
	case p >= 1:
		return n
	}
	b := distuv.Binomial{N: float64(n), P: p, Src: g.r}
	k := int(b.Rand())
	return min(max(k, 0), n)
}

// Gamma draws from a Gamma distribution with the given shape and scale.
func (g *RNG) Gamma(shape, scale float64) float64 {
	d := distuv.Gamma{Alpha: shape, Beta: 1 / scale, Src: g.r}
	return d.Rand()
}

// Exponential draws from an exponential distribution with the given mean.
func (g *RNG) Exponential(mean float64) float64 {
	d := distuv.Exponential{Rate: 1 / mean, Src: g.r}
	return d.Rand()
}

// WeightedIndex picks an index with probability proportional to weights.
// It returns false if no weight is positive.
func (g *RNG) WeightedIndex(weights []float64) (int, bool) {
	if len(weights) == 0 {
		return 0, false
	}
	w := sampleuv.NewWeighted(weights, g.r)
	return w.Take()
}

// Sample returns k distinct indices drawn uniformly from [0, n). k is
// capped at n.
func (g *RNG) Sample(n, k int) []int {
	k = min(k, n)
	if k <= 0 {
		return nil
	}
	idxs := make([]int, k)
	sampleuv.WithoutReplacement(idxs, n, g.r)
	return idxs
}

// Shuffle randomizes the order of n elements using swap.
func (g *RNG) Shuffle(n int, swap func(i, j int)) { g.r.Shuffle(n, swap) }

// SampleOf returns k distinct elements of items chosen uniformly.
func SampleOf[T any](g *RNG, items []T, k int) []T {
	idxs := g.Sample(len(items), k)
	out := make([]T, len(idxs))
	for i, idx := range idxs {
		out[i] = items[idx]
	}
	return out
}

// ChoiceOf returns one element of items chosen uniformly. It panics on an
// empty slice.
func ChoiceOf[T any](g *RNG, items []T) T {
	return items[g.r.IntN(len(items))]
}
