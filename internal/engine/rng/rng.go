// Package rng provides the injected randomness every engine roll draws from.
package rng

import (
	"math"
	"math/rand/v2"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// Rand is a seeded PCG source.
type Rand struct {
	r *rand.Rand
}

func New(seed uint64) *Rand {
	return &Rand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// ForTick derives the source for one tick of one world so a tick can be replayed.
func ForTick(seed int64, tick int64) *Rand {
	return New(uint64(seed)*1_000_003 + uint64(tick))
}

func (r *Rand) Float64() float64 { return r.r.Float64() }

// Sequence replays fixed values in order, cycling when exhausted.
type Sequence struct {
	values []float64
	next   int
}

func Fixed(values ...float64) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) Float64() float64 {
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

// Between returns a uniform integer in [min, max].
func Between(src Source, min, max int64) int64 {
	if max < min {
		panic("rng: max < min")
	}
	v := int64(math.Floor(float64(min) + src.Float64()*float64(max-min+1)))
	if v > max {
		return max
	}
	return v
}

// Uniform returns a float in [min, max).
func Uniform(src Source, min, max float64) float64 {
	return min + src.Float64()*(max-min)
}

// Pick returns a uniformly chosen index into a slice of length n.
func Pick(src Source, n int) int {
	if n <= 0 {
		return -1
	}
	i := int(src.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
