// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"math/rand"
	"sync"
)

// RNG is a seeded random source. It is safe for concurrent use, but two
// generators sharing one RNG interleave their draws and lose per-call
// reproducibility.
type RNG struct {
	mu   sync.Mutex
	rand *rand.Rand
	seed int64
}

// NewRNG creates an RNG with the given seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Reset rewinds the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand = rand.New(rand.NewSource(r.seed))
}

// IntRange returns a value in [lo, hi], both ends inclusive.
func (r *RNG) IntRange(lo, hi int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo + r.rand.Intn(hi-lo+1)
}

// FillInt64 fills dst with values in [lo, hi).
func (r *RNG) FillInt64(dst []int64, lo, hi int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := hi - lo
	for i := range dst {
		dst[i] = lo + r.rand.Int63n(span)
	}
}

// FillUniform fills dst with values in [0, 1).
func (r *RNG) FillUniform(dst []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = r.rand.Float32()
	}
}
