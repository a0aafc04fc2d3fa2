// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// DefaultMinSessionLength is the lower session-length bound used when only
// a maximum is configured.
const DefaultMinSessionLength = 5

type options struct {
	rng              *RNG
	minSessionLength int
	maxSessionLength int
	mem              memory.Allocator
	logger           *slog.Logger
}

// Option configures a Generator.
type Option func(*options)

// WithSeed uses a fresh RNG seeded with seed.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.rng = NewRNG(seed)
	}
}

// WithRNG uses rng as the random source. Passing the same RNG to several
// generators shares its sequence.
func WithRNG(rng *RNG) Option {
	return func(o *options) {
		if rng != nil {
			o.rng = rng
		}
	}
}

// WithMaxSessionLength enables per-row session lengths drawn from
// [DefaultMinSessionLength, maxLen]. Zero disables session lengths, in which
// case list features use their own value_count.max.
func WithMaxSessionLength(maxLen int) Option {
	return func(o *options) {
		o.maxSessionLength = maxLen
	}
}

// WithSessionLength enables per-row session lengths drawn from
// [minLen, maxLen].
func WithSessionLength(minLen, maxLen int) Option {
	return func(o *options) {
		o.minSessionLength = minLen
		o.maxSessionLength = maxLen
	}
}

// WithAllocator sets the Arrow allocator that backs output tensors.
//
// If nil is passed, memory.DefaultAllocator is used.
func WithAllocator(mem memory.Allocator) Option {
	return func(o *options) {
		if mem == nil {
			mem = memory.DefaultAllocator
		}
		o.mem = mem
	}
}

// WithLogger sets the logger for generation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func defaultOptions() options {
	return options{
		minSessionLength: DefaultMinSessionLength,
		mem:              memory.DefaultAllocator,
		logger:           slog.Default(),
	}
}

func (o *options) finish() {
	if o.rng == nil {
		o.rng = NewRNG(time.Now().UnixNano())
	}
}
