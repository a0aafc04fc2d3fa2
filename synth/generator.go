// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/tensor"
	"github.com/google/uuid"

	"github.com/Query-farm/vgi-synth/ragged"
)

// Generator produces synthetic feature batches from a schema.
type Generator struct {
	opts options
}

// NewGenerator creates a Generator. Without WithSeed or WithRNG it seeds
// from the current time.
func NewGenerator(opts ...Option) (*Generator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.finish()

	if o.maxSessionLength < 0 || o.minSessionLength < 0 {
		return nil, fmt.Errorf("%w: session length bounds must be non-negative, got [%d, %d]",
			ErrInvalidArgument, o.minSessionLength, o.maxSessionLength)
	}
	if o.maxSessionLength > 0 && o.minSessionLength > o.maxSessionLength {
		return nil, fmt.Errorf("%w: min session length %d exceeds max %d",
			ErrInvalidArgument, o.minSessionLength, o.maxSessionLength)
	}
	return &Generator{opts: o}, nil
}

// RandomData is a convenience wrapper around NewGenerator and
// Generator.RandomData.
func RandomData(ctx context.Context, schema Schema, numRows int, opts ...Option) (*Batch, error) {
	g, err := NewGenerator(opts...)
	if err != nil {
		return nil, err
	}
	return g.RandomData(ctx, schema, numRows)
}

// column accumulates one feature across rows. Fixed-size features write
// into a buffer sized for every row up front; list features append values
// and record one length per row.
type column struct {
	spec    FeatureSpec
	buf     *memory.Buffer
	ints    []int64
	floats  []float32
	lengths []int64
}

func (c *column) release() {
	if c.buf != nil {
		c.buf.Release()
		c.buf = nil
	}
}

// RandomData generates numRows rows for every column of schema. The caller
// owns the returned batch and must call Release on it.
func (g *Generator) RandomData(ctx context.Context, schema Schema, numRows int) (*Batch, error) {
	if numRows < 0 {
		return nil, fmt.Errorf("%w: num_rows must be non-negative, got %d", ErrInvalidArgument, numRows)
	}
	specs, err := ResolveFeatures(schema)
	if err != nil {
		return nil, err
	}
	sessions := g.opts.maxSessionLength > 0
	for _, spec := range specs {
		if spec.Kind == KindVariableLength && !sessions && spec.MaxLength <= 0 {
			return nil, fmt.Errorf("%w: list column %q needs value_count.max or a max session length",
				ErrInvalidSchema, spec.Name)
		}
	}

	batch := &Batch{
		schema:  schema,
		specs:   specs,
		width:   g.opts.maxSessionLength,
		numRows: numRows,
		seed:    g.opts.rng.Seed(),
		runID:   uuid.NewString(),
		mem:     g.opts.mem,
		tensors: make(map[string]tensor.Interface, len(specs)),
	}
	if numRows == 0 {
		return batch, nil
	}

	cols := g.allocate(specs, numRows)
	defer func() {
		for _, c := range cols {
			c.release()
		}
	}()

	lastSession := 0
	for row := 0; row < numRows; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		session := 0
		if sessions {
			session = g.opts.rng.IntRange(g.opts.minSessionLength, g.opts.maxSessionLength)
			lastSession = session
		}
		for _, c := range cols {
			g.fillRow(c, row, session)
		}
	}

	for _, c := range cols {
		t, err := g.finish(c, numRows)
		if err != nil {
			batch.Release()
			return nil, err
		}
		batch.add(c.spec.Name, t)
	}

	g.opts.logger.Debug("generated synthetic batch",
		"rows", numRows,
		"features", len(cols),
		"session_length", lastSession,
		"seed", batch.seed,
		"run_id", batch.runID)
	return batch, nil
}

func (g *Generator) allocate(specs []FeatureSpec, numRows int) []*column {
	cols := make([]*column, len(specs))
	for i, spec := range specs {
		c := &column{spec: spec}
		if spec.Kind == KindVariableLength {
			hint := spec.MaxLength
			if g.opts.maxSessionLength > 0 {
				hint = g.opts.maxSessionLength
			}
			c.lengths = make([]int64, 0, numRows)
			if spec.Values == ValuesInteger {
				c.ints = make([]int64, 0, numRows*hint)
			} else {
				c.floats = make([]float32, 0, numRows*hint)
			}
			cols[i] = c
			continue
		}

		n := numRows * spec.RowSize()
		c.buf = memory.NewResizableBuffer(g.opts.mem)
		if spec.Values == ValuesInteger {
			c.buf.Resize(arrow.Int64Traits.BytesRequired(n))
			c.ints = arrow.Int64Traits.CastFromBytes(c.buf.Bytes())
		} else {
			c.buf.Resize(arrow.Float32Traits.BytesRequired(n))
			c.floats = arrow.Float32Traits.CastFromBytes(c.buf.Bytes())
		}
		cols[i] = c
	}
	return cols
}

func (g *Generator) fillRow(c *column, row, session int) {
	spec := c.spec
	if spec.Kind == KindVariableLength {
		length := spec.MaxLength
		if g.opts.maxSessionLength > 0 {
			length = session
		}
		c.lengths = append(c.lengths, int64(length))
		if spec.Values == ValuesInteger {
			start := len(c.ints)
			c.ints = append(c.ints, make([]int64, length)...)
			g.opts.rng.FillInt64(c.ints[start:], 1, spec.IntMax)
		} else {
			start := len(c.floats)
			c.floats = append(c.floats, make([]float32, length)...)
			g.opts.rng.FillUniform(c.floats[start:])
		}
		return
	}

	size := spec.RowSize()
	lo, hi := row*size, (row+1)*size
	if spec.Values == ValuesInteger {
		g.opts.rng.FillInt64(c.ints[lo:hi], 1, spec.IntMax)
	} else {
		g.opts.rng.FillUniform(c.floats[lo:hi])
	}
}

// finish turns an accumulated column into a tensor. List columns go through
// the ragged pipeline and are padded to the session width, or to the first
// row's length when sessions are off.
func (g *Generator) finish(c *column, numRows int) (tensor.Interface, error) {
	spec := c.spec
	if spec.Kind != KindVariableLength {
		shape := spec.OutputShape(numRows, 0)
		if spec.Values == ValuesInteger {
			return newTensor(arrow.PrimitiveTypes.Int64, c.buf, len(c.ints), shape), nil
		}
		return newTensor(arrow.PrimitiveTypes.Float32, c.buf, len(c.floats), shape), nil
	}

	width := g.opts.maxSessionLength
	if width <= 0 {
		width = int(c.lengths[0])
	}
	offsets := ragged.LengthsToOffsets(c.lengths)
	shape := spec.OutputShape(numRows, width)

	if spec.Values == ValuesInteger {
		dense, _, err := ragged.ToDense(c.ints, offsets, width)
		if err != nil {
			return nil, fmt.Errorf("list column %q: %w", spec.Name, err)
		}
		return int64Tensor(g.opts.mem, dense, shape), nil
	}
	dense, _, err := ragged.ToDense(c.floats, offsets, width)
	if err != nil {
		return nil, fmt.Errorf("list column %q: %w", spec.Name, err)
	}
	return float32Tensor(g.opts.mem, dense, shape), nil
}
