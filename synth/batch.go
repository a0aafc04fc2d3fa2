// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/tensor"
)

// Batch maps feature names to generated tensors. Names keep schema order.
type Batch struct {
	names   []string
	tensors map[string]tensor.Interface
	schema  Schema
	specs   []FeatureSpec
	// width is the padded list width set by the session length, 0 when
	// sessions are off.
	width   int
	numRows int
	seed    int64
	runID   string
	mem     memory.Allocator
}

// NumRows returns the number of generated rows.
func (b *Batch) NumRows() int { return b.numRows }

// Len returns the number of features in the batch. It is zero for an empty
// batch.
func (b *Batch) Len() int { return len(b.names) }

// Names returns feature names in schema order.
func (b *Batch) Names() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Schema returns the schema the batch was generated from.
func (b *Batch) Schema() Schema { return b.schema }

// Seed returns the seed of the RNG that produced the batch.
func (b *Batch) Seed() int64 { return b.seed }

// RunID identifies the generation call.
func (b *Batch) RunID() string { return b.runID }

// Tensor returns the tensor for name. The batch keeps ownership.
func (b *Batch) Tensor(name string) (tensor.Interface, bool) {
	t, ok := b.tensors[name]
	return t, ok
}

// Int64Values returns the flat row-major values of an int64 feature.
func (b *Batch) Int64Values(name string) ([]int64, bool) {
	t, ok := b.tensors[name].(*tensor.Int64)
	if !ok {
		return nil, false
	}
	return t.Int64Values(), true
}

// Float32Values returns the flat row-major values of a float32 feature.
func (b *Batch) Float32Values(name string) ([]float32, bool) {
	t, ok := b.tensors[name].(*tensor.Float32)
	if !ok {
		return nil, false
	}
	return t.Float32Values(), true
}

// Release frees every tensor. The batch is empty afterwards.
func (b *Batch) Release() {
	for _, t := range b.tensors {
		t.Release()
	}
	b.tensors = map[string]tensor.Interface{}
	b.names = nil
}

func (b *Batch) add(name string, t tensor.Interface) {
	b.names = append(b.names, name)
	b.tensors[name] = t
}

// newTensor wraps n elements of buf in a tensor. The tensor holds its own
// reference to buf.
func newTensor(dt arrow.DataType, buf *memory.Buffer, n int, shape []int64) tensor.Interface {
	data := array.NewData(dt, n, []*memory.Buffer{nil, buf}, nil, 0, 0)
	defer data.Release()
	switch dt.ID() {
	case arrow.INT64:
		return tensor.NewInt64(data, shape, nil, nil)
	default:
		return tensor.NewFloat32(data, shape, nil, nil)
	}
}

func int64Tensor(mem memory.Allocator, values []int64, shape []int64) tensor.Interface {
	buf := memory.NewResizableBuffer(mem)
	defer buf.Release()
	buf.Resize(arrow.Int64Traits.BytesRequired(len(values)))
	copy(arrow.Int64Traits.CastFromBytes(buf.Bytes()), values)
	return newTensor(arrow.PrimitiveTypes.Int64, buf, len(values), shape)
}

func float32Tensor(mem memory.Allocator, values []float32, shape []int64) tensor.Interface {
	buf := memory.NewResizableBuffer(mem)
	defer buf.Release()
	buf.Resize(arrow.Float32Traits.BytesRequired(len(values)))
	copy(arrow.Float32Traits.CastFromBytes(buf.Bytes()), values)
	return newTensor(arrow.PrimitiveTypes.Float32, buf, len(values), shape)
}
