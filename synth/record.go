// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"encoding/json"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/arrow/tensor"
)

// Record converts the batch to an Arrow record batch without copying
// tensor data. One-dimensional tensors become primitive columns; tensors
// with more dimensions become fixed-size lists of their flattened trailing
// dimensions, with those dimensions recorded under MetaTensorShape.
//
// An empty batch yields a zero-row record with the same column types a
// non-empty one would have. The caller must release the record.
func (b *Batch) Record() (arrow.RecordBatch, error) {
	meta := arrow.NewMetadata(
		[]string{MetaNumRows, MetaSeed, MetaRunID},
		[]string{strconv.Itoa(b.numRows), strconv.FormatInt(b.seed, 10), b.runID},
	)

	if len(b.names) == 0 {
		return b.emptyRecord(meta)
	}

	fields := make([]arrow.Field, 0, len(b.names))
	cols := make([]arrow.Array, 0, len(b.names))
	defer func() { releaseArrays(cols) }()

	for i, name := range b.names {
		t := b.tensors[name]
		c, _ := b.schema.Column(name)
		field, arr, err := tensorColumn(c, b.specs[i], t)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field)
		cols = append(cols, arr)
	}
	as := arrow.NewSchema(fields, &meta)
	return array.NewRecordBatch(as, cols, int64(b.numRows)), nil
}

func (b *Batch) emptyRecord(meta arrow.Metadata) (arrow.RecordBatch, error) {
	mem := b.allocator()
	fields := make([]arrow.Field, 0, len(b.specs))
	cols := make([]arrow.Array, 0, len(b.specs))
	defer func() { releaseArrays(cols) }()

	for _, spec := range b.specs {
		c, _ := b.schema.Column(spec.Name)
		width := b.width
		if width <= 0 {
			width = spec.MaxLength
		}
		field, err := columnField(c, spec, spec.OutputShape(0, width)[1:], spec.ColumnType(width))
		if err != nil {
			return nil, err
		}
		bld := array.NewBuilder(mem, field.Type)
		cols = append(cols, bld.NewArray())
		bld.Release()
		fields = append(fields, field)
	}
	return array.NewRecordBatch(arrow.NewSchema(fields, &meta), cols, 0), nil
}

func (b *Batch) allocator() memory.Allocator {
	if b.mem == nil {
		return memory.DefaultAllocator
	}
	return b.mem
}

func releaseArrays(cols []arrow.Array) {
	for _, c := range cols {
		c.Release()
	}
}

// columnField describes a generated column of type dt whose rows have
// rowShape.
func columnField(c ColumnSchema, spec FeatureSpec, rowShape []int64, dt arrow.DataType) (arrow.Field, error) {
	extra := []string{MetaKind, spec.Kind.String()}
	if len(rowShape) > 0 {
		js, _ := json.Marshal(rowShape)
		extra = append(extra, MetaTensorShape, string(js))
	}
	md, err := columnMetadata(c, extra...)
	if err != nil {
		return arrow.Field{}, err
	}
	return arrow.Field{Name: c.Name, Type: dt, Metadata: md}, nil
}

// tensorColumn wraps t as an Arrow column for c.
func tensorColumn(c ColumnSchema, spec FeatureSpec, t tensor.Interface) (arrow.Field, arrow.Array, error) {
	shape := t.Shape()
	rowShape := shape[1:]
	if len(rowShape) == 0 {
		field, err := columnField(c, spec, rowShape, t.DataType())
		if err != nil {
			return arrow.Field{}, nil, err
		}
		return field, array.MakeFromData(t.Data()), nil
	}

	rowSize := int64(1)
	for _, d := range rowShape {
		rowSize *= d
	}
	dt := arrow.FixedSizeListOf(int32(rowSize), t.DataType())
	field, err := columnField(c, spec, rowShape, dt)
	if err != nil {
		return arrow.Field{}, nil, err
	}
	data := array.NewData(dt, int(shape[0]), []*memory.Buffer{nil}, []arrow.ArrayData{t.Data()}, 0, 0)
	defer data.Release()
	return field, array.NewFixedSizeListData(data), nil
}
