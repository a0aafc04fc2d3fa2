// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// arrowElementType maps a column's element type to Arrow.
func arrowElementType(c ColumnSchema) arrow.DataType {
	if c.ElementType() == DTypeInt64 {
		return arrow.PrimitiveTypes.Int64
	}
	return arrow.PrimitiveTypes.Float32
}

// columnMetadata encodes the descriptor fields that have no Arrow type
// equivalent. Keys are only written when they carry information. extra
// holds additional key/value pairs.
func columnMetadata(c ColumnSchema, extra ...string) (arrow.Metadata, error) {
	keys := make([]string, 0, 6)
	vals := make([]string, 0, 6)
	add := func(k, v string) {
		keys = append(keys, k)
		vals = append(vals, v)
	}

	if len(c.Tags) > 0 {
		add(MetaTags, c.Tags.String())
	}
	if len(c.Properties) > 0 {
		props, err := json.Marshal(c.Properties)
		if err != nil {
			return arrow.Metadata{}, fmt.Errorf("%w: column %q properties: %v", ErrInvalidSchema, c.Name, err)
		}
		add(MetaProperties, string(props))
	}
	if c.IsList {
		add(MetaIsList, "true")
	}
	if c.IsRagged {
		add(MetaIsRagged, "true")
	}
	if len(c.Shape) > 0 {
		shape, _ := json.Marshal(c.Shape)
		add(MetaShape, string(shape))
	}
	for i := 0; i+1 < len(extra); i += 2 {
		add(extra[i], extra[i+1])
	}
	return arrow.NewMetadata(keys, vals), nil
}

// ArrowField returns the Arrow field describing c. List columns become
// variable-size lists, multi-value shapes become fixed-size lists of the
// flattened shape, everything else a primitive.
func (c ColumnSchema) ArrowField() (arrow.Field, error) {
	md, err := columnMetadata(c)
	if err != nil {
		return arrow.Field{}, err
	}
	elem := arrowElementType(c)

	var dt arrow.DataType = elem
	switch {
	case c.IsList:
		dt = arrow.ListOf(elem)
	case shapeSize(c.Shape) > 1:
		dt = arrow.FixedSizeListOf(int32(shapeSize(c.Shape)), elem)
	}
	return arrow.Field{Name: c.Name, Type: dt, Nullable: c.IsList, Metadata: md}, nil
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// ToArrow converts s to an Arrow schema. Column descriptors travel as
// field metadata so SchemaFromArrow can restore them.
func (s Schema) ToArrow() (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(s.columns))
	for i, c := range s.columns {
		f, err := c.ArrowField()
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}
	return arrow.NewSchema(fields, nil), nil
}

// SchemaFromArrow rebuilds a Schema from an Arrow schema written by ToArrow
// or Batch.Record. Fields without descriptor metadata are still accepted:
// their element type comes from the Arrow type, and list types set IsList.
func SchemaFromArrow(as *arrow.Schema) (Schema, error) {
	cols := make([]ColumnSchema, 0, as.NumFields())
	for _, f := range as.Fields() {
		c, err := columnFromField(f)
		if err != nil {
			return Schema{}, err
		}
		cols = append(cols, c)
	}
	return NewSchema(cols...)
}

func columnFromField(f arrow.Field) (ColumnSchema, error) {
	c := ColumnSchema{Name: f.Name}

	elem := f.Type
	switch t := f.Type.(type) {
	case *arrow.ListType:
		c.IsList = true
		elem = t.Elem()
	case *arrow.FixedSizeListType:
		elem = t.Elem()
		c.Shape = []int{int(t.Len())}
	}
	switch elem.ID() {
	case arrow.INT64, arrow.INT32:
		c.DType = DTypeInt64
	case arrow.FLOAT32, arrow.FLOAT64:
		c.DType = DTypeFloat32
	default:
		return ColumnSchema{}, fmt.Errorf("%w: field %q has unsupported type %s", ErrInvalidSchema, f.Name, f.Type)
	}

	md := f.Metadata
	if v, ok := md.GetValue(MetaTags); ok {
		c.Tags = ParseTags(v)
	}
	if v, ok := md.GetValue(MetaProperties); ok {
		if err := json.Unmarshal([]byte(v), &c.Properties); err != nil {
			return ColumnSchema{}, fmt.Errorf("%w: field %q properties: %v", ErrInvalidSchema, f.Name, err)
		}
	}
	if v, ok := md.GetValue(MetaIsList); ok {
		c.IsList, _ = strconv.ParseBool(v)
	}
	if v, ok := md.GetValue(MetaIsRagged); ok {
		c.IsRagged, _ = strconv.ParseBool(v)
	}
	if v, ok := md.GetValue(MetaShape); ok {
		var shape []int
		if err := json.Unmarshal([]byte(v), &shape); err != nil {
			return ColumnSchema{}, fmt.Errorf("%w: field %q shape %q: %v", ErrInvalidSchema, f.Name, v, err)
		}
		c.Shape = shape
	} else if c.IsList {
		// padded list columns arrive as fixed-size lists
		c.Shape = nil
	}
	return c, nil
}

// MarshalSchemaIPC serializes s as an Arrow IPC stream holding only the
// schema message.
func MarshalSchemaIPC(s Schema) ([]byte, error) {
	as, err := s.ToArrow()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(as))
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalSchemaIPC reads a schema serialized by MarshalSchemaIPC, or the
// schema of any Arrow IPC stream.
func UnmarshalSchemaIPC(data []byte) (Schema, error) {
	r, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return Schema{}, fmt.Errorf("%w: reading schema IPC: %v", ErrInvalidSchema, err)
	}
	defer r.Release()
	return SchemaFromArrow(r.Schema())
}
