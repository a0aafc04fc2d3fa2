// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// tagInfo is a parsed `vgirpc` struct tag.
type tagInfo struct {
	Name    string
	Default *string
	Doc     string
}

// parseTag parses tags like "name", "name,default=5" or "name,doc=...".
// doc must be the last option since it may contain commas.
func parseTag(tag string) tagInfo {
	name, rest, _ := strings.Cut(tag, ",")
	info := tagInfo{Name: name}
	for rest != "" {
		var part string
		if strings.HasPrefix(rest, "doc=") {
			info.Doc = strings.TrimPrefix(rest, "doc=")
			break
		}
		part, rest, _ = strings.Cut(rest, ",")
		if v, ok := strings.CutPrefix(part, "default="); ok {
			info.Default = &v
		}
	}
	return info
}

// goTypeToArrowType maps a parameter field type to Arrow. Pointers are
// nullable.
func goTypeToArrowType(t reflect.Type) (arrow.DataType, bool, error) {
	nullable := false
	if t.Kind() == reflect.Ptr {
		nullable = true
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.String:
		return arrow.BinaryTypes.String, nullable, nil
	case reflect.Int64, reflect.Int:
		return arrow.PrimitiveTypes.Int64, nullable, nil
	case reflect.Float64:
		return arrow.PrimitiveTypes.Float64, nullable, nil
	case reflect.Bool:
		return arrow.FixedWidthTypes.Boolean, nullable, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return arrow.BinaryTypes.Binary, nullable, nil
		}
		elem, _, err := goTypeToArrowType(t.Elem())
		if err != nil {
			return nil, false, fmt.Errorf("list element: %w", err)
		}
		return arrow.ListOf(elem), true, nil
	case reflect.Map:
		key, _, err := goTypeToArrowType(t.Key())
		if err != nil {
			return nil, false, fmt.Errorf("map key: %w", err)
		}
		val, _, err := goTypeToArrowType(t.Elem())
		if err != nil {
			return nil, false, fmt.Errorf("map value: %w", err)
		}
		return arrow.MapOf(key, val), true, nil
	default:
		return nil, false, fmt.Errorf("unsupported Go type: %v (kind: %v)", t, t.Kind())
	}
}

// paramField is one tagged field of a parameter struct.
type paramField struct {
	Index int
	Tag   tagInfo
	Field arrow.Field
}

func paramFields(t reflect.Type) ([]paramField, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct type, got %v", t.Kind())
	}
	var fields []paramField
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("vgirpc")
		if tag == "" || tag == "-" {
			continue
		}
		info := parseTag(tag)
		dt, nullable, err := goTypeToArrowType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		fields = append(fields, paramField{
			Index: i,
			Tag:   info,
			Field: arrow.Field{Name: info.Name, Type: dt, Nullable: nullable},
		})
	}
	return fields, nil
}

// structToSchema builds the Arrow schema of a parameter struct.
func structToSchema(t reflect.Type) (*arrow.Schema, error) {
	fields, err := paramFields(t)
	if err != nil {
		return nil, err
	}
	out := make([]arrow.Field, len(fields))
	for i, f := range fields {
		out[i] = f.Field
	}
	return arrow.NewSchema(out, nil), nil
}

// deserializeParams reads row 0 of batch into a new value of type target.
// Missing or null columns take the tag default, if any.
func deserializeParams(batch arrow.RecordBatch, target reflect.Type) (reflect.Value, error) {
	fields, err := paramFields(target)
	if err != nil {
		return reflect.Value{}, err
	}
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	result := reflect.New(target).Elem()

	sc := batch.Schema()
	for _, pf := range fields {
		field := result.Field(pf.Index)
		idx := sc.FieldIndices(pf.Tag.Name)
		if len(idx) == 0 || batch.Column(idx[0]).IsNull(0) {
			if pf.Tag.Default != nil {
				if err := setFieldFromString(field, *pf.Tag.Default); err != nil {
					return reflect.Value{}, fmt.Errorf("default for %s: %w", pf.Tag.Name, err)
				}
			}
			continue
		}
		if err := setFieldFromArrow(field, batch.Column(idx[0]), 0); err != nil {
			return reflect.Value{}, fmt.Errorf("field %s: %w", pf.Tag.Name, err)
		}
	}
	return result, nil
}

// setFieldFromArrow sets field from element idx of col.
func setFieldFromArrow(field reflect.Value, col arrow.Array, idx int) error {
	if field.Kind() == reflect.Ptr {
		ptr := reflect.New(field.Type().Elem())
		if err := setFieldFromArrow(ptr.Elem(), col, idx); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}

	switch c := col.(type) {
	case *array.String:
		if field.Kind() != reflect.String {
			return fmt.Errorf("cannot assign string to %v", field.Type())
		}
		field.SetString(c.Value(idx))
	case *array.Int64:
		return setInt(field, c.Value(idx))
	case *array.Int32:
		return setInt(field, int64(c.Value(idx)))
	case *array.Float64:
		if field.Kind() != reflect.Float64 {
			return fmt.Errorf("cannot assign float64 to %v", field.Type())
		}
		field.SetFloat(c.Value(idx))
	case *array.Boolean:
		if field.Kind() != reflect.Bool {
			return fmt.Errorf("cannot assign bool to %v", field.Type())
		}
		field.SetBool(c.Value(idx))
	case *array.Binary:
		if field.Kind() != reflect.Slice || field.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("cannot assign binary to %v", field.Type())
		}
		field.SetBytes(append([]byte(nil), c.Value(idx)...))
	case *array.List:
		return setListField(field, c, idx)
	case *array.Map:
		return setMapField(field, c, idx)
	default:
		return fmt.Errorf("unsupported Arrow array type: %T", col)
	}
	return nil
}

func setInt(field reflect.Value, v int64) error {
	switch field.Kind() {
	case reflect.Int, reflect.Int64:
		field.SetInt(v)
		return nil
	default:
		return fmt.Errorf("cannot assign int64 to %v", field.Type())
	}
}

func setListField(field reflect.Value, list *array.List, idx int) error {
	if field.Kind() != reflect.Slice {
		return fmt.Errorf("cannot assign list to %v", field.Type())
	}
	start, end := list.ValueOffsets(idx)
	values := list.ListValues()
	n := int(end - start)
	out := reflect.MakeSlice(field.Type(), n, n)
	for j := 0; j < n; j++ {
		if err := setFieldFromArrow(out.Index(j), values, int(start)+j); err != nil {
			return fmt.Errorf("list element [%d]: %w", j, err)
		}
	}
	field.Set(out)
	return nil
}

func setMapField(field reflect.Value, m *array.Map, idx int) error {
	if field.Kind() != reflect.Map {
		return fmt.Errorf("cannot assign map to %v", field.Type())
	}
	start, end := m.ValueOffsets(idx)
	keys, items := m.Keys(), m.Items()
	n := int(end - start)
	out := reflect.MakeMapWithSize(field.Type(), n)
	for j := 0; j < n; j++ {
		k := reflect.New(field.Type().Key()).Elem()
		v := reflect.New(field.Type().Elem()).Elem()
		if err := setFieldFromArrow(k, keys, int(start)+j); err != nil {
			return fmt.Errorf("map key [%d]: %w", j, err)
		}
		if err := setFieldFromArrow(v, items, int(start)+j); err != nil {
			return fmt.Errorf("map value [%d]: %w", j, err)
		}
		out.SetMapIndex(k, v)
	}
	field.Set(out)
	return nil
}

// setFieldFromString applies a tag default.
func setFieldFromString(field reflect.Value, s string) error {
	if field.Kind() == reflect.Ptr {
		ptr := reflect.New(field.Type().Elem())
		if err := setFieldFromString(ptr.Elem(), s); err != nil {
			return err
		}
		field.Set(ptr)
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Int64, reflect.Int:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing int default %q: %w", s, err)
		}
		field.SetInt(v)
	case reflect.Float64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parsing float default %q: %w", s, err)
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("parsing bool default %q: %w", s, err)
		}
		field.SetBool(v)
	default:
		return fmt.Errorf("default value parsing not supported for %v", field.Kind())
	}
	return nil
}

// serializeParams builds the one-row request batch for a parameter struct.
func serializeParams(mem memory.Allocator, params any) (arrow.RecordBatch, error) {
	rv := reflect.ValueOf(params)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	fields, err := paramFields(rv.Type())
	if err != nil {
		return nil, err
	}

	schemaFields := make([]arrow.Field, len(fields))
	cols := make([]arrow.Array, 0, len(fields))
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()
	for i, pf := range fields {
		schemaFields[i] = pf.Field
		b := array.NewBuilder(mem, pf.Field.Type)
		err := appendValue(b, rv.Field(pf.Index))
		if err == nil {
			cols = append(cols, b.NewArray())
		}
		b.Release()
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", pf.Tag.Name, err)
		}
	}
	return array.NewRecordBatch(arrow.NewSchema(schemaFields, nil), cols, 1), nil
}

// appendValue appends v to b. Nil pointers, slices and maps become nulls.
func appendValue(b array.Builder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Ptr, reflect.Map:
		if v.IsNil() {
			b.AppendNull()
			return nil
		}
	case reflect.Slice:
		if v.IsNil() && v.Type().Elem().Kind() != reflect.Uint8 {
			b.AppendNull()
			return nil
		}
	}
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	switch bb := b.(type) {
	case *array.StringBuilder:
		bb.Append(v.String())
	case *array.Int64Builder:
		bb.Append(v.Int())
	case *array.Float64Builder:
		bb.Append(v.Float())
	case *array.BooleanBuilder:
		bb.Append(v.Bool())
	case *array.BinaryBuilder:
		bb.Append(v.Bytes())
	case *array.ListBuilder:
		bb.Append(true)
		vb := bb.ValueBuilder()
		for i := range v.Len() {
			if err := appendValue(vb, v.Index(i)); err != nil {
				return err
			}
		}
	case *array.MapBuilder:
		bb.Append(true)
		kb, ib := bb.KeyBuilder(), bb.ItemBuilder()
		iter := v.MapRange()
		for iter.Next() {
			if err := appendValue(kb, iter.Key()); err != nil {
				return err
			}
			if err := appendValue(ib, iter.Value()); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported builder %T", b)
	}
	return nil
}
