// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// DType is the declared storage type of a column. It is carried through
// Arrow schemas but does not choose between integer and continuous draws;
// int_domain does.
type DType string

const (
	// DTypeUnset lets the column infer its type: int64 when it carries an
	// int_domain property, float32 otherwise.
	DTypeUnset   DType = ""
	DTypeInt64   DType = "int64"
	DTypeFloat32 DType = "float32"
)

// Property keys understood by the generator.
const (
	PropIntDomain  = "int_domain"
	PropValueCount = "value_count"
)

// ColumnSchema describes one feature column.
type ColumnSchema struct {
	Name  string `json:"name" yaml:"name"`
	Tags  TagSet `json:"tags,omitempty" yaml:"tags,omitempty"`
	DType DType  `json:"dtype,omitempty" yaml:"dtype,omitempty"`
	// Shape is the fixed per-row shape; nil means scalar.
	Shape    []int `json:"shape,omitempty" yaml:"shape,omitempty"`
	IsList   bool  `json:"is_list,omitempty" yaml:"is_list,omitempty"`
	IsRagged bool  `json:"is_ragged,omitempty" yaml:"is_ragged,omitempty"`
	// Properties holds loosely typed constraints such as int_domain and
	// value_count. Use IntDomain and ValueCount for typed access.
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// clone returns a deep enough copy that the result can be modified without
// touching c. Nested property values are shared; replace them, do not edit.
func (c ColumnSchema) clone() ColumnSchema {
	out := c
	out.Tags = slices.Clone(c.Tags)
	out.Shape = slices.Clone(c.Shape)
	if c.Properties != nil {
		out.Properties = maps.Clone(c.Properties)
	}
	return out
}

// WithReplacedTags returns a copy of c whose tags are exactly tags.
func (c ColumnSchema) WithReplacedTags(tags ...Tag) ColumnSchema {
	out := c.clone()
	out.Tags = NewTagSet(tags...)
	return out
}

// WithProperty returns a copy of c with key set to value.
func (c ColumnSchema) WithProperty(key string, value any) ColumnSchema {
	out := c.clone()
	if out.Properties == nil {
		out.Properties = make(map[string]any)
	}
	out.Properties[key] = value
	return out
}

// ElementType returns the declared or inferred element type.
func (c ColumnSchema) ElementType() DType {
	if c.DType != DTypeUnset {
		return c.DType
	}
	if _, ok := c.Properties[PropIntDomain]; ok {
		return DTypeInt64
	}
	return DTypeFloat32
}

// Schema is an ordered collection of uniquely named columns. Schema values
// are immutable: every method that changes columns returns a new Schema.
type Schema struct {
	columns []ColumnSchema
	index   map[string]int
}

// NewSchema builds a schema from columns. Names must be non-empty and
// unique.
func NewSchema(columns ...ColumnSchema) (Schema, error) {
	s := Schema{
		columns: make([]ColumnSchema, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		if c.Name == "" {
			return Schema{}, fmt.Errorf("%w: column %d has no name", ErrInvalidSchema, len(s.columns))
		}
		if _, dup := s.index[c.Name]; dup {
			return Schema{}, fmt.Errorf("%w: duplicate column %q", ErrInvalidSchema, c.Name)
		}
		col := c.clone()
		col.Tags = NewTagSet(c.Tags...)
		s.index[c.Name] = len(s.columns)
		s.columns = append(s.columns, col)
	}
	return s, nil
}

// Len returns the number of columns.
func (s Schema) Len() int {
	return len(s.columns)
}

// Columns returns a copy of the columns in order.
func (s Schema) Columns() []ColumnSchema {
	out := make([]ColumnSchema, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.clone()
	}
	return out
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (s Schema) Column(name string) (ColumnSchema, bool) {
	i, ok := s.index[name]
	if !ok {
		return ColumnSchema{}, false
	}
	return s.columns[i].clone(), true
}

// SelectByName returns a schema holding the named columns in the order
// given. Repeated names keep their first position.
func (s Schema) SelectByName(names ...string) (Schema, error) {
	out := Schema{index: make(map[string]int, len(names))}
	for _, name := range names {
		if _, seen := out.index[name]; seen {
			continue
		}
		i, ok := s.index[name]
		if !ok {
			return Schema{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		out.index[name] = len(out.columns)
		out.columns = append(out.columns, s.columns[i].clone())
	}
	return out, nil
}

// With returns a schema where the column named col.Name is replaced by col,
// keeping its position, or appended when no such column exists.
func (s Schema) With(col ColumnSchema) Schema {
	out := Schema{
		columns: make([]ColumnSchema, len(s.columns), len(s.columns)+1),
		index:   maps.Clone(s.index),
	}
	copy(out.columns, s.columns)
	if out.index == nil {
		out.index = make(map[string]int)
	}
	col = col.clone()
	col.Tags = NewTagSet(col.Tags...)
	if i, ok := out.index[col.Name]; ok {
		out.columns[i] = col
		return out
	}
	out.index[col.Name] = len(out.columns)
	out.columns = append(out.columns, col)
	return out
}

// schemaDoc is the on-disk form of a schema.
type schemaDoc struct {
	Columns []ColumnSchema `json:"columns" yaml:"columns"`
}

func (s Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(schemaDoc{Columns: s.columns})
}

func (s *Schema) UnmarshalJSON(data []byte) error {
	var doc schemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	parsed, err := NewSchema(doc.Columns...)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Schema) MarshalYAML() (any, error) {
	return schemaDoc{Columns: s.columns}, nil
}

func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	var doc schemaDoc
	if err := node.Decode(&doc); err != nil {
		return err
	}
	parsed, err := NewSchema(doc.Columns...)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
