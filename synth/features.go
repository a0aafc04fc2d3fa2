// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"fmt"
	"slices"

	"github.com/apache/arrow-go/v18/arrow"
)

// FeatureKind classifies how a feature is shaped per row.
type FeatureKind int

const (
	// KindScalar is one value per row.
	KindScalar FeatureKind = iota
	// KindFixedShape is a fixed shape whose leading dimension is 1; rows are
	// concatenated along that dimension.
	KindFixedShape
	// KindEmbedding is a fixed shape whose leading dimension is greater
	// than 1; rows are stacked along a new leading axis.
	KindEmbedding
	// KindVariableLength is a list feature with a per-row length.
	KindVariableLength
)

func (k FeatureKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindFixedShape:
		return "fixed_shape"
	case KindEmbedding:
		return "embedding"
	case KindVariableLength:
		return "variable_length"
	default:
		return fmt.Sprintf("FeatureKind(%d)", int(k))
	}
}

// ValueKind classifies the values drawn for a feature.
type ValueKind int

const (
	ValuesContinuous ValueKind = iota
	ValuesInteger
)

func (v ValueKind) String() string {
	if v == ValuesInteger {
		return "integer"
	}
	return "continuous"
}

// FeatureSpec is a column descriptor resolved for generation.
type FeatureSpec struct {
	Name   string
	Kind   FeatureKind
	Values ValueKind
	// Shape is the per-row shape; [1] for scalars and list features.
	Shape []int
	// MaxLength is value_count.max for list features.
	MaxLength int
	// IntMax is the exclusive upper bound of integer draws.
	IntMax int64
}

// RowSize is the number of values one row contributes to a fixed-size
// feature.
func (f FeatureSpec) RowSize() int {
	n := 1
	for _, d := range f.Shape {
		n *= d
	}
	return n
}

// ElementType is the Arrow type of generated values: int64 for integer
// features, float32 otherwise.
func (f FeatureSpec) ElementType() arrow.DataType {
	if f.Values == ValuesInteger {
		return arrow.PrimitiveTypes.Int64
	}
	return arrow.PrimitiveTypes.Float32
}

// ColumnType is the Arrow type of the generated column: the element type
// when a row holds one value, otherwise a fixed-size list of the flattened
// row.
func (f FeatureSpec) ColumnType(width int) arrow.DataType {
	rowShape := f.OutputShape(1, width)[1:]
	if len(rowShape) == 0 {
		return f.ElementType()
	}
	n := int64(1)
	for _, d := range rowShape {
		n *= d
	}
	return arrow.FixedSizeListOf(int32(n), f.ElementType())
}

// OutputShape is the tensor shape produced for numRows rows. width is the
// padded list width and is ignored for fixed-size features.
func (f FeatureSpec) OutputShape(numRows, width int) []int64 {
	switch f.Kind {
	case KindVariableLength:
		return []int64{int64(numRows), int64(width)}
	case KindEmbedding:
		shape := make([]int64, 0, len(f.Shape)+1)
		shape = append(shape, int64(numRows))
		for _, d := range f.Shape {
			shape = append(shape, int64(d))
		}
		return shape
	default:
		shape := make([]int64, 0, len(f.Shape))
		shape = append(shape, int64(numRows*f.Shape[0]))
		for _, d := range f.Shape[1:] {
			shape = append(shape, int64(d))
		}
		return shape
	}
}

// ResolveFeature classifies a column once so generation does not re-inspect
// properties per row. A column is a list feature when it has a value_count
// property and an integer feature when it has an int_domain property. The
// declared DType plays no part.
func ResolveFeature(c ColumnSchema) (FeatureSpec, error) {
	spec := FeatureSpec{Name: c.Name, Shape: []int{1}}

	for _, d := range c.Shape {
		if d <= 0 {
			return FeatureSpec{}, fmt.Errorf("%w: column %q has non-positive dimension in shape %v",
				ErrInvalidSchema, c.Name, c.Shape)
		}
	}

	domain, hasDomain, err := c.IntDomain()
	if err != nil {
		return FeatureSpec{}, err
	}
	if hasDomain {
		if domain.Max <= 1 {
			return FeatureSpec{}, fmt.Errorf("%w: column %q int_domain.max must be greater than 1, got %d",
				ErrInvalidSchema, c.Name, domain.Max)
		}
		spec.Values = ValuesInteger
		spec.IntMax = domain.Max
	}

	vc, isList, err := c.ValueCount()
	if err != nil {
		return FeatureSpec{}, err
	}

	switch {
	case isList:
		spec.Kind = KindVariableLength
		spec.MaxLength = int(vc.Max)
	case len(c.Shape) > 0 && c.Shape[0] > 1:
		spec.Kind = KindEmbedding
		spec.Shape = slices.Clone(c.Shape)
	case len(c.Shape) > 1:
		spec.Kind = KindFixedShape
		spec.Shape = slices.Clone(c.Shape)
	default:
		spec.Kind = KindScalar
	}
	return spec, nil
}

// ResolveFeatures resolves every column of s in order.
func ResolveFeatures(s Schema) ([]FeatureSpec, error) {
	specs := make([]FeatureSpec, 0, s.Len())
	for _, c := range s.columns {
		spec, err := ResolveFeature(c)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
