// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import "fmt"

// AugmentOptions selects and retags columns for Augment.
type AugmentOptions struct {
	Cats   []string `json:"cats,omitempty" yaml:"cats,omitempty"`
	Conts  []string `json:"conts,omitempty" yaml:"conts,omitempty"`
	Labels []string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// SparseNames are turned into list columns.
	SparseNames []string `json:"sparse_names,omitempty" yaml:"sparse_names,omitempty"`
	// SparseMax sets value_count.max for the named sparse columns.
	SparseMax map[string]int64 `json:"sparse_max,omitempty" yaml:"sparse_max,omitempty"`
	// SparseAsDense marks sparse columns as padded rather than ragged.
	SparseAsDense bool `json:"sparse_as_dense,omitempty" yaml:"sparse_as_dense,omitempty"`
}

// Augment returns a schema holding only the columns named in opts, ordered
// Conts, then Cats, then Labels. Each selected column's tags are replaced by
// the roles it is listed under: continuous, categorical and target. A name
// listed under two roles gets both.
//
// Columns in SparseNames are rebuilt as list columns. Their properties are
// kept, value_count is set from SparseMax when present, and the fixed shape
// is dropped. schema is not modified.
func Augment(schema Schema, opts AugmentOptions) (Schema, error) {
	names := make([]string, 0, len(opts.Conts)+len(opts.Cats)+len(opts.Labels))
	names = append(names, opts.Conts...)
	names = append(names, opts.Cats...)
	names = append(names, opts.Labels...)

	out, err := schema.SelectByName(names...)
	if err != nil {
		return Schema{}, err
	}

	roles := make(map[string][]Tag, out.Len())
	for _, n := range opts.Labels {
		roles[n] = append(roles[n], TagTarget)
	}
	for _, n := range opts.Cats {
		roles[n] = append(roles[n], TagCategorical)
	}
	for _, n := range opts.Conts {
		roles[n] = append(roles[n], TagContinuous)
	}
	for _, name := range out.Names() {
		c, _ := out.Column(name)
		out = out.With(c.WithReplacedTags(roles[name]...))
	}

	for _, name := range opts.SparseNames {
		c, ok := out.Column(name)
		if !ok {
			return Schema{}, fmt.Errorf("%w: sparse column %q is not selected", ErrColumnNotFound, name)
		}
		list := ColumnSchema{
			Name:       c.Name,
			Tags:       c.Tags,
			DType:      c.DType,
			IsList:     true,
			IsRagged:   !opts.SparseAsDense,
			Properties: c.Properties,
		}
		if maxLen, ok := opts.SparseMax[name]; ok {
			list = list.WithProperty(PropValueCount, map[string]any{"max": maxLen})
		}
		out = out.With(list)
	}
	return out, nil
}
