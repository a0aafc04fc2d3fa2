// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// IntDomain is the int_domain property of an integer column. Generated
// values are drawn from [1, Max).
type IntDomain struct {
	Name          string `mapstructure:"name" json:"name,omitempty"`
	Min           int64  `mapstructure:"min" json:"min"`
	Max           int64  `mapstructure:"max" json:"max"`
	IsCategorical bool   `mapstructure:"is_categorical" json:"is_categorical,omitempty"`
}

// ValueCount is the value_count property of a list column.
type ValueCount struct {
	Min int64 `mapstructure:"min" json:"min"`
	Max int64 `mapstructure:"max" json:"max"`
}

// IntDomain decodes the int_domain property. ok is false when the column
// has none.
func (c ColumnSchema) IntDomain() (d IntDomain, ok bool, err error) {
	ok, err = decodeProperty(c, PropIntDomain, &d)
	return d, ok, err
}

// ValueCount decodes the value_count property. ok is false when the column
// has none.
func (c ColumnSchema) ValueCount() (vc ValueCount, ok bool, err error) {
	ok, err = decodeProperty(c, PropValueCount, &vc)
	return vc, ok, err
}

// decodeProperty decodes Properties[key] into out. Values loaded from JSON
// arrive as float64 and from YAML as int; both decode into int64 fields.
func decodeProperty(c ColumnSchema, key string, out any) (bool, error) {
	raw, ok := c.Properties[key]
	if !ok || raw == nil {
		return false, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return true, err
	}
	if err := dec.Decode(raw); err != nil {
		return true, fmt.Errorf("%w: column %q property %q: %v", ErrInvalidSchema, c.Name, key, err)
	}
	return true, nil
}
