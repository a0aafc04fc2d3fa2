// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SchemaFormat names an on-disk schema encoding.
type SchemaFormat string

const (
	SchemaJSON  SchemaFormat = "json"
	SchemaYAML  SchemaFormat = "yaml"
	SchemaArrow SchemaFormat = "arrow"
)

// SchemaFormatForPath picks the encoding from a file extension. Unknown
// extensions are read as JSON.
func SchemaFormatForPath(path string) SchemaFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return SchemaYAML
	case ".arrow", ".arrows", ".ipc":
		return SchemaArrow
	default:
		return SchemaJSON
	}
}

// ParseSchema decodes a schema document.
func ParseSchema(data []byte, format SchemaFormat) (Schema, error) {
	var s Schema
	switch format {
	case SchemaYAML:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Schema{}, fmt.Errorf("parsing yaml schema: %w", err)
		}
	case SchemaArrow:
		return UnmarshalSchemaIPC(data)
	default:
		if err := json.Unmarshal(data, &s); err != nil {
			return Schema{}, fmt.Errorf("parsing json schema: %w", err)
		}
	}
	return s, nil
}

// EncodeSchema encodes s in the given format.
func EncodeSchema(s Schema, format SchemaFormat) ([]byte, error) {
	switch format {
	case SchemaYAML:
		return yaml.Marshal(s)
	case SchemaArrow:
		return MarshalSchemaIPC(s)
	default:
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

// LoadSchemaFile reads a schema from path, choosing the decoder by
// extension.
func LoadSchemaFile(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, err
	}
	s, err := ParseSchema(data, SchemaFormatForPath(path))
	if err != nil {
		return Schema{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// SaveSchemaFile writes s to path, choosing the encoder by extension.
func SaveSchemaFile(path string, s Schema) error {
	data, err := EncodeSchema(s, SchemaFormatForPath(path))
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
