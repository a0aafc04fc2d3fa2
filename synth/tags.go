// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"slices"
	"strings"
)

// Tag is a semantic label attached to a column.
type Tag string

const (
	TagCategorical          Tag = "categorical"
	TagContinuous           Tag = "continuous"
	TagTarget               Tag = "target"
	TagList                 Tag = "list"
	TagSequence             Tag = "sequence"
	TagEmbedding            Tag = "embedding"
	TagID                   Tag = "id"
	TagItem                 Tag = "item"
	TagItemID               Tag = "item_id"
	TagUser                 Tag = "user"
	TagUserID               Tag = "user_id"
	TagSession              Tag = "session"
	TagSessionID            Tag = "session_id"
	TagContext              Tag = "context"
	TagTime                 Tag = "time"
	TagBinaryClassification Tag = "binary_classification"
	TagRegression           Tag = "regression"
)

// TagSet is a sorted set of tags. The zero value is an empty set.
type TagSet []Tag

// NewTagSet returns the sorted, de-duplicated set of tags.
func NewTagSet(tags ...Tag) TagSet {
	out := make(TagSet, 0, len(tags))
	for _, t := range tags {
		t = Tag(strings.TrimSpace(string(t)))
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// ParseTags parses a comma-separated tag list.
func ParseTags(s string) TagSet {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]Tag, len(parts))
	for i, p := range parts {
		tags[i] = Tag(p)
	}
	return NewTagSet(tags...)
}

func (s TagSet) String() string {
	parts := make([]string, len(s))
	for i, t := range s {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}
