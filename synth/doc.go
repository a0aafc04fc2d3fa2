// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package synth generates synthetic recommender-system feature data from a
// column schema.
//
// A [Schema] is an ordered set of [ColumnSchema] descriptors carrying tags,
// an element type, an optional fixed shape and loosely typed properties
// such as int_domain and value_count. [Generator.RandomData] resolves each
// column once into a [FeatureSpec] and fills one Arrow tensor per feature:
//
//   - features with an int_domain draw int64 values uniformly from
//     [1, int_domain.max)
//   - all others draw float32 values uniformly from [0, 1)
//   - scalars produce shape (rows,)
//   - embeddings (leading dimension greater than 1) produce (rows, shape...)
//   - other fixed shapes are concatenated along their leading dimension
//   - list features are padded to a dense (rows, width) tensor
//
// Randomness comes from an explicit [RNG], so the same seed and schema
// always produce the same batch.
//
// [Augment] restricts a schema to named columns, retags them as
// categorical, continuous or target, and turns selected columns into list
// columns.
//
// Batches convert to Arrow records with [Batch.Record] and can be written
// as Arrow IPC streams, Arrow IPC files or parquet with [WriteRecord].
package synth
