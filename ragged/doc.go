// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package ragged converts variable-length (ragged) columns into padded
// dense matrices.
//
// A ragged column is a flat values slice plus one start offset per row.
// Conversion runs in three stages:
//
//	pulled, _ := ragged.PullValuesOffsets(values, offsets) // sentinel offset + row lengths
//	coords := ragged.Indices(pulled.Offsets, pulled.Diff)   // (row, col) per value
//	sp, _ := ragged.NewSparse(pulled.Values, coords, pulled.NumRows, width)
//	dense := sp.ToDense()                                  // rows x width, zero padded
//
// [ToDense] runs the whole pipeline. Unfilled cells are zero; there is no
// separate "missing" marker.
package ragged
