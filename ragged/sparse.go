// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ragged

import "fmt"

// Sparse is a coordinate-format (COO) matrix.
type Sparse[T Number] struct {
	Indices []Coord
	Values  []T
	Rows    int
	Cols    int
}

// NewSparse builds a rows x cols sparse matrix. Every coordinate must lie
// inside the matrix; a row longer than cols is reported as ErrOutOfRange
// rather than truncated.
func NewSparse[T Number](values []T, indices []Coord, rows, cols int) (*Sparse[T], error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: shape (%d, %d)", ErrOutOfRange, rows, cols)
	}
	if len(values) != len(indices) {
		return nil, fmt.Errorf("ragged: %d values for %d coordinates", len(values), len(indices))
	}
	for i, c := range indices {
		if c.Row < 0 || c.Row >= int64(rows) || c.Col < 0 || c.Col >= int64(cols) {
			return nil, fmt.Errorf("%w: value %d at (%d, %d) in shape (%d, %d)",
				ErrOutOfRange, i, c.Row, c.Col, rows, cols)
		}
	}
	return &Sparse[T]{
		Indices: indices,
		Values:  values,
		Rows:    rows,
		Cols:    cols,
	}, nil
}

// Nnz returns the number of stored entries.
func (s *Sparse[T]) Nnz() int {
	return len(s.Values)
}

// ToDense materializes the matrix in row-major order. Duplicate
// coordinates are summed.
func (s *Sparse[T]) ToDense() []T {
	dense := make([]T, s.Rows*s.Cols)
	for i, c := range s.Indices {
		dense[c.Row*int64(s.Cols)+c.Col] += s.Values[i]
	}
	return dense
}
