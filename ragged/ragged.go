// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package ragged

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange is returned when a coordinate falls outside the dense
	// matrix, typically a row longer than the padded width.
	ErrOutOfRange = errors.New("ragged: coordinate out of range")
	// ErrInvalidOffsets is returned for offsets that do not start at zero,
	// decrease, or point past the end of the values.
	ErrInvalidOffsets = errors.New("ragged: invalid offsets")
)

// Number is the set of element types a ragged column may hold.
type Number interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// Pulled is a ragged column with its sentinel offset appended.
type Pulled[T Number] struct {
	Values []T
	// Offsets has NumRows+1 entries; the last one equals len(Values).
	Offsets []int64
	// Diff holds the per-row lengths.
	Diff    []int64
	NumRows int
}

// PullValuesOffsets appends the sentinel offset len(values) and derives
// per-row lengths from adjacent offsets. A nil offsets slice means one
// value per row.
func PullValuesOffsets[T Number](values []T, offsets []int64) (Pulled[T], error) {
	if offsets == nil {
		offsets = make([]int64, len(values))
		for i := range offsets {
			offsets[i] = int64(i)
		}
	}
	numRows := len(offsets)

	ext := make([]int64, numRows+1)
	copy(ext, offsets)
	ext[numRows] = int64(len(values))

	if numRows > 0 && ext[0] != 0 {
		return Pulled[T]{}, fmt.Errorf("%w: first offset is %d, want 0", ErrInvalidOffsets, ext[0])
	}

	diff := make([]int64, numRows)
	for i := range diff {
		diff[i] = ext[i+1] - ext[i]
		if diff[i] < 0 {
			return Pulled[T]{}, fmt.Errorf("%w: row %d has negative length %d", ErrInvalidOffsets, i, diff[i])
		}
	}

	return Pulled[T]{
		Values:  values,
		Offsets: ext,
		Diff:    diff,
		NumRows: numRows,
	}, nil
}

// Coord is the (row, column) position of one value in the dense matrix.
type Coord struct {
	Row int64
	Col int64
}

// Indices repeats each row id once per value in the row and computes the
// column as the value's position minus the row's start offset.
// offsets must carry the sentinel (len(diff)+1 entries).
func Indices(offsets, diff []int64) []Coord {
	var total int64
	for _, d := range diff {
		total += d
	}
	coords := make([]Coord, 0, total)
	var pos int64
	for row, d := range diff {
		start := offsets[row]
		for range d {
			coords = append(coords, Coord{Row: int64(row), Col: pos - start})
			pos++
		}
	}
	return coords
}

// LengthsToOffsets returns the start offset of every row: prefix sums of
// lengths beginning at zero, with the final total dropped.
func LengthsToOffsets(lengths []int64) []int64 {
	offsets := make([]int64, len(lengths))
	var acc int64
	for i, l := range lengths {
		offsets[i] = acc
		acc += l
	}
	return offsets
}

// ToDense runs the full pipeline and returns a row-major rows x width
// matrix.
func ToDense[T Number](values []T, offsets []int64, width int) ([]T, int, error) {
	pulled, err := PullValuesOffsets(values, offsets)
	if err != nil {
		return nil, 0, err
	}
	coords := Indices(pulled.Offsets, pulled.Diff)
	sp, err := NewSparse(pulled.Values, coords, pulled.NumRows, width)
	if err != nil {
		return nil, 0, err
	}
	return sp.ToDense(), pulled.NumRows, nil
}
