package ragged

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPullValuesOffsets(t *testing.T) {
	t.Run("Explicit", func(t *testing.T) {
		p, err := PullValuesOffsets([]int64{1, 2, 3, 4, 5}, []int64{0, 2, 2})
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 2, 2, 5}, p.Offsets)
		assert.Equal(t, []int64{2, 0, 3}, p.Diff)
		assert.Equal(t, 3, p.NumRows)
	})

	t.Run("ImplicitOnePerRow", func(t *testing.T) {
		p, err := PullValuesOffsets([]float32{0.5, 0.25, 0.125}, nil)
		require.NoError(t, err)
		assert.Equal(t, []int64{0, 1, 2, 3}, p.Offsets)
		assert.Equal(t, []int64{1, 1, 1}, p.Diff)
		assert.Equal(t, 3, p.NumRows)
	})

	t.Run("Empty", func(t *testing.T) {
		p, err := PullValuesOffsets([]int64{}, []int64{})
		require.NoError(t, err)
		assert.Equal(t, 0, p.NumRows)
		assert.Equal(t, []int64{0}, p.Offsets)
	})

	t.Run("Decreasing", func(t *testing.T) {
		_, err := PullValuesOffsets([]int64{1, 2, 3}, []int64{0, 3, 1})
		require.ErrorIs(t, err, ErrInvalidOffsets)
	})

	t.Run("NonZeroStart", func(t *testing.T) {
		_, err := PullValuesOffsets([]int64{1, 2, 3}, []int64{1})
		require.ErrorIs(t, err, ErrInvalidOffsets)
	})
}

func TestIndices(t *testing.T) {
	coords := Indices([]int64{0, 3, 3, 4}, []int64{3, 0, 1})
	assert.Equal(t, []Coord{
		{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2},
		{Row: 2, Col: 0},
	}, coords)
}

func TestLengthsToOffsets(t *testing.T) {
	assert.Equal(t, []int64{0, 2, 5, 5}, LengthsToOffsets([]int64{2, 3, 0, 4}))
	assert.Empty(t, LengthsToOffsets(nil))
}

func TestToDense(t *testing.T) {
	values := []int64{7, 8, 9, 10, 11, 12}
	offsets := LengthsToOffsets([]int64{1, 3, 2})

	dense, rows, err := ToDense(values, offsets, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, rows)
	assert.Equal(t, []int64{
		7, 0, 0, 0,
		8, 9, 10, 0,
		11, 12, 0, 0,
	}, dense)
}

func TestToDenseRowTooLong(t *testing.T) {
	_, _, err := ToDense([]float32{1, 2, 3}, []int64{0}, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestSparse(t *testing.T) {
	t.Run("MismatchedLengths", func(t *testing.T) {
		_, err := NewSparse([]int64{1}, nil, 1, 1)
		require.Error(t, err)
	})

	t.Run("DuplicatesSum", func(t *testing.T) {
		sp, err := NewSparse([]float64{1.5, 2.5}, []Coord{{0, 1}, {0, 1}}, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, sp.Nnz())
		assert.Equal(t, []float64{0, 4}, sp.ToDense())
	})

	t.Run("RowOutOfRange", func(t *testing.T) {
		_, err := NewSparse([]int64{1}, []Coord{{Row: 2, Col: 0}}, 2, 2)
		require.ErrorIs(t, err, ErrOutOfRange)
	})
}
