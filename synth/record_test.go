// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"bytes"
	"context"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRecord(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	batch, err := RandomData(context.Background(), mixedSchema(t), 6, WithSeed(2), WithAllocator(mem))
	require.NoError(t, err)
	defer batch.Release()

	rec, err := batch.Record()
	require.NoError(t, err)
	defer rec.Release()

	assert.Equal(t, int64(6), rec.NumRows())
	assert.Equal(t, int64(7), rec.NumCols())

	sc := rec.Schema()
	assert.Equal(t, arrow.INT64, sc.Field(0).Type.ID())
	assert.Equal(t, arrow.FLOAT32, sc.Field(1).Type.ID())

	emb := sc.Field(2)
	require.Equal(t, arrow.FIXED_SIZE_LIST, emb.Type.ID())
	assert.Equal(t, int32(4), emb.Type.(*arrow.FixedSizeListType).Len())
	v, ok := emb.Metadata.GetValue(MetaTensorShape)
	require.True(t, ok)
	assert.Equal(t, "[4]", v)

	cube := sc.Field(4)
	assert.Equal(t, int32(6), cube.Type.(*arrow.FixedSizeListType).Len())
	v, _ = cube.Metadata.GetValue(MetaTensorShape)
	assert.Equal(t, "[2,3]", v)
	v, _ = cube.Metadata.GetValue(MetaShape)
	assert.Equal(t, "[2,3]", v)

	kind, ok := cube.Metadata.GetValue(MetaKind)
	require.True(t, ok)
	assert.Equal(t, "embedding", kind)
	kind, _ = sc.Field(5).Metadata.GetValue(MetaKind)
	assert.Equal(t, "variable_length", kind)

	tags, ok := sc.Field(0).Metadata.GetValue(MetaTags)
	require.True(t, ok)
	assert.Equal(t, "categorical,item_id", tags)

	rows, ok := sc.Metadata().GetValue(MetaNumRows)
	require.True(t, ok)
	assert.Equal(t, "6", rows)
	seed, _ := sc.Metadata().GetValue(MetaSeed)
	assert.Equal(t, "2", seed)

	ids := rec.Column(0).(*array.Int64)
	want, _ := batch.Int64Values("item_id")
	assert.Equal(t, want, ids.Int64Values())
}

func TestBatchRecordEmpty(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	s := mixedSchema(t)
	for _, tc := range []struct {
		name string
		opts []Option
	}{
		{"NoSessions", nil},
		{"Sessions", []Option{WithSessionLength(5, 9)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fields := func(rows int) []arrow.Field {
				opts := append([]Option{WithSeed(1), WithAllocator(mem)}, tc.opts...)
				batch, err := RandomData(context.Background(), s, rows, opts...)
				require.NoError(t, err)
				defer batch.Release()
				rec, err := batch.Record()
				require.NoError(t, err)
				defer rec.Release()
				assert.Equal(t, int64(rows), rec.NumRows())
				return rec.Schema().Fields()
			}

			empty, full := fields(0), fields(4)
			require.Len(t, empty, s.Len())
			require.Len(t, full, s.Len())
			for i := range full {
				assert.True(t, full[i].Equal(empty[i]), "%s: %s vs %s", full[i].Name, full[i].Type, empty[i].Type)
			}
			assert.Equal(t, arrow.FIXED_SIZE_LIST, empty[5].Type.ID())
		})
	}
}

func TestRecordSchemaRoundTrip(t *testing.T) {
	batch, err := RandomData(context.Background(), mixedSchema(t), 3, WithSeed(4))
	require.NoError(t, err)
	defer batch.Release()

	rec, err := batch.Record()
	require.NoError(t, err)
	defer rec.Release()

	back, err := SchemaFromArrow(rec.Schema())
	require.NoError(t, err)

	cube, ok := back.Column("cube")
	require.True(t, ok)
	assert.Equal(t, []int{2, 3}, cube.Shape)
	assert.Equal(t, DTypeInt64, cube.ElementType())

	seq, ok := back.Column("seq")
	require.True(t, ok)
	assert.True(t, seq.IsList)
	vc, ok, err := seq.ValueCount()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(6), vc.Max)
}

func TestWriteRecordFormats(t *testing.T) {
	s, err := NewSchema(
		ColumnSchema{Name: "user_id", Properties: map[string]any{PropIntDomain: intDomain(1000)}},
		ColumnSchema{Name: "score"},
	)
	require.NoError(t, err)

	batch, err := RandomData(context.Background(), s, 32, WithSeed(8))
	require.NoError(t, err)
	defer batch.Release()
	rec, err := batch.Record()
	require.NoError(t, err)
	defer rec.Release()

	t.Run("ArrowStreamZstdCodec", func(t *testing.T) {
		data, err := EncodeRecord(rec, FormatArrowStream, WriteOptions{Codec: CodecZstd})
		require.NoError(t, err)

		sc, recs, err := ReadIPC(bytes.NewReader(data), nil)
		require.NoError(t, err)
		defer func() {
			for _, r := range recs {
				r.Release()
			}
		}()
		require.Len(t, recs, 1)
		assert.Equal(t, int64(32), recs[0].NumRows())
		assert.Equal(t, []string{"user_id", "score"}, []string{sc.Field(0).Name, sc.Field(1).Name})
	})

	t.Run("ArrowStreamWholeFileZstd", func(t *testing.T) {
		data, err := EncodeRecord(rec, FormatArrowStream, WriteOptions{Zstd: true})
		require.NoError(t, err)

		dec, err := zstd.NewReader(nil)
		require.NoError(t, err)
		defer dec.Close()
		raw, err := dec.DecodeAll(data, nil)
		require.NoError(t, err)

		_, recs, err := ReadIPC(bytes.NewReader(raw), nil)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, int64(32), recs[0].NumRows())
		recs[0].Release()
	})

	t.Run("ArrowFile", func(t *testing.T) {
		data, err := EncodeRecord(rec, FormatArrowFile, WriteOptions{Codec: CodecLZ4})
		require.NoError(t, err)
		assert.Equal(t, "ARROW1", string(data[:6]))
	})

	t.Run("Parquet", func(t *testing.T) {
		data, err := EncodeRecord(rec, FormatParquet, WriteOptions{Codec: CodecZstd})
		require.NoError(t, err)

		tbl, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
			parquet.NewReaderProperties(nil), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
		require.NoError(t, err)
		defer tbl.Release()
		assert.Equal(t, int64(32), tbl.NumRows())
		assert.Equal(t, int64(2), tbl.NumCols())
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		_, err := EncodeRecord(rec, Format("csv"), WriteOptions{})
		require.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("PARQUET")
	require.NoError(t, err)
	assert.Equal(t, FormatParquet, f)
	assert.Equal(t, ".parquet", f.Extension())

	f, err = ParseFormat("ipc")
	require.NoError(t, err)
	assert.Equal(t, FormatArrowStream, f)

	_, err = ParseFormat("csv")
	require.ErrorIs(t, err, ErrInvalidArgument)
}
