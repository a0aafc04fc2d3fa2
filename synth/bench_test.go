// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"context"
	"io"
	"testing"
)

func benchSchema(b *testing.B) Schema {
	b.Helper()
	s, err := NewSchema(
		ColumnSchema{Name: "item_id", Properties: map[string]any{PropIntDomain: intDomain(100000)}},
		ColumnSchema{Name: "user_id", Properties: map[string]any{PropIntDomain: intDomain(10000)}},
		ColumnSchema{Name: "price"},
		ColumnSchema{Name: "emb", Shape: []int{64}},
		ColumnSchema{
			Name: "history",
			Properties: map[string]any{
				PropIntDomain:  intDomain(100000),
				PropValueCount: map[string]any{"max": 20},
			},
		},
	)
	if err != nil {
		b.Fatal(err)
	}
	return s
}

func BenchmarkRandomData(b *testing.B) {
	s := benchSchema(b)
	g, err := NewGenerator(WithSeed(1), WithSessionLength(5, 20))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		batch, err := g.RandomData(ctx, s, 1024)
		if err != nil {
			b.Fatal(err)
		}
		batch.Release()
	}
}

func BenchmarkRecordIPC(b *testing.B) {
	s := benchSchema(b)
	batch, err := RandomData(context.Background(), s, 1024, WithSeed(1))
	if err != nil {
		b.Fatal(err)
	}
	defer batch.Release()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec, err := batch.Record()
		if err != nil {
			b.Fatal(err)
		}
		if err := WriteRecord(io.Discard, rec, FormatArrowStream, WriteOptions{Codec: CodecZstd}); err != nil {
			b.Fatal(err)
		}
		rec.Release()
	}
}
