// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPut(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := Open(context.Background(), dir)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "a/part-0.arrows", []byte("hello")))
	data, err := os.ReadFile(filepath.Join(dir, "a", "part-0.arrows"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// No temporary files are left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "a"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Put(ctx, "b", nil), context.Canceled)
}

func TestMemoryConcurrentPut(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Put(context.Background(), string(rune('a'+i)), []byte{byte(i)})
		}()
	}
	wg.Wait()
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h"}, m.Names())

	buf := []byte{1, 2}
	require.NoError(t, m.Put(context.Background(), "x", buf))
	buf[0] = 9
	got, ok := m.Get("x")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2}, got)
}

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		in     string
		bucket string
		prefix string
		ok     bool
	}{
		{"s3://data/runs/2026", "data", "runs/2026", true},
		{"s3://data", "data", "", true},
		{"s3://data/", "data", "", true},
		{"s3:///nobucket", "", "", false},
		{"/local/dir", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			bucket, prefix, err := ParseS3URL(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.prefix, prefix)
		})
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/vnd.apache.arrow.stream", contentType("part-0.arrows"))
	assert.Equal(t, "application/vnd.apache.arrow.stream", contentType("part-0.arrows.zst"))
	assert.Equal(t, "application/vnd.apache.parquet", contentType("part-0.parquet"))
	assert.Equal(t, "application/octet-stream", contentType("x.bin"))
}

// TestMinioStoreIntegration requires a running MinIO instance.
func TestMinioStoreIntegration(t *testing.T) {
	cfg := MinioConfigFromEnv()
	if cfg.AccessKey == "" {
		cfg.AccessKey, cfg.SecretKey = "minioadmin", "minioadmin"
	}
	cfg.CreateBucket = true
	ctx := context.Background()

	store, err := OpenMinio(ctx, "s3://test-vgi-synth/shards", cfg)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}
	if _, err := store.client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	require.NoError(t, store.Put(ctx, "part-0.arrows", []byte("payload")))
	obj, err := store.client.GetObject(ctx, store.bucket, "shards/part-0.arrows", minio.GetObjectOptions{})
	require.NoError(t, err)
	defer obj.Close()
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, store.client.RemoveObject(ctx, store.bucket, "shards/part-0.arrows", minio.RemoveObjectOptions{}))
}
