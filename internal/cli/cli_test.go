// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/vgi-synth/rpc"
	"github.com/Query-farm/vgi-synth/service"
	"github.com/Query-farm/vgi-synth/synth"
)

const testSchemaJSON = `{
  "columns": [
    {"name": "item_id", "tags": ["categorical", "item_id"], "properties": {"int_domain": {"min": 0, "max": 100}}},
    {"name": "price", "tags": ["continuous"]},
    {"name": "emb", "shape": [4]},
    {"name": "label", "tags": ["target"], "properties": {"int_domain": {"min": 0, "max": 2}}},
    {"name": "history", "is_list": true, "is_ragged": true,
     "properties": {"int_domain": {"min": 0, "max": 100}, "value_count": {"max": 8}}}
  ]
}`

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(testSchemaJSON), 0o644))
	return path
}

// execute runs the CLI and returns stdout.
func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := NewCLI()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func readStreamRows(t *testing.T, data []byte) int64 {
	t.Helper()
	_, recs, err := synth.ReadIPC(bytes.NewReader(data), memory.DefaultAllocator)
	require.NoError(t, err)
	var rows int64
	for _, rec := range recs {
		rows += rec.NumRows()
		rec.Release()
	}
	return rows
}

func TestGenerateArrowStream(t *testing.T) {
	schema := writeSchema(t)
	out := t.TempDir()

	stdout, err := execute(t, context.Background(), "generate", schema,
		"--rows", "25", "--shards", "3", "--concurrency", "2", "--seed", "7", "--out", out)
	require.NoError(t, err)

	files := listDir(t, out)
	require.Len(t, files, 3)
	for i, name := range files {
		assert.True(t, strings.HasPrefix(name, "part-0000"), name)
		assert.True(t, strings.HasSuffix(name, ".arrows"), name)
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		assert.Equal(t, int64(25), readStreamRows(t, data))
		assert.Contains(t, stdout, name)
		assert.Contains(t, stdout, fmt.Sprintf("%s\t25 rows\tseed=%d", name, 7+i))
	}
}

func TestGenerateSeedIsReproducible(t *testing.T) {
	schema := writeSchema(t)
	var shards [][]byte
	for range 2 {
		out := t.TempDir()
		_, err := execute(t, context.Background(), "generate", schema, "--rows", "10", "--seed", "99",
			"--max-session-length", "6", "--out", out)
		require.NoError(t, err)
		files := listDir(t, out)
		require.Len(t, files, 1)
		data, err := os.ReadFile(filepath.Join(out, files[0]))
		require.NoError(t, err)
		shards = append(shards, data)
	}

	// Run IDs differ between runs, so compare decoded columns.
	_, a, err := synth.ReadIPC(bytes.NewReader(shards[0]), nil)
	require.NoError(t, err)
	_, b, err := synth.ReadIPC(bytes.NewReader(shards[1]), nil)
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	defer a[0].Release()
	defer b[0].Release()
	for i := range a[0].NumCols() {
		assert.True(t, array.Equal(a[0].Column(int(i)), b[0].Column(int(i))), "column %d", i)
	}
}

func TestGenerateParquetZstd(t *testing.T) {
	schema := writeSchema(t)
	out := t.TempDir()
	_, err := execute(t, context.Background(), "generate", schema,
		"--rows", "12", "--format", "parquet", "--codec", "zstd", "--zstd", "--out", out)
	require.NoError(t, err)

	files := listDir(t, out)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], ".parquet.zst"))

	compressed, err := os.ReadFile(filepath.Join(out, files[0]))
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	require.NoError(t, err)

	table, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data),
		parquet.NewReaderProperties(nil), pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer table.Release()
	assert.Equal(t, int64(12), table.NumRows())
	assert.Equal(t, int64(5), table.NumCols())
}

func TestGenerateErrors(t *testing.T) {
	schema := writeSchema(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing schema", []string{"generate", filepath.Join(t.TempDir(), "none.json")}},
		{"bad format", []string{"generate", schema, "--format", "csv"}},
		{"bad codec", []string{"generate", schema, "--codec", "brotli"}},
		{"no shards", []string{"generate", schema, "--shards", "0"}},
		{"inverted sessions", []string{"generate", schema, "--max-session-length", "3", "--min-session-length", "4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--out", t.TempDir())
			_, err := execute(t, context.Background(), args...)
			assert.Error(t, err)
		})
	}
}

func TestAugmentCommand(t *testing.T) {
	schema := writeSchema(t)
	out := filepath.Join(t.TempDir(), "augmented.yaml")
	_, err := execute(t, context.Background(), "augment", schema,
		"--conts", "price", "--cats", "item_id", "--labels", "label",
		"--sparse", "item_id", "--sparse-max", "item_id=20", "-o", out)
	require.NoError(t, err)

	s, err := synth.LoadSchemaFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "item_id", "label"}, s.Names())
	item, _ := s.Column("item_id")
	assert.True(t, item.IsList)
	vc, ok, err := item.ValueCount()
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 20, vc.Max)

	stdout, err := execute(t, context.Background(), "augment", schema, "--labels", "label", "--format", "yaml")
	require.NoError(t, err)
	assert.Contains(t, stdout, "name: label")
	assert.Contains(t, stdout, "- target")

	_, err = execute(t, context.Background(), "augment", schema, "--cats", "ghost")
	assert.ErrorIs(t, err, synth.ErrColumnNotFound)
}

func TestDescribeCommand(t *testing.T) {
	stdout, err := execute(t, context.Background(), "describe", writeSchema(t))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "item_id")
	assert.Contains(t, lines[1], "[1,100)")
	assert.Contains(t, lines[3], "embedding")
	assert.Contains(t, lines[5], "variable_length")
	assert.Contains(t, lines[5], "[<=8] ragged")

	_, err = execute(t, context.Background(), "describe")
	assert.Error(t, err)
}

func TestRemoteGenerateAndDescribe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		server := rpc.NewServer()
		service.Register(server)
		done <- serveHTTP(ctx, server, ln, serveOptions{prefix: "/vgi", compressionLevel: 3})
	}()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()
	url := "http://" + ln.Addr().String() + "/vgi"

	schema := writeSchema(t)
	out := t.TempDir()
	_, err = execute(t, context.Background(), "generate", schema, "--rows", "9", "--shards", "2",
		"--seed", "3", "--remote", url, "--out", out)
	require.NoError(t, err)
	files := listDir(t, out)
	require.Len(t, files, 2)
	for _, name := range files {
		data, err := os.ReadFile(filepath.Join(out, name))
		require.NoError(t, err)
		assert.Equal(t, int64(9), readStreamRows(t, data))
	}

	stdout, err := execute(t, context.Background(), "describe", "--remote", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "random_data")
	assert.Contains(t, stdout, "min_session_length int = 5")

	augmented := filepath.Join(t.TempDir(), "aug.json")
	_, err = execute(t, context.Background(), "augment", schema, "--cats", "item_id", "--remote", url, "-o", augmented)
	require.NoError(t, err)
	s, err := synth.LoadSchemaFile(augmented)
	require.NoError(t, err)
	assert.Equal(t, []string{"item_id"}, s.Names())

	missing := filepath.Join(t.TempDir(), "missing.json")
	_, err = execute(t, context.Background(), "augment", schema, "--cats", "no_such_column", "--remote", url, "-o", missing)
	var rpcErr *rpc.RpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.ErrTypeKey, rpcErr.Type)
	assert.NoFileExists(t, missing)
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(io.Discard, "debug", "json")
	assert.NoError(t, err)
	_, err = newLogger(io.Discard, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(io.Discard, "info", "xml")
	assert.Error(t, err)
}

func TestShardName(t *testing.T) {
	assert.Equal(t, "part-00003-abcdef12.arrows", shardName("part", 3, "abcdef12-3456", synth.FormatArrowStream, false))
	assert.Equal(t, "x-00000-abcdef12.parquet.zst", shardName("x", 0, "abcdef12-3456", synth.FormatParquet, true))
}
