// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package synth

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/klauspost/compress/zstd"
)

// Format is an output file format for generated records.
type Format string

const (
	// FormatArrowStream is the Arrow IPC stream format.
	FormatArrowStream Format = "arrows"
	// FormatArrowFile is the Arrow IPC file format.
	FormatArrowFile Format = "arrow"
	FormatParquet   Format = "parquet"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatArrowStream, FormatArrowFile, FormatParquet:
		return f, nil
	case "ipc", "stream":
		return FormatArrowStream, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want arrows, arrow or parquet)", ErrInvalidArgument, s)
	}
}

// Extension is the file extension for f, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Codec is a buffer compression codec for Arrow IPC and parquet output.
type Codec string

const (
	CodecNone Codec = ""
	CodecZstd Codec = "zstd"
	CodecLZ4  Codec = "lz4"
)

// WriteOptions controls WriteRecord.
type WriteOptions struct {
	// Codec compresses record buffers inside the file.
	Codec Codec
	// Zstd wraps the whole output in a zstd frame.
	Zstd bool
	Mem  memory.Allocator
}

// WriteRecord writes rec to w in format f.
func WriteRecord(w io.Writer, rec arrow.RecordBatch, f Format, opts WriteOptions) error {
	if opts.Mem == nil {
		opts.Mem = memory.DefaultAllocator
	}

	var zw *zstd.Encoder
	if opts.Zstd {
		var err error
		zw, err = zstd.NewWriter(w)
		if err != nil {
			return err
		}
		w = zw
	}

	var err error
	switch f {
	case FormatArrowStream:
		err = writeIPCStream(w, rec, opts)
	case FormatArrowFile:
		err = writeIPCFile(w, rec, opts)
	case FormatParquet:
		err = writeParquet(w, rec, opts)
	default:
		err = fmt.Errorf("%w: unknown format %q", ErrInvalidArgument, f)
	}
	if zw != nil {
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func ipcOptions(rec arrow.RecordBatch, opts WriteOptions) []ipc.Option {
	o := []ipc.Option{ipc.WithSchema(rec.Schema()), ipc.WithAllocator(opts.Mem)}
	switch opts.Codec {
	case CodecZstd:
		o = append(o, ipc.WithZstd())
	case CodecLZ4:
		o = append(o, ipc.WithLZ4())
	}
	return o
}

func writeIPCStream(w io.Writer, rec arrow.RecordBatch, opts WriteOptions) error {
	writer := ipc.NewWriter(w, ipcOptions(rec, opts)...)
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("writing arrow stream: %w", err)
	}
	return writer.Close()
}

func writeIPCFile(w io.Writer, rec arrow.RecordBatch, opts WriteOptions) error {
	writer, err := ipc.NewFileWriter(w, ipcOptions(rec, opts)...)
	if err != nil {
		return err
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("writing arrow file: %w", err)
	}
	return writer.Close()
}

func writeParquet(w io.Writer, rec arrow.RecordBatch, opts WriteOptions) error {
	codec := compress.Codecs.Uncompressed
	switch opts.Codec {
	case CodecZstd:
		codec = compress.Codecs.Zstd
	case CodecLZ4:
		codec = compress.Codecs.Lz4Raw
	}
	props := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithAllocator(opts.Mem),
	)
	writer, err := pqarrow.NewFileWriter(rec.Schema(), w, props,
		pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema(), pqarrow.WithAllocator(opts.Mem)))
	if err != nil {
		return fmt.Errorf("creating parquet writer: %w", err)
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("writing parquet: %w", err)
	}
	return writer.Close()
}

// EncodeRecord returns rec encoded in format f.
func EncodeRecord(rec arrow.RecordBatch, f Format, opts WriteOptions) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteRecord(&buf, rec, f, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadIPC reads every record of an Arrow IPC stream. The caller must
// release the returned records.
func ReadIPC(r io.Reader, mem memory.Allocator) (*arrow.Schema, []arrow.RecordBatch, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	reader, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, nil, err
	}
	defer reader.Release()

	var recs []arrow.RecordBatch
	for reader.Next() {
		rec := reader.RecordBatch()
		rec.Retain()
		recs = append(recs, rec)
	}
	if err := reader.Err(); err != nil {
		for _, rec := range recs {
			rec.Release()
		}
		return nil, nil, err
	}
	return reader.Schema(), recs, nil
}
