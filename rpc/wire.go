// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Request is a parsed RPC request.
type Request struct {
	Method    string
	Version   string
	RequestID string
	LogLevel  string
	Batch     arrow.RecordBatch
	Metadata  map[string]string
}

// ReadRequest reads one complete IPC stream and extracts the method name,
// version and parameter batch from its first batch. It returns io.EOF when
// the reader is exhausted before a stream starts.
func ReadRequest(r io.Reader) (*Request, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading request IPC stream: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, fmt.Errorf("reading request batch: %w", err)
		}
		return nil, io.EOF
	}

	batch := reader.RecordBatch()
	batch.Retain()

	var meta arrow.Metadata
	if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
		meta = rb.Metadata()
	}

	method, ok := meta.GetValue(MetaMethod)
	if !ok {
		batch.Release()
		return nil, &RpcError{
			Type:    ErrTypeProtocol,
			Message: "Missing 'vgi_rpc.method' in request batch custom_metadata",
		}
	}

	version, ok := meta.GetValue(MetaRequestVersion)
	if !ok {
		batch.Release()
		return nil, &RpcError{
			Type:    ErrTypeVersion,
			Message: "Missing 'vgi_rpc.request_version' in request batch custom_metadata",
		}
	}
	if version != ProtocolVersion {
		batch.Release()
		return nil, &RpcError{
			Type:    ErrTypeVersion,
			Message: fmt.Sprintf("Unsupported request version %q, expected %q", version, ProtocolVersion),
		}
	}

	if batch.Schema().NumFields() > 0 && batch.NumRows() != 1 {
		batch.Release()
		return nil, &RpcError{
			Type:    ErrTypeProtocol,
			Message: fmt.Sprintf("Expected 1 row in request batch, got %d", batch.NumRows()),
		}
	}

	requestID, _ := meta.GetValue(MetaRequestID)
	logLevel, _ := meta.GetValue(MetaLogLevel)

	// drain to end of stream
	for reader.Next() {
	}

	metaMap := make(map[string]string, meta.Len())
	for i := range meta.Len() {
		metaMap[meta.Keys()[i]] = meta.Values()[i]
	}

	return &Request{
		Method:    method,
		Version:   version,
		RequestID: requestID,
		LogLevel:  logLevel,
		Batch:     batch,
		Metadata:  metaMap,
	}, nil
}

// WriteRequest writes params as a complete request stream for method.
func WriteRequest(w io.Writer, method, requestID string, logLevel LogLevel, params arrow.RecordBatch) error {
	keys := []string{MetaMethod, MetaRequestVersion}
	vals := []string{method, ProtocolVersion}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}
	if logLevel != "" {
		keys = append(keys, MetaLogLevel)
		vals = append(vals, string(logLevel))
	}

	batch := array.NewRecordBatchWithMetadata(params.Schema(), params.Columns(), params.NumRows(),
		arrow.NewMetadata(keys, vals))
	defer batch.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(params.Schema()))
	if err := writer.Write(batch); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}

// emptyBatch creates a zero-row batch with the given schema.
func emptyBatch(schema *arrow.Schema) arrow.RecordBatch {
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, schema.NumFields())
	for i, f := range schema.Fields() {
		b := array.NewBuilder(mem, f.Type)
		cols[i] = b.NewArray()
		b.Release()
	}
	batch := array.NewRecordBatch(schema, cols, 0)
	for _, c := range cols {
		c.Release()
	}
	return batch
}

func writeMetaBatch(w *ipc.Writer, schema *arrow.Schema, keys, vals []string, serverID, requestID string) error {
	if serverID != "" {
		keys = append(keys, MetaServerID)
		vals = append(vals, serverID)
	}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}

	batch := emptyBatch(schema)
	defer batch.Release()
	withMeta := array.NewRecordBatchWithMetadata(schema, batch.Columns(), 0, arrow.NewMetadata(keys, vals))
	defer withMeta.Release()
	return w.Write(withMeta)
}

// writeLogBatch writes a zero-row batch carrying a log message.
func writeLogBatch(w *ipc.Writer, schema *arrow.Schema, msg LogMessage, serverID, requestID string) error {
	keys := []string{MetaLogLevel, MetaLogMessage}
	vals := []string{string(msg.Level), msg.Message}
	if len(msg.Extras) > 0 {
		extraJSON, err := json.Marshal(msg.Extras)
		if err != nil {
			extraJSON = []byte(`{}`)
		}
		keys = append(keys, MetaLogExtra)
		vals = append(vals, string(extraJSON))
	}
	return writeMetaBatch(w, schema, keys, vals, serverID, requestID)
}

// writeErrorBatch writes a zero-row EXCEPTION batch.
func writeErrorBatch(w *ipc.Writer, schema *arrow.Schema, err error, serverID, requestID string, debug bool) error {
	keys := []string{MetaLogLevel, MetaLogMessage, MetaLogExtra}
	vals := []string{string(LogException), err.Error(), buildErrorExtra(err, debug)}
	return writeMetaBatch(w, schema, keys, vals, serverID, requestID)
}

// writeResponse writes logs followed by either the error or the result.
// schema must match result when result is not nil.
func writeResponse(w io.Writer, schema *arrow.Schema, logs []LogMessage, result arrow.RecordBatch,
	callErr error, serverID, requestID string, debug bool) error {

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	for _, m := range logs {
		if err := writeLogBatch(writer, schema, m, serverID, requestID); err != nil {
			writer.Close()
			return fmt.Errorf("writing log batch: %w", err)
		}
	}

	var err error
	if callErr != nil {
		err = writeErrorBatch(writer, schema, callErr, serverID, requestID, debug)
	} else {
		err = writer.Write(result)
	}
	if cerr := writer.Close(); err == nil {
		err = cerr
	}
	return err
}

// writeErrorResponse writes a stream holding only an error batch.
func writeErrorResponse(w io.Writer, err error, serverID, requestID string, debug bool) error {
	return writeResponse(w, arrow.NewSchema(nil, nil), nil, nil, err, serverID, requestID, debug)
}

// Response is a decoded unary response.
type Response struct {
	// Result is nil when the call failed.
	Result arrow.RecordBatch
	Logs   []LogMessage
}

// ReadResponse reads one response stream. Log batches are collected; an
// EXCEPTION batch becomes an *RpcError. The caller must release
// Response.Result.
func ReadResponse(r io.Reader, mem memory.Allocator) (*Response, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	reader, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("reading response IPC stream: %w", err)
	}
	defer reader.Release()

	resp := &Response{}
	var callErr error
	for reader.Next() {
		batch := reader.RecordBatch()
		var meta arrow.Metadata
		if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
			meta = rb.Metadata()
		}
		level, isLog := meta.GetValue(MetaLogLevel)
		if !isLog {
			if resp.Result == nil {
				batch.Retain()
				resp.Result = batch
			}
			continue
		}

		msg, _ := meta.GetValue(MetaLogMessage)
		extra, _ := meta.GetValue(MetaLogExtra)
		if LogLevel(level) == LogException {
			requestID, _ := meta.GetValue(MetaRequestID)
			callErr = parseErrorExtra(msg, extra, requestID)
			continue
		}
		m := LogMessage{Level: LogLevel(level), Message: msg}
		if extra != "" {
			_ = json.Unmarshal([]byte(extra), &m.Extras)
		}
		resp.Logs = append(resp.Logs, m)
	}
	if err := reader.Err(); err != nil && callErr == nil {
		callErr = fmt.Errorf("reading response batch: %w", err)
	}
	if callErr != nil {
		if resp.Result != nil {
			resp.Result.Release()
			resp.Result = nil
		}
		return resp, callErr
	}
	if resp.Result == nil {
		return resp, &RpcError{Type: ErrTypeProtocol, Message: "response stream has no result batch"}
	}
	return resp, nil
}
