// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
)

// DispatchHook observes every dispatched call. Implementations must be safe
// for concurrent use because the HTTP transport serves calls in parallel.
type DispatchHook interface {
	OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken)
	OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, stats *CallStatistics, err error)
}

// HookToken is returned by OnDispatchStart and handed back to
// OnDispatchEnd. Only the hook that created it interprets it.
type HookToken any

// DispatchInfo describes the call being dispatched.
type DispatchInfo struct {
	Method    string
	ServerID  string
	RequestID string
	// TransportMetadata is the request batch metadata, plus remote_addr and
	// user_agent for HTTP.
	TransportMetadata map[string]string
}

// CallStatistics counts rows and buffer bytes moved by one call.
type CallStatistics struct {
	InputRows   int64
	OutputRows  int64
	InputBytes  int64
	OutputBytes int64
}

// RecordInput records the request batch.
func (s *CallStatistics) RecordInput(numRows, bufferBytes int64) {
	s.InputRows += numRows
	s.InputBytes += bufferBytes
}

// RecordOutput records a result batch.
func (s *CallStatistics) RecordOutput(numRows, bufferBytes int64) {
	s.OutputRows += numRows
	s.OutputBytes += bufferBytes
}

// batchBufferSize sums the buffer sizes of every column, children
// included, so fixed-size list columns count their values.
func batchBufferSize(batch arrow.RecordBatch) int64 {
	var total int64
	for _, col := range batch.Columns() {
		total += dataSize(col.Data())
	}
	return total
}

func dataSize(d arrow.ArrayData) int64 {
	var n int64
	for _, buf := range d.Buffers() {
		if buf != nil {
			n += int64(buf.Len())
		}
	}
	for _, child := range d.Children() {
		n += dataSize(child)
	}
	return n
}
