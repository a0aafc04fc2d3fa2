// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package service exposes synth over the vgi_rpc protocol.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/Query-farm/vgi-synth/ragged"
	"github.com/Query-farm/vgi-synth/rpc"
	"github.com/Query-farm/vgi-synth/synth"
)

// Method names.
const (
	MethodRandomData    = "random_data"
	MethodAugmentSchema = "augment_schema"
)

// RandomDataParams are the parameters of random_data.
type RandomDataParams struct {
	Schema           []byte `vgirpc:"schema,doc=Arrow IPC stream holding the column schema"`
	NumRows          int64  `vgirpc:"num_rows,doc=Number of rows to generate"`
	MaxSessionLength int64  `vgirpc:"max_session_length,default=0,doc=Upper session length bound, 0 disables sessions"`
	MinSessionLength int64  `vgirpc:"min_session_length,default=5,doc=Lower session length bound"`
	Seed             *int64 `vgirpc:"seed,doc=RNG seed, random when null"`
}

// AugmentSchemaParams are the parameters of augment_schema.
type AugmentSchemaParams struct {
	Schema        []byte           `vgirpc:"schema,doc=Arrow IPC stream holding the column schema"`
	Cats          []string         `vgirpc:"cats"`
	Conts         []string         `vgirpc:"conts"`
	Labels        []string         `vgirpc:"labels"`
	SparseNames   []string         `vgirpc:"sparse_names"`
	SparseMax     map[string]int64 `vgirpc:"sparse_max"`
	SparseAsDense bool             `vgirpc:"sparse_as_dense,default=false"`
}

// Service holds the state shared by the registered methods.
type Service struct {
	mem    memory.Allocator
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithAllocator sets the allocator for generated batches.
func WithAllocator(mem memory.Allocator) Option {
	return func(s *Service) {
		if mem != nil {
			s.mem = mem
		}
	}
}

// WithLogger sets the logger handed to the generator.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Register adds random_data and augment_schema to server.
func Register(server *rpc.Server, opts ...Option) *Service {
	svc := &Service{mem: memory.DefaultAllocator, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	rpc.Unary(server, MethodRandomData,
		"Generate a batch of synthetic feature data for a schema.", svc.randomData)
	rpc.Unary(server, MethodAugmentSchema,
		"Select and retag schema columns, turning sparse columns into lists.", svc.augmentSchema)
	return svc
}

func (s *Service) randomData(ctx context.Context, call *rpc.CallContext, p RandomDataParams) (arrow.RecordBatch, error) {
	schema, err := synth.UnmarshalSchemaIPC(p.Schema)
	if err != nil {
		return nil, toRpcError(err)
	}
	opts := []synth.Option{
		synth.WithSessionLength(int(p.MinSessionLength), int(p.MaxSessionLength)),
		synth.WithAllocator(s.mem),
		synth.WithLogger(s.logger),
	}
	if p.Seed != nil {
		opts = append(opts, synth.WithSeed(*p.Seed))
	}
	batch, err := synth.RandomData(ctx, schema, int(p.NumRows), opts...)
	if err != nil {
		return nil, toRpcError(err)
	}
	defer batch.Release()

	rec, err := batch.Record()
	if err != nil {
		return nil, toRpcError(err)
	}
	call.ClientLog(rpc.LogDebug, "generated batch",
		rpc.KV{Key: "rows", Value: strconv.Itoa(batch.NumRows())},
		rpc.KV{Key: "seed", Value: strconv.FormatInt(batch.Seed(), 10)},
		rpc.KV{Key: "run_id", Value: batch.RunID()},
	)
	return rec, nil
}

func (s *Service) augmentSchema(_ context.Context, call *rpc.CallContext, p AugmentSchemaParams) (arrow.RecordBatch, error) {
	schema, err := synth.UnmarshalSchemaIPC(p.Schema)
	if err != nil {
		return nil, toRpcError(err)
	}
	out, err := synth.Augment(schema, synth.AugmentOptions{
		Cats:          p.Cats,
		Conts:         p.Conts,
		Labels:        p.Labels,
		SparseNames:   p.SparseNames,
		SparseMax:     p.SparseMax,
		SparseAsDense: p.SparseAsDense,
	})
	if err != nil {
		return nil, toRpcError(err)
	}
	as, err := out.ToArrow()
	if err != nil {
		return nil, toRpcError(err)
	}
	call.ClientLog(rpc.LogDebug, "augmented schema", rpc.KV{Key: "columns", Value: strconv.Itoa(out.Len())})
	return emptyRecord(s.mem, as), nil
}

// emptyRecord returns a zero-row batch whose schema carries the result.
func emptyRecord(mem memory.Allocator, schema *arrow.Schema) arrow.RecordBatch {
	cols := make([]arrow.Array, schema.NumFields())
	for i, f := range schema.Fields() {
		b := array.NewBuilder(mem, f.Type)
		cols[i] = b.NewArray()
		b.Release()
	}
	rec := array.NewRecordBatch(schema, cols, 0)
	for _, c := range cols {
		c.Release()
	}
	return rec
}

// toRpcError maps library errors to wire error types.
func toRpcError(err error) error {
	typ := rpc.ErrTypeRuntime
	switch {
	case errors.Is(err, synth.ErrColumnNotFound):
		typ = rpc.ErrTypeKey
	case errors.Is(err, synth.ErrInvalidSchema),
		errors.Is(err, synth.ErrInvalidArgument),
		errors.Is(err, ragged.ErrOutOfRange),
		errors.Is(err, ragged.ErrInvalidOffsets):
		typ = rpc.ErrTypeValue
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		typ = rpc.ErrTypeCancelled
	}
	return &rpc.RpcError{Type: typ, Message: err.Error()}
}

// RandomData calls random_data on c. The caller must release the result.
func RandomData(ctx context.Context, c rpc.Caller, p RandomDataParams) (arrow.RecordBatch, error) {
	resp, err := c.Call(ctx, MethodRandomData, p)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// AugmentSchema calls augment_schema on c and decodes the resulting schema.
func AugmentSchema(ctx context.Context, c rpc.Caller, p AugmentSchemaParams) (synth.Schema, error) {
	resp, err := c.Call(ctx, MethodAugmentSchema, p)
	if err != nil {
		return synth.Schema{}, err
	}
	defer resp.Result.Release()
	out, err := synth.SchemaFromArrow(resp.Result.Schema())
	if err != nil {
		return synth.Schema{}, fmt.Errorf("decoding augmented schema: %w", err)
	}
	return out, nil
}
