// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rpcotel

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Query-farm/vgi-synth/rpc"
	"github.com/Query-farm/vgi-synth/service"
	"github.com/Query-farm/vgi-synth/synth"
)

func TestInstrumentServer(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	server := rpc.NewServer()
	server.SetServiceName("synth-test")
	service.Register(server)
	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	cfg.MeterProvider = mp
	require.NoError(t, InstrumentServer(server, cfg))

	serverR, clientW := io.Pipe()
	clientR, serverW := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Serve(serverR, serverW)
	}()
	client := rpc.NewClient(clientR, clientW)

	schema, err := synth.NewSchema(synth.ColumnSchema{Name: "x"})
	require.NoError(t, err)
	data, err := synth.MarshalSchemaIPC(schema)
	require.NoError(t, err)

	ctx := context.Background()
	rec, err := service.RandomData(ctx, client, service.RandomDataParams{Schema: data, NumRows: 5})
	require.NoError(t, err)
	rec.Release()
	_, err = client.Call(ctx, service.MethodAugmentSchema, service.AugmentSchemaParams{Schema: data, Cats: []string{"ghost"}})
	require.Error(t, err)

	clientW.Close()
	<-done

	ended := spans.GetSpans()
	require.Len(t, ended, 2)
	assert.Equal(t, "vgi_rpc/random_data", ended[0].Name)
	assert.Equal(t, codes.Ok, ended[0].Status.Code)
	assert.Contains(t, ended[0].Attributes, attribute.String("rpc.service", "synth-test"))
	assert.Contains(t, ended[0].Attributes, attribute.Int64("rpc.vgi_rpc.output_rows", 5))

	assert.Equal(t, "vgi_rpc/augment_schema", ended[1].Name)
	assert.Equal(t, codes.Error, ended[1].Status.Code)
	assert.Contains(t, ended[1].Attributes, attribute.String("rpc.vgi_rpc.error_type", rpc.ErrTypeKey))
	require.Len(t, ended[1].Events, 1)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	got := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			got[m.Name] = m.Data
		}
	}
	requests, ok := got["rpc.server.requests"].(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range requests.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	rows, ok := got["vgi_synth.rows_generated"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, rows.DataPoints, 1)
	assert.Equal(t, int64(5), rows.DataPoints[0].Value)

	_, ok = got["rpc.server.duration"].(metricdata.Histogram[float64])
	assert.True(t, ok)
}

func TestTracingDisabled(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))

	server := rpc.NewServer()
	service.Register(server)
	cfg := DefaultConfig()
	cfg.TracerProvider = tp
	cfg.EnableTracing = false
	cfg.EnableMetrics = false
	require.NoError(t, InstrumentServer(server, cfg))

	serverR, clientW := io.Pipe()
	clientR, serverW := io.Pipe()
	go server.Serve(serverR, serverW)
	defer clientW.Close()

	_, err := rpc.Describe(context.Background(), rpc.NewClient(clientR, clientW))
	require.NoError(t, err)
	_, err = rpc.NewClient(clientR, clientW).Call(context.Background(), service.MethodAugmentSchema, service.AugmentSchemaParams{})
	require.Error(t, err)
	assert.Empty(t, spans.GetSpans())
}
