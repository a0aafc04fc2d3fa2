// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package rpcotel adds OpenTelemetry tracing and metrics to an rpc.Server
// through its dispatch hook.
//
// Usage:
//
//	server := rpc.NewServer()
//	service.Register(server)
//	rpcotel.InstrumentServer(server, rpcotel.DefaultConfig())
package rpcotel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Query-farm/vgi-synth/rpc"
)

const instrumentationName = "vgi_synth"

// Config configures instrumentation.
type Config struct {
	// TracerProvider defaults to otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
	// MeterProvider defaults to otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
	// Propagator extracts trace context (traceparent/tracestate) from the
	// request metadata. Defaults to otel.GetTextMapPropagator().
	Propagator propagation.TextMapPropagator

	EnableTracing    bool
	EnableMetrics    bool
	RecordExceptions bool
	// ServiceName is the rpc.service attribute. Defaults to
	// Server.ServiceName() or "vgi-synth".
	ServiceName      string
	CustomAttributes []attribute.KeyValue
}

// DefaultConfig enables tracing, metrics and exception recording with the
// global providers.
func DefaultConfig() Config {
	return Config{
		EnableTracing:    true,
		EnableMetrics:    true,
		RecordExceptions: true,
	}
}

// InstrumentServer installs the hook with server.SetDispatchHook.
func InstrumentServer(server *rpc.Server, cfg Config) error {
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = server.ServiceName()
		if cfg.ServiceName == "" {
			cfg.ServiceName = "vgi-synth"
		}
	}

	h := &hook{
		cfg:    cfg,
		tracer: cfg.TracerProvider.Tracer(instrumentationName),
	}
	if cfg.EnableMetrics {
		meter := cfg.MeterProvider.Meter(instrumentationName)
		var err error
		h.requests, err = meter.Int64Counter("rpc.server.requests",
			metric.WithUnit("{request}"),
			metric.WithDescription("Number of RPC requests"),
		)
		if err != nil {
			return fmt.Errorf("creating request counter: %w", err)
		}
		h.duration, err = meter.Float64Histogram("rpc.server.duration",
			metric.WithUnit("s"),
			metric.WithDescription("Duration of RPC requests"),
		)
		if err != nil {
			return fmt.Errorf("creating duration histogram: %w", err)
		}
		h.rows, err = meter.Int64Counter("vgi_synth.rows_generated",
			metric.WithUnit("{row}"),
			metric.WithDescription("Rows returned by successful calls"),
		)
		if err != nil {
			return fmt.Errorf("creating row counter: %w", err)
		}
	}

	server.SetDispatchHook(h)
	return nil
}

type hook struct {
	cfg      Config
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
	rows     metric.Int64Counter
}

type spanToken struct {
	span  trace.Span
	start time.Time
}

func (h *hook) OnDispatchStart(ctx context.Context, info rpc.DispatchInfo) (context.Context, rpc.HookToken) {
	if h.cfg.Propagator != nil && info.TransportMetadata != nil {
		ctx = h.cfg.Propagator.Extract(ctx, propagation.MapCarrier(info.TransportMetadata))
	}
	if !h.cfg.EnableTracing {
		return ctx, &spanToken{start: time.Now()}
	}

	attrs := []attribute.KeyValue{
		attribute.String("rpc.system", "vgi_rpc"),
		attribute.String("rpc.service", h.cfg.ServiceName),
		attribute.String("rpc.method", info.Method),
		attribute.String("rpc.vgi_rpc.server_id", info.ServerID),
	}
	if info.RequestID != "" {
		attrs = append(attrs, attribute.String("rpc.vgi_rpc.request_id", info.RequestID))
	}
	attrs = append(attrs, h.cfg.CustomAttributes...)
	if v := info.TransportMetadata["remote_addr"]; v != "" {
		attrs = append(attrs, attribute.String("net.peer.ip", v))
	}
	if v := info.TransportMetadata["user_agent"]; v != "" {
		attrs = append(attrs, attribute.String("user_agent.original", v))
	}

	ctx, span := h.tracer.Start(ctx, "vgi_rpc/"+info.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
	return ctx, &spanToken{span: span, start: time.Now()}
}

func (h *hook) OnDispatchEnd(ctx context.Context, token rpc.HookToken, info rpc.DispatchInfo, stats *rpc.CallStatistics, err error) {
	st, ok := token.(*spanToken)
	if !ok {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
	}

	if h.cfg.EnableMetrics {
		attrs := metric.WithAttributes(
			attribute.String("rpc.system", "vgi_rpc"),
			attribute.String("rpc.service", h.cfg.ServiceName),
			attribute.String("rpc.method", info.Method),
			attribute.String("status", status),
		)
		h.requests.Add(ctx, 1, attrs)
		h.duration.Record(ctx, time.Since(st.start).Seconds(), attrs)
		if err == nil && stats != nil {
			h.rows.Add(ctx, stats.OutputRows, attrs)
		}
	}

	if st.span == nil {
		return
	}
	defer st.span.End()
	if !st.span.IsRecording() {
		return
	}
	if stats != nil {
		st.span.SetAttributes(
			attribute.Int64("rpc.vgi_rpc.input_rows", stats.InputRows),
			attribute.Int64("rpc.vgi_rpc.output_rows", stats.OutputRows),
			attribute.Int64("rpc.vgi_rpc.input_bytes", stats.InputBytes),
			attribute.Int64("rpc.vgi_rpc.output_bytes", stats.OutputBytes),
		)
	}
	if err == nil {
		st.span.SetStatus(codes.Ok, "")
		return
	}
	st.span.SetStatus(codes.Error, err.Error())
	if h.cfg.RecordExceptions {
		st.span.RecordError(err)
	}
	errType := fmt.Sprintf("%T", err)
	var rpcErr *rpc.RpcError
	if errors.As(err, &rpcErr) {
		errType = rpcErr.Type
	}
	st.span.SetAttributes(attribute.String("rpc.vgi_rpc.error_type", errType))
}
