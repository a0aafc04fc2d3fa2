// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Query-farm/vgi-synth/rpc"
	rpcotel "github.com/Query-farm/vgi-synth/rpc/otel"
	"github.com/Query-farm/vgi-synth/service"
)

type serveOptions struct {
	http             string
	unix             string
	prefix           string
	compressionLevel int
	debugErrors      bool
	serverID         string
	otelStdout       bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve random_data and augment_schema over vgi_rpc",
		Long: "Serve the generator over the vgi_rpc Arrow IPC protocol on stdin/stdout, " +
			"a unix socket (--unix) or HTTP (--http).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.http, "http", "", "listen address for HTTP, e.g. 127.0.0.1:8080")
	f.StringVar(&opts.unix, "unix", "", "unix socket path")
	f.StringVar(&opts.prefix, "prefix", "/vgi", "HTTP route prefix")
	f.IntVar(&opts.compressionLevel, "compression-level", 3, "zstd level for HTTP responses")
	f.BoolVar(&opts.debugErrors, "debug-errors", false, "include stack traces in error responses")
	f.StringVar(&opts.serverID, "server-id", "", "server ID reported in responses (random when empty)")
	f.BoolVar(&opts.otelStdout, "otel-stdout", false, "export traces and metrics to stderr")
	cmd.MarkFlagsMutuallyExclusive("http", "unix")
	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	ctx := cmd.Context()
	logger := slog.Default()

	server := rpc.NewServer()
	server.SetServiceName("vgi-synth")
	server.SetLogger(logger)
	server.SetDebugErrors(opts.debugErrors)
	if opts.serverID != "" {
		server.SetServerID(opts.serverID)
	}
	service.Register(server, service.WithLogger(logger))

	if opts.otelStdout {
		shutdown, err := setupStdoutTelemetry(server, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				logger.Error("telemetry shutdown", "err", err)
			}
		}()
	}

	switch {
	case opts.http != "":
		ln, err := net.Listen("tcp", opts.http)
		if err != nil {
			return err
		}
		return serveHTTP(ctx, server, ln, opts)
	case opts.unix != "":
		logger.Info("serving", "transport", "unix", "path", opts.unix, "server_id", server.ServerID())
		return server.ServeUnix(ctx, opts.unix)
	default:
		logger.Debug("serving", "transport", "stdio", "server_id", server.ServerID())
		server.RunStdio(ctx)
		return nil
	}
}

// serveHTTP serves until ctx is done, then shuts down gracefully.
func serveHTTP(ctx context.Context, server *rpc.Server, ln net.Listener, opts serveOptions) error {
	handler := rpc.NewHttpServerWithPrefix(server, opts.prefix)
	handler.SetCompressionLevel(opts.compressionLevel)
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	slog.Info("serving", "transport", "http", "addr", ln.Addr().String(), "prefix", opts.prefix,
		"server_id", server.ServerID())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// setupStdoutTelemetry installs the dispatch hook with SDK providers that
// export to w.
func setupStdoutTelemetry(server *rpc.Server, w io.Writer) (func(context.Context) error, error) {
	traceExp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(
		sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(30*time.Second)),
	))

	cfg := rpcotel.DefaultConfig()
	cfg.TracerProvider = tp
	cfg.MeterProvider = mp
	if err := rpcotel.InstrumentServer(server, cfg); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
