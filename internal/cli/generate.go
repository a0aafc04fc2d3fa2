// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Query-farm/vgi-synth/rpc"
	"github.com/Query-farm/vgi-synth/service"
	"github.com/Query-farm/vgi-synth/sink"
	"github.com/Query-farm/vgi-synth/synth"
)

type generateOptions struct {
	schemaPath       string
	rows             int
	shards           int
	concurrency      int
	format           string
	codec            string
	zstd             bool
	seed             int64
	maxSessionLength int
	minSessionLength int
	out              string
	prefix           string
	remote           string
}

func newGenerateCmd() *cobra.Command {
	var opts generateOptions
	cmd := &cobra.Command{
		Use:   "generate SCHEMA",
		Short: "Generate shards of synthetic data for a schema file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.schemaPath = args[0]
			seeded := cmd.Flags().Changed("seed")
			return runGenerate(cmd, opts, seeded, nil)
		},
	}
	f := cmd.Flags()
	f.IntVarP(&opts.rows, "rows", "n", 1000, "rows per shard")
	f.IntVar(&opts.shards, "shards", 1, "number of shards")
	f.IntVar(&opts.concurrency, "concurrency", runtime.NumCPU(), "shards generated in parallel")
	f.StringVar(&opts.format, "format", string(synth.FormatArrowStream), "output format (arrows, arrow, parquet)")
	f.StringVar(&opts.codec, "codec", "", "buffer compression inside the file (zstd, lz4)")
	f.BoolVar(&opts.zstd, "zstd", false, "wrap each shard in a zstd frame and add .zst")
	f.Int64Var(&opts.seed, "seed", 0, "base RNG seed; shard i uses seed+i (random when unset)")
	f.IntVar(&opts.maxSessionLength, "max-session-length", 0, "upper session length bound, 0 disables sessions")
	f.IntVar(&opts.minSessionLength, "min-session-length", synth.DefaultMinSessionLength, "lower session length bound")
	f.StringVarP(&opts.out, "out", "o", ".", "output directory or s3://bucket/prefix")
	f.StringVar(&opts.prefix, "prefix", "part", "shard file name prefix")
	f.StringVar(&opts.remote, "remote", "", "generate on a vgi-synth HTTP server, e.g. http://host:8080/vgi")
	return cmd
}

// shardResult is one written shard.
type shardResult struct {
	Name string
	Rows int64
	Seed int64
}

// runGenerate writes the shards to dst, or to the sink named by --out when
// dst is nil.
func runGenerate(cmd *cobra.Command, opts generateOptions, seeded bool, dst sink.Sink) error {
	ctx := cmd.Context()
	if opts.rows < 0 || opts.shards < 1 {
		return fmt.Errorf("%w: --rows must be >= 0 and --shards >= 1", synth.ErrInvalidArgument)
	}
	format, err := synth.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	codec, err := parseCodec(opts.codec)
	if err != nil {
		return err
	}
	schema, err := synth.LoadSchemaFile(opts.schemaPath)
	if err != nil {
		return err
	}
	if dst == nil {
		dst, err = sink.Open(ctx, opts.out)
		if err != nil {
			return err
		}
	}

	baseSeed := opts.seed
	if !seeded {
		baseSeed = time.Now().UnixNano()
	}
	runID := uuid.NewString()
	logger := slog.Default().With("run_id", runID)

	produce := localProducer(schema, opts)
	if opts.remote != "" {
		produce, err = remoteProducer(schema, opts)
		if err != nil {
			return err
		}
	}

	results := make([]shardResult, opts.shards)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.concurrency, 1))
	start := time.Now()
	for i := range opts.shards {
		g.Go(func() error {
			seed := baseSeed + int64(i)
			rec, err := produce(gctx, seed)
			if err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			defer rec.Release()

			data, err := synth.EncodeRecord(rec, format, synth.WriteOptions{Codec: codec, Zstd: opts.zstd})
			if err != nil {
				return fmt.Errorf("shard %d: encoding: %w", i, err)
			}
			name := shardName(opts.prefix, i, runID, format, opts.zstd)
			if err := dst.Put(gctx, name, data); err != nil {
				return fmt.Errorf("shard %d: %w", i, err)
			}
			logger.Debug("wrote shard", "name", name, "rows", rec.NumRows(), "bytes", len(data), "seed", seed)
			results[i] = shardResult{Name: name, Rows: rec.NumRows(), Seed: seed}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("generated", "shards", opts.shards, "rows", opts.rows*opts.shards,
		"format", format, "out", opts.out, "elapsed", time.Since(start))
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d rows\tseed=%d\n", r.Name, r.Rows, r.Seed)
	}
	return nil
}

type producer func(ctx context.Context, seed int64) (arrow.RecordBatch, error)

func localProducer(schema synth.Schema, opts generateOptions) producer {
	return func(ctx context.Context, seed int64) (arrow.RecordBatch, error) {
		batch, err := synth.RandomData(ctx, schema, opts.rows,
			synth.WithSeed(seed),
			synth.WithSessionLength(opts.minSessionLength, opts.maxSessionLength),
		)
		if err != nil {
			return nil, err
		}
		defer batch.Release()
		return batch.Record()
	}
}

func remoteProducer(schema synth.Schema, opts generateOptions) (producer, error) {
	data, err := synth.MarshalSchemaIPC(schema)
	if err != nil {
		return nil, err
	}
	client := rpc.NewHTTPClient(opts.remote)
	client.Compress = true
	return func(ctx context.Context, seed int64) (arrow.RecordBatch, error) {
		return service.RandomData(ctx, client, service.RandomDataParams{
			Schema:           data,
			NumRows:          int64(opts.rows),
			MaxSessionLength: int64(opts.maxSessionLength),
			MinSessionLength: int64(opts.minSessionLength),
			Seed:             &seed,
		})
	}, nil
}

func shardName(prefix string, i int, runID string, f synth.Format, zstd bool) string {
	name := fmt.Sprintf("%s-%05d-%s%s", prefix, i, runID[:8], f.Extension())
	if zstd {
		name += ".zst"
	}
	return name
}

func parseCodec(s string) (synth.Codec, error) {
	switch c := synth.Codec(s); c {
	case synth.CodecNone, synth.CodecZstd, synth.CodecLZ4:
		return c, nil
	case "none":
		return synth.CodecNone, nil
	default:
		return "", fmt.Errorf("%w: unknown codec %q (want zstd or lz4)", synth.ErrInvalidArgument, s)
	}
}
