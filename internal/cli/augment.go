// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Query-farm/vgi-synth/rpc"
	"github.com/Query-farm/vgi-synth/service"
	"github.com/Query-farm/vgi-synth/synth"
)

type augmentOptions struct {
	out    string
	format string
	remote string
	synth.AugmentOptions
}

func newAugmentCmd() *cobra.Command {
	var opts augmentOptions
	cmd := &cobra.Command{
		Use:   "augment SCHEMA",
		Short: "Select and retag schema columns, turning sparse columns into lists",
		Long: "Select the columns listed under --conts, --cats and --labels, in that order, " +
			"replace their tags with those roles, and rebuild --sparse columns as list features.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAugment(cmd, args[0], opts)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&opts.Cats, "cats", nil, "categorical columns")
	f.StringSliceVar(&opts.Conts, "conts", nil, "continuous columns")
	f.StringSliceVar(&opts.Labels, "labels", nil, "target columns")
	f.StringSliceVar(&opts.SparseNames, "sparse", nil, "columns to turn into list features")
	f.StringToInt64Var(&opts.SparseMax, "sparse-max", nil, "value_count.max per sparse column, e.g. item=20")
	f.BoolVar(&opts.SparseAsDense, "sparse-as-dense", false, "mark sparse columns as padded instead of ragged")
	f.StringVarP(&opts.out, "out", "o", "", "output schema file (format by extension); stdout when empty")
	f.StringVar(&opts.format, "format", string(synth.SchemaJSON), "stdout format (json, yaml)")
	f.StringVar(&opts.remote, "remote", "", "augment on a vgi-synth HTTP server, e.g. http://host:8080/vgi")
	return cmd
}

func runAugment(cmd *cobra.Command, path string, opts augmentOptions) error {
	schema, err := synth.LoadSchemaFile(path)
	if err != nil {
		return err
	}

	out, err := augment(cmd, schema, opts)
	if err != nil {
		return err
	}
	slog.Debug("augmented schema", "in", schema.Len(), "out", out.Len())

	if opts.out != "" {
		return synth.SaveSchemaFile(opts.out, out)
	}
	data, err := synth.EncodeSchema(out, synth.SchemaFormat(opts.format))
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func augment(cmd *cobra.Command, schema synth.Schema, opts augmentOptions) (synth.Schema, error) {
	if opts.remote == "" {
		return synth.Augment(schema, opts.AugmentOptions)
	}
	data, err := synth.MarshalSchemaIPC(schema)
	if err != nil {
		return synth.Schema{}, err
	}
	return service.AugmentSchema(cmd.Context(), rpc.NewHTTPClient(opts.remote), service.AugmentSchemaParams{
		Schema:        data,
		Cats:          opts.Cats,
		Conts:         opts.Conts,
		Labels:        opts.Labels,
		SparseNames:   opts.SparseNames,
		SparseMax:     opts.SparseMax,
		SparseAsDense: opts.SparseAsDense,
	})
}
