// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Query-farm/vgi-synth/rpc"
	"github.com/Query-farm/vgi-synth/synth"
)

func newDescribeCmd() *cobra.Command {
	var remote string
	cmd := &cobra.Command{
		Use:   "describe [SCHEMA]",
		Short: "Show how each column of a schema will be generated",
		Long: "Show the resolved feature kind, value kind and output shape of every column. " +
			"With --remote, list the methods of a vgi-synth HTTP server instead.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote != "" {
				return describeRemote(cmd, remote)
			}
			if len(args) == 0 {
				return fmt.Errorf("describe needs a schema file or --remote")
			}
			schema, err := synth.LoadSchemaFile(args[0])
			if err != nil {
				return err
			}
			return describeSchema(cmd.OutOrStdout(), schema)
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "describe the methods of a vgi-synth HTTP server")
	return cmd
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func describeSchema(w io.Writer, schema synth.Schema) error {
	specs, err := synth.ResolveFeatures(schema)
	if err != nil {
		return err
	}
	table := newTable(w, []string{"NAME", "KIND", "VALUES", "SHAPE", "RANGE", "TAGS", "PROPERTIES"})
	for i, c := range schema.Columns() {
		spec := specs[i]
		shape := formatShape(spec.Shape)
		if spec.Kind == synth.KindVariableLength {
			shape = fmt.Sprintf("[<=%d]", spec.MaxLength)
			if c.IsRagged {
				shape += " ragged"
			}
		}
		valueRange := "[0,1)"
		if spec.Values == synth.ValuesInteger {
			valueRange = fmt.Sprintf("[1,%d)", spec.IntMax)
		}
		props := ""
		if len(c.Properties) > 0 {
			data, err := json.Marshal(c.Properties)
			if err != nil {
				return fmt.Errorf("column %s: %w", c.Name, err)
			}
			props = string(data)
		}
		table.Append([]string{c.Name, spec.Kind.String(), spec.Values.String(), shape, valueRange, c.Tags.String(), props})
	}
	table.Render()
	return nil
}

func formatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func describeRemote(cmd *cobra.Command, url string) error {
	methods, err := rpc.Describe(cmd.Context(), rpc.NewHTTPClient(url))
	if err != nil {
		return err
	}
	table := newTable(cmd.OutOrStdout(), []string{"METHOD", "PARAMS", "DOC"})
	for _, m := range methods {
		params := make([]string, 0, len(m.ParamTypes))
		for name, typ := range m.ParamTypes {
			p := name + " " + typ
			if def, ok := m.ParamDefaults[name]; ok {
				p += fmt.Sprintf(" = %v", def)
			}
			params = append(params, p)
		}
		sort.Strings(params)
		table.Append([]string{m.Name, strings.Join(params, ", "), m.Doc})
	}
	table.Render()
	return nil
}
