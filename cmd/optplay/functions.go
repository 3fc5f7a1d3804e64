package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/optplay/internal/optimization/benchmark"
	"github.com/copyleftdev/optplay/internal/optimization/descent"
)

func newFunctionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List benchmark objectives and optimizers",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDIM\tSTART\tMINIMUM\tEXPRESSION")
			for _, f := range benchmark.All() {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
					f.Name, f.Dim, joinFloats(f.Start), joinFloats(f.Minimum), f.Expression)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "\nmethods: %s\n", strings.Join(descent.Methods(), ", "))
			return err
		},
	}
}

func joinFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = fmt.Sprintf("%g", x)
	}
	return strings.Join(parts, ",")
}
