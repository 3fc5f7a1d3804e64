package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/optplay/internal/logging"
)

var version = "1.0.0"

type rootOptions struct {
	logLevel  string
	logFormat string
}

// engineLogger builds the zap logger handed to the optimization engine.
// Per-iteration output appears at debug level.
func (o *rootOptions) engineLogger(w io.Writer) *zap.Logger {
	return logging.NewZapLogger(logging.NewWithFormat(logging.ParseLevel(o.logLevel), logging.Format(o.logFormat), w))
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "optplay",
		Short: "Interactive playground for unconstrained optimization",
		Long: `optplay minimizes symbolic or benchmark objectives with gradient descent,
BFGS, Adam or SGD and prints the iteration history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json)")

	cmd.AddCommand(
		newRunCmd(opts),
		newFunctionsCmd(),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "optplay version %s\n", version)
		},
	}
}
