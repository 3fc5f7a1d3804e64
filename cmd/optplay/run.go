package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/optplay/internal/config"
	"github.com/copyleftdev/optplay/internal/expression"
	"github.com/copyleftdev/optplay/internal/optimization"
	"github.com/copyleftdev/optplay/internal/playground"
)

type runOptions struct {
	expr       string
	vars       string
	x0         string
	benchmark  string
	method     string
	lineSearch string
	lr         float64
	tol        float64
	maxIter    int
	seed       uint64
	noise      float64
	asJSON     bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single optimization",
		Long: `Minimizes an expression such as "x**2 + y**2" over the given variables, or
a registered benchmark, and prints the per-iteration summary table.`,
		Example: `  optplay run --expr "x**2 + y**2" --vars x,y --x0 3,4 --method bfgs --line-search wolfe
  optplay run --benchmark rosenbrock --method bfgs --line-search armijo --max-iter 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := o.request(cmd)
			if err != nil {
				return err
			}

			defaults := config.DefaultOptimization()
			// Runs are interrupted with a signal rather than a deadline
			defaults.RunTimeout = 0
			runner := playground.NewRunner(defaults, root.engineLogger(cmd.ErrOrStderr()), nil)

			recorder := optimization.NewRecorder()
			report, err := runner.Execute(cmd.Context(), req, recorder)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if o.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if err := recorder.WriteSummary(out); err != nil {
				return err
			}
			return writeReport(out, report)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.expr, "expr", "", `Objective expression, e.g. "x**2 + y**2"`)
	f.StringVar(&o.vars, "vars", "x,y", "Comma-separated variable names, in the order of --x0")
	f.StringVar(&o.x0, "x0", "", "Initial point, e.g. 3,4 (defaults to the benchmark start)")
	f.StringVar(&o.benchmark, "benchmark", "", "Registered benchmark to minimize instead of --expr")
	f.StringVar(&o.method, "method", "gradient_descent", "Optimizer: gradient_descent (gd), bfgs, adam, sgd")
	f.StringVar(&o.lineSearch, "line-search", "none", "Line search for gradient descent and BFGS: none, armijo, wolfe")
	f.Float64Var(&o.lr, "lr", 0, "Learning rate: GD step size, Adam alpha, SGD step size (0 selects 0.01)")
	f.Float64Var(&o.tol, "tol", optimization.DefaultTolerance, "Gradient-norm tolerance")
	f.IntVar(&o.maxIter, "max-iter", optimization.DefaultMaxIterations, "Maximum number of iterations")
	f.Uint64Var(&o.seed, "seed", 0, "SGD noise seed (0 draws a random one)")
	f.Float64Var(&o.noise, "noise", 0, "SGD noise standard deviation, 0 disables the noise (unset selects 0.001)")
	f.BoolVar(&o.asJSON, "json", false, "Print the full report as JSON")
	cmd.MarkFlagsMutuallyExclusive("expr", "benchmark")
	cmd.MarkFlagsOneRequired("expr", "benchmark")

	return cmd
}

func (o *runOptions) request(cmd *cobra.Command) (playground.Request, error) {
	req := playground.Request{
		Method:       o.method,
		LineSearch:   o.lineSearch,
		LearningRate: o.lr,
		Tolerance:    o.tol,
		Seed:         o.seed,
	}
	maxIter := o.maxIter
	req.MaxIterations = &maxIter
	if cmd.Flags().Changed("noise") {
		noise := o.noise
		req.NoiseScale = &noise
	}

	if o.benchmark != "" {
		req.Benchmark = o.benchmark
	} else {
		vars, err := expression.ParseVariables(o.vars)
		if err != nil {
			return req, err
		}
		req.Expression = o.expr
		req.Variables = vars
	}

	if cmd.Flags().Changed("x0") || o.x0 != "" {
		x0, err := expression.ParseVector(o.x0)
		if err != nil {
			return req, err
		}
		req.Initial = x0
	}
	return req, nil
}

func writeReport(w io.Writer, r *playground.Report) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\nmethod:      %s", r.Method)
	if r.LineSearch != "" && r.LineSearch != "none" {
		fmt.Fprintf(&b, " (%s line search)", r.LineSearch)
	}
	fmt.Fprintf(&b, "\nobjective:   %s\n", r.Objective)
	fmt.Fprintf(&b, "status:      %s after %d iterations\n", r.Status, r.Iterations)
	fmt.Fprintf(&b, "x*:          %s\n", formatPoint(r.Variables, r.X))
	fmt.Fprintf(&b, "f(x*):       %.10g\n", r.Value)
	fmt.Fprintf(&b, "‖∇f(x*)‖:    %.3e\n", r.GradientNorm)
	fmt.Fprintf(&b, "evaluations: %d f, %d ∇f\n", r.ValueCalls, r.GradientCalls)
	fmt.Fprintf(&b, "elapsed:     %s\n", r.Elapsed)
	_, err := io.WriteString(w, b.String())
	return err
}

func formatPoint(names []string, x []float64) string {
	parts := make([]string, len(x))
	for i, v := range x {
		if i < len(names) {
			parts[i] = fmt.Sprintf("%s=%.8g", names[i], v)
		} else {
			parts[i] = fmt.Sprintf("%.8g", v)
		}
	}
	return strings.Join(parts, ", ")
}
