package optimization

import (
	"context"
	"math"
)

const (
	// DefaultTolerance is used when OptimizerConfig.Tolerance is zero.
	DefaultTolerance = 1e-6
	// DefaultMaxIterations is the iteration budget used by callers that do not
	// supply one.
	DefaultMaxIterations = 100

	// MinTolerance and MaxTolerance bound the accepted gradient-norm tolerance.
	MinTolerance = 1e-12
	MaxTolerance = 1e-1
)

// Optimizer defines the interface for iterative descent algorithms.
//
// Implementations hold configuration only. All per-run state is created
// inside Optimize, so a single Optimizer may serve concurrent runs.
type Optimizer interface {
	// Name returns the method identifier, e.g. "bfgs".
	Name() string

	// Optimize runs the algorithm from config.Initial until the gradient
	// norm drops below the tolerance or the iteration budget is spent.
	Optimize(ctx context.Context, config OptimizerConfig) (*OptimizationResult, error)
}

// OptimizerConfig contains the per-run inputs shared by every optimizer.
type OptimizerConfig struct {
	// Objective function to minimize
	Objective Objective

	// Initial point x0
	Initial []float64

	// Gradient-norm tolerance; zero selects DefaultTolerance
	Tolerance float64

	// Maximum number of iterations. Zero still records the initial point.
	MaxIterations int

	// Observer invoked once per iteration, may be nil
	Observer Observer
}

// Status describes why a run stopped.
type Status string

const (
	StatusConverged     Status = "converged"
	StatusMaxIterations Status = "max_iterations"
)

// OptimizationResult contains the result of an optimization run.
type OptimizationResult struct {
	// X is the final point. It is the last History point when the run
	// converged or MaxIterations is zero. Otherwise it is the point produced
	// by the step of the last iteration, which is not recorded. Value and
	// GradientNorm always describe X.
	X            []float64
	Value        float64
	GradientNorm float64
	Iterations   int
	Converged    bool
	Status       Status
	History      []IterationRecord
}

// Resolve returns a copy of c with defaults applied, or a ConfigError when
// the configuration cannot start a run.
func (c OptimizerConfig) Resolve() (OptimizerConfig, error) {
	const op = "OptimizerConfig.Resolve"

	if c.Objective == nil {
		return c, NewError(KindConfig, "objective is required").WithOperation(op)
	}
	if len(c.Initial) == 0 {
		return c, NewError(KindConfig, "initial point must have at least one coordinate").WithOperation(op)
	}
	for i, v := range c.Initial {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return c, NewErrorf(KindConfig, "initial point coordinate %d is not finite", i).WithOperation(op)
		}
	}
	if d, ok := c.Objective.(Dimensioned); ok && d.Dim() > 0 && d.Dim() != len(c.Initial) {
		return c, NewErrorf(KindConfig, "initial point has dimension %d, objective expects %d",
			len(c.Initial), d.Dim()).WithOperation(op)
	}

	if c.Tolerance == 0 {
		c.Tolerance = DefaultTolerance
	}
	if err := CheckTolerance(c.Tolerance); err != nil {
		return c, err
	}
	if c.MaxIterations < 0 {
		return c, NewErrorf(KindConfig, "max iterations must be non-negative, got %d", c.MaxIterations).WithOperation(op)
	}

	c.Initial = append([]float64(nil), c.Initial...)
	return c, nil
}

// CheckTolerance rejects tolerances outside [MinTolerance, MaxTolerance].
func CheckTolerance(tol float64) error {
	if !(tol >= MinTolerance && tol <= MaxTolerance) {
		return NewErrorf(KindConfig, "tolerance must be between %g and %g, got %g",
			MinTolerance, MaxTolerance, tol).WithOperation("CheckTolerance")
	}
	return nil
}
