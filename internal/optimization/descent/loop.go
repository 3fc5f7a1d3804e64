// Package descent implements first-order and quasi-Newton descent methods
// that share one iteration driver: evaluate, record, observe, check
// convergence, then step. A run that exhausts its budget still takes the
// step of its last iteration.
package descent

import (
	"context"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/optplay/internal/optimization"
)

// stepInfo describes the step that produced the next point.
type stepInfo struct {
	alpha     float64
	satisfied *bool
}

// stepper holds the per-run state of one algorithm.
type stepper interface {
	// perturb returns the gradient reported to observers and handed to
	// advance. Deterministic methods return grad itself.
	perturb(grad []float64) []float64
	// advance returns the point following x. It must not modify x or grad.
	advance(k int, x, grad, used []float64) ([]float64, stepInfo, error)
}

// run drives the shared iteration loop. newStepper is called once with the
// resolved configuration, so every run starts from fresh state.
func run(
	ctx context.Context,
	name string,
	logger *zap.Logger,
	config optimization.OptimizerConfig,
	newStepper func(cfg optimization.OptimizerConfig) (stepper, error),
) (*optimization.OptimizationResult, error) {
	cfg, err := config.Resolve()
	if err != nil {
		if e, ok := optimization.IsOptimizationError(err); ok {
			e.WithComponent(name)
		}
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := newStepper(cfg)
	if err != nil {
		return nil, err
	}

	logger.Debug("starting run",
		zap.String("method", name),
		zap.Int("dimension", len(cfg.Initial)),
		zap.Float64("tolerance", cfg.Tolerance),
		zap.Int("max_iterations", cfg.MaxIterations),
	)

	x := cfg.Initial
	history := make([]optimization.IterationRecord, 0, historyCapacity(cfg.MaxIterations))
	var prev *stepInfo

	for k := 1; ; k++ {
		select {
		case <-ctx.Done():
			logger.Debug("run cancelled", zap.String("method", name), zap.Int("iteration", k))
			return nil, optimization.WrapError(ctx.Err(), optimization.KindCancelled, "run cancelled").
				WithComponent(name).WithOperation("Optimize")
		default:
		}

		grad, err := cfg.Objective.Gradient(x)
		if err != nil {
			return nil, fail(name, k, err)
		}
		fx, err := cfg.Objective.Value(x)
		if err != nil {
			return nil, fail(name, k, err)
		}
		norm := floats.Norm(grad, 2)
		used := s.perturb(grad)

		rec := optimization.IterationRecord{
			Iteration:    k,
			Point:        clone(x),
			Value:        fx,
			Gradient:     clone(grad),
			GradientNorm: norm,
		}
		if prev != nil {
			alpha := prev.alpha
			rec.Step = &alpha
			rec.StepSatisfied = prev.satisfied
		}
		history = append(history, rec)

		if cfg.Observer != nil {
			observed := rec.Clone()
			observed.Gradient = clone(used)
			cfg.Observer.Observe(observed)
		}

		if norm < cfg.Tolerance {
			if floor := optimization.GradientResolution(cfg.Objective, x, fx); floor >= cfg.Tolerance {
				return nil, optimization.NewErrorf(optimization.KindNumericDegeneracy,
					"gradient norm %g at iteration %d is below the gradient resolution %g; use a tolerance above it",
					norm, k, floor).WithComponent(name).WithOperation("Optimize")
			}
			return finish(logger, name, optimization.StatusConverged, x, fx, norm, k, history), nil
		}
		if cfg.MaxIterations == 0 {
			return finish(logger, name, optimization.StatusMaxIterations, x, fx, norm, k, history), nil
		}

		next, info, err := s.advance(k, x, grad, used)
		if err != nil {
			return nil, fail(name, k, err)
		}
		x = next
		prev = &info

		if k >= cfg.MaxIterations {
			// The last step is taken but not recorded; the result describes
			// the point it produced.
			if grad, err = cfg.Objective.Gradient(x); err != nil {
				return nil, fail(name, k, err)
			}
			if fx, err = cfg.Objective.Value(x); err != nil {
				return nil, fail(name, k, err)
			}
			return finish(logger, name, optimization.StatusMaxIterations, x, fx, floats.Norm(grad, 2), k, history), nil
		}
	}
}

func finish(
	logger *zap.Logger,
	name string,
	status optimization.Status,
	x []float64,
	fx, norm float64,
	k int,
	history []optimization.IterationRecord,
) *optimization.OptimizationResult {
	logger.Debug("run finished",
		zap.String("method", name),
		zap.String("status", string(status)),
		zap.Int("iterations", k),
		zap.Float64("value", fx),
		zap.Float64("gradient_norm", norm),
	)
	return &optimization.OptimizationResult{
		X:            clone(x),
		Value:        fx,
		GradientNorm: norm,
		Iterations:   k,
		Converged:    status == optimization.StatusConverged,
		Status:       status,
		History:      history,
	}
}

// fail keeps the kind of err and adds run context. Errors without a kind
// come from user callables and count as evaluation failures.
func fail(name string, k int, err error) error {
	kind := optimization.KindOf(err)
	if kind == optimization.KindUnknown {
		kind = optimization.KindEvaluation
	}
	return optimization.WrapErrorf(err, kind, "iteration %d", k).
		WithComponent(name).WithOperation("Optimize")
}

func historyCapacity(maxIter int) int {
	const limit = 1024
	if maxIter < 1 {
		return 1
	}
	if maxIter > limit {
		return limit
	}
	return maxIter
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}
