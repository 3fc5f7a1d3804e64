package descent

import (
	"context"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/optplay/internal/optimization"
	"github.com/copyleftdev/optplay/internal/optimization/linesearch"
)

const defaultStepSize = 0.01

// GradientDescent steps along -∇f, either by a fixed StepSize or by the
// length chosen by LineSearch.
type GradientDescent struct {
	// StepSize is used when LineSearch is nil. Zero selects 0.01.
	StepSize float64
	// LineSearch, when set, picks the step length every iteration.
	LineSearch linesearch.LineSearcher
	Logger     *zap.Logger
}

// NewGradientDescent creates a gradient descent optimizer.
func NewGradientDescent(stepSize float64, ls linesearch.LineSearcher) *GradientDescent {
	return &GradientDescent{StepSize: stepSize, LineSearch: ls}
}

// Name implements optimization.Optimizer.
func (*GradientDescent) Name() string { return MethodGradientDescent }

// Optimize implements optimization.Optimizer.
func (gd *GradientDescent) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	stepSize := gd.StepSize
	if stepSize == 0 {
		stepSize = defaultStepSize
	}
	if stepSize < 0 {
		return nil, optimization.NewErrorf(optimization.KindConfig, "step size must be positive, got %g", stepSize).
			WithComponent(MethodGradientDescent)
	}

	return run(ctx, MethodGradientDescent, gd.Logger, config, func(cfg optimization.OptimizerConfig) (stepper, error) {
		return &gradientRun{obj: cfg.Objective, stepSize: stepSize, ls: gd.LineSearch}, nil
	})
}

type gradientRun struct {
	obj      optimization.Objective
	stepSize float64
	ls       linesearch.LineSearcher
}

func (r *gradientRun) perturb(grad []float64) []float64 { return grad }

func (r *gradientRun) advance(_ int, x, grad, _ []float64) ([]float64, stepInfo, error) {
	d := make([]float64, len(grad))
	floats.ScaleTo(d, -1, grad)

	info := stepInfo{alpha: r.stepSize}
	if r.ls != nil {
		step, err := r.ls.Search(r.obj, x, d)
		if err != nil {
			return nil, stepInfo{}, err
		}
		info = stepInfo{alpha: step.Alpha, satisfied: &step.Satisfied}
	}

	next := make([]float64, len(x))
	floats.AddScaledTo(next, x, info.alpha, d)
	return next, info, nil
}
