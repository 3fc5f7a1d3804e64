package descent

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/copyleftdev/optplay/internal/optimization"
)

// Adam defaults.
const (
	DefaultAdamLearningRate = 0.01
	DefaultAdamBeta1        = 0.9
	DefaultAdamBeta2        = 0.999
	DefaultAdamEpsilon      = 1e-8
)

// Adam scales each coordinate's step by bias-corrected moment estimates:
//
//	m = β1·m + (1-β1)·g
//	v = β2·v + (1-β2)·g²
//	x = x - α·m̂/(√v̂ + ε),  m̂ = m/(1-β1^k), v̂ = v/(1-β2^k)
//
// Convergence is judged on the raw gradient norm. Zero fields select the
// defaults α=0.01, β1=0.9, β2=0.999, ε=1e-8.
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	Logger       *zap.Logger
}

// NewAdam creates an Adam optimizer with default moment parameters.
func NewAdam(learningRate float64) *Adam {
	return &Adam{LearningRate: learningRate}
}

// Name implements optimization.Optimizer.
func (*Adam) Name() string { return MethodAdam }

func (a Adam) withDefaults() (Adam, error) {
	if a.LearningRate == 0 {
		a.LearningRate = DefaultAdamLearningRate
	}
	if a.Beta1 == 0 {
		a.Beta1 = DefaultAdamBeta1
	}
	if a.Beta2 == 0 {
		a.Beta2 = DefaultAdamBeta2
	}
	if a.Epsilon == 0 {
		a.Epsilon = DefaultAdamEpsilon
	}

	switch {
	case a.LearningRate < 0:
		return a, optimization.NewErrorf(optimization.KindConfig, "learning rate must be positive, got %g", a.LearningRate)
	case a.Beta1 < 0 || a.Beta1 >= 1:
		return a, optimization.NewErrorf(optimization.KindConfig, "beta1 must be in [0, 1), got %g", a.Beta1)
	case a.Beta2 < 0 || a.Beta2 >= 1:
		return a, optimization.NewErrorf(optimization.KindConfig, "beta2 must be in [0, 1), got %g", a.Beta2)
	case a.Epsilon < 0:
		return a, optimization.NewErrorf(optimization.KindConfig, "epsilon must be positive, got %g", a.Epsilon)
	}
	return a, nil
}

// Optimize implements optimization.Optimizer.
func (a *Adam) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	params, err := a.withDefaults()
	if err != nil {
		return nil, err.(*optimization.Error).WithComponent(MethodAdam)
	}

	return run(ctx, MethodAdam, a.Logger, config, func(cfg optimization.OptimizerConfig) (stepper, error) {
		n := len(cfg.Initial)
		return &adamRun{params: params, m: make([]float64, n), v: make([]float64, n)}, nil
	})
}

type adamRun struct {
	params Adam
	m, v   []float64
}

func (r *adamRun) perturb(grad []float64) []float64 { return grad }

func (r *adamRun) advance(k int, x, grad, _ []float64) ([]float64, stepInfo, error) {
	p := r.params
	c1 := 1 - math.Pow(p.Beta1, float64(k))
	c2 := 1 - math.Pow(p.Beta2, float64(k))

	next := make([]float64, len(x))
	for i, g := range grad {
		r.m[i] = p.Beta1*r.m[i] + (1-p.Beta1)*g
		r.v[i] = p.Beta2*r.v[i] + (1-p.Beta2)*g*g

		mHat := r.m[i] / c1
		vHat := r.v[i] / c2
		next[i] = x[i] - p.LearningRate*mHat/(math.Sqrt(vHat)+p.Epsilon)
	}
	return next, stepInfo{alpha: p.LearningRate}, nil
}
