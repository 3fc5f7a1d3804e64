package descent

import (
	"context"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/copyleftdev/optplay/internal/optimization"
)

const (
	defaultNoiseScale = 1e-3
	// seedStream is the PCG stream used for seeded runs.
	seedStream = 0x9e3779b97f4a7c15
)

// SGD descends along a noisy gradient ∇f + ξ, ξ ~ N(0, NoiseScale²) per
// coordinate. History and the convergence test use the true gradient;
// observers see the noisy one that was applied.
type SGD struct {
	// StepSize is the fixed step. Zero selects 0.01.
	StepSize   float64
	// NoiseScale is the noise standard deviation. Nil selects 1e-3 and
	// zero disables the noise.
	NoiseScale *float64
	// Seed fixes the noise stream when non-zero and Source is nil.
	Seed       uint64
	// Source overrides Seed. It is consumed by the run and must not be
	// shared between concurrent runs.
	Source     rand.Source
	Logger     *zap.Logger
}

// NewSGD creates an SGD optimizer. noiseScale is used as given, so zero
// yields plain gradient descent. A zero seed draws a fresh stream per run.
func NewSGD(stepSize, noiseScale float64, seed uint64) *SGD {
	return &SGD{StepSize: stepSize, NoiseScale: &noiseScale, Seed: seed}
}

// Name implements optimization.Optimizer.
func (*SGD) Name() string { return MethodSGD }

// Optimize implements optimization.Optimizer.
func (s *SGD) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	stepSize := s.StepSize
	if stepSize == 0 {
		stepSize = defaultStepSize
	}
	noise := defaultNoiseScale
	if s.NoiseScale != nil {
		noise = *s.NoiseScale
	}
	if stepSize < 0 || noise < 0 {
		return nil, optimization.NewErrorf(optimization.KindConfig,
			"step size and noise scale must not be negative, got %g and %g", stepSize, noise).WithComponent(MethodSGD)
	}

	return run(ctx, MethodSGD, s.Logger, config, func(optimization.OptimizerConfig) (stepper, error) {
		src := s.Source
		if src == nil {
			if s.Seed != 0 {
				src = rand.NewPCG(s.Seed, seedStream)
			} else {
				src = rand.NewPCG(rand.Uint64(), rand.Uint64())
			}
		}
		return &sgdRun{
			stepSize: stepSize,
			noise:    distuv.Normal{Mu: 0, Sigma: noise, Src: src},
		}, nil
	})
}

type sgdRun struct {
	stepSize float64
	noise    distuv.Normal
}

func (r *sgdRun) perturb(grad []float64) []float64 {
	if r.noise.Sigma == 0 {
		return grad
	}
	noisy := make([]float64, len(grad))
	for i, g := range grad {
		noisy[i] = g + r.noise.Rand()
	}
	return noisy
}

func (r *sgdRun) advance(_ int, x, _, used []float64) ([]float64, stepInfo, error) {
	next := make([]float64, len(x))
	floats.AddScaledTo(next, x, -r.stepSize, used)
	return next, stepInfo{alpha: r.stepSize}, nil
}
