package linesearch

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/optplay/internal/optimization"
)

// Wolfe searches for a step meeting the weak Wolfe conditions by shrinking
// when sufficient decrease fails and growing when the curvature condition
// fails. Zero fields select α₀=1, ρ=0.5, c₁=1e-4, c₂=0.9, M=20.
//
// Shrinking and growing by reciprocal factors can cycle on pathological
// objectives; the try budget bounds that.
type Wolfe struct {
	InitialStep   float64
	Contraction   float64 // ρ; growth uses 1/ρ
	Decrease      float64 // c₁
	Curvature     float64 // c₂, must exceed c₁
	MaxIterations int
}

// Name implements LineSearcher.
func (Wolfe) Name() string { return NameWolfe }

func (w Wolfe) withDefaults() (Wolfe, error) {
	a, err := Armijo{
		InitialStep:   w.InitialStep,
		Contraction:   w.Contraction,
		Decrease:      w.Decrease,
		MaxIterations: w.MaxIterations,
	}.withDefaults()
	if err != nil {
		return w, err
	}
	w.InitialStep, w.Contraction, w.Decrease, w.MaxIterations =
		a.InitialStep, a.Contraction, a.Decrease, a.MaxIterations

	if w.Curvature == 0 {
		w.Curvature = defaultCurvature
	}
	if err := checkUnit("curvature", w.Curvature); err != nil {
		return w, err
	}
	if w.Curvature <= w.Decrease {
		return w, optimization.NewErrorf(optimization.KindConfig,
			"curvature (%g) must exceed decrease (%g)", w.Curvature, w.Decrease).WithComponent("linesearch")
	}
	return w, nil
}

// Search implements LineSearcher.
func (w Wolfe) Search(obj optimization.Objective, x, d []float64) (Step, error) {
	w, err := w.withDefaults()
	if err != nil {
		return Step{}, err
	}

	f0, g0, err := origin(obj, x, d)
	if err != nil {
		return Step{}, err
	}

	alpha := w.InitialStep
	trial := make([]float64, len(x))
	for i := 0; i < w.MaxIterations; i++ {
		floats.AddScaledTo(trial, x, alpha, d)
		f, err := obj.Value(trial)
		if err != nil {
			return Step{}, err
		}
		grad, err := obj.Gradient(trial)
		if err != nil {
			return Step{}, err
		}
		g := floats.Dot(grad, d)

		switch {
		case !optimize.ArmijoConditionMet(f, f0, g0, alpha, w.Decrease):
			alpha *= w.Contraction
		case !optimize.WeakWolfeConditionsMet(f, g, f0, g0, alpha, w.Decrease, w.Curvature):
			alpha /= w.Contraction
		default:
			return Step{Alpha: alpha, Satisfied: true, Trials: i + 1}, nil
		}
	}
	return Step{Alpha: alpha, Trials: w.MaxIterations}, nil
}
