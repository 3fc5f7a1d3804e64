package linesearch

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/optplay/internal/optimization"
)

// Armijo is a backtracking line search on the sufficient decrease
// condition. Zero fields select the defaults α₀=1, ρ=0.5, c=1e-4, M=20.
type Armijo struct {
	InitialStep   float64 // α₀
	Contraction   float64 // ρ, step multiplier after a rejected trial
	Decrease      float64 // c in φ(α) ≤ φ(0) + c·α·φ'(0)
	MaxIterations int     // M, number of trials
}

// Name implements LineSearcher.
func (Armijo) Name() string { return NameArmijo }

func (a Armijo) withDefaults() (Armijo, error) {
	if a.InitialStep == 0 {
		a.InitialStep = defaultInitialStep
	}
	if a.Contraction == 0 {
		a.Contraction = defaultContraction
	}
	if a.Decrease == 0 {
		a.Decrease = defaultDecrease
	}
	if a.MaxIterations == 0 {
		a.MaxIterations = defaultMaxIterations
	}

	if a.InitialStep < 0 {
		return a, optimization.NewErrorf(optimization.KindConfig, "initial step must be positive, got %g", a.InitialStep).
			WithComponent("linesearch")
	}
	if a.MaxIterations < 0 {
		return a, optimization.NewErrorf(optimization.KindConfig, "max iterations must be positive, got %d", a.MaxIterations).
			WithComponent("linesearch")
	}
	if err := checkUnit("contraction", a.Contraction); err != nil {
		return a, err
	}
	if err := checkUnit("decrease", a.Decrease); err != nil {
		return a, err
	}
	return a, nil
}

// Search implements LineSearcher. If no trial meets the Armijo condition
// the step left after the final contraction is returned unsatisfied.
func (a Armijo) Search(obj optimization.Objective, x, d []float64) (Step, error) {
	a, err := a.withDefaults()
	if err != nil {
		return Step{}, err
	}

	f0, g0, err := origin(obj, x, d)
	if err != nil {
		return Step{}, err
	}

	alpha := a.InitialStep
	trial := make([]float64, len(x))
	for i := 0; i < a.MaxIterations; i++ {
		floats.AddScaledTo(trial, x, alpha, d)
		f, err := obj.Value(trial)
		if err != nil {
			return Step{}, err
		}
		if optimize.ArmijoConditionMet(f, f0, g0, alpha, a.Decrease) {
			return Step{Alpha: alpha, Satisfied: true, Trials: i + 1}, nil
		}
		alpha *= a.Contraction
	}
	return Step{Alpha: alpha, Trials: a.MaxIterations}, nil
}
