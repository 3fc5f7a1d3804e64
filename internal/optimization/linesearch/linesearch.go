// Package linesearch chooses step lengths along a descent direction.
//
// Both searches are lenient: when the try budget runs out they return the
// last step length instead of failing, and report the outcome through
// Step.Satisfied.
package linesearch

import (
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/optplay/internal/optimization"
)

const (
	defaultInitialStep   = 1.0
	defaultContraction   = 0.5
	defaultDecrease      = 1e-4
	defaultCurvature     = 0.9
	defaultMaxIterations = 20
)

// Names accepted by New.
const (
	NameNone   = "none"
	NameArmijo = "armijo"
	NameWolfe  = "wolfe"
)

// Step is the outcome of a line search.
type Step struct {
	// Alpha is the chosen step length.
	Alpha float64
	// Satisfied is false when the budget ran out and Alpha is a fallback.
	Satisfied bool
	// Trials is the number of trial points evaluated.
	Trials int
}

// LineSearcher picks a step length along d from x. The caller guarantees
// that d is a descent direction, i.e. ∇f(x)·d < 0.
type LineSearcher interface {
	Name() string
	Search(obj optimization.Objective, x, d []float64) (Step, error)
}

// New returns the line search registered under name with default
// parameters. "none" and the empty string return a nil LineSearcher.
func New(name string) (LineSearcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameNone:
		return nil, nil
	case NameArmijo:
		return Armijo{}, nil
	case NameWolfe:
		return Wolfe{}, nil
	default:
		return nil, optimization.NewErrorf(optimization.KindConfig, "unknown line search %q", name).
			WithComponent("linesearch").WithOperation("New")
	}
}

// origin evaluates φ(0) = f(x) and φ'(0) = ∇f(x)·d.
func origin(obj optimization.Objective, x, d []float64) (float64, float64, error) {
	f0, err := obj.Value(x)
	if err != nil {
		return 0, 0, err
	}
	g, err := obj.Gradient(x)
	if err != nil {
		return 0, 0, err
	}
	return f0, floats.Dot(g, d), nil
}

func checkUnit(name string, v float64) error {
	if v <= 0 || v >= 1 {
		return optimization.NewErrorf(optimization.KindConfig, "%s must be in (0, 1), got %g", name, v).
			WithComponent("linesearch")
	}
	return nil
}
