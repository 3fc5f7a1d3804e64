package descent

import (
	"strings"

	"go.uber.org/zap"

	"github.com/copyleftdev/optplay/internal/optimization"
	"github.com/copyleftdev/optplay/internal/optimization/linesearch"
)

// Method identifiers.
const (
	MethodGradientDescent = "gradient_descent"
	MethodBFGS            = "bfgs"
	MethodAdam            = "adam"
	MethodSGD             = "sgd"
)

var aliases = map[string]string{
	"gd":               MethodGradientDescent,
	"gradient descent": MethodGradientDescent,
	"gradient_descent": MethodGradientDescent,
	"bfgs":             MethodBFGS,
	"adam":             MethodAdam,
	"sgd":              MethodSGD,
	"stochastic":       MethodSGD,
}

// Methods lists the canonical method identifiers.
func Methods() []string {
	return []string{MethodGradientDescent, MethodBFGS, MethodAdam, MethodSGD}
}

// Params are the user-facing knobs shared by all methods. LearningRate is
// the gradient descent step size, Adam's α and SGD's step size.
type Params struct {
	LearningRate float64
	LineSearch   linesearch.LineSearcher
	// NoiseScale is SGD's noise standard deviation; nil selects the default.
	NoiseScale   *float64
	Seed         uint64
	Logger       *zap.Logger
}

// Canonical resolves a method name or alias.
func Canonical(method string) (string, error) {
	name, ok := aliases[strings.ToLower(strings.TrimSpace(method))]
	if !ok {
		return "", optimization.NewErrorf(optimization.KindConfig, "unknown method %q", method).
			WithComponent("descent").WithOperation("Canonical")
	}
	return name, nil
}

// New builds the optimizer registered under method. Adam and SGD ignore the
// line search.
func New(method string, p Params) (optimization.Optimizer, error) {
	name, err := Canonical(method)
	if err != nil {
		return nil, err
	}

	switch name {
	case MethodBFGS:
		return &BFGS{LineSearch: p.LineSearch, Logger: p.Logger}, nil
	case MethodAdam:
		return &Adam{LearningRate: p.LearningRate, Logger: p.Logger}, nil
	case MethodSGD:
		return &SGD{StepSize: p.LearningRate, NoiseScale: p.NoiseScale, Seed: p.Seed, Logger: p.Logger}, nil
	default:
		return &GradientDescent{StepSize: p.LearningRate, LineSearch: p.LineSearch, Logger: p.Logger}, nil
	}
}
