// Package playground turns user requests into optimization runs: it builds
// the objective, picks the method and line search, wires observers and
// produces reports and plotting data.
package playground

import (
	"strings"

	"github.com/copyleftdev/optplay/internal/expression"
	"github.com/copyleftdev/optplay/internal/optimization"
	"github.com/copyleftdev/optplay/internal/optimization/benchmark"
)

const component = "playground"

// ObjectiveSpec selects the objective: either an expression over named
// variables or a registered benchmark.
type ObjectiveSpec struct {
	Expression string   `json:"expression,omitempty"`
	Variables  []string `json:"variables,omitempty"`
	Benchmark  string   `json:"benchmark,omitempty"`
}

// resolved is a built objective with display information.
type resolved struct {
	objective optimization.Objective
	label     string
	variables []string
	dim       int
	start     []float64
}

func (s ObjectiveSpec) resolve(maxDim int) (*resolved, error) {
	const op = "ObjectiveSpec.resolve"

	expr := strings.TrimSpace(s.Expression)
	name := strings.ToLower(strings.TrimSpace(s.Benchmark))

	switch {
	case expr != "" && name != "":
		return nil, optimization.NewError(optimization.KindConfig, "give either an expression or a benchmark, not both").
			WithComponent(component).WithOperation(op)

	case name != "":
		fn, ok := benchmark.Lookup(name)
		if !ok {
			return nil, optimization.NewErrorf(optimization.KindConfig, "unknown benchmark %q, have %s",
				s.Benchmark, strings.Join(benchmark.Names(), ", ")).WithComponent(component).WithOperation(op)
		}
		return &resolved{
			objective: fn.Objective(),
			label:     fn.Name,
			variables: append([]string(nil), fn.Variables...),
			dim:       fn.Dim,
			start:     append([]float64(nil), fn.Start...),
		}, nil

	case expr != "":
		if maxDim > 0 && len(s.Variables) > maxDim {
			return nil, optimization.NewErrorf(optimization.KindConfig, "%d variables exceed the limit of %d",
				len(s.Variables), maxDim).WithComponent(component).WithOperation(op)
		}
		fn, err := expression.Compile(expr, s.Variables)
		if err != nil {
			return nil, err
		}
		return &resolved{
			objective: fn,
			label:     fn.Source(),
			variables: fn.Variables(),
			dim:       fn.Dim(),
		}, nil

	default:
		return nil, optimization.NewError(optimization.KindConfig, "an expression or a benchmark is required").
			WithComponent(component).WithOperation(op)
	}
}
