package optimization

import (
	"math"
	"sync/atomic"
)

// Objective is the function being minimized together with its gradient.
// Both methods receive a point of the objective's dimension and must not
// retain or modify it.
type Objective interface {
	Value(x []float64) (float64, error)
	Gradient(x []float64) ([]float64, error)
}

// Dimensioned is implemented by objectives that know their dimension.
type Dimensioned interface {
	Dim() int
}

// GradientResolver is implemented by objectives whose gradients are
// numerical approximations. GradientResolution returns the gradient norm at
// x, where the objective value is fx, below which the approximation cannot
// be told apart from rounding error.
type GradientResolver interface {
	GradientResolution(x []float64, fx float64) float64
}

// GradientResolution returns obj's gradient resolution at x, or zero when
// obj computes exact gradients.
func GradientResolution(obj Objective, x []float64, fx float64) float64 {
	if r, ok := obj.(GradientResolver); ok {
		return r.GradientResolution(x, fx)
	}
	return 0
}

// ScalarFunc evaluates an objective at positional coordinates.
type ScalarFunc func(x ...float64) (float64, error)

// GradientFunc evaluates the gradient at positional coordinates, returning
// one partial derivative per coordinate in declared order.
type GradientFunc func(x ...float64) ([]float64, error)

// FuncObjective adapts a pair of positional callables to Objective.
type FuncObjective struct {
	value    ScalarFunc
	gradient GradientFunc
	dim      int
}

// NewObjective wraps f and grad. A positive dim enables dimension checks on
// every call; zero disables them.
func NewObjective(f ScalarFunc, grad GradientFunc, dim int) *FuncObjective {
	return &FuncObjective{value: f, gradient: grad, dim: dim}
}

// Dim returns the declared dimension, or zero when unchecked.
func (o *FuncObjective) Dim() int {
	return o.dim
}

// Value implements Objective.
func (o *FuncObjective) Value(x []float64) (float64, error) {
	const op = "FuncObjective.Value"
	if err := o.checkDim(x, op); err != nil {
		return 0, err
	}
	v, err := o.value(x...)
	if err != nil {
		if _, ok := IsOptimizationError(err); ok {
			return 0, err
		}
		return 0, WrapError(err, KindEvaluation, "objective evaluation failed").WithOperation(op)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, NewErrorf(KindEvaluation, "objective value %g is not finite at %v", v, x).WithOperation(op)
	}
	return v, nil
}

// Gradient implements Objective.
func (o *FuncObjective) Gradient(x []float64) ([]float64, error) {
	const op = "FuncObjective.Gradient"
	if err := o.checkDim(x, op); err != nil {
		return nil, err
	}
	g, err := o.gradient(x...)
	if err != nil {
		if _, ok := IsOptimizationError(err); ok {
			return nil, err
		}
		return nil, WrapError(err, KindEvaluation, "gradient evaluation failed").WithOperation(op)
	}
	if len(g) != len(x) {
		return nil, NewErrorf(KindEvaluation, "gradient has %d components, point has %d",
			len(g), len(x)).WithOperation(op)
	}
	for i, v := range g {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, NewErrorf(KindEvaluation, "gradient component %d is not finite at %v", i, x).WithOperation(op)
		}
	}
	return g, nil
}

func (o *FuncObjective) checkDim(x []float64, op string) error {
	if o.dim > 0 && len(x) != o.dim {
		return NewErrorf(KindEvaluation, "point has dimension %d, objective expects %d",
			len(x), o.dim).WithOperation(op)
	}
	return nil
}

// CountingObjective wraps an Objective and counts evaluations. It is safe
// for concurrent use.
type CountingObjective struct {
	inner     Objective
	values    atomic.Int64
	gradients atomic.Int64
}

// NewCountingObjective wraps inner.
func NewCountingObjective(inner Objective) *CountingObjective {
	return &CountingObjective{inner: inner}
}

// Value implements Objective.
func (c *CountingObjective) Value(x []float64) (float64, error) {
	c.values.Add(1)
	return c.inner.Value(x)
}

// Gradient implements Objective.
func (c *CountingObjective) Gradient(x []float64) ([]float64, error) {
	c.gradients.Add(1)
	return c.inner.Gradient(x)
}

// Dim forwards the wrapped objective's dimension when it has one.
func (c *CountingObjective) Dim() int {
	if d, ok := c.inner.(Dimensioned); ok {
		return d.Dim()
	}
	return 0
}

// GradientResolution forwards to the wrapped objective.
func (c *CountingObjective) GradientResolution(x []float64, fx float64) float64 {
	return GradientResolution(c.inner, x, fx)
}

// ValueCalls returns the number of Value calls so far.
func (c *CountingObjective) ValueCalls() int64 {
	return c.values.Load()
}

// GradientCalls returns the number of Gradient calls so far.
func (c *CountingObjective) GradientCalls() int64 {
	return c.gradients.Load()
}
