// Package expression compiles objective strings such as "x**2 + sin(y)"
// into optimization objectives. Parsing and evaluation are done by
// expr-lang/expr; gradients are central finite differences.
package expression

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/vm"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/copyleftdev/optplay/internal/optimization"
)

const component = "expression"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// unary lists the math functions available to expressions on top of the
// expr builtins (abs, ceil, floor, round, max, min).
var unary = map[string]func(float64) float64{
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"asin":  math.Asin,
	"acos":  math.Acos,
	"atan":  math.Atan,
	"sinh":  math.Sinh,
	"cosh":  math.Cosh,
	"tanh":  math.Tanh,
	"exp":   math.Exp,
	"log":   math.Log,
	"log10": math.Log10,
	"log2":  math.Log2,
	"sqrt":  math.Sqrt,
}

var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "matches": true,
	"contains": true, "startsWith": true, "endsWith": true, "let": true,
	"if": true, "else": true, "nil": true, "true": true, "false": true,
}

var mathOptions = func() []expr.Option {
	opts := make([]expr.Option, 0, len(unary))
	for name, fn := range unary {
		opts = append(opts, expr.Function(name, func(params ...any) (any, error) {
			return fn(params[0].(float64)), nil
		}, new(func(float64) float64)))
	}
	return opts
}()

// Function is a compiled objective over named variables. It implements
// optimization.Objective and is safe for concurrent use.
type Function struct {
	source    string
	variables []string
	program   *vm.Program
}

// Compile parses source as a real-valued expression over variables, in
// positional order. Malformed expressions, invalid or duplicate variable
// names, and references to unknown names are ParseErrors.
func Compile(source string, variables []string) (*Function, error) {
	const op = "Compile"

	if strings.TrimSpace(source) == "" {
		return nil, optimization.NewError(optimization.KindParse, "expression is empty").
			WithComponent(component).WithOperation(op)
	}
	if len(variables) == 0 {
		return nil, optimization.NewError(optimization.KindParse, "at least one variable is required").
			WithComponent(component).WithOperation(op)
	}

	env := make(map[string]any, len(variables)+len(constants))
	for name, v := range constants {
		env[name] = v
	}
	seen := make(map[string]bool, len(variables))
	vars := make([]string, len(variables))
	for i, raw := range variables {
		name := strings.TrimSpace(raw)
		if err := checkVariable(name, seen); err != nil {
			return nil, err.WithComponent(component).WithOperation(op)
		}
		seen[name] = true
		vars[i] = name
		env[name] = 0.0
	}

	opts := append([]expr.Option{expr.Env(env), expr.AsFloat64()}, mathOptions...)
	program, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, optimization.WrapErrorf(err, optimization.KindParse, "cannot parse %q", source).
			WithComponent(component).WithOperation(op)
	}

	return &Function{
		source:    source,
		variables: vars,
		program:   program,
	}, nil
}

func checkVariable(name string, seen map[string]bool) *optimization.Error {
	switch {
	case !identifier.MatchString(name):
		return optimization.NewErrorf(optimization.KindParse, "invalid variable name %q", name)
	case seen[name]:
		return optimization.NewErrorf(optimization.KindParse, "duplicate variable %q", name)
	case keywords[name]:
		return optimization.NewErrorf(optimization.KindParse, "variable %q is a reserved word", name)
	}
	if _, ok := unary[name]; ok {
		return optimization.NewErrorf(optimization.KindParse, "variable %q shadows a function", name)
	}
	if _, ok := builtin.Index[name]; ok {
		return optimization.NewErrorf(optimization.KindParse, "variable %q shadows a function", name)
	}
	if _, ok := constants[name]; ok {
		return optimization.NewErrorf(optimization.KindParse, "variable %q shadows a constant", name)
	}
	return nil
}

// Source returns the expression text.
func (f *Function) Source() string { return f.source }

// Variables returns the variable names in positional order.
func (f *Function) Variables() []string {
	return append([]string(nil), f.variables...)
}

// Dim implements optimization.Dimensioned.
func (f *Function) Dim() int { return len(f.variables) }

func (f *Function) String() string {
	return fmt.Sprintf("f(%s) = %s", strings.Join(f.variables, ", "), f.source)
}

// Call evaluates the expression with args bound to the variables in order.
// Runtime failures and non-finite results are EvaluationErrors.
func (f *Function) Call(args ...float64) (float64, error) {
	const op = "Function.Call"

	if len(args) != len(f.variables) {
		return 0, optimization.NewErrorf(optimization.KindEvaluation, "got %d arguments, want %d",
			len(args), len(f.variables)).WithComponent(component).WithOperation(op)
	}

	env := make(map[string]any, len(f.variables)+len(constants))
	for name, v := range constants {
		env[name] = v
	}
	for i, name := range f.variables {
		env[name] = args[i]
	}

	out, err := expr.Run(f.program, env)
	if err != nil {
		return 0, optimization.WrapErrorf(err, optimization.KindEvaluation, "cannot evaluate %q", f.source).
			WithComponent(component).WithOperation(op)
	}

	var v float64
	switch n := out.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	default:
		return 0, optimization.NewErrorf(optimization.KindEvaluation, "expression produced %T, want a number", out).
			WithComponent(component).WithOperation(op)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, optimization.NewErrorf(optimization.KindEvaluation, "%s is not finite at %v", f, args).
			WithComponent(component).WithOperation(op)
	}
	return v, nil
}

// Value implements optimization.Objective.
func (f *Function) Value(x []float64) (float64, error) {
	return f.Call(x...)
}

// Gradient implements optimization.Objective with a central difference
// per coordinate. The step grows with the coordinate's magnitude. The first
// failing evaluation aborts the gradient.
func (f *Function) Gradient(x []float64) ([]float64, error) {
	const op = "Function.Gradient"

	if len(x) != len(f.variables) {
		return nil, optimization.NewErrorf(optimization.KindEvaluation, "got %d coordinates, want %d",
			len(x), len(f.variables)).WithComponent(component).WithOperation(op)
	}

	var evalErr error
	p := make([]float64, len(x))
	grad := make([]float64, len(x))
	for i := range x {
		copy(p, x)
		settings := fd.Settings{Formula: fd.Central, Step: step(x[i])}
		grad[i] = fd.Derivative(func(t float64) float64 {
			if evalErr != nil {
				return math.NaN()
			}
			p[i] = t
			v, err := f.Call(p...)
			if err != nil {
				evalErr = err
				return math.NaN()
			}
			return v
		}, x[i], &settings)
		if evalErr != nil {
			return nil, optimization.WrapError(evalErr, optimization.KindEvaluation, "gradient evaluation failed").
				WithComponent(component).WithOperation(op)
		}
		if math.IsNaN(grad[i]) || math.IsInf(grad[i], 0) {
			return nil, optimization.NewErrorf(optimization.KindEvaluation, "partial derivative in %s is not finite at %v",
				f.variables[i], x).WithComponent(component).WithOperation(op)
		}
	}
	return grad, nil
}

// GradientResolution implements optimization.GradientResolver. Rounding
// f(x±h) at magnitude |fx| leaves each central difference uncertain by about
// ε·|fx|/h, so gradient norms below the returned value are noise.
func (f *Function) GradientResolution(x []float64, fx float64) float64 {
	var sum float64
	for _, xi := range x {
		r := epsilon * math.Abs(fx) / step(xi)
		sum += r * r
	}
	return math.Sqrt(sum)
}

// epsilon is the float64 machine epsilon.
const epsilon = 0x1p-52

// step is the central-difference step at coordinate value v.
func step(v float64) float64 {
	return fd.Central.Step * math.Max(1, math.Abs(v))
}
