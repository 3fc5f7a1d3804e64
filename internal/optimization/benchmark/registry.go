package benchmark

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/optplay/internal/optimization"
)

// Function describes a registered benchmark objective.
type Function struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Dim         int       `json:"dimension"`
	Variables   []string  `json:"variables"`
	Start       []float64 `json:"start"`
	Minimum     []float64 `json:"minimum"`
	// Expression is the same objective written for the expression
	// compiler over Variables.
	Expression string `json:"expression"`

	Value    func(x []float64) float64   `json:"-"`
	Gradient func(x []float64) []float64 `json:"-"`
}

// Objective adapts f to optimization.Objective with dimension checks.
func (f Function) Objective() *optimization.FuncObjective {
	return optimization.NewObjective(
		func(x ...float64) (float64, error) { return f.Value(x), nil },
		func(x ...float64) ([]float64, error) { return f.Gradient(x), nil },
		f.Dim,
	)
}

// NewQuadratic returns ½xᵀAx + bᵀx + c on R^n as an objective. A must be
// n×n when given and b must have n entries.
func NewQuadratic(n int, A mat.Symmetric, b []float64, c float64) (*optimization.FuncObjective, error) {
	if n < 1 {
		return nil, optimization.NewErrorf(optimization.KindConfig, "dimension must be positive, got %d", n)
	}
	if A != nil && A.SymmetricDim() != n {
		return nil, optimization.NewErrorf(optimization.KindConfig, "matrix is %d×%d, want %d×%d",
			A.SymmetricDim(), A.SymmetricDim(), n, n)
	}
	if b != nil && len(b) != n {
		return nil, optimization.NewErrorf(optimization.KindConfig, "linear term has %d entries, want %d", len(b), n)
	}
	return optimization.NewObjective(
		func(x ...float64) (float64, error) { return Quadratic(x, A, b, c), nil },
		func(x ...float64) ([]float64, error) { return QuadraticGrad(x, A, b), nil },
		n,
	), nil
}

var xy = []string{"x", "y"}

var registry = map[string]Function{
	"sphere": {
		Name:        "sphere",
		Description: "Sum of squares, minimum 0 at the origin",
		Dim:         2,
		Variables:   xy,
		Start:       []float64{3, 4},
		Minimum:     []float64{0, 0},
		Expression:  "x**2 + y**2",
		Value:       Sphere,
		Gradient:    SphereGrad,
	},
	"quadratic": {
		Name:        "quadratic",
		Description: "½xᵀx with identity Hessian, minimum 0 at the origin",
		Dim:         2,
		Variables:   xy,
		Start:       []float64{3, 4},
		Minimum:     []float64{0, 0},
		Expression:  "0.5*(x**2 + y**2)",
		Value:       func(x []float64) float64 { return Quadratic(x, nil, nil, 0) },
		Gradient:    func(x []float64) []float64 { return QuadraticGrad(x, nil, nil) },
	},
	"rosenbrock": {
		Name:        "rosenbrock",
		Description: "Curved valley, minimum 0 at (1, 1)",
		Dim:         2,
		Variables:   xy,
		Start:       []float64{-1.2, 1},
		Minimum:     []float64{1, 1},
		Expression:  "100*(y - x**2)**2 + (1 - x)**2",
		Value:       func(x []float64) float64 { return Rosenbrock(x, 1, 100) },
		Gradient:    func(x []float64) []float64 { return RosenbrockGrad(x, 1, 100) },
	},
	"rastrigin": {
		Name:        "rastrigin",
		Description: "Highly multimodal, minimum 0 at the origin",
		Dim:         2,
		Variables:   xy,
		Start:       []float64{2.5, 2.5},
		Minimum:     []float64{0, 0},
		Expression:  "20 + x**2 - 10*cos(2*pi*x) + y**2 - 10*cos(2*pi*y)",
		Value:       func(x []float64) float64 { return Rastrigin(x, 10) },
		Gradient:    func(x []float64) []float64 { return RastriginGrad(x, 10) },
	},
	"himmelblau": {
		Name:        "himmelblau",
		Description: "Four global minima with value 0, one at (3, 2)",
		Dim:         2,
		Variables:   xy,
		Start:       []float64{0, 0},
		Minimum:     []float64{3, 2},
		Expression:  "(x**2 + y - 11)**2 + (x + y**2 - 7)**2",
		Value:       Himmelblau,
		Gradient:    HimmelblauGrad,
	},
	"ackley": {
		Name:        "ackley",
		Description: "Nearly flat outer region with a deep hole, minimum 0 at the origin",
		Dim:         2,
		Variables:   xy,
		Start:       []float64{2, 2},
		Minimum:     []float64{0, 0},
		Expression:  "-20*exp(-0.2*sqrt(0.5*(x**2 + y**2))) - exp(0.5*(cos(2*pi*x) + cos(2*pi*y))) + 20 + exp(1)",
		Value:       Ackley,
		Gradient:    AckleyGrad,
	},
	"griewank": {
		Name:        "griewank",
		Description: "Many regularly spaced local minima, minimum 0 at the origin",
		Dim:         2,
		Variables:   xy,
		Start:       []float64{3, 3},
		Minimum:     []float64{0, 0},
		Expression:  "1 + (x**2 + y**2)/4000 - cos(x)*cos(y/sqrt(2))",
		Value:       Griewank,
		Gradient:    GriewankGrad,
	},
}

// Lookup returns the benchmark registered under name.
func Lookup(name string) (Function, bool) {
	f, ok := registry[name]
	return f, ok
}

// All returns every benchmark sorted by name.
func All() []Function {
	out := make([]Function, 0, len(registry))
	for _, f := range registry {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered benchmark names in sorted order.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, f := range all {
		names[i] = f.Name
	}
	return names
}
