// Package benchmark provides classic test objectives with analytic
// gradients.
package benchmark

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Sphere is Σxᵢ².
func Sphere(x []float64) float64 {
	return floats.Dot(x, x)
}

// SphereGrad is 2x.
func SphereGrad(x []float64) []float64 {
	g := make([]float64, len(x))
	floats.ScaleTo(g, 2, x)
	return g
}

// Quadratic is ½xᵀAx + bᵀx + c. A nil A means the identity and a nil b
// means zero; both are resolved per call.
func Quadratic(x []float64, A mat.Symmetric, b []float64, c float64) float64 {
	n := len(x)
	xv := mat.NewVecDense(n, x)
	var quad float64
	if A == nil {
		quad = mat.Dot(xv, xv)
	} else {
		quad = mat.Inner(xv, A, xv)
	}
	lin := 0.0
	if b != nil {
		lin = floats.Dot(b, x)
	}
	return 0.5*quad + lin + c
}

// QuadraticGrad is Ax + b for symmetric A.
func QuadraticGrad(x []float64, A mat.Symmetric, b []float64) []float64 {
	n := len(x)
	g := make([]float64, n)
	if A == nil {
		copy(g, x)
	} else {
		gv := mat.NewVecDense(n, g)
		gv.MulVec(A, mat.NewVecDense(n, x))
	}
	if b != nil {
		floats.Add(g, b)
	}
	return g
}

// Rosenbrock is Σ b(xᵢ₊₁-xᵢ²)² + (a-xᵢ)², with minimum 0 at (a, a², ...)
// for a = 1.
func Rosenbrock(x []float64, a, b float64) float64 {
	sum := 0.0
	for i := 0; i+1 < len(x); i++ {
		t := x[i+1] - x[i]*x[i]
		u := a - x[i]
		sum += b*t*t + u*u
	}
	return sum
}

// RosenbrockGrad is the gradient of Rosenbrock.
func RosenbrockGrad(x []float64, a, b float64) []float64 {
	g := make([]float64, len(x))
	for i := 0; i+1 < len(x); i++ {
		t := x[i+1] - x[i]*x[i]
		g[i] += -4*b*x[i]*t - 2*(a-x[i])
		g[i+1] += 2 * b * t
	}
	return g
}

// Rastrigin is A·n + Σ(xᵢ² - A·cos(2πxᵢ)).
func Rastrigin(x []float64, A float64) float64 {
	sum := A * float64(len(x))
	for _, v := range x {
		sum += v*v - A*math.Cos(2*math.Pi*v)
	}
	return sum
}

// RastriginGrad is the gradient of Rastrigin.
func RastriginGrad(x []float64, A float64) []float64 {
	g := make([]float64, len(x))
	for i, v := range x {
		g[i] = 2*v + 2*math.Pi*A*math.Sin(2*math.Pi*v)
	}
	return g
}

// Himmelblau is (x²+y-11)² + (x+y²-7)², zero at (3, 2) and three other
// points.
func Himmelblau(x []float64) float64 {
	a := x[0]*x[0] + x[1] - 11
	b := x[0] + x[1]*x[1] - 7
	return a*a + b*b
}

// HimmelblauGrad is the gradient of Himmelblau.
func HimmelblauGrad(x []float64) []float64 {
	a := x[0]*x[0] + x[1] - 11
	b := x[0] + x[1]*x[1] - 7
	return []float64{
		4*x[0]*a + 2*b,
		2*a + 4*x[1]*b,
	}
}

// Ackley parameters.
const (
	ackleyA = 20
	ackleyB = 0.2
	ackleyC = 2 * math.Pi
)

// Ackley is -a·exp(-b·√(Σxᵢ²/n)) - exp(Σcos(c·xᵢ)/n) + a + e.
func Ackley(x []float64) float64 {
	n := float64(len(x))
	r := math.Sqrt(floats.Dot(x, x) / n)
	cs := 0.0
	for _, v := range x {
		cs += math.Cos(ackleyC * v)
	}
	return -ackleyA*math.Exp(-ackleyB*r) - math.Exp(cs/n) + ackleyA + math.E
}

// AckleyGrad is the gradient of Ackley. At the origin, where the radial
// term is not differentiable, it returns zero.
func AckleyGrad(x []float64) []float64 {
	n := float64(len(x))
	r := math.Sqrt(floats.Dot(x, x) / n)
	cs := 0.0
	for _, v := range x {
		cs += math.Cos(ackleyC * v)
	}
	ec := math.Exp(cs / n)

	g := make([]float64, len(x))
	for i, v := range x {
		if r > 0 {
			g[i] = ackleyA * ackleyB * math.Exp(-ackleyB*r) * v / (n * r)
		}
		g[i] += ackleyC / n * math.Sin(ackleyC*v) * ec
	}
	return g
}

// Griewank is 1 + Σxᵢ²/4000 - Π cos(xᵢ/√i), with i counted from 1.
func Griewank(x []float64) float64 {
	prod := 1.0
	for i, v := range x {
		prod *= math.Cos(v / math.Sqrt(float64(i+1)))
	}
	return 1 + floats.Dot(x, x)/4000 - prod
}

// GriewankGrad is the gradient of Griewank.
func GriewankGrad(x []float64) []float64 {
	g := make([]float64, len(x))
	for i, v := range x {
		si := math.Sqrt(float64(i + 1))
		others := 1.0
		for j, w := range x {
			if j != i {
				others *= math.Cos(w / math.Sqrt(float64(j+1)))
			}
		}
		g[i] = v/2000 + math.Sin(v/si)/si*others
	}
	return g
}
