// Package testutil holds assertions and fixtures shared by the optimization
// tests.
package testutil

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/optplay/internal/optimization"
)

// AssertFloat64SlicesEqual checks if two float64 slices are approximately equal
func AssertFloat64SlicesEqual(t testing.TB, got, want []float64, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}

	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("at index %d: got %v, want %v (tolerance %v)", i, got[i], want[i], tol)
		}
	}
}

// AssertMatEqual checks if two matrices are approximately equal
func AssertMatEqual(t testing.TB, got, want mat.Matrix, tol float64) {
	t.Helper()

	rg, cg := got.Dims()
	rw, cw := want.Dims()
	if rg != rw || cg != cw {
		t.Fatalf("matrix dimensions mismatch: got %dx%d, want %dx%d", rg, cg, rw, cw)
	}

	for i := 0; i < rg; i++ {
		for j := 0; j < cg; j++ {
			g := got.At(i, j)
			w := want.At(i, j)
			if math.Abs(g-w) > tol {
				t.Fatalf("at (%d,%d): got %v, want %v (tolerance %v)", i, j, g, w, tol)
			}
		}
	}
}

// AssertSymmetric checks m against its transpose.
func AssertSymmetric(t testing.TB, m mat.Matrix, tol float64) {
	t.Helper()
	AssertMatEqual(t, m, m.T(), tol)
}

// RandomSPD returns a reproducible symmetric positive definite n×n matrix
// BᵀB + n·I with entries of B uniform in [-1, 1].
func RandomSPD(n int, seed uint64) *mat.SymDense {
	rng := rand.New(rand.NewPCG(seed, seed^0x5bd1e995))
	data := make([]float64, n*n)
	for i := range data {
		data[i] = 2*rng.Float64() - 1
	}
	b := mat.NewDense(n, n, data)

	a := mat.NewSymDense(n, nil)
	a.SymOuterK(1, b.T())
	for i := 0; i < n; i++ {
		a.SetSym(i, i, a.At(i, i)+float64(n))
	}
	return a
}

// RandomVector returns a reproducible vector with entries in [min, max].
func RandomVector(n int, min, max float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x27d4eb2f))
	v := make([]float64, n)
	for i := range v {
		v[i] = min + rng.Float64()*(max-min)
	}
	return v
}

// Sphere returns Σxᵢ² with its analytic gradient.
func Sphere() optimization.Objective {
	return optimization.NewObjective(
		func(x ...float64) (float64, error) {
			sum := 0.0
			for _, v := range x {
				sum += v * v
			}
			return sum, nil
		},
		func(x ...float64) ([]float64, error) {
			g := make([]float64, len(x))
			for i, v := range x {
				g[i] = 2 * v
			}
			return g, nil
		},
		0,
	)
}

// CheckGradient compares obj's gradient at x against central finite
// differences of its value.
func CheckGradient(t testing.TB, obj optimization.Objective, x []float64, tol float64) {
	t.Helper()

	got, err := obj.Gradient(x)
	if err != nil {
		t.Fatalf("gradient at %v: %v", x, err)
	}
	want := fd.Gradient(nil, func(p []float64) float64 {
		v, err := obj.Value(p)
		if err != nil {
			t.Fatalf("value at %v: %v", p, err)
		}
		return v
	}, x, &fd.Settings{Formula: fd.Central})

	for i := range want {
		scale := math.Max(1, math.Abs(want[i]))
		if math.Abs(got[i]-want[i]) > tol*scale {
			t.Fatalf("∂f/∂x%d at %v: got %v, finite difference %v", i, x, got[i], want[i])
		}
	}
}
