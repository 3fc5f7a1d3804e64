package descent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/optplay/internal/optimization"
	"github.com/copyleftdev/optplay/internal/optimization/benchmark"
	"github.com/copyleftdev/optplay/internal/optimization/linesearch"
	"github.com/copyleftdev/optplay/internal/optimization/testutil"
)

// elongated is x² + 10y².
func elongated() optimization.Objective {
	return optimization.NewObjective(
		func(x ...float64) (float64, error) { return x[0]*x[0] + 10*x[1]*x[1], nil },
		func(x ...float64) ([]float64, error) { return []float64{2 * x[0], 20 * x[1]}, nil },
		2,
	)
}

func rosenbrock() optimization.Objective {
	f, _ := benchmark.Lookup("rosenbrock")
	return f.Objective()
}

func assertHistory(t *testing.T, res *optimization.OptimizationResult, maxIter int) {
	t.Helper()

	require.NotEmpty(t, res.History)
	assert.LessOrEqual(t, len(res.History), max(maxIter, 1))
	assert.Equal(t, res.Iterations, len(res.History))

	if res.Converged {
		last := res.History[len(res.History)-1]
		assert.Equal(t, res.X, last.Point)
		assert.Equal(t, res.Value, last.Value)
		assert.Equal(t, res.GradientNorm, last.GradientNorm)
	}
	assert.Nil(t, res.History[0].Step)
	for i, rec := range res.History {
		assert.Equal(t, i+1, rec.Iteration)
		assert.InDelta(t, floats.Norm(rec.Gradient, 2), rec.GradientNorm, 1e-12)
		if i > 0 {
			assert.NotNil(t, rec.Step, "record %d", i)
		}
	}
}

func TestGradientDescentFixedStep(t *testing.T) {
	gd := NewGradientDescent(0.1, nil)
	res, err := gd.Optimize(context.Background(), optimization.OptimizerConfig{
		Objective:     testutil.Sphere(),
		Initial:       []float64{3, 4},
		Tolerance:     1e-6,
		MaxIterations: 1000,
	})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, optimization.StatusConverged, res.Status)
	assert.Equal(t, 74, res.Iterations)
	assert.Less(t, res.GradientNorm, 1e-6)
	testutil.AssertFloat64SlicesEqual(t, res.X, []float64{0, 0}, 1e-6)
	assertHistory(t, res, 1000)

	// x₁ = 0.8·x₀ with step 0.1
	assert.Equal(t, 0.1, *res.History[1].Step)
	assert.Nil(t, res.History[1].StepSatisfied)
	testutil.AssertFloat64SlicesEqual(t, res.History[1].Point, []float64{2.4, 3.2}, 1e-12)
}

func TestGradientDescentLineSearch(t *testing.T) {
	res, err := NewGradientDescent(0, linesearch.Armijo{}).Optimize(context.Background(), optimization.OptimizerConfig{
		Objective:     elongated(),
		Initial:       []float64{3, 4},
		MaxIterations: 2000,
	})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 65, res.Iterations)
	assertHistory(t, res, 2000)
	for _, rec := range res.History[1:] {
		require.NotNil(t, rec.StepSatisfied)
		assert.True(t, *rec.StepSatisfied)
	}
}

func TestBFGSBeatsGradientDescent(t *testing.T) {
	cfg := optimization.OptimizerConfig{
		Objective:     elongated(),
		Initial:       []float64{3, 4},
		MaxIterations: 2000,
	}

	gdRes, err := NewGradientDescent(0, linesearch.Armijo{}).Optimize(context.Background(), cfg)
	require.NoError(t, err)
	bfgsRes, err := NewBFGS(linesearch.Wolfe{}).Optimize(context.Background(), cfg)
	require.NoError(t, err)

	assert.True(t, bfgsRes.Converged)
	assert.Equal(t, 8, bfgsRes.Iterations)
	assert.Less(t, bfgsRes.Iterations, gdRes.Iterations)
	assertHistory(t, bfgsRes, 2000)

	// On the sphere Wolfe halves the first step once and lands on the minimum.
	cfg.Objective = testutil.Sphere()
	sphereRes, err := NewBFGS(linesearch.Wolfe{}).Optimize(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, sphereRes.Converged)
	assert.Equal(t, 2, sphereRes.Iterations)
	assert.Equal(t, 0.5, *sphereRes.History[1].Step)
	testutil.AssertFloat64SlicesEqual(t, sphereRes.X, []float64{0, 0}, 1e-12)
}

func TestBFGSRosenbrock(t *testing.T) {
	for _, ls := range []linesearch.LineSearcher{linesearch.Armijo{}, linesearch.Wolfe{}} {
		t.Run(ls.Name(), func(t *testing.T) {
			res, err := NewBFGS(ls).Optimize(context.Background(), optimization.OptimizerConfig{
				Objective:     rosenbrock(),
				Initial:       []float64{-1.2, 1},
				MaxIterations: 500,
			})
			require.NoError(t, err)
			assert.True(t, res.Converged)
			assert.Less(t, res.Iterations, 100)
			testutil.AssertFloat64SlicesEqual(t, res.X, []float64{1, 1}, 1e-6)
		})
	}
}

func TestBFGSMatchesGonum(t *testing.T) {
	f, ok := benchmark.Lookup("rosenbrock")
	require.True(t, ok)

	want, err := optimize.Minimize(optimize.Problem{
		Func: f.Value,
		Grad: func(grad, x []float64) { copy(grad, f.Gradient(x)) },
	}, f.Start, nil, &optimize.BFGS{})
	require.NoError(t, err)

	got, err := NewBFGS(linesearch.Wolfe{}).Optimize(context.Background(), optimization.OptimizerConfig{
		Objective:     f.Objective(),
		Initial:       f.Start,
		MaxIterations: 500,
	})
	require.NoError(t, err)

	testutil.AssertFloat64SlicesEqual(t, got.X, want.X, 1e-5)
	assert.InDelta(t, want.F, got.Value, 1e-9)
}

func TestBFGSConvexQuadratic(t *testing.T) {
	const n = 4
	A := testutil.RandomSPD(n, 7)
	b := testutil.RandomVector(n, -2, 2, 11)
	obj, err := benchmark.NewQuadratic(n, A, b, 1)
	require.NoError(t, err)

	// ∇f = Ax + b = 0
	var chol mat.Cholesky
	require.True(t, chol.Factorize(A))
	var want mat.VecDense
	require.NoError(t, chol.SolveVecTo(&want, mat.NewVecDense(n, b)))
	want.ScaleVec(-1, &want)

	res, err := NewBFGS(linesearch.Wolfe{}).Optimize(context.Background(), optimization.OptimizerConfig{
		Objective:     obj,
		Initial:       testutil.RandomVector(n, -5, 5, 13),
		Tolerance:     1e-8,
		MaxIterations: 200,
	})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	testutil.AssertFloat64SlicesEqual(t, res.X, want.RawVector().Data, 1e-6)
}

func TestBFGSUpdate(t *testing.T) {
	const n = 3
	A := testutil.RandomSPD(n, 3)
	s := testutil.RandomVector(n, -1, 1, 5)
	// y = As guarantees yᵀs > 0.
	yv := mat.NewVecDense(n, nil)
	yv.MulVec(A, mat.NewVecDense(n, s))
	y := yv.RawVector().Data

	r := newBFGSRun(nil, n, nil, defaultDegeneracyTolerance, true, zaptest.NewLogger(t))
	r.invHess = testutil.RandomSPD(n, 9)
	h0 := mat.NewDense(n, n, nil)
	h0.Copy(r.invHess)

	require.NoError(t, r.update(1, s, y))

	// (I - ρsyᵀ) H (I - ρysᵀ) + ρssᵀ
	rho := 1 / floats.Dot(s, y)
	sv, yvec := mat.NewVecDense(n, s), mat.NewVecDense(n, y)
	left := mat.NewDense(n, n, nil)
	left.Outer(-rho, sv, yvec)
	for i := 0; i < n; i++ {
		left.Set(i, i, left.At(i, i)+1)
	}
	var want mat.Dense
	want.Product(left, h0, left.T())
	var ss mat.Dense
	ss.Outer(rho, sv, sv)
	want.Add(&want, &ss)

	testutil.AssertMatEqual(t, r.invHess, &want, 1e-10)
	testutil.AssertSymmetric(t, r.invHess, 0)

	// Secant equation H⁺y = s.
	var hy mat.VecDense
	hy.MulVec(r.invHess, yvec)
	testutil.AssertFloat64SlicesEqual(t, hy.RawVector().Data, s, 1e-10)
}

func TestBFGSDegeneracy(t *testing.T) {
	// A linear objective has constant gradient, so yᵀs = 0.
	linear := optimization.NewObjective(
		func(x ...float64) (float64, error) { return x[0] + x[1], nil },
		func(x ...float64) ([]float64, error) { return []float64{1, 1}, nil },
		2,
	)
	cfg := optimization.OptimizerConfig{Objective: linear, Initial: []float64{0, 0}, MaxIterations: 5}

	res, err := NewBFGS(nil).Optimize(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, optimization.StatusMaxIterations, res.Status)
	assert.False(t, res.Converged)
	// H stays the identity, so each of the five full steps moves by -∇f.
	testutil.AssertFloat64SlicesEqual(t, res.X, []float64{-5, -5}, 0)
	assert.Equal(t, -10.0, res.Value)
	testutil.AssertFloat64SlicesEqual(t, res.History[4].Point, []float64{-4, -4}, 0)

	_, err = (&BFGS{FailOnDegeneracy: true}).Optimize(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, optimization.IsKind(err, optimization.KindNumericDegeneracy), "got %v", err)

	_, err = (&BFGS{DegeneracyTolerance: -1}).Optimize(context.Background(), cfg)
	assert.True(t, optimization.IsKind(err, optimization.KindConfig))
}

func TestConvexQuadraticAllMethods(t *testing.T) {
	A := mat.NewSymDense(3, []float64{
		3, 1, 0,
		1, 4, 1,
		0, 1, 5,
	})
	obj, err := benchmark.NewQuadratic(3, A, nil, 0)
	require.NoError(t, err)

	tests := []struct {
		name      string
		opt       optimization.Optimizer
		tolerance float64
	}{
		{"gd fixed step", NewGradientDescent(0.1, nil), 1e-6},
		{"gd armijo", NewGradientDescent(0, linesearch.Armijo{}), 1e-6},
		{"bfgs wolfe", NewBFGS(linesearch.Wolfe{}), 1e-6},
		{"adam", NewAdam(0.05), 1e-4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.opt.Optimize(context.Background(), optimization.OptimizerConfig{
				Objective:     obj,
				Initial:       []float64{1, -2, 3},
				Tolerance:     tt.tolerance,
				MaxIterations: 5000,
			})
			require.NoError(t, err)
			assert.True(t, res.Converged)
			assert.Less(t, res.GradientNorm, tt.tolerance)
			assert.Less(t, res.Iterations, 1000)
			testutil.AssertFloat64SlicesEqual(t, res.X, []float64{0, 0, 0}, 10*tt.tolerance)
			assertHistory(t, res, 5000)
		})
	}
}

func TestAdam(t *testing.T) {
	res, err := NewAdam(0.1).Optimize(context.Background(), optimization.OptimizerConfig{
		Objective:     testutil.Sphere(),
		Initial:       []float64{3, 4},
		Tolerance:     1e-4,
		MaxIterations: 1000,
	})
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Less(t, res.Iterations, 1000)
	testutil.AssertFloat64SlicesEqual(t, res.X, []float64{0, 0}, 1e-3)
	assertHistory(t, res, 1000)

	// The first bias-corrected step moves every coordinate by about α.
	testutil.AssertFloat64SlicesEqual(t, res.History[1].Point, []float64{2.9, 3.9}, 1e-6)
}

func TestAdamInvalidParameters(t *testing.T) {
	cfg := optimization.OptimizerConfig{Objective: testutil.Sphere(), Initial: []float64{1}}
	for _, a := range []*Adam{
		{LearningRate: -1},
		{Beta1: 1},
		{Beta2: -0.5},
		{Epsilon: -1},
	} {
		_, err := a.Optimize(context.Background(), cfg)
		require.Error(t, err)
		assert.True(t, optimization.IsKind(err, optimization.KindConfig))
	}
}

func TestSGD(t *testing.T) {
	cfg := func(obs optimization.Observer) optimization.OptimizerConfig {
		return optimization.OptimizerConfig{
			Objective:     testutil.Sphere(),
			Initial:       []float64{3, 4},
			MaxIterations: 200,
			Observer:      obs,
		}
	}

	observed := optimization.NewRecorder()
	a, err := NewSGD(0.1, 1e-3, 42).Optimize(context.Background(), cfg(observed))
	require.NoError(t, err)
	b, err := NewSGD(0.1, 1e-3, 42).Optimize(context.Background(), cfg(nil))
	require.NoError(t, err)
	c, err := NewSGD(0.1, 1e-3, 0).Optimize(context.Background(), cfg(nil))
	require.NoError(t, err)

	assert.Equal(t, a.History, b.History, "seeded runs are reproducible")
	assert.NotEqual(t, a.X, c.X, "unseeded runs draw fresh noise")
	testutil.AssertFloat64SlicesEqual(t, a.X, []float64{0, 0}, 0.01)
	assertHistory(t, a, 200)

	// History keeps the true gradient; observers see the noisy one.
	records := observed.Records()
	require.Len(t, records, len(a.History))
	for i, rec := range a.History {
		testutil.AssertFloat64SlicesEqual(t, rec.Gradient, []float64{2 * rec.Point[0], 2 * rec.Point[1]}, 1e-12)
		if i < len(a.History)-1 {
			assert.NotEqual(t, rec.Gradient, records[i].Gradient)
		}
	}
}

func TestSGDWithoutNoise(t *testing.T) {
	cfg := optimization.OptimizerConfig{
		Objective:     testutil.Sphere(),
		Initial:       []float64{3, 4},
		MaxIterations: 20,
	}

	sgd, err := NewSGD(0.1, 0, 0).Optimize(context.Background(), cfg)
	require.NoError(t, err)
	gd, err := NewGradientDescent(0.1, nil).Optimize(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, gd, sgd)

	// Params leave the noise at its default unless it is set.
	opt, err := New(MethodSGD, Params{LearningRate: 0.1, Seed: 3})
	require.NoError(t, err)
	noisy, err := opt.Optimize(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotEqual(t, gd.X, noisy.X)
}

func TestZeroIterationsAndConvergedStart(t *testing.T) {
	for _, method := range Methods() {
		t.Run(method, func(t *testing.T) {
			opt, err := New(method, Params{Seed: 1})
			require.NoError(t, err)

			res, err := opt.Optimize(context.Background(), optimization.OptimizerConfig{
				Objective: testutil.Sphere(),
				Initial:   []float64{3, 4},
			})
			require.NoError(t, err)
			require.Len(t, res.History, 1)
			assert.Equal(t, optimization.StatusMaxIterations, res.Status)
			assert.Equal(t, []float64{3, 4}, res.X)
			assert.Equal(t, 25.0, res.Value)

			res, err = opt.Optimize(context.Background(), optimization.OptimizerConfig{
				Objective:     testutil.Sphere(),
				Initial:       []float64{0, 0},
				MaxIterations: 50,
			})
			require.NoError(t, err)
			require.Len(t, res.History, 1)
			assert.True(t, res.Converged)
			assert.Equal(t, 0.0, res.GradientNorm)
		})
	}
}

func TestBudgetTakesFinalStep(t *testing.T) {
	tests := []struct {
		maxIter int
		want    []float64
	}{
		{1, []float64{2.4, 3.2}},
		{2, []float64{1.92, 2.56}},
		{3, []float64{1.536, 2.048}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("max_iter=%d", tt.maxIter), func(t *testing.T) {
			res, err := NewGradientDescent(0.1, nil).Optimize(context.Background(), optimization.OptimizerConfig{
				Objective:     testutil.Sphere(),
				Initial:       []float64{3, 4},
				MaxIterations: tt.maxIter,
			})
			require.NoError(t, err)

			assert.Equal(t, optimization.StatusMaxIterations, res.Status)
			assert.Equal(t, tt.maxIter, res.Iterations)
			require.Len(t, res.History, tt.maxIter)
			testutil.AssertFloat64SlicesEqual(t, res.X, tt.want, 1e-12)
			assert.InDelta(t, floats.Dot(tt.want, tt.want), res.Value, 1e-12)
			assert.InDelta(t, 2*floats.Norm(tt.want, 2), res.GradientNorm, 1e-12)

			// The point produced by the last step is not recorded.
			last := res.History[len(res.History)-1]
			assert.NotEqual(t, res.X, last.Point)
			testutil.AssertFloat64SlicesEqual(t, last.Point, []float64{tt.want[0] / 0.8, tt.want[1] / 0.8}, 1e-12)
		})
	}
}

// roughObjective reports a fixed gradient resolution, like a finite-difference
// gradient of a function with a large constant offset.
type roughObjective struct {
	optimization.Objective
	resolution float64
}

func (o roughObjective) GradientResolution([]float64, float64) float64 { return o.resolution }

func TestConvergenceBelowGradientResolution(t *testing.T) {
	cfg := optimization.OptimizerConfig{
		Objective:     roughObjective{Objective: testutil.Sphere(), resolution: 1e-5},
		Initial:       []float64{0, 0},
		Tolerance:     1e-8,
		MaxIterations: 10,
	}

	_, err := NewBFGS(linesearch.Wolfe{}).Optimize(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, optimization.IsKind(err, optimization.KindNumericDegeneracy), "got %v", err)
	assert.Contains(t, err.Error(), "gradient resolution")

	cfg.Tolerance = 1e-4
	res, err := NewBFGS(linesearch.Wolfe{}).Optimize(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, res.Converged)

	// The resolution only matters once the norm drops below the tolerance.
	cfg.Tolerance = 1e-8
	cfg.Initial = []float64{3, 4}
	cfg.MaxIterations = 1
	res, err = NewGradientDescent(0.1, nil).Optimize(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, optimization.StatusMaxIterations, res.Status)
}

func TestDeterministic(t *testing.T) {
	for _, method := range []string{MethodGradientDescent, MethodBFGS, MethodAdam} {
		t.Run(method, func(t *testing.T) {
			ls, err := linesearch.New(linesearch.NameWolfe)
			require.NoError(t, err)
			opt, err := New(method, Params{LineSearch: ls})
			require.NoError(t, err)

			cfg := optimization.OptimizerConfig{Objective: rosenbrock(), Initial: []float64{-1.2, 1}, MaxIterations: 50}
			first, err := opt.Optimize(context.Background(), cfg)
			require.NoError(t, err)
			second, err := opt.Optimize(context.Background(), cfg)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewGradientDescent(0.1, nil).Optimize(ctx, optimization.OptimizerConfig{
		Objective:     testutil.Sphere(),
		Initial:       []float64{3, 4},
		MaxIterations: 10,
	})
	require.Error(t, err)
	assert.True(t, optimization.IsKind(err, optimization.KindCancelled))
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	seen := 0
	_, err = NewGradientDescent(1e-6, nil).Optimize(ctx, optimization.OptimizerConfig{
		Objective:     testutil.Sphere(),
		Initial:       []float64{3, 4},
		MaxIterations: 1000,
		Observer: optimization.ObserverFunc(func(rec optimization.IterationRecord) {
			seen++
			if rec.Iteration == 3 {
				cancel()
			}
		}),
	})
	assert.True(t, optimization.IsKind(err, optimization.KindCancelled))
	assert.Equal(t, 3, seen)
}

func TestEvaluationErrorPropagates(t *testing.T) {
	domain := errors.New("sqrt of negative")
	obj := optimization.NewObjective(
		func(x ...float64) (float64, error) {
			if x[0] < 0 {
				return 0, domain
			}
			return math.Sqrt(x[0]) + x[0]*x[0], nil
		},
		func(x ...float64) ([]float64, error) {
			if x[0] < 0 {
				return nil, domain
			}
			return []float64{1/(2*math.Sqrt(x[0])) + 2*x[0]}, nil
		},
		1,
	)

	_, err := NewGradientDescent(1, nil).Optimize(context.Background(), optimization.OptimizerConfig{
		Objective:     obj,
		Initial:       []float64{1},
		MaxIterations: 10,
	})
	require.Error(t, err)
	assert.True(t, optimization.IsKind(err, optimization.KindEvaluation), "got %v", err)
	assert.ErrorIs(t, err, domain)
	assert.Contains(t, err.Error(), "iteration 2")
}

func TestNew(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"gd", MethodGradientDescent},
		{"Gradient Descent", MethodGradientDescent},
		{"BFGS", MethodBFGS},
		{" adam ", MethodAdam},
		{"stochastic", MethodSGD},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			opt, err := New(tt.method, Params{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, opt.Name())
		})
	}

	_, err := New("newton", Params{})
	require.Error(t, err)
	assert.True(t, optimization.IsKind(err, optimization.KindConfig))

	_, err = NewGradientDescent(-1, nil).Optimize(context.Background(), optimization.OptimizerConfig{})
	assert.True(t, optimization.IsKind(err, optimization.KindConfig))
	_, err = NewSGD(0.1, -1, 1).Optimize(context.Background(), optimization.OptimizerConfig{})
	assert.True(t, optimization.IsKind(err, optimization.KindConfig))
}

func BenchmarkBFGSRosenbrock(b *testing.B) {
	opt := NewBFGS(linesearch.Wolfe{})
	cfg := optimization.OptimizerConfig{Objective: rosenbrock(), Initial: []float64{-1.2, 1}, MaxIterations: 500}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := opt.Optimize(context.Background(), cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGradientDescentSphere(b *testing.B) {
	opt := NewGradientDescent(0.1, nil)
	cfg := optimization.OptimizerConfig{Objective: testutil.Sphere(), Initial: []float64{3, 4}, MaxIterations: 1000}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := opt.Optimize(context.Background(), cfg); err != nil {
			b.Fatal(err)
		}
	}
}
