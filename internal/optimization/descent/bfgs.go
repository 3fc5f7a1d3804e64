package descent

import (
	"context"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/optplay/internal/optimization"
	"github.com/copyleftdev/optplay/internal/optimization/linesearch"
)

const defaultDegeneracyTolerance = 1e-10

// BFGS is a quasi-Newton method that maintains an approximation H of the
// inverse Hessian, starting from the identity, and steps along -H∇f.
//
// The secant update needs yᵀs > 0. When yᵀs ≤ DegeneracyTolerance·‖y‖‖s‖
// the update is skipped and H is kept, unless FailOnDegeneracy is set, in
// which case the run stops with a NumericDegeneracy error.
type BFGS struct {
	// LineSearch picks the step along -H∇f. Without one the full step
	// α = 1 is taken, which is only safe near a minimum.
	LineSearch          linesearch.LineSearcher
	DegeneracyTolerance float64
	FailOnDegeneracy    bool
	Logger              *zap.Logger
}

// NewBFGS creates a BFGS optimizer using ls.
func NewBFGS(ls linesearch.LineSearcher) *BFGS {
	return &BFGS{LineSearch: ls}
}

// Name implements optimization.Optimizer.
func (*BFGS) Name() string { return MethodBFGS }

// Optimize implements optimization.Optimizer.
func (b *BFGS) Optimize(ctx context.Context, config optimization.OptimizerConfig) (*optimization.OptimizationResult, error) {
	tol := b.DegeneracyTolerance
	if tol == 0 {
		tol = defaultDegeneracyTolerance
	}
	if tol < 0 {
		return nil, optimization.NewErrorf(optimization.KindConfig, "degeneracy tolerance must be non-negative, got %g", tol).
			WithComponent(MethodBFGS)
	}
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return run(ctx, MethodBFGS, logger, config, func(cfg optimization.OptimizerConfig) (stepper, error) {
		return newBFGSRun(cfg.Objective, len(cfg.Initial), b.LineSearch, tol, b.FailOnDegeneracy, logger), nil
	})
}

type bfgsRun struct {
	obj    optimization.Objective
	ls     linesearch.LineSearcher
	tol    float64
	strict bool
	logger *zap.Logger

	invHess *mat.SymDense
	hy      *mat.VecDense
}

func newBFGSRun(obj optimization.Objective, n int, ls linesearch.LineSearcher, tol float64, strict bool, logger *zap.Logger) *bfgsRun {
	h := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		h.SetSym(i, i, 1)
	}
	return &bfgsRun{
		obj:     obj,
		ls:      ls,
		tol:     tol,
		strict:  strict,
		logger:  logger,
		invHess: h,
		hy:      mat.NewVecDense(n, nil),
	}
}

func (r *bfgsRun) perturb(grad []float64) []float64 { return grad }

func (r *bfgsRun) advance(k int, x, grad, _ []float64) ([]float64, stepInfo, error) {
	n := len(x)

	// d = -H∇f
	d := mat.NewVecDense(n, nil)
	d.MulVec(r.invHess, mat.NewVecDense(n, clone(grad)))
	d.ScaleVec(-1, d)
	dir := d.RawVector().Data

	info := stepInfo{alpha: 1}
	if r.ls != nil {
		step, err := r.ls.Search(r.obj, x, dir)
		if err != nil {
			return nil, stepInfo{}, err
		}
		info = stepInfo{alpha: step.Alpha, satisfied: &step.Satisfied}
	}

	next := make([]float64, n)
	floats.AddScaledTo(next, x, info.alpha, dir)

	gradNext, err := r.obj.Gradient(next)
	if err != nil {
		return nil, stepInfo{}, err
	}

	s := floats.SubTo(make([]float64, n), next, x)
	y := floats.SubTo(make([]float64, n), gradNext, grad)
	if err := r.update(k, s, y); err != nil {
		return nil, stepInfo{}, err
	}
	return next, info, nil
}

// update applies H ← (I-ρsyᵀ)H(I-ρysᵀ) + ρssᵀ with ρ = 1/(yᵀs), expanded as
//
//	H + ρ(1 + ρ·yᵀHy)·ssᵀ - ρ(Hy·sᵀ + s·(Hy)ᵀ)
//
// so the result stays exactly symmetric.
func (r *bfgsRun) update(k int, s, y []float64) error {
	sy := floats.Dot(s, y)
	if math.IsNaN(sy) || math.IsInf(sy, 0) || sy <= r.tol*floats.Norm(s, 2)*floats.Norm(y, 2) {
		if r.strict {
			return optimization.NewErrorf(optimization.KindNumericDegeneracy,
				"secant denominator yᵀs = %g is not safely positive", sy).WithOperation("BFGS.update")
		}
		r.logger.Debug("skipping inverse Hessian update",
			zap.Int("iteration", k),
			zap.Float64("sy", sy),
		)
		return nil
	}

	n := len(s)
	sv := mat.NewVecDense(n, s)
	yv := mat.NewVecDense(n, y)

	r.hy.MulVec(r.invHess, yv)
	yhy := mat.Dot(yv, r.hy)
	rho := 1 / sy

	r.invHess.SymRankOne(r.invHess, rho*(1+rho*yhy), sv)
	r.invHess.RankTwo(r.invHess, -rho, r.hy, sv)
	return nil
}
