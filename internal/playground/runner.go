package playground

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/optplay/internal/config"
	"github.com/copyleftdev/optplay/internal/metrics"
	"github.com/copyleftdev/optplay/internal/optimization"
	"github.com/copyleftdev/optplay/internal/optimization/descent"
	"github.com/copyleftdev/optplay/internal/optimization/linesearch"
)

// Request describes one run. Zero values select the configured defaults;
// MaxIterations and NoiseScale are pointers so that an explicit 0 is
// honoured.
type Request struct {
	ObjectiveSpec

	// Initial defaults to the benchmark's start point.
	Initial       []float64 `json:"initial,omitempty"`
	Method        string    `json:"method,omitempty"`
	LineSearch    string    `json:"line_search,omitempty"`
	LearningRate  float64   `json:"learning_rate,omitempty"`
	Tolerance     float64   `json:"tolerance,omitempty"`
	MaxIterations *int      `json:"max_iterations,omitempty"`
	NoiseScale    *float64  `json:"noise_scale,omitempty"`
	Seed          uint64    `json:"seed,omitempty"`
}

// Report is the outcome of a run.
type Report struct {
	Method        string                         `json:"method"`
	LineSearch    string                         `json:"line_search"`
	Objective     string                         `json:"objective"`
	Variables     []string                       `json:"variables"`
	X             []float64                      `json:"x"`
	Value         float64                        `json:"value"`
	GradientNorm  float64                        `json:"gradient_norm"`
	Converged     bool                           `json:"converged"`
	Status        optimization.Status            `json:"status"`
	Iterations    int                            `json:"iterations"`
	ValueCalls    int64                          `json:"value_calls"`
	GradientCalls int64                          `json:"gradient_calls"`
	Elapsed       time.Duration                  `json:"-"`
	ElapsedMillis float64                        `json:"elapsed_ms"`
	History       []optimization.IterationRecord `json:"history"`
}

// Plan is a validated request, ready to run.
type Plan struct {
	Method     string
	LineSearch string
	Objective  string
	Variables  []string

	objective optimization.Objective
	optimizer optimization.Optimizer
	initial   []float64
	tolerance float64
	maxIter   int
}

// Runner executes requests with configured defaults and limits.
// It is safe for concurrent use.
type Runner struct {
	defaults config.Optimization
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewRunner creates a Runner. logger and m may be nil.
func NewRunner(defaults config.Optimization, logger *zap.Logger, m *metrics.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{defaults: defaults, logger: logger, metrics: m}
}

// Defaults returns the runner's configured defaults.
func (r *Runner) Defaults() config.Optimization {
	return r.defaults
}

// Prepare validates req and builds the objective and optimizer without
// evaluating anything.
func (r *Runner) Prepare(req Request) (*Plan, error) {
	const op = "Runner.Prepare"
	d := r.defaults

	obj, err := req.resolve(d.MaxDimension)
	if err != nil {
		return nil, err
	}

	initial := req.Initial
	if len(initial) == 0 {
		initial = obj.start
	}
	switch {
	case len(initial) == 0:
		return nil, optimization.NewError(optimization.KindConfig, "an initial point is required").
			WithComponent(component).WithOperation(op)
	case len(initial) != obj.dim:
		return nil, optimization.NewErrorf(optimization.KindConfig, "initial point has %d coordinates, objective has %d variables",
			len(initial), obj.dim).WithComponent(component).WithOperation(op)
	case d.MaxDimension > 0 && len(initial) > d.MaxDimension:
		return nil, optimization.NewErrorf(optimization.KindConfig, "dimension %d exceeds the limit of %d",
			len(initial), d.MaxDimension).WithComponent(component).WithOperation(op)
	}

	tol := req.Tolerance
	if tol == 0 {
		tol = d.DefaultTolerance
	}
	if err := optimization.CheckTolerance(tol); err != nil {
		return nil, err
	}

	maxIter := d.DefaultMaxIterations
	if req.MaxIterations != nil {
		maxIter = *req.MaxIterations
	}
	switch {
	case maxIter < 0:
		return nil, optimization.NewErrorf(optimization.KindConfig, "max_iterations must be non-negative, got %d", maxIter).
			WithComponent(component).WithOperation(op)
	case d.MaxIterationsLimit > 0 && maxIter > d.MaxIterationsLimit:
		return nil, optimization.NewErrorf(optimization.KindConfig, "max_iterations %d exceeds the limit of %d",
			maxIter, d.MaxIterationsLimit).WithComponent(component).WithOperation(op)
	}

	lr := req.LearningRate
	if lr == 0 {
		lr = d.DefaultLearningRate
	}
	noise := d.DefaultNoiseScale
	if req.NoiseScale != nil {
		noise = *req.NoiseScale
	}
	if lr < 0 || noise < 0 {
		return nil, optimization.NewErrorf(optimization.KindConfig, "learning rate and noise scale must not be negative, got %g and %g",
			lr, noise).WithComponent(component).WithOperation(op)
	}

	methodName := req.Method
	if strings.TrimSpace(methodName) == "" {
		methodName = descent.MethodGradientDescent
	}
	method, err := descent.Canonical(methodName)
	if err != nil {
		return nil, err
	}

	ls, err := linesearch.New(req.LineSearch)
	if err != nil {
		return nil, err
	}
	lsName := linesearch.NameNone
	if ls != nil && (method == descent.MethodGradientDescent || method == descent.MethodBFGS) {
		lsName = ls.Name()
	}

	optimizer, err := descent.New(method, descent.Params{
		LearningRate: lr,
		LineSearch:   ls,
		NoiseScale:   &noise,
		Seed:         req.Seed,
		Logger:       r.logger.Named(method),
	})
	if err != nil {
		return nil, err
	}

	return &Plan{
		Method:     method,
		LineSearch: lsName,
		Objective:  obj.label,
		Variables:  obj.variables,
		objective:  obj.objective,
		optimizer:  optimizer,
		initial:    append([]float64(nil), initial...),
		tolerance:  tol,
		maxIter:    maxIter,
	}, nil
}

// Execute prepares and runs req.
func (r *Runner) Execute(ctx context.Context, req Request, observer optimization.Observer) (*Report, error) {
	plan, err := r.Prepare(req)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, plan, observer)
}

// Run executes plan. observer, when set, sees every iteration in addition
// to the runner's own logging and metrics observers. Runs are bounded by
// the configured run timeout.
func (r *Runner) Run(ctx context.Context, plan *Plan, observer optimization.Observer) (*Report, error) {
	if r.defaults.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.defaults.RunTimeout)
		defer cancel()
	}

	logger := r.logger.With(zap.String("method", plan.Method), zap.String("objective", plan.Objective))
	counting := optimization.NewCountingObjective(plan.objective)
	observers := optimization.MultiObserver{
		optimization.NewZapObserver(logger),
		r.metrics.Observer(plan.Method),
	}
	if observer != nil {
		observers = append(observers, observer)
	}

	r.metrics.RunStarted()
	start := time.Now()
	res, err := plan.optimizer.Optimize(ctx, optimization.OptimizerConfig{
		Objective:     counting,
		Initial:       plan.initial,
		Tolerance:     plan.tolerance,
		MaxIterations: plan.maxIter,
		Observer:      observers,
	})
	elapsed := time.Since(start)

	outcome := metrics.Outcome{
		Method:        plan.Method,
		ValueCalls:    counting.ValueCalls(),
		GradientCalls: counting.GradientCalls(),
		Duration:      elapsed,
	}
	if err != nil {
		outcome.Status = string(optimization.KindOf(err))
		r.metrics.RunFinished(outcome)
		logger.Info("run failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return nil, err
	}
	outcome.Status = string(res.Status)
	outcome.Iterations = res.Iterations
	r.metrics.RunFinished(outcome)

	logger.Info("run finished",
		zap.String("status", string(res.Status)),
		zap.Int("iterations", res.Iterations),
		zap.Float64("value", res.Value),
		zap.Float64("gradient_norm", res.GradientNorm),
		zap.Int64("value_calls", outcome.ValueCalls),
		zap.Int64("gradient_calls", outcome.GradientCalls),
		zap.Duration("elapsed", elapsed),
	)

	return &Report{
		Method:        plan.Method,
		LineSearch:    plan.LineSearch,
		Objective:     plan.Objective,
		Variables:     plan.Variables,
		X:             res.X,
		Value:         res.Value,
		GradientNorm:  res.GradientNorm,
		Converged:     res.Converged,
		Status:        res.Status,
		Iterations:    res.Iterations,
		ValueCalls:    outcome.ValueCalls,
		GradientCalls: outcome.GradientCalls,
		Elapsed:       elapsed,
		ElapsedMillis: float64(elapsed.Microseconds()) / 1000,
		History:       res.History,
	}, nil
}

// EvaluateRequest asks for the value and gradient at Point.
type EvaluateRequest struct {
	ObjectiveSpec
	Point []float64 `json:"point"`
}

// Evaluation is the value and gradient at a point.
type Evaluation struct {
	Point        []float64 `json:"point"`
	Value        float64   `json:"value"`
	Gradient     []float64 `json:"gradient"`
	GradientNorm float64   `json:"gradient_norm"`
}

// Evaluate computes f and ∇f at req.Point.
func (r *Runner) Evaluate(req EvaluateRequest) (*Evaluation, error) {
	obj, err := req.resolve(r.defaults.MaxDimension)
	if err != nil {
		return nil, err
	}
	if len(req.Point) != obj.dim {
		return nil, optimization.NewErrorf(optimization.KindConfig, "point has %d coordinates, objective has %d variables",
			len(req.Point), obj.dim).WithComponent(component).WithOperation("Runner.Evaluate")
	}

	v, err := obj.objective.Value(req.Point)
	if err != nil {
		return nil, err
	}
	g, err := obj.objective.Gradient(req.Point)
	if err != nil {
		return nil, err
	}
	return &Evaluation{
		Point:        append([]float64(nil), req.Point...),
		Value:        v,
		Gradient:     g,
		GradientNorm: floats.Norm(g, 2),
	}, nil
}
