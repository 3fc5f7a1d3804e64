package playground

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/optplay/internal/optimization"
)

// Default plotting domain.
const (
	DefaultSurfaceMin = -5.0
	DefaultSurfaceMax = 5.0
)

// SurfaceRequest asks for a grid of values of a two-variable objective.
// A zero range selects [-5, 5] and a zero Resolution the configured one.
type SurfaceRequest struct {
	ObjectiveSpec
	XMin       float64 `json:"x_min,omitempty"`
	XMax       float64 `json:"x_max,omitempty"`
	YMin       float64 `json:"y_min,omitempty"`
	YMax       float64 `json:"y_max,omitempty"`
	Resolution int     `json:"resolution,omitempty"`
}

// Surface holds Z[i][j] = f(X[j], Y[i]). Points where the objective is
// undefined are nil.
type Surface struct {
	Variables []string     `json:"variables"`
	X         []float64    `json:"x"`
	Y         []float64    `json:"y"`
	Z         [][]*float64 `json:"z"`
	ZMin      float64      `json:"z_min"`
	ZMax      float64      `json:"z_max"`
}

const maxSurfaceResolution = 1000

// Surface evaluates the objective on a regular grid for contour and 3-D
// plots. Only two-variable objectives can be plotted.
func (r *Runner) Surface(ctx context.Context, req SurfaceRequest) (*Surface, error) {
	const op = "Runner.Surface"

	obj, err := req.resolve(r.defaults.MaxDimension)
	if err != nil {
		return nil, err
	}
	if obj.dim != 2 {
		return nil, optimization.NewErrorf(optimization.KindConfig, "surface needs 2 variables, objective has %d", obj.dim).
			WithComponent(component).WithOperation(op)
	}

	xmin, xmax := domain(req.XMin, req.XMax)
	ymin, ymax := domain(req.YMin, req.YMax)
	if xmin >= xmax || ymin >= ymax {
		return nil, optimization.NewErrorf(optimization.KindConfig, "empty domain [%g, %g]×[%g, %g]", xmin, xmax, ymin, ymax).
			WithComponent(component).WithOperation(op)
	}

	n := req.Resolution
	if n == 0 {
		n = r.defaults.SurfaceResolution
	}
	if n < 2 || n > maxSurfaceResolution {
		return nil, optimization.NewErrorf(optimization.KindConfig, "resolution must be in [2, %d], got %d", maxSurfaceResolution, n).
			WithComponent(component).WithOperation(op)
	}

	s := &Surface{
		Variables: obj.variables,
		X:         floats.Span(make([]float64, n), xmin, xmax),
		Y:         floats.Span(make([]float64, n), ymin, ymax),
		Z:         make([][]*float64, n),
		ZMin:      math.Inf(1),
		ZMax:      math.Inf(-1),
	}

	p := make([]float64, 2)
	for i, y := range s.Y {
		if err := ctx.Err(); err != nil {
			return nil, optimization.WrapError(err, optimization.KindCancelled, "surface cancelled").
				WithComponent(component).WithOperation(op)
		}
		row := make([]*float64, n)
		for j, x := range s.X {
			p[0], p[1] = x, y
			v, err := obj.objective.Value(p)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				if err != nil && !optimization.IsKind(err, optimization.KindEvaluation) {
					return nil, err
				}
				continue
			}
			row[j] = &v
			s.ZMin = math.Min(s.ZMin, v)
			s.ZMax = math.Max(s.ZMax, v)
		}
		s.Z[i] = row
	}

	if math.IsInf(s.ZMin, 1) {
		return nil, optimization.NewError(optimization.KindEvaluation, "objective is undefined on the whole domain").
			WithComponent(component).WithOperation(op)
	}
	return s, nil
}

func domain(lo, hi float64) (float64, float64) {
	if lo == 0 && hi == 0 {
		return DefaultSurfaceMin, DefaultSurfaceMax
	}
	return lo, hi
}
