package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square() *FuncObjective {
	return NewObjective(
		func(x ...float64) (float64, error) { return x[0]*x[0] + x[1]*x[1], nil },
		func(x ...float64) ([]float64, error) { return []float64{2 * x[0], 2 * x[1]}, nil },
		2,
	)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		config  OptimizerConfig
		wantErr bool
	}{
		{"valid", OptimizerConfig{Objective: square(), Initial: []float64{1, 2}}, false},
		{"nil objective", OptimizerConfig{Initial: []float64{1, 2}}, true},
		{"empty initial", OptimizerConfig{Objective: square()}, true},
		{"nan initial", OptimizerConfig{Objective: square(), Initial: []float64{math.NaN(), 0}}, true},
		{"inf initial", OptimizerConfig{Objective: square(), Initial: []float64{math.Inf(1), 0}}, true},
		{"dimension mismatch", OptimizerConfig{Objective: square(), Initial: []float64{1}}, true},
		{"tolerance too small", OptimizerConfig{Objective: square(), Initial: []float64{1, 2}, Tolerance: 1e-13}, true},
		{"tolerance too large", OptimizerConfig{Objective: square(), Initial: []float64{1, 2}, Tolerance: 0.5}, true},
		{"negative tolerance", OptimizerConfig{Objective: square(), Initial: []float64{1, 2}, Tolerance: -1e-6}, true},
		{"negative iterations", OptimizerConfig{Objective: square(), Initial: []float64{1, 2}, MaxIterations: -1}, true},
		{"zero iterations", OptimizerConfig{Objective: square(), Initial: []float64{1, 2}, MaxIterations: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.config.Resolve()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsKind(err, KindConfig), "got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestResolveDefaultsAndCopies(t *testing.T) {
	initial := []float64{1, 2}
	c, err := OptimizerConfig{Objective: square(), Initial: initial}.Resolve()
	require.NoError(t, err)

	assert.Equal(t, DefaultTolerance, c.Tolerance)
	c.Initial[0] = 99
	assert.Equal(t, 1.0, initial[0], "Resolve must not alias the caller's slice")
}

func TestCheckTolerance(t *testing.T) {
	assert.NoError(t, CheckTolerance(MinTolerance))
	assert.NoError(t, CheckTolerance(MaxTolerance))
	assert.Error(t, CheckTolerance(math.NaN()))
	assert.Error(t, CheckTolerance(0))
}
