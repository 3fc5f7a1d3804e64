package linesearch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/optplay/internal/optimization"
	"github.com/copyleftdev/optplay/internal/optimization/testutil"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
		wantNil  bool
		wantErr  bool
	}{
		{"", "", true, false},
		{"none", "", true, false},
		{"ARMIJO", NameArmijo, false, false},
		{" wolfe ", NameWolfe, false, false},
		{"goldstein", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ls, err := New(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, optimization.IsKind(err, optimization.KindConfig))
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, ls)
				return
			}
			assert.Equal(t, tt.wantName, ls.Name())
		})
	}
}

func TestArmijo(t *testing.T) {
	tests := []struct {
		name      string
		search    Armijo
		d         float64
		wantAlpha float64
		satisfied bool
		trials    int
	}{
		{"backtracks", Armijo{}, -10, 0.25, true, 3},
		{"accepts full step", Armijo{}, -2, 1, true, 1},
		{"budget exhausted", Armijo{MaxIterations: 1}, -10, 0.5, false, 1},
		{"custom contraction", Armijo{Contraction: 0.1}, -10, 0.1, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := tt.search.Search(testutil.Sphere(), []float64{2}, []float64{tt.d})
			require.NoError(t, err)
			assert.InDelta(t, tt.wantAlpha, step.Alpha, 1e-15)
			assert.Equal(t, tt.satisfied, step.Satisfied)
			assert.Equal(t, tt.trials, step.Trials)
		})
	}
}

func TestWolfe(t *testing.T) {
	tests := []struct {
		name      string
		search    Wolfe
		d         float64
		wantAlpha float64
		trials    int
	}{
		{"accepts full step", Wolfe{}, -1, 1, 1},
		{"shrinks on insufficient decrease", Wolfe{}, -10, 0.25, 3},
		{"grows on curvature", Wolfe{Curvature: 0.5}, -0.1, 16, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step, err := tt.search.Search(testutil.Sphere(), []float64{2}, []float64{tt.d})
			require.NoError(t, err)
			assert.InDelta(t, tt.wantAlpha, step.Alpha, 1e-12)
			assert.True(t, step.Satisfied)
			assert.Equal(t, tt.trials, step.Trials)
		})
	}

	step, err := Wolfe{Curvature: 0.5, MaxIterations: 2}.Search(testutil.Sphere(), []float64{2}, []float64{-0.1})
	require.NoError(t, err)
	assert.False(t, step.Satisfied)
	assert.InDelta(t, 4, step.Alpha, 1e-12)
}

func TestInvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		search LineSearcher
	}{
		{"negative initial step", Armijo{InitialStep: -1}},
		{"negative budget", Armijo{MaxIterations: -3}},
		{"contraction above one", Armijo{Contraction: 1.5}},
		{"decrease above one", Armijo{Decrease: 2}},
		{"curvature below decrease", Wolfe{Decrease: 0.5, Curvature: 0.1}},
		{"curvature equal one", Wolfe{Curvature: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.search.Search(testutil.Sphere(), []float64{1}, []float64{-1})
			require.Error(t, err)
			assert.True(t, optimization.IsKind(err, optimization.KindConfig), "got %v", err)
		})
	}
}

func TestSearchPropagatesEvaluationErrors(t *testing.T) {
	domain := errors.New("outside domain")
	// f is undefined left of zero.
	obj := optimization.NewObjective(
		func(x ...float64) (float64, error) {
			if x[0] < 0 {
				return 0, domain
			}
			return x[0] * x[0], nil
		},
		func(x ...float64) ([]float64, error) { return []float64{2 * x[0]}, nil },
		1,
	)

	for _, ls := range []LineSearcher{Armijo{}, Wolfe{}} {
		t.Run(ls.Name(), func(t *testing.T) {
			_, err := ls.Search(obj, []float64{2}, []float64{-10})
			require.Error(t, err)
			assert.True(t, optimization.IsKind(err, optimization.KindEvaluation))
			assert.ErrorIs(t, err, domain)
		})
	}
}
