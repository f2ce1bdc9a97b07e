package problems

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectives(t *testing.T) {
	tests := []struct {
		name string
		fn   Objective
		x    []float64
		want float64
	}{
		{name: "sphere origin", fn: Sphere, x: []float64{0, 0, 0}, want: 0},
		{name: "sphere", fn: Sphere, x: []float64{1, 2, 3}, want: 14},
		{name: "rastrigin origin", fn: Rastrigin, x: []float64{0, 0}, want: 0},
		{name: "rastrigin integers", fn: Rastrigin, x: []float64{1, -2}, want: 5},
		{name: "rosenbrock minimum", fn: Rosenbrock, x: []float64{1, 1, 1}, want: 0},
		{name: "rosenbrock origin", fn: Rosenbrock, x: []float64{0, 0}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.fn(tt.x), 1e-9)
		})
	}

	assert.Equal(t, []string{"rastrigin", "rosenbrock", "sphere"}, Objectives())
}

func TestNewVectorValidation(t *testing.T) {
	_, err := NewVector("nope", []float64{1}, -1, 1, 0.1)
	assert.Error(t, err)

	_, err = NewVector("sphere", nil, -1, 1, 0.1)
	assert.Error(t, err)

	_, err = NewVector("sphere", []float64{1}, 1, 1, 0.1)
	assert.Error(t, err)

	_, err = NewVector("sphere", []float64{1}, -1, 1, 0)
	assert.Error(t, err)

	v, err := NewVector("sphere", []float64{5, -5}, -1, 1, 0.1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -1}, v.X, "start is clamped into the box")
	assert.Equal(t, "sphere", v.Objective())
}

func TestVectorPerturbStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	v, err := RandomVector("rastrigin", 4, -2, 2, 5, rng)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		before := append([]float64(nil), v.X...)
		require.NoError(t, v.Perturb(rng))

		changed := 0
		for j := range v.X {
			assert.GreaterOrEqual(t, v.X[j], -2.0)
			assert.LessOrEqual(t, v.X[j], 2.0)
			if v.X[j] != before[j] {
				changed++
			}
		}
		assert.LessOrEqual(t, changed, 1, "a move touches a single coordinate")
	}
}

func TestVectorClone(t *testing.T) {
	v, err := NewVector("sphere", []float64{1, 2}, -5, 5, 0.5)
	require.NoError(t, err)

	c := v.Clone()
	v.X[0] = 4

	assert.Equal(t, []float64{1, 2}, c.X)
	cost, err := c.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, 5.0, cost)
}
