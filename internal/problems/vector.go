// Package problems provides concrete solutions for the LAHC engine and the
// run spec used by the CLI and the service to build them.
package problems

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize/functions"

	"github.com/copyleftdev/lahc/internal/optimization"
)

// Objective maps a point to its cost.
type Objective func(x []float64) float64

type objectiveInfo struct {
	fn           Objective
	lower, upper float64
}

var objectives = map[string]objectiveInfo{
	"sphere": {
		fn:    Sphere,
		lower: -5.12,
		upper: 5.12,
	},
	"rastrigin": {
		fn:    Rastrigin,
		lower: -5.12,
		upper: 5.12,
	},
	"rosenbrock": {
		fn:    Rosenbrock,
		lower: -2.048,
		upper: 2.048,
	},
}

// Objectives returns the names of the built-in objectives, sorted.
func Objectives() []string {
	names := make([]string, 0, len(objectives))
	for name := range objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sphere is the sum of squares.
func Sphere(x []float64) float64 {
	return floats.Dot(x, x)
}

// Rastrigin is 10n + sum(x_i^2 - 10 cos(2 pi x_i)). Global minimum 0 at the origin.
func Rastrigin(x []float64) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

// Rosenbrock is the extended Rosenbrock function. Global minimum 0 at (1, ..., 1).
func Rosenbrock(x []float64) float64 {
	return functions.ExtendedRosenbrock{}.Func(x)
}

// Vector is a point in a box-bounded continuous space.
// Perturb moves one coordinate by a gaussian step and clamps it to the box.
type Vector struct {
	X []float64 `json:"x"`

	objective    string
	fn           Objective
	lower, upper float64
	step         float64
}

// NewVector returns a vector starting at x. x is copied.
func NewVector(objective string, x []float64, lower, upper, step float64) (*Vector, error) {
	info, ok := objectives[objective]
	if !ok {
		return nil, optimization.NewErrorf("unknown objective %q", objective).WithComponent(component)
	}
	if len(x) == 0 {
		return nil, optimization.NewError("vector must have at least one dimension").WithComponent(component)
	}
	if !(upper > lower) {
		return nil, optimization.NewErrorf("upper bound %v must exceed lower bound %v", upper, lower).WithComponent(component)
	}
	if !(step > 0) {
		return nil, optimization.NewErrorf("step size must be positive, got %v", step).WithComponent(component)
	}
	v := &Vector{
		X:         append([]float64(nil), x...),
		objective: objective,
		fn:        info.fn,
		lower:     lower,
		upper:     upper,
		step:      step,
	}
	for i := range v.X {
		v.X[i] = v.clamp(v.X[i])
	}
	return v, nil
}

// RandomVector returns a vector drawn uniformly from the box.
func RandomVector(objective string, dim int, lower, upper, step float64, rng *rand.Rand) (*Vector, error) {
	if dim < 1 {
		return nil, optimization.NewErrorf("dimension must be at least 1, got %d", dim).WithComponent(component)
	}
	x := make([]float64, dim)
	for i := range x {
		x[i] = lower + rng.Float64()*(upper-lower)
	}
	return NewVector(objective, x, lower, upper, step)
}

// Objective returns the objective name.
func (v *Vector) Objective() string {
	return v.objective
}

// Perturb moves one random coordinate.
func (v *Vector) Perturb(rng *rand.Rand) error {
	i := rng.Intn(len(v.X))
	v.X[i] = v.clamp(v.X[i] + rng.NormFloat64()*v.step)
	return nil
}

// Evaluate returns the objective value at X.
func (v *Vector) Evaluate() (float64, error) {
	c := v.fn(v.X)
	if math.IsNaN(c) {
		return 0, optimization.NewErrorf("%s objective returned NaN", v.objective).
			WithComponent(component).
			WithOperation("evaluate")
	}
	return c, nil
}

// Clone returns an independent copy.
func (v *Vector) Clone() *Vector {
	c := *v
	c.X = append([]float64(nil), v.X...)
	return &c
}

func (v *Vector) clamp(x float64) float64 {
	return math.Max(v.lower, math.Min(x, v.upper))
}
