package problems

import (
	"math/rand"
	"reflect"

	"github.com/huandu/go-clone"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/lahc/internal/optimization"
)

func init() {
	// Distance matrices are never written after NewTour, so deep snapshots
	// share them like Clone does.
	clone.MarkAsOpaquePointer(reflect.TypeOf((*mat.Dense)(nil)))
}

// Tour is a closed travelling salesman tour. The distance matrix is
// computed once and shared read-only between clones.
type Tour struct {
	Order []int `json:"order"`

	cities [][2]float64
	dist   *mat.Dense
}

// NewTour builds the identity tour 0, 1, ..., n-1 over cities.
func NewTour(cities [][2]float64) (*Tour, error) {
	n := len(cities)
	if n < 3 {
		return nil, optimization.NewErrorf("a tour needs at least 3 cities, got %d", n).WithComponent(component)
	}

	dist := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(cities[i][:], cities[j][:], 2)
			dist.Set(i, j, d)
			dist.Set(j, i, d)
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return &Tour{
		Order:  order,
		cities: append([][2]float64(nil), cities...),
		dist:   dist,
	}, nil
}

// RandomCities scatters n cities uniformly over a side x side square.
func RandomCities(n int, side float64, rng *rand.Rand) [][2]float64 {
	cities := make([][2]float64, n)
	for i := range cities {
		cities[i] = [2]float64{rng.Float64() * side, rng.Float64() * side}
	}
	return cities
}

// Cities returns the city coordinates indexed by city number.
func (t *Tour) Cities() [][2]float64 {
	return t.cities
}

// Shuffle randomises the visiting order.
func (t *Tour) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(t.Order), func(i, j int) {
		t.Order[i], t.Order[j] = t.Order[j], t.Order[i]
	})
}

// Perturb applies a 2-opt move: the segment between two distinct random
// positions is reversed.
func (t *Tour) Perturb(rng *rand.Rand) error {
	n := len(t.Order)
	i := rng.Intn(n)
	j := rng.Intn(n - 1)
	if j >= i {
		j++
	}
	if i > j {
		i, j = j, i
	}
	for ; i < j; i, j = i+1, j-1 {
		t.Order[i], t.Order[j] = t.Order[j], t.Order[i]
	}
	return nil
}

// Evaluate returns the closed tour length.
func (t *Tour) Evaluate() (float64, error) {
	n := len(t.Order)
	var length float64
	for k := 0; k < n; k++ {
		length += t.dist.At(t.Order[k], t.Order[(k+1)%n])
	}
	return length, nil
}

// Clone copies the visiting order and shares the distance matrix.
func (t *Tour) Clone() *Tour {
	return &Tour{
		Order:  append([]int(nil), t.Order...),
		cities: t.cities,
		dist:   t.dist,
	}
}
