package lahc

import "github.com/copyleftdev/lahc/internal/optimization"

// History is the fixed-length circular record of past costs used as the
// late acceptance threshold. Slot i holds the cost written at the last step
// congruent to i modulo the length.
type History struct {
	costs []float64
}

// NewHistory returns a history of the given length with every slot set to seed.
func NewHistory(length int, seed float64) (*History, error) {
	if length < 1 {
		return nil, optimization.ConfigErrorf("history length must be at least 1, got %d", length)
	}
	costs := make([]float64, length)
	for i := range costs {
		costs[i] = seed
	}
	return &History{costs: costs}, nil
}

// At returns the cost stored for step.
func (h *History) At(step int) float64 {
	return h.costs[h.slot(step)]
}

// Set overwrites the cost stored for step.
func (h *History) Set(step int, cost float64) {
	h.costs[h.slot(step)] = cost
}

// Len returns the number of slots.
func (h *History) Len() int {
	return len(h.costs)
}

// Costs returns a copy of the slots in index order.
func (h *History) Costs() []float64 {
	return append([]float64(nil), h.costs...)
}

func (h *History) slot(step int) int {
	return step % len(h.costs)
}
