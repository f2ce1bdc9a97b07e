package optimization

import (
	"fmt"
	"math/rand"
	"strings"
)

// Solution is the caller-supplied state an optimizer works on.
// Perturb mutates the receiver in place into a neighbouring candidate using
// the optimizer's random source. Evaluate returns the cost of the current
// state; lower is better.
type Solution interface {
	Perturb(rng *rand.Rand) error
	Evaluate() (float64, error)
}

// Cloner is implemented by solutions that know how to copy themselves.
// The returned value must not share mutable state with the receiver.
type Cloner[S any] interface {
	Clone() S
}

// HistoryUpdate selects the cost written into the history buffer when a
// candidate is rejected.
type HistoryUpdate int

const (
	// UseLastAcceptedCost writes the last accepted cost on rejection.
	UseLastAcceptedCost HistoryUpdate = iota
	// UseRejectedCost writes the rejected candidate's own cost.
	UseRejectedCost
)

// String returns the textual form of the history update mode.
func (h HistoryUpdate) String() string {
	switch h {
	case UseLastAcceptedCost:
		return "last_accepted"
	case UseRejectedCost:
		return "rejected"
	default:
		return fmt.Sprintf("HistoryUpdate(%d)", int(h))
	}
}

// ParseHistoryUpdate parses "last_accepted" or "rejected".
func ParseHistoryUpdate(s string) (HistoryUpdate, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "last_accepted", "last-accepted", "lastaccepted":
		return UseLastAcceptedCost, nil
	case "rejected", "rejected_cost":
		return UseRejectedCost, nil
	default:
		return 0, ConfigErrorf("unknown history update mode %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (h HistoryUpdate) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HistoryUpdate) UnmarshalText(text []byte) error {
	v, err := ParseHistoryUpdate(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Evaluation records one improvement of the best cost.
type Evaluation struct {
	Iteration int     `json:"iteration"`
	Cost      float64 `json:"cost"`
}

// Result contains the result of an optimization run
type Result[S any] struct {
	Best       S
	BestCost   float64
	Iterations int
	Accepted   int
	Rejected   int
	// Cancelled is set when the run stopped before reaching its step limit.
	Cancelled bool
	// History lists every improvement of the best cost, in order.
	History []Evaluation
}

// Monitor exposes the progress of a running optimizer. All methods are safe
// to call from other goroutines while the run is in flight.
type Monitor interface {
	// BestCost returns the best cost found so far
	BestCost() float64

	// History returns the improvements of the best cost so far
	History() []Evaluation

	// Iterations returns the number of completed steps
	Iterations() int

	// Stop asks the run to terminate at the next step boundary
	Stop()
}
