package optimization

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	base := errors.New("disk full")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "message only",
			err:  NewError("bad input"),
			want: "bad input",
		},
		{
			name: "component and op",
			err:  NewError("bad input").WithComponent("lahc").WithOperation("perturb"),
			want: "lahc: perturb: bad input",
		},
		{
			name: "with step and cause",
			err:  WrapError(base, "evaluating candidate").WithComponent("lahc").WithOperation("evaluate").WithStep(12),
			want: "lahc: evaluate (step 12): evaluating candidate: disk full",
		},
		{
			name: "config error",
			err:  ConfigErrorf("history length must be at least 1, got %d", 0),
			want: "config: history length must be at least 1, got 0: invalid optimizer configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError(nil, "x"))
	assert.Nil(t, WrapErrorf(nil, "x %d", 1))
}

func TestIsOptimizationError(t *testing.T) {
	inner := NewError("inner").WithOperation("evaluate")
	wrapped := fmt.Errorf("outer: %w", inner)

	got, ok := IsOptimizationError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, "evaluate", got.Op)

	_, ok = IsOptimizationError(errors.New("plain"))
	assert.False(t, ok)

	_, ok = IsOptimizationError(nil)
	assert.False(t, ok)
}
