package optimization

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/huandu/go-clone"
)

// CloneStrategy selects how snapshots of a solution are taken.
type CloneStrategy int

const (
	// CloneDeep copies the whole value graph recursively. Slow but works
	// for any solution type.
	CloneDeep CloneStrategy = iota
	// CloneShallow copies the elements of a slice or map solution. The
	// elements themselves must not hold references.
	CloneShallow
	// CloneMethod delegates to the solution's own Clone method.
	CloneMethod
)

// String returns the textual form of the strategy.
func (c CloneStrategy) String() string {
	switch c {
	case CloneDeep:
		return "deep"
	case CloneShallow:
		return "shallow"
	case CloneMethod:
		return "method"
	default:
		return fmt.Sprintf("CloneStrategy(%d)", int(c))
	}
}

// ParseCloneStrategy accepts "deep" (or "deepcopy"), "shallow" (or "slice")
// and "method".
func ParseCloneStrategy(s string) (CloneStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "deep", "deepcopy":
		return CloneDeep, nil
	case "shallow", "slice":
		return CloneShallow, nil
	case "method":
		return CloneMethod, nil
	default:
		return 0, ConfigErrorf("unknown clone strategy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c CloneStrategy) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CloneStrategy) UnmarshalText(text []byte) error {
	v, err := ParseCloneStrategy(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// NewCloneFunc returns the cloning function for strategy. The sample is used
// to check up front that the strategy can serve the solution type.
func NewCloneFunc[S any](strategy CloneStrategy, sample S) (func(S) S, error) {
	switch strategy {
	case CloneDeep:
		return deepClone[S], nil
	case CloneShallow:
		if !shallowCopyable(reflect.TypeOf(any(sample))) {
			return nil, ConfigErrorf("shallow clone needs a slice or map of plain values, got %T", sample)
		}
		return shallowClone[S], nil
	case CloneMethod:
		if _, ok := any(sample).(Cloner[S]); !ok {
			return nil, ConfigErrorf("%T does not implement Clone() %T", sample, sample)
		}
		return methodClone[S], nil
	default:
		return nil, ConfigErrorf("unknown clone strategy %d", int(strategy))
	}
}

func deepClone[S any](s S) S {
	out, _ := clone.Clone(s).(S)
	return out
}

func methodClone[S any](s S) S {
	return any(s).(Cloner[S]).Clone()
}

func shallowClone[S any](s S) S {
	rv := reflect.ValueOf(any(s))
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return s
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface().(S)
	case reflect.Map:
		if rv.IsNil() {
			return s
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		return out.Interface().(S)
	default:
		return s
	}
}

// shallowCopyable reports whether copying one level of t yields a value
// that shares no memory with the original.
func shallowCopyable(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Slice:
		return !holdsReferences(t.Elem())
	case reflect.Map:
		return !holdsReferences(t.Key()) && !holdsReferences(t.Elem())
	default:
		return false
	}
}

func holdsReferences(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return holdsReferences(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if holdsReferences(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
