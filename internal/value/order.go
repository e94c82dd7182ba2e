package value

import (
	"strings"

	"golang.org/x/exp/slices"
)

// tier is the cross-type ordering tier from spec.md §3:
// Array > String > Float > Int > Bool > {Object, Function, Range}.
// Fixed, Regex and Nil fall into that lowest tier as well; no comparison
// raises an error for them.
func tier(v Value) int {
	switch v.(type) {
	case *Array:
		return 5
	case Str:
		return 4
	case Float:
		return 3
	case Int:
		return 2
	case Bool:
		return 1
	default: // Object, FuncRef, Range, Fixed, Regex, Nil
		return 0
	}
}

// Truthy implements spec.md §3's truthiness rule.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case Bool:
		return bool(x)
	case Int:
		return x.AsInt64() != 0
	case Float:
		return float64(x) != 0
	case Fixed:
		return !x.Dec.IsZero()
	case Str:
		return len(x) > 0
	case *Array:
		return len(x.Elements) > 0
	case *Object:
		return x.Len() > 0
	case Range:
		return true
	default:
		return !IsNil(v)
	}
}

// Compare returns -1, 0, or 1 for a vs b under the §3 ordering: first by
// tier, then by natural order within a tier. In the lowest tier only two
// Fixed values are ordered (by magnitude); any other pair there compares
// as 0. Used by EQ/NE/LT/LE/GT/GE and by SORT.
func Compare(a, b Value) int {
	ta, tb := tier(a), tier(b)
	if ta != tb {
		if ta < tb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case *Array:
		y := b.(*Array)
		n := len(x.Elements)
		if len(y.Elements) < n {
			n = len(y.Elements)
		}
		for i := 0; i < n; i++ {
			if c := Compare(x.Elements[i], y.Elements[i]); c != 0 {
				return c
			}
		}
		return intCmp(len(x.Elements), len(y.Elements))
	case Str:
		return strings.Compare(string(x), string(b.(Str)))
	case Float:
		return floatCmp(float64(x), float64(b.(Float)))
	case Int:
		y := b.(Int)
		if x.Signed || y.Signed {
			return intCmp64(x.AsInt64(), y.AsInt64())
		}
		return uintCmp(x.UVal, y.UVal)
	case Bool:
		y := b.(Bool)
		if x == y {
			return 0
		}
		if !bool(x) {
			return -1
		}
		return 1
	case Fixed:
		if y, ok := b.(Fixed); ok {
			return x.Dec.Cmp(y.Dec)
		}
		return 0
	default:
		return 0 // Object/Function/Range are mutually equal-ranked; not ordered within tier
	}
}

func intCmp(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func intCmp64(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func uintCmp(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func floatCmp(a, b float64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Equal mixes type-coercing arithmetic-style equality for numeric values
// (Int, Float, Fixed, and Bool as 0/1; Fixed participates by converting
// to Float, consistent with "Fixed > Float > Int" promotion used
// elsewhere) with Compare(a, b) == 0 for everything else.
func Equal(a, b Value) bool {
	if af, ok := numeric(a); ok {
		if bf, ok := numeric(b); ok {
			return af == bf
		}
	}
	return Compare(a, b) == 0
}

func numeric(v Value) (float64, bool) {
	switch x := v.(type) {
	case Int:
		return x.AsFloat64(), true
	case Float:
		return float64(x), true
	case Fixed:
		f, _ := x.Dec.Float64()
		return f, true
	case Bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// SortStable sorts elems under the §3 ordering, stably. Grounded on the
// teacher's go.mod carrying golang.org/x/exp without using it anywhere;
// this is its home (see internal/syscalls for the SORT opcode wrapper).
func SortStable(elems []Value) {
	slices.SortStableFunc(elems, func(a, b Value) int {
		return Compare(a, b)
	})
}
