package value

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// TypeName returns the name TYPE pushes for v (spec.md §4.7).
func TypeName(v Value) string {
	switch x := v.(type) {
	case Int:
		prefix := "i"
		if !x.Signed {
			prefix = "u"
		}
		return fmt.Sprintf("%s%d", prefix, x.Width)
	case Float:
		return "float"
	case Fixed:
		return "fixed"
	case Bool:
		return "bool"
	case Str:
		return "string"
	case *Array:
		return "array"
	case *Object:
		return "object"
	case Range:
		return "range"
	case FuncRef:
		return "function"
	case Regex:
		return "regex"
	default:
		return "nil"
	}
}

// Runes returns the UTF-8 string's codepoints, the unit spec.md §3
// mandates for string indexing and length.
func Runes(s Str) []rune { return []rune(string(s)) }

// Len implements the LEN syscall: collection length, 1 for primitives,
// 0 for Nil.
func Len(v Value) int {
	switch x := v.(type) {
	case *Array:
		return len(x.Elements)
	case *Object:
		return x.Len()
	case Str:
		return len(Runes(x))
	case Range:
		lo, hi, ok := rangeInts(x)
		if ok {
			n := hi - lo + 1
			if n < 0 {
				n = 0
			}
			return n
		}
		return 0
	default:
		if IsNil(v) {
			return 0
		}
		return 1
	}
}

func rangeInts(r Range) (lo, hi int64, ok bool) {
	li, lok := r.Lo.(Int)
	hv, hok := r.Hi.(Int)
	if lok && hok {
		return li.AsInt64(), hv.AsInt64(), true
	}
	return 0, 0, false
}

// promoRank orders numeric types for arithmetic promotion: Fixed > Float
// > Int (spec.md §4.1 ADD/SUB/... row).
func promoRank(v Value) int {
	switch v.(type) {
	case Fixed:
		return 2
	case Float:
		return 1
	case Int:
		return 0
	default:
		return -1
	}
}

// Promote widens a and b to a common numeric representation for
// arithmetic, returning the promoted pair and the rank they were
// promoted to (0=Int,1=Float,2=Fixed). Non-numeric inputs return ok=false.
func Promote(a, b Value) (pa, pb Value, rank int, ok bool) {
	ra, rb := promoRank(a), promoRank(b)
	if ra < 0 || rb < 0 {
		return nil, nil, 0, false
	}
	rank = ra
	if rb > rank {
		rank = rb
	}
	return widenTo(a, rank), widenTo(b, rank), rank, true
}

func widenTo(v Value, rank int) Value {
	switch rank {
	case 0:
		return v
	case 1:
		switch x := v.(type) {
		case Int:
			return Float(x.AsFloat64())
		case Float:
			return x
		}
	case 2:
		switch x := v.(type) {
		case Int:
			return NewFixed(decimal.NewFromInt(x.AsInt64()), 0)
		case Float:
			return NewFixed(decimal.NewFromFloat(float64(x)), -1)
		case Fixed:
			return x
		}
	}
	return v
}

// CastError is returned by Cast when a narrowing conversion would lose
// information; the caller (internal/vm's CAST) wraps it as an
// ArithmeticError.
type CastError struct {
	From, To string
	Value    Value
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cannot cast %s value %v to %s: overflow on narrowing", e.From, e.Value, e.To)
}

// Cast implements the CAST T instruction: coerce v to the named type,
// failing on lossy narrowing (spec.md §4.1).
func Cast(v Value, typeName string) (Value, error) {
	switch typeName {
	case "bool":
		return Bool(Truthy(v)), nil
	case "float":
		switch x := v.(type) {
		case Int:
			return Float(x.AsFloat64()), nil
		case Float:
			return x, nil
		case Fixed:
			f, _ := x.Dec.Float64()
			return Float(f), nil
		case Bool:
			if x {
				return Float(1), nil
			}
			return Float(0), nil
		case Str:
			var f float64
			if _, err := fmt.Sscanf(string(x), "%g", &f); err != nil {
				return nil, &CastError{TypeName(v), typeName, v}
			}
			return Float(f), nil
		}
	case "fixed":
		switch x := v.(type) {
		case Int:
			return NewFixed(decimal.NewFromInt(x.AsInt64()), 0), nil
		case Float:
			return NewFixed(decimal.NewFromFloat(float64(x)), -1), nil
		case Fixed:
			return x, nil
		}
	case "string":
		return Str(ToDisplayString(v)), nil
	case "i8", "i16", "i32", "i64", "u8", "u16", "u32", "u64":
		return castInt(v, typeName)
	}
	return nil, &CastError{TypeName(v), typeName, v}
}

func castInt(v Value, typeName string) (Value, error) {
	signed := typeName[0] == 'i'
	var w Width
	switch typeName[1:] {
	case "8":
		w = W8
	case "16":
		w = W16
	case "32":
		w = W32
	case "64":
		w = W64
	}
	var raw int64
	switch x := v.(type) {
	case Int:
		raw = x.AsInt64()
	case Float:
		if x != Float(math.Trunc(float64(x))) {
			return nil, &CastError{TypeName(v), typeName, v}
		}
		raw = int64(x)
	case Fixed:
		if !x.Dec.Equal(x.Dec.Truncate(0)) {
			return nil, &CastError{TypeName(v), typeName, v}
		}
		raw = x.Dec.IntPart()
	case Bool:
		if x {
			raw = 1
		}
	default:
		return nil, &CastError{TypeName(v), typeName, v}
	}
	if signed {
		if overflowsSigned(raw, w) {
			return nil, &CastError{TypeName(v), typeName, v}
		}
		return NewInt(raw, w), nil
	}
	if raw < 0 || overflowsUnsigned(uint64(raw), w) {
		return nil, &CastError{TypeName(v), typeName, v}
	}
	return NewUint(uint64(raw), w), nil
}

func overflowsSigned(v int64, w Width) bool {
	switch w {
	case W8:
		return v < math.MinInt8 || v > math.MaxInt8
	case W16:
		return v < math.MinInt16 || v > math.MaxInt16
	case W32:
		return v < math.MinInt32 || v > math.MaxInt32
	default:
		return false
	}
}

func overflowsUnsigned(v uint64, w Width) bool {
	switch w {
	case W8:
		return v > math.MaxUint8
	case W16:
		return v > math.MaxUint16
	case W32:
		return v > math.MaxUint32
	default:
		return false
	}
}
