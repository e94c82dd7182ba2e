package value

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ArithError is a domain/overflow/division error surfaced by the
// arithmetic family; internal/vm wraps it as an ArithmeticError
// (internal/errors).
type ArithError struct {
	Op      string
	Message string
}

func (e *ArithError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Message) }

// Add implements ADD: numeric addition with promotion, array
// concatenation, and string concatenation.
func Add(a, b Value) (Value, error) {
	if as, ok := a.(Str); ok {
		return Str(string(as) + ToDisplayString(b)), nil
	}
	if aa, ok := a.(*Array); ok {
		if ab, ok := b.(*Array); ok {
			out := make([]Value, 0, len(aa.Elements)+len(ab.Elements))
			out = append(out, aa.Elements...)
			out = append(out, ab.Elements...)
			return &Array{Elements: out}, nil
		}
	}
	return numericBinOp("+", a, b,
		func(x, y int64) (int64, error) { return x + y, nil },
		func(x, y float64) float64 { return x + y },
		func(x, y decimal.Decimal) decimal.Decimal { return x.Add(y) })
}

func Sub(a, b Value) (Value, error) {
	return numericBinOp("-", a, b,
		func(x, y int64) (int64, error) { return x - y, nil },
		func(x, y float64) float64 { return x - y },
		func(x, y decimal.Decimal) decimal.Decimal { return x.Sub(y) })
}

func Mul(a, b Value) (Value, error) {
	return numericBinOp("*", a, b,
		func(x, y int64) (int64, error) { return x * y, nil },
		func(x, y float64) float64 { return x * y },
		func(x, y decimal.Decimal) decimal.Decimal { return x.Mul(y) })
}

func Div(a, b Value) (Value, error) {
	return numericBinOp("/", a, b,
		func(x, y int64) (int64, error) {
			if y == 0 {
				return 0, &ArithError{"/", "division by zero"}
			}
			return x / y, nil
		},
		func(x, y float64) float64 { return x / y },
		func(x, y decimal.Decimal) decimal.Decimal {
			return x.DivRound(y, FixedDivScale)
		})
}

func Mod(a, b Value) (Value, error) {
	return numericBinOp("%", a, b,
		func(x, y int64) (int64, error) {
			if y == 0 {
				return 0, &ArithError{"%", "division by zero"}
			}
			return x % y, nil
		},
		func(x, y float64) float64 { return math.Mod(x, y) },
		func(x, y decimal.Decimal) decimal.Decimal { return x.Mod(y) })
}

func Pow(a, b Value) (Value, error) {
	return numericBinOp("**", a, b,
		func(x, y int64) (int64, error) {
			if y < 0 {
				return 0, nil
			}
			r := int64(1)
			for i := int64(0); i < y; i++ {
				r *= x
			}
			return r, nil
		},
		func(x, y float64) float64 { return math.Pow(x, y) },
		func(x, y decimal.Decimal) decimal.Decimal {
			f, _ := y.Float64()
			return x.Pow(decimal.NewFromFloat(f))
		})
}

// numericBinOp promotes a,b to a common rank (Int/Float/Fixed) and
// dispatches to the matching op, re-widening the result's declared Int
// width to the wider of the two operands.
func numericBinOp(op string, a, b Value,
	intOp func(x, y int64) (int64, error),
	floatOp func(x, y float64) float64,
	fixedOp func(x, y decimal.Decimal) decimal.Decimal) (Value, error) {

	pa, pb, rank, ok := Promote(a, b)
	if !ok {
		return nil, &ArithError{op, fmt.Sprintf("unsupported operand types %s, %s", TypeName(a), TypeName(b))}
	}
	switch rank {
	case 0:
		ia, ib := pa.(Int), pb.(Int)
		r, err := intOp(ia.AsInt64(), ib.AsInt64())
		if err != nil {
			return nil, err
		}
		w := ia.Width
		if ib.Width > w {
			w = ib.Width
		}
		signed := ia.Signed || ib.Signed
		if signed {
			return NewInt(r, w), nil
		}
		return NewUint(uint64(r), w), nil
	case 1:
		fa, fb := float64(pa.(Float)), float64(pb.(Float))
		return Float(floatOp(fa, fb)), nil
	default:
		xa, xb := pa.(Fixed), pb.(Fixed)
		scale := xa.Scale
		if xb.Scale > scale {
			scale = xb.Scale
		}
		return NewFixed(fixedOp(xa.Dec, xb.Dec), scale), nil
	}
}

// Negate implements unary arithmetic negation.
func Negate(v Value) (Value, error) {
	switch x := v.(type) {
	case Int:
		if x.Signed {
			return NewInt(-x.Val, x.Width), nil
		}
		return nil, &ArithError{"negate", "cannot negate unsigned integer"}
	case Float:
		return Float(-x), nil
	case Fixed:
		return NewFixed(x.Dec.Neg(), x.Scale), nil
	default:
		return nil, &ArithError{"negate", fmt.Sprintf("unsupported operand type %s", TypeName(v))}
	}
}

// Bitwise family (BAND/BOR/BXOR/BNOT) operate on integer types only.
func bitwiseOp(op string, a, b Value, f func(x, y int64) int64) (Value, error) {
	ia, ok := a.(Int)
	if !ok {
		return nil, &ArithError{op, fmt.Sprintf("unsupported operand type %s", TypeName(a))}
	}
	ib, ok := b.(Int)
	if !ok {
		return nil, &ArithError{op, fmt.Sprintf("unsupported operand type %s", TypeName(b))}
	}
	w := ia.Width
	if ib.Width > w {
		w = ib.Width
	}
	r := f(ia.AsInt64(), ib.AsInt64())
	if ia.Signed || ib.Signed {
		return NewInt(r, w), nil
	}
	return NewUint(uint64(r), w), nil
}

func BAnd(a, b Value) (Value, error) { return bitwiseOp("&", a, b, func(x, y int64) int64 { return x & y }) }
func BOr(a, b Value) (Value, error)  { return bitwiseOp("|", a, b, func(x, y int64) int64 { return x | y }) }
func BXor(a, b Value) (Value, error) { return bitwiseOp("^", a, b, func(x, y int64) int64 { return x ^ y }) }

func BNot(v Value) (Value, error) {
	i, ok := v.(Int)
	if !ok {
		return nil, &ArithError{"~", fmt.Sprintf("unsupported operand type %s", TypeName(v))}
	}
	if i.Signed {
		return NewInt(^i.Val, i.Width), nil
	}
	return NewUint(^i.UVal, i.Width), nil
}
