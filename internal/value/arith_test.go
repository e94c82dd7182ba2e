package value

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAddNumericPromotion(t *testing.T) {
	r, err := Add(NewInt(1, W64), Float(2.5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f, ok := r.(Float); !ok || float64(f) != 3.5 {
		t.Fatalf("expected Float(3.5), got %#v", r)
	}
}

func TestAddStringConcat(t *testing.T) {
	r, err := Add(Str("x="), NewInt(7, W64))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s, ok := r.(Str); !ok || string(s) != "x=7" {
		t.Fatalf("expected Str(x=7), got %#v", r)
	}
}

func TestAddArrayConcat(t *testing.T) {
	a := &Array{Elements: []Value{NewInt(1, W64)}}
	b := &Array{Elements: []Value{NewInt(2, W64)}}
	r, err := Add(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arr, ok := r.(*Array)
	if !ok || len(arr.Elements) != 2 {
		t.Fatalf("expected a 2-element array, got %#v", r)
	}
}

func TestDivByZeroInt(t *testing.T) {
	_, err := Div(NewInt(1, W64), NewInt(0, W64))
	if err == nil {
		t.Fatal("expected division by zero to error")
	}
}

func TestModByZeroInt(t *testing.T) {
	_, err := Mod(NewInt(1, W64), NewInt(0, W64))
	if err == nil {
		t.Fatal("expected modulo by zero to error")
	}
}

func TestDivFixedUsesFixedDivScale(t *testing.T) {
	one := NewFixed(decimal.NewFromInt(1), 0)
	three := NewFixed(decimal.NewFromInt(3), 0)
	r, err := Div(one, three)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fx, ok := r.(Fixed)
	if !ok {
		t.Fatalf("expected Fixed, got %#v", r)
	}
	if places := -fx.Dec.Exponent(); places != FixedDivScale {
		t.Fatalf("expected %d fractional digits, got %d (%s)", FixedDivScale, places, fx.Dec.String())
	}
}

func TestNumericBinOpWidensIntWidth(t *testing.T) {
	r, err := Add(NewInt(1, W8), NewInt(2, W64))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	i, ok := r.(Int)
	if !ok || i.Width != W64 {
		t.Fatalf("expected a W64 result, got %#v", r)
	}
}

func TestNumericBinOpRejectsNonNumeric(t *testing.T) {
	if _, err := Add(Bool(true), &Array{}); err == nil {
		t.Fatal("expected an error adding a bool to an array")
	}
}

func TestPowNegativeIntExponent(t *testing.T) {
	r, err := Pow(NewInt(2, W64), NewInt(-1, W64))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i, ok := r.(Int); !ok || i.AsInt64() != 0 {
		t.Fatalf("expected Int(0) for a negative int exponent, got %#v", r)
	}
}

func TestNegateSignedInt(t *testing.T) {
	r, err := Negate(NewInt(5, W32))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i, ok := r.(Int); !ok || i.AsInt64() != -5 {
		t.Fatalf("expected Int(-5), got %#v", r)
	}
}

func TestNegateRejectsUnsignedInt(t *testing.T) {
	if _, err := Negate(NewUint(5, W32)); err == nil {
		t.Fatal("expected negating an unsigned int to error")
	}
}

func TestBitwiseFamilyIntOnly(t *testing.T) {
	r, err := BAnd(NewInt(6, W64), NewInt(3, W64))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i, ok := r.(Int); !ok || i.AsInt64() != 2 {
		t.Fatalf("expected Int(2), got %#v", r)
	}

	if _, err := BOr(Float(1), NewInt(1, W64)); err == nil {
		t.Fatal("expected BOR on a float operand to error")
	}
	if _, err := BXor(NewInt(1, W64), Str("x")); err == nil {
		t.Fatal("expected BXOR on a string operand to error")
	}
}

func TestBNotSignedAndUnsigned(t *testing.T) {
	r, err := BNot(NewInt(0, W8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i, ok := r.(Int); !ok || i.AsInt64() != -1 {
		t.Fatalf("expected Int(-1), got %#v", r)
	}

	ru, err := BNot(NewUint(0, W8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	iu, ok := ru.(Int)
	if !ok || iu.Signed {
		t.Fatalf("expected an unsigned result, got %#v", ru)
	}
}
