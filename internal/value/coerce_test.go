package value

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTypeNameVariants(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{NewInt(1, W32), "i32"},
		{NewUint(1, W16), "u16"},
		{Float(1), "float"},
		{NewFixed(decimal.Zero, 0), "fixed"},
		{Bool(true), "bool"},
		{Str("x"), "string"},
		{&Array{}, "array"},
		{NewObject(), "object"},
		{Range{Lo: NewInt(1, W64), Hi: NewInt(2, W64)}, "range"},
		{FuncRef{ID: 1, Name: "f"}, "function"},
		{Nil, "nil"},
	}
	for _, c := range cases {
		if got := TypeName(c.v); got != c.want {
			t.Errorf("TypeName(%#v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestLenVariants(t *testing.T) {
	if Len(Str("héllo")) != 5 {
		t.Errorf("expected codepoint length 5 for héllo")
	}
	if Len(&Array{Elements: []Value{NewInt(1, W64), NewInt(2, W64)}}) != 2 {
		t.Error("expected array length 2")
	}
	if Len(Range{Lo: NewInt(1, W64), Hi: NewInt(3, W64)}) != 3 {
		t.Error("expected range 1..3 to have length 3")
	}
	if Len(Nil) != 0 {
		t.Error("expected Nil length 0")
	}
	if Len(Bool(true)) != 1 {
		t.Error("expected primitive length 1")
	}
}

func TestPromoteRejectsNonNumeric(t *testing.T) {
	if _, _, _, ok := Promote(Str("x"), NewInt(1, W64)); ok {
		t.Fatal("expected Promote to reject a non-numeric operand")
	}
}

func TestPromoteRanksFixedHighest(t *testing.T) {
	_, _, rank, ok := Promote(NewFixed(decimal.Zero, 0), Float(1))
	if !ok || rank != 2 {
		t.Fatalf("expected Fixed to dominate promotion rank, got rank=%d ok=%v", rank, ok)
	}
}

func TestCastStringToFloat(t *testing.T) {
	r, err := Cast(Str("3.5"), "float")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f, ok := r.(Float); !ok || float64(f) != 3.5 {
		t.Fatalf("expected Float(3.5), got %#v", r)
	}
}

func TestCastNarrowingOverflowRejected(t *testing.T) {
	if _, err := Cast(NewInt(1000, W64), "i8"); err == nil {
		t.Fatal("expected a narrowing overflow error casting 1000 to i8")
	}
}

func TestCastNarrowingInRangeAccepted(t *testing.T) {
	r, err := Cast(NewInt(100, W64), "i8")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if i, ok := r.(Int); !ok || i.AsInt64() != 100 {
		t.Fatalf("expected Int(100), got %#v", r)
	}
}

func TestCastFloatWithFractionToIntRejected(t *testing.T) {
	if _, err := Cast(Float(1.5), "i32"); err == nil {
		t.Fatal("expected a non-integral float to be rejected by CAST i32")
	}
}

func TestCastBoolToString(t *testing.T) {
	r, err := Cast(Bool(true), "string")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s, ok := r.(Str); !ok || string(s) != "true" {
		t.Fatalf("expected Str(true), got %#v", r)
	}
}

func TestCastUnsignedRejectsNegative(t *testing.T) {
	if _, err := Cast(NewInt(-1, W64), "u8"); err == nil {
		t.Fatal("expected casting a negative int to u8 to error")
	}
}
