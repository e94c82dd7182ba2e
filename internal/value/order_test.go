package value

import "testing"

func TestTruthyVariants(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Bool(true), true},
		{Bool(false), false},
		{NewInt(0, W64), false},
		{NewInt(1, W64), true},
		{Str(""), false},
		{Str("x"), true},
		{&Array{}, false},
		{&Array{Elements: []Value{NewInt(1, W64)}}, true},
		{Range{Lo: NewInt(1, W64), Hi: NewInt(2, W64)}, true},
		{Nil, false},
	}
	for _, c := range cases {
		if got := Truthy(c.v); got != c.want {
			t.Errorf("Truthy(%#v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestCompareCrossTypeTier(t *testing.T) {
	if Compare(Bool(true), NewInt(1, W64)) >= 0 {
		t.Error("expected Bool to sort below Int under the cross-type tier")
	}
	if Compare(NewInt(1, W64), Str("1")) >= 0 {
		t.Error("expected Int to sort below Str under the cross-type tier")
	}
	if Compare(Str("a"), &Array{}) >= 0 {
		t.Error("expected Str to sort below Array under the cross-type tier")
	}
}

func TestCompareWithinTier(t *testing.T) {
	if Compare(NewInt(1, W64), NewInt(2, W64)) != -1 {
		t.Error("expected Int(1) < Int(2)")
	}
	if Compare(Str("b"), Str("a")) != 1 {
		t.Error("expected Str(b) > Str(a)")
	}
}

func TestCompareArraysLexicographic(t *testing.T) {
	a := &Array{Elements: []Value{NewInt(1, W64), NewInt(1, W64)}}
	b := &Array{Elements: []Value{NewInt(1, W64), NewInt(2, W64)}}
	if Compare(a, b) != -1 {
		t.Error("expected [1,1] < [1,2]")
	}
	short := &Array{Elements: []Value{NewInt(1, W64)}}
	if Compare(short, a) != -1 {
		t.Error("expected a shorter equal-prefix array to sort first")
	}
}

func TestEqualCrossNumericType(t *testing.T) {
	if !Equal(NewInt(2, W64), Float(2.0)) {
		t.Error("expected Int(2) == Float(2.0)")
	}
	if Equal(NewInt(2, W64), Str("2")) {
		t.Error("expected Int(2) != Str(2) (no numeric coercion for strings)")
	}
}

func TestSortStableOrdersAscending(t *testing.T) {
	elems := []Value{NewInt(3, W64), NewInt(1, W64), NewInt(2, W64)}
	SortStable(elems)
	want := []int64{1, 2, 3}
	for i, w := range want {
		if elems[i].(Int).AsInt64() != w {
			t.Fatalf("element %d: got %v, want %d", i, elems[i], w)
		}
	}
}

func TestSortStablePreservesEqualOrder(t *testing.T) {
	a := NewInt(1, W64)
	b := NewInt(1, W64)
	elems := []Value{a, b}
	SortStable(elems)
	if elems[0] != a || elems[1] != b {
		t.Fatal("expected SortStable to preserve the relative order of equal elements")
	}
}
