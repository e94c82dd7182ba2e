// Package value implements Lavendeux's tagged runtime value domain: the
// dynamic types a compiled image's constants and a running VM's operand
// stack carry (spec.md §3).
package value

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Value is any of the concrete types defined in this package. Like the
// teacher VM, the dynamic domain is modeled as a plain interface{} rather
// than a closed sum type; every constructor below is the only supported
// way to produce one.
type Value interface{}

// Width is an integer bit-width tag. Operations preserve the wider width;
// narrowing a value (CAST to a smaller Width) fails on overflow.
type Width uint8

const (
	W8 Width = 8
	W16 Width = 16
	W32 Width = 32
	W64 Width = 64
)

// Int is a signed or unsigned integer of a given bit width.
type Int struct {
	Val      int64
	UVal     uint64
	Signed   bool
	Width    Width
}

func NewInt(v int64, w Width) Int   { return Int{Val: v, Signed: true, Width: w} }
func NewUint(v uint64, w Width) Int { return Int{UVal: v, Signed: false, Width: w} }

// AsInt64 returns the value reinterpreted as a signed 64-bit integer,
// which is how arithmetic and comparisons treat both signed and unsigned
// operands before re-narrowing to the result width.
func (i Int) AsInt64() int64 {
	if i.Signed {
		return i.Val
	}
	return int64(i.UVal)
}

func (i Int) AsFloat64() float64 {
	if i.Signed {
		return float64(i.Val)
	}
	return float64(i.UVal)
}

// Float is an IEEE-754 binary64 value.
type Float float64

// Fixed is an arbitrary-precision fixed-decimal value: a `decimal.Decimal`
// magnitude plus the scale it was constructed or promoted with. Scale is
// tracked separately from decimal.Decimal's own exponent so that literal
// "20" (scale 0) and "20.00" (scale 2) compare equal numerically but
// round-trip their original rendering through `str()`.
type Fixed struct {
	Dec   decimal.Decimal
	Scale int32
}

func NewFixed(d decimal.Decimal, scale int32) Fixed {
	return Fixed{Dec: d, Scale: scale}
}

// FixedDivScale is the fractional-digit precision used for Fixed/Fixed
// division (Design Notes: a convention the source material doesn't pin
// down; 20 fractional digits, rounded half-to-even).
const FixedDivScale = 20

// Bool is a two-valued boolean.
type Bool bool

// Str is a UTF-8 string. Indexing and length operate on codepoints, not
// bytes (spec.md §3); see Runes() in coerce.go.
type Str string

// Array is an ordered, heterogeneous sequence of Value.
type Array struct {
	Elements []Value
}

func NewArray(elems ...Value) *Array {
	if elems == nil {
		elems = []Value{}
	}
	return &Array{Elements: elems}
}

// Object is an insertion-ordered mapping from primitive-typed keys to
// Value. Keys are stored tagged (not canonicalized): 0, false, and 0.0
// are distinct keys even though Equal (EQ) treats them as equal
// (Design Notes).
type Object struct {
	keys   []Value
	index  map[string]int
	values []Value
}

func NewObject() *Object {
	return &Object{index: map[string]int{}}
}

// keyID renders a key to a string that distinguishes values across types
// (so Int(0), Bool(false), Float(0.0) never collide) while being stable
// across repeated calls for the same tagged key.
func keyID(k Value) string {
	switch v := k.(type) {
	case Int:
		return fmt.Sprintf("i:%d:%t:%d", v.AsInt64(), v.Signed, v.Width)
	case Float:
		return fmt.Sprintf("f:%v", float64(v))
	case Fixed:
		return fmt.Sprintf("x:%s", v.Dec.String())
	case Bool:
		return fmt.Sprintf("b:%t", bool(v))
	case Str:
		return fmt.Sprintf("s:%s", string(v))
	default:
		return fmt.Sprintf("?:%v", v)
	}
}

// Get reads the value stored under key, if present.
func (o *Object) Get(key Value) (Value, bool) {
	idx, ok := o.index[keyID(key)]
	if !ok {
		return nil, false
	}
	return o.values[idx], true
}

// Set inserts or overwrites key. New keys are appended, preserving
// insertion order; overwriting an existing key keeps its position.
func (o *Object) Set(key, val Value) {
	id := keyID(key)
	if idx, ok := o.index[id]; ok {
		o.values[idx] = val
		return
	}
	o.index[id] = len(o.keys)
	o.keys = append(o.keys, key)
	o.values = append(o.values, val)
}

// Delete drops key, shifting later entries up to keep indices contiguous.
func (o *Object) Delete(key Value) bool {
	id := keyID(key)
	idx, ok := o.index[id]
	if !ok {
		return false
	}
	o.keys = append(o.keys[:idx], o.keys[idx+1:]...)
	o.values = append(o.values[:idx], o.values[idx+1:]...)
	delete(o.index, id)
	for k, i := range o.index {
		if i > idx {
			o.index[k] = i - 1
		}
	}
	return true
}

// Keys returns keys in insertion order.
func (o *Object) Keys() []Value { return append([]Value{}, o.keys...) }

// Values returns values in key-insertion order.
func (o *Object) Values() []Value { return append([]Value{}, o.values...) }

func (o *Object) Len() int { return len(o.keys) }

// Range is an inclusive pair of primitive endpoints: int..int or
// char..char (a single-codepoint Str on each end).
type Range struct {
	Lo, Hi Value
}

// FuncRef is a reference to an entry in the function registry, identified
// by its 64-bit stable id (spec.md §4.1).
type FuncRef struct {
	ID   uint64
	Name string
}

// RegexFlags is the flag set a Regex value carries: {g, M, u, ...}.
type RegexFlags struct {
	Global    bool
	Multiline bool
	Unicode   bool
}

// Regex is a compiled pattern plus its flags. The compiled form is stored
// as the Go-syntax equivalent produced at load/compile time by the
// (out-of-scope) front-end; the VM never compiles Lavendeux regex syntax
// itself, only executes what the image already carries compiled.
type Regex struct {
	Source  string
	Flags   RegexFlags
	Compile func() (Matcher, error)
}

// Matcher is the minimal surface a compiled Regex exposes; satisfied by
// *regexp.Regexp, kept as an interface here to avoid internal/value
// importing regexp for a type it otherwise has no reason to depend on.
type Matcher interface {
	MatchString(s string) bool
	FindStringIndex(s string) []int
	FindAllStringIndex(s string, n int) [][]int
}

// nilType is Lavendeux's unit value. Nil is its only instance; compare
// with ==, never construct a second one.
type nilType struct{}

var Nil Value = nilType{}

func IsNil(v Value) bool {
	_, ok := v.(nilType)
	return ok || v == nil
}
