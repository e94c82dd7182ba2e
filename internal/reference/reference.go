// Package reference implements Lavendeux's Reference/Place model
// (spec.md §3, §4.6): an addressable handle produced by REF/IDEX and
// consumed by WREF (write) or DEREF (read), either a named cell in the
// scope chain or an index path into a collection.
package reference

import (
	"fmt"
	"strings"

	"lavendeux/internal/value"
)

// Cell is a single mutable storage slot. REF creates one lazily; every
// variable in a scope frame is a *Cell.
type Cell struct {
	Value value.Value
}

// Scope is the minimal surface a scope frame must expose for named
// references to resolve, write, and delete cells without internal
// /reference importing internal/vm (which imports this package).
type Scope interface {
	GetCell(name string) (*Cell, bool)
	SetCell(name string, v value.Value)
	DeleteCell(name string) bool
}

// appendKey is the `[]` sentinel: IDEX with no key addresses the append
// position on write, or the last element on read.
type appendKey struct{}

// AppendKey is the well-known sentinel Value for `base[]`.
var AppendKey value.Value = appendKey{}

// Reference is a Place: either a named cell, or an index path into an
// Array/Object/Str rooted at some container value.
type Reference struct {
	scope     Scope
	name      string
	container value.Value
	key       value.Value
	indexed   bool
}

// NewNamed produces a Reference to name in scope (REF name). If no cell
// named name is visible from scope, one holding Nil is created right
// away, before any write.
func NewNamed(scope Scope, name string) Reference {
	if _, ok := scope.GetCell(name); !ok {
		scope.SetCell(name, value.Nil)
	}
	return Reference{scope: scope, name: name}
}

// NewIndexed produces a Reference into container[key] (IDEX). Negative
// integer keys address from the end for arrays and strings; AppendKey
// addresses the append position (write) or last element (read).
func NewIndexed(container, key value.Value) Reference {
	return Reference{container: container, key: key, indexed: true}
}

func (r Reference) IsIndexed() bool { return r.indexed }

// Read implements DEREF.
func (r Reference) Read() (value.Value, error) {
	if !r.indexed {
		cell, ok := r.scope.GetCell(r.name)
		if !ok {
			return value.Nil, nil
		}
		return cell.Value, nil
	}
	return readIndexed(r.container, r.key)
}

// Write implements WREF: store v, return v.
func (r Reference) Write(v value.Value) (value.Value, error) {
	if !r.indexed {
		r.scope.SetCell(r.name, v)
		return v, nil
	}
	if err := writeIndexed(r.container, r.key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Delete implements `del`: removes a named cell from its scope, or a
// slot from an indexed container (arrays shift down, objects drop the
// key).
func (r Reference) Delete() error {
	if !r.indexed {
		r.scope.DeleteCell(r.name)
		return nil
	}
	switch c := r.container.(type) {
	case *value.Array:
		idx, err := resolveArrayIndex(c, r.key, false)
		if err != nil {
			return err
		}
		c.Elements = append(c.Elements[:idx], c.Elements[idx+1:]...)
		return nil
	case *value.Object:
		if !c.Delete(r.key) {
			return fmt.Errorf("key %v not present", r.key)
		}
		return nil
	default:
		return fmt.Errorf("cannot delete from %s", value.TypeName(r.container))
	}
}

func readIndexed(container, key value.Value) (value.Value, error) {
	switch c := container.(type) {
	case *value.Array:
		if _, isAppend := key.(appendKey); isAppend {
			if len(c.Elements) == 0 {
				return nil, fmt.Errorf("index error: empty array")
			}
			return c.Elements[len(c.Elements)-1], nil
		}
		idx, err := resolveArrayIndex(c, key, false)
		if err != nil {
			return nil, err
		}
		return c.Elements[idx], nil
	case *value.Object:
		v, ok := c.Get(key)
		if !ok {
			return value.Nil, nil
		}
		return v, nil
	case value.Str:
		runes := value.Runes(c)
		if _, isAppend := key.(appendKey); isAppend {
			if len(runes) == 0 {
				return nil, fmt.Errorf("index error: empty string")
			}
			return value.Str(string(runes[len(runes)-1])), nil
		}
		idx, err := resolveRuneIndex(runes, key)
		if err != nil {
			return nil, err
		}
		return value.Str(string(runes[idx])), nil
	case value.Range:
		return readRangeIndex(c, key)
	default:
		return nil, fmt.Errorf("cannot index into %s", value.TypeName(container))
	}
}

func writeIndexed(container, key, v value.Value) error {
	switch c := container.(type) {
	case *value.Array:
		if _, isAppend := key.(appendKey); isAppend {
			c.Elements = append(c.Elements, v)
			return nil
		}
		idx, err := resolveArrayIndex(c, key, true)
		if err != nil {
			return err
		}
		c.Elements[idx] = v
		return nil
	case *value.Object:
		if _, isAppend := key.(appendKey); isAppend {
			return fmt.Errorf("cannot append into object without a key")
		}
		c.Set(key, v)
		return nil
	default:
		return fmt.Errorf("cannot assign into %s", value.TypeName(container))
	}
}

// resolveArrayIndex maps a possibly-negative integer key to a concrete
// slice index. allowAppend extends the array by one when the key equals
// len(elements), matching `a[len(a)] = v` growing the array by one slot
// (distinct from the `[]` AppendKey sentinel, which always appends).
func resolveArrayIndex(a *value.Array, key value.Value, allowAppend bool) (int, error) {
	ik, ok := key.(value.Int)
	if !ok {
		return 0, fmt.Errorf("array index must be an integer, got %s", value.TypeName(key))
	}
	idx := int(ik.AsInt64())
	n := len(a.Elements)
	if idx < 0 {
		idx += n
	}
	if idx == n && allowAppend {
		a.Elements = append(a.Elements, value.Nil)
		return idx, nil
	}
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("index error: index %d out of range for array of length %d", int(ik.AsInt64()), n)
	}
	return idx, nil
}

func resolveRuneIndex(runes []rune, key value.Value) (int, error) {
	ik, ok := key.(value.Int)
	if !ok {
		return 0, fmt.Errorf("string index must be an integer, got %s", value.TypeName(key))
	}
	idx := int(ik.AsInt64())
	n := len(runes)
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("index error: index %d out of range for string of length %d", int(ik.AsInt64()), n)
	}
	return idx, nil
}

func readRangeIndex(r value.Range, key value.Value) (value.Value, error) {
	lo, ok := r.Lo.(value.Int)
	if !ok {
		return nil, fmt.Errorf("cannot index non-integer range")
	}
	hi, ok := r.Hi.(value.Int)
	if !ok {
		return nil, fmt.Errorf("cannot index non-integer range")
	}
	n := int(hi.AsInt64()-lo.AsInt64()) + 1
	if _, isAppend := key.(appendKey); isAppend {
		return value.NewInt(hi.AsInt64(), value.W64), nil
	}
	ik, ok := key.(value.Int)
	if !ok {
		return nil, fmt.Errorf("range index must be an integer, got %s", value.TypeName(key))
	}
	idx := int(ik.AsInt64())
	if idx < 0 {
		idx += n
	}
	if idx < 0 || idx >= n {
		return nil, fmt.Errorf("index error: index %d out of range for range of length %d", int(ik.AsInt64()), n)
	}
	return value.NewInt(lo.AsInt64()+int64(idx), value.W64), nil
}

// Membership implements CNTN: does container contain element/key?
func Membership(container, elem value.Value) (bool, error) {
	switch c := container.(type) {
	case *value.Array:
		for _, e := range c.Elements {
			if value.Equal(e, elem) {
				return true, nil
			}
		}
		return false, nil
	case *value.Object:
		_, ok := c.Get(elem)
		return ok, nil
	case value.Str:
		sub, ok := elem.(value.Str)
		if !ok {
			return false, fmt.Errorf("cannot test string membership of non-string %s", value.TypeName(elem))
		}
		return strings.Contains(string(c), string(sub)), nil
	case value.Range:
		lo, hi, ok := rangeBounds(c)
		if !ok {
			return false, fmt.Errorf("cannot test membership of non-integer range")
		}
		ik, ok := elem.(value.Int)
		if !ok {
			return false, nil
		}
		v := ik.AsInt64()
		return v >= lo && v <= hi, nil
	default:
		return false, fmt.Errorf("cannot test membership of %s", value.TypeName(container))
	}
}

func rangeBounds(r value.Range) (lo, hi int64, ok bool) {
	li, lok := r.Lo.(value.Int)
	hv, hok := r.Hi.(value.Int)
	if lok && hok {
		return li.AsInt64(), hv.AsInt64(), true
	}
	return 0, 0, false
}

