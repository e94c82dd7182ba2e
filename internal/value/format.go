package value

import (
	"fmt"
	"strconv"
	"strings"
)

// ToDisplayString renders v the way `str()`/CAST string/PRNT do:
// human-facing, not a debug dump (see the kr/pretty-backed PRNTM
// rendering in internal/syscalls for that).
func ToDisplayString(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case Int:
		if x.Signed {
			return strconv.FormatInt(x.Val, 10)
		}
		return strconv.FormatUint(x.UVal, 10)
	case Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case Fixed:
		s := x.Dec.String()
		if x.Scale > 0 {
			frac := 0
			if i := strings.IndexByte(s, '.'); i >= 0 {
				frac = len(s) - i - 1
			}
			if frac < int(x.Scale) {
				return x.Dec.StringFixed(x.Scale)
			}
		}
		return s
	case Bool:
		if x {
			return "true"
		}
		return "false"
	case Str:
		return string(x)
	case *Array:
		parts := make([]string, len(x.Elements))
		for i, e := range x.Elements {
			parts[i] = quoteIfString(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Object:
		parts := make([]string, 0, x.Len())
		for i, k := range x.keys {
			parts = append(parts, fmt.Sprintf("%s: %s", quoteIfString(k), quoteIfString(x.values[i])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case Range:
		return fmt.Sprintf("%s..%s", ToDisplayString(x.Lo), ToDisplayString(x.Hi))
	case FuncRef:
		return fmt.Sprintf("<function %s>", x.Name)
	case Regex:
		return fmt.Sprintf("/%s/%s", x.Source, flagString(x.Flags))
	default:
		if IsNil(v) {
			return "nil"
		}
		return fmt.Sprintf("%v", v)
	}
}

func quoteIfString(v Value) string {
	if s, ok := v.(Str); ok {
		return strconv.Quote(string(s))
	}
	return ToDisplayString(v)
}

func flagString(f RegexFlags) string {
	var sb strings.Builder
	if f.Global {
		sb.WriteByte('g')
	}
	if f.Multiline {
		sb.WriteByte('M')
	}
	if f.Unicode {
		sb.WriteByte('u')
	}
	return sb.String()
}
