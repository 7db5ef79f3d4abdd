// Package document defines the untyped nested document model shared by the
// template processor, the conflict resolver and the store, together with the
// recursive helpers that operate on it.
//
// A document value is one of: nil, bool, int/int64/float64, string, []any, or
// map[string]any. All helpers treat their inputs as immutable and return
// freshly allocated structures, so callers never see their own state mutated
// through an output value.
package document

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/casefolio/casefolio/internal/errs"
)

// Map is a document: string keys to nested document values.
type Map = map[string]any

// Validate checks that v is shaped like a document value. Non-document leaves
// (structs, funcs, channels) indicate a caller bug and fail fast.
func Validate(v any) error {
	switch val := v.(type) {
	case nil, bool, string, int, int32, int64, float32, float64:
		return nil
	case []any:
		for _, item := range val {
			if err := Validate(item); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		for _, item := range val {
			if err := Validate(item); err != nil {
				return err
			}
		}
		return nil
	default:
		return errs.NewValidationError("invalid_document",
			fmt.Sprintf("unsupported document value of type %T", v))
	}
}

// DeepCopy returns a structural copy of v. The result shares no maps or
// slices with the input.
func DeepCopy(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = DeepCopy(item)
		}
		return out
	default:
		// Scalars are immutable.
		return val
	}
}

// CopyMap deep-copies a document map. A nil input yields an empty map.
func CopyMap(m Map) Map {
	if m == nil {
		return Map{}
	}
	return DeepCopy(m).(Map)
}

// ShallowCopy copies the top level of a document map only; nested values are
// shared with the input.
func ShallowCopy(m Map) Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DeepEqual reports structural equality of two document values. Numbers
// compare by value across int/float representations, so a document decoded
// from JSON compares equal to one built literally in Go.
func DeepEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if an, aok := asFloat(a); aok {
		bn, bok := asFloat(b)
		return bok && an == bn
	}

	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !DeepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, item := range av {
			other, present := bv[k]
			if !present || !DeepEqual(item, other) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Lookup resolves a dotted path against a variable map, descending nested
// maps by key and slices by numeric segment. The second return is false when
// any segment fails to resolve.
func Lookup(vars Map, path string) (any, bool) {
	if path == "" {
		return nil, false
	}

	var current any = vars
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}

	return current, true
}

// Format renders a scalar document value for substitution output. Floats
// carrying integral values print without a fraction, matching how the values
// round-trip through JSON.
func Format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return formatFloat(float64(val))
	case float64:
		return formatFloat(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Truthy reports whether a value counts as true in a conditional block.
// nil, false, empty string and numeric zero are falsy; everything else,
// including empty arrays and maps, is truthy.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	default:
		if n, ok := asFloat(v); ok {
			return n != 0
		}
		return true
	}
}
