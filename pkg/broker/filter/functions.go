package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oladejiayo/localzure/pkg/broker/sberr"
)

// Function describes a registered filter function. Apply receives already
// evaluated argument values.
type Function struct {
	Name       string
	MinArgs    int
	MaxArgs    int
	ReturnType EdmType

	// PropagatesNull short-circuits the call to a null result when any
	// argument is null (three-valued logic). isof opts out so that type
	// checks against null remain answerable.
	PropagatesNull bool

	Apply func(args []any) (any, error)
}

// ArityHint describes the expected argument count for error messages.
func (f *Function) ArityHint() string {
	if f.MinArgs == f.MaxArgs {
		return fmt.Sprintf("%s takes %d argument(s)", f.Name, f.MinArgs)
	}
	return fmt.Sprintf("%s takes %d to %d arguments", f.Name, f.MinArgs, f.MaxArgs)
}

// Registry holds the function set. It is read-mostly after initialization
// and safe to share across evaluators.
type Registry struct {
	funcs map[string]*Function
}

// Lookup resolves a function by its lowercase name.
func (r *Registry) Lookup(name string) (*Function, bool) {
	fn, ok := r.funcs[strings.ToLower(name)]
	return fn, ok
}

// defaultRegistry is the shared registry with the full OData function set.
var defaultRegistry = newRegistry()

// DefaultRegistry returns the shared function registry.
func DefaultRegistry() *Registry { return defaultRegistry }

func newRegistry() *Registry {
	r := &Registry{funcs: make(map[string]*Function)}

	add := func(name string, min, max int, ret EdmType, apply func([]any) (any, error)) {
		r.funcs[name] = &Function{
			Name: name, MinArgs: min, MaxArgs: max,
			ReturnType: ret, PropagatesNull: true, Apply: apply,
		}
	}

	// String predicates: case-insensitive per the evaluation rules.
	add("startswith", 2, 2, EdmBoolean, func(args []any) (any, error) {
		s, sub, err := twoStrings("startswith", args)
		if err != nil {
			return nil, err
		}
		return strings.HasPrefix(strings.ToLower(s), strings.ToLower(sub)), nil
	})
	add("endswith", 2, 2, EdmBoolean, func(args []any) (any, error) {
		s, sub, err := twoStrings("endswith", args)
		if err != nil {
			return nil, err
		}
		return strings.HasSuffix(strings.ToLower(s), strings.ToLower(sub)), nil
	})
	add("contains", 2, 2, EdmBoolean, func(args []any) (any, error) {
		s, sub, err := twoStrings("contains", args)
		if err != nil {
			return nil, err
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub)), nil
	})
	// substringof has reversed argument order: substringof(needle, haystack).
	add("substringof", 2, 2, EdmBoolean, func(args []any) (any, error) {
		sub, s, err := twoStrings("substringof", args)
		if err != nil {
			return nil, err
		}
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub)), nil
	})

	add("tolower", 1, 1, EdmString, func(args []any) (any, error) {
		s, err := oneString("tolower", args[0])
		if err != nil {
			return nil, err
		}
		return strings.ToLower(s), nil
	})
	add("toupper", 1, 1, EdmString, func(args []any) (any, error) {
		s, err := oneString("toupper", args[0])
		if err != nil {
			return nil, err
		}
		return strings.ToUpper(s), nil
	})
	add("trim", 1, 1, EdmString, func(args []any) (any, error) {
		s, err := oneString("trim", args[0])
		if err != nil {
			return nil, err
		}
		return strings.TrimSpace(s), nil
	})
	add("concat", 2, 2, EdmString, func(args []any) (any, error) {
		a, b, err := twoStrings("concat", args)
		if err != nil {
			return nil, err
		}
		return a + b, nil
	})

	// substring is 0-indexed; negative start and length clamp to 0, and a
	// length past the end clips.
	add("substring", 2, 3, EdmString, func(args []any) (any, error) {
		s, err := oneString("substring", args[0])
		if err != nil {
			return nil, err
		}
		start, err := asInt("substring", args[1])
		if err != nil {
			return nil, err
		}
		runes := []rune(s)
		if start < 0 {
			start = 0
		}
		if start > int64(len(runes)) {
			start = int64(len(runes))
		}
		if len(args) == 2 {
			return string(runes[start:]), nil
		}
		length, err := asInt("substring", args[2])
		if err != nil {
			return nil, err
		}
		if length < 0 {
			length = 0
		}
		end := start + length
		if end > int64(len(runes)) {
			end = int64(len(runes))
		}
		return string(runes[start:end]), nil
	})

	add("length", 1, 1, EdmInt64, func(args []any) (any, error) {
		s, err := oneString("length", args[0])
		if err != nil {
			return nil, err
		}
		return int64(len([]rune(s))), nil
	})

	// indexof and replace are case-sensitive.
	add("indexof", 2, 2, EdmInt64, func(args []any) (any, error) {
		s, sub, err := twoStrings("indexof", args)
		if err != nil {
			return nil, err
		}
		return int64(strings.Index(s, sub)), nil
	})
	add("replace", 3, 3, EdmString, func(args []any) (any, error) {
		s, err := oneString("replace", args[0])
		if err != nil {
			return nil, err
		}
		old, err := oneString("replace", args[1])
		if err != nil {
			return nil, err
		}
		repl, err := oneString("replace", args[2])
		if err != nil {
			return nil, err
		}
		return strings.ReplaceAll(s, old, repl), nil
	})

	// Date component extraction.
	datePart := func(name string, part func(time.Time) int) {
		add(name, 1, 1, EdmInt64, func(args []any) (any, error) {
			ts, err := asDateTime(name, args[0])
			if err != nil {
				return nil, err
			}
			return int64(part(ts)), nil
		})
	}
	datePart("year", func(t time.Time) int { return t.Year() })
	datePart("month", func(t time.Time) int { return int(t.Month()) })
	datePart("day", func(t time.Time) int { return t.Day() })
	datePart("hour", func(t time.Time) int { return t.Hour() })
	datePart("minute", func(t time.Time) int { return t.Minute() })
	datePart("second", func(t time.Time) int { return t.Second() })

	// Math rounding. Integer input passes through unchanged.
	rounder := func(name string, round func(float64) float64) {
		add(name, 1, 1, EdmDouble, func(args []any) (any, error) {
			switch v := args[0].(type) {
			case int32:
				return int64(v), nil
			case int:
				return int64(v), nil
			case int64:
				return v, nil
			case float32:
				return round(float64(v)), nil
			case float64:
				return round(v), nil
			default:
				return nil, evalTypeError(name, "numeric", args[0])
			}
		})
	}
	rounder("round", math.Round)
	rounder("floor", math.Floor)
	rounder("ceiling", math.Ceil)

	// isof answers type membership and does not propagate null: a null
	// value is of type Null and of no other type.
	r.funcs["isof"] = &Function{
		Name: "isof", MinArgs: 2, MaxArgs: 2, ReturnType: EdmBoolean,
		Apply: func(args []any) (any, error) {
			typeName, err := oneString("isof", args[1])
			if err != nil {
				return nil, err
			}
			target, ok := ParseEdmType(typeName)
			if !ok {
				return nil, sberr.NewEvaluationError("isof: unknown EDM type %q", typeName)
			}
			actual := TypeOf(args[0])
			if target.IsNumeric() && actual.IsNumeric() {
				// Numeric promotion: an Int32 value is also an Int64 and a Double.
				return promotes(actual, target), nil
			}
			return actual == target, nil
		},
	}

	add("cast", 2, 2, EdmUnknown, func(args []any) (any, error) {
		typeName, err := oneString("cast", args[1])
		if err != nil {
			return nil, err
		}
		target, ok := ParseEdmType(typeName)
		if !ok {
			return nil, sberr.NewEvaluationError("cast: unknown EDM type %q", typeName)
		}
		return castValue(args[0], target)
	})

	return r
}

// promotes reports whether from may widen to to (Int32 ⊆ Int64 ⊆ Double).
func promotes(from, to EdmType) bool {
	if from == to {
		return true
	}
	switch from {
	case EdmInt32:
		return to == EdmInt64 || to == EdmDouble
	case EdmInt64:
		return to == EdmDouble
	}
	return false
}

// castValue applies the natural conversions for cast, erroring when the
// conversion is impossible. Casting the strings "true"/"false"
// (case-insensitive) to Boolean succeeds.
func castValue(v any, target EdmType) (any, error) {
	actual := TypeOf(v)
	if actual == target {
		return v, nil
	}

	switch target {
	case EdmString:
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format(time.RFC3339Nano), nil
		case uuid.UUID:
			return t.String(), nil
		default:
			return fmt.Sprintf("%v", v), nil
		}

	case EdmBoolean:
		if s, ok := v.(string); ok {
			switch strings.ToLower(s) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, castError(v, target)

	case EdmInt32, EdmInt64:
		switch t := v.(type) {
		case int32:
			return int64(t), nil
		case int:
			return int64(t), nil
		case int64:
			return t, nil
		case float32:
			return int64(t), nil
		case float64:
			return int64(t), nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
			if err != nil {
				return nil, castError(v, target)
			}
			return i, nil
		}
		return nil, castError(v, target)

	case EdmDouble:
		switch t := v.(type) {
		case int32:
			return float64(t), nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case float32:
			return float64(t), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return nil, castError(v, target)
			}
			return f, nil
		}
		return nil, castError(v, target)

	case EdmDateTime:
		if s, ok := v.(string); ok {
			for _, layout := range datetimeLayouts {
				if ts, err := time.Parse(layout, s); err == nil {
					return ts.UTC(), nil
				}
			}
		}
		return nil, castError(v, target)

	case EdmGuid:
		if s, ok := v.(string); ok {
			if id, err := uuid.Parse(s); err == nil {
				return id, nil
			}
		}
		return nil, castError(v, target)

	default:
		return nil, castError(v, target)
	}
}

func castError(v any, target EdmType) error {
	return sberr.NewEvaluationError("cannot cast %s value to %s", TypeOf(v), target)
}

func evalTypeError(fn, expected string, got any) error {
	return sberr.NewEvaluationError("%s: expected %s argument, got %s", fn, expected, TypeOf(got))
}

func oneString(fn string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", evalTypeError(fn, "string", v)
	}
	return s, nil
}

func twoStrings(fn string, args []any) (string, string, error) {
	a, err := oneString(fn, args[0])
	if err != nil {
		return "", "", err
	}
	b, err := oneString(fn, args[1])
	if err != nil {
		return "", "", err
	}
	return a, b, nil
}

// asInt accepts any numeric type, per the rule that substring's start and
// length arguments are numeric, not specifically Int32.
func asInt(fn string, v any) (int64, error) {
	switch t := v.(type) {
	case int32:
		return int64(t), nil
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float32:
		return int64(t), nil
	case float64:
		return int64(t), nil
	default:
		return 0, evalTypeError(fn, "numeric", v)
	}
}

func asDateTime(fn string, v any) (time.Time, error) {
	ts, ok := v.(time.Time)
	if !ok {
		return time.Time{}, evalTypeError(fn, "datetime", v)
	}
	return ts, nil
}

// suggestFunction returns the registered function name closest to the
// given misspelling, or empty when nothing is plausibly close.
func suggestFunction(name string) string {
	lower := strings.ToLower(name)
	best := ""
	bestDist := 3 // only suggest within small edit distance
	for candidate := range functionNames {
		d := editDistance(lower, candidate)
		if d < bestDist {
			bestDist = d
			best = candidate
		}
	}
	return best
}

// editDistance is a plain Levenshtein distance over bytes.
func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
