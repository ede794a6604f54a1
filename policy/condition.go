package policy

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Evaluate reports whether cond holds against ctx, applying Negate last.
func Evaluate(cond Condition, ctx Context) bool {
	value, present := fieldValue(ctx, cond.Field)
	result := evaluateOperator(cond.Operator, value, present, cond.Value)
	if cond.Negate {
		return !result
	}
	return result
}

func evaluateOperator(op Operator, value interface{}, present bool, want interface{}) bool {
	if !present {
		return false
	}
	switch op {
	case OpEquals:
		return deepEquals(value, want)
	case OpContains:
		return contains(value, want)
	case OpIn:
		return in(value, want)
	case OpMatches:
		return matches(value, want)
	case OpLT:
		a, okA := asFloat(value)
		b, okB := asFloat(want)
		return okA && okB && a < b
	case OpGT:
		a, okA := asFloat(value)
		b, okB := asFloat(want)
		return okA && okB && a > b
	default:
		return false
	}
}

func deepEquals(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func contains(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case string:
		n := fmt.Sprintf("%v", needle)
		return strings.Contains(h, n)
	default:
		return in(needle, haystack)
	}
}

func in(value, list interface{}) bool {
	rv := reflect.ValueOf(list)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if deepEquals(rv.Index(i).Interface(), value) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func matches(value, pattern interface{}) bool {
	p, ok := pattern.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return false
	}
	return re.MatchString(fmt.Sprintf("%v", value))
}

func asFloat(v interface{}) (float64, bool) {
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

// MatchesAll reports whether every condition in conds holds against ctx.
func MatchesAll(conds []Condition, ctx Context) bool {
	for _, c := range conds {
		if !Evaluate(c, ctx) {
			return false
		}
	}
	return true
}
