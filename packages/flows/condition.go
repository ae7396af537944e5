package flows

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// evaluate reports whether an action may run
func evaluate(c *model.Condition, ex Exchange) bool {
	if c == nil || c.AlwaysPass {
		return true
	}
	actual := ex.read(c.Type, c.Source, c.Path)
	return compare(actual, c.Operator, c.Value)
}

// compare applies op to the extracted value. An undefined value only
// satisfies notEqual.
func compare(actual any, op model.Operator, expected string) bool {
	if actual == nil {
		return op == model.OpNotEqual
	}

	switch op {
	case model.OpEqual:
		return equals(actual, expected)
	case model.OpNotEqual:
		return !equals(actual, expected)
	case model.OpContains:
		return strings.Contains(stringify(actual), expected)
	case model.OpRegex:
		return matches(actual, expected)
	case model.OpGreaterThan:
		return compareNumeric(actual, expected, ">")
	case model.OpGreaterThanEqual:
		return compareNumeric(actual, expected, ">=")
	case model.OpLessThan:
		return compareNumeric(actual, expected, "<")
	case model.OpLessThanEqual:
		return compareNumeric(actual, expected, "<=")
	default:
		return false
	}
}

func equals(actual any, expected string) bool {
	if reflect.DeepEqual(actual, expected) {
		return true
	}

	actualNum, aOk := toFloat64(actual)
	expectedNum, eOk := toFloat64(expected)
	if aOk && eOk && actualNum == expectedNum {
		return true
	}

	return stringify(actual) == expected
}

func matches(actual any, pattern string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(stringify(actual))
}

func compareNumeric(actual any, expected string, op string) bool {
	actualNum, aOk := toFloat64(actual)
	expectedNum, eOk := toFloat64(expected)
	if !aOk || !eOk {
		return false
	}

	switch op {
	case ">":
		return actualNum > expectedNum
	case ">=":
		return actualNum >= expectedNum
	case "<":
		return actualNum < expectedNum
	case "<=":
		return actualNum <= expectedNum
	}
	return false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
