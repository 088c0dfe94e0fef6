package condition

import (
	"encoding/json"
	"strings"

	"github.com/prasenjit/antbee/internal/models"
)

// Evaluate extracts the value a condition refers to and compares it.
// Malformed conditions never match.
func Evaluate(cond models.Condition, data *RequestData, body *Body) bool {
	if !cond.IsWellFormed() {
		return false
	}
	actual, present := Extract(cond, data, body)
	return Compare(cond.Operator, actual, present, cond.Value)
}

// Compare applies an operator to an extracted value. An absent value
// matches only not_equals: a missing field is unequal to any target.
func Compare(operator string, actual Value, present bool, target string) bool {
	if !present {
		return operator == models.OpNotEquals
	}

	switch operator {
	case models.OpEquals:
		return actual.String() == target
	case models.OpNotEquals:
		return actual.String() != target
	case models.OpContains:
		return strings.Contains(actual.String(), target)
	case models.OpExists:
		return true
	case models.OpDeepEquals:
		return deepEquals(actual, target)
	default:
		return false
	}
}

// deepEquals compares the canonical JSON of both sides. Object key order
// is not significant. A target that is not JSON falls back to string equality.
func deepEquals(actual Value, target string) bool {
	want, err := canonical(target)
	if err != nil {
		return actual.String() == target
	}
	got, err := canonical(actual.JSON())
	if err != nil {
		return false
	}
	return got == want
}

func canonical(text string) (string, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
