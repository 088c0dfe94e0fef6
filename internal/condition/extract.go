package condition

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/prasenjit/antbee/internal/models"
)

// ErrInvalidBody is returned by ParseBody when the payload is not JSON
var ErrInvalidBody = errors.New("request body is not valid JSON")

// RequestData contains the request data rules are evaluated against
type RequestData struct {
	Headers     map[string][]string
	QueryParams map[string][]string
	Body        []byte
}

// Body is a request payload parsed once and shared by all body rules
type Body struct {
	root gjson.Result
}

// ParseBody validates and parses a JSON payload
func ParseBody(raw []byte) (*Body, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidBody
	}
	return &Body{root: gjson.ParseBytes(raw)}, nil
}

// Keys lists the top-level keys of an object body in document order.
// Arrays report their indexes. Other values have no keys.
func (b *Body) Keys() []string {
	if b == nil {
		return nil
	}
	var keys []string
	switch {
	case b.root.IsObject():
		b.root.ForEach(func(key, _ gjson.Result) bool {
			keys = append(keys, key.Str)
			return true
		})
	case b.root.IsArray():
		for i := range b.root.Array() {
			keys = append(keys, strconv.Itoa(i))
		}
	}
	return keys
}

// Empty reports whether the body is a falsy JSON scalar (null, false, 0 or "")
func (b *Body) Empty() bool {
	if b == nil {
		return true
	}
	switch b.root.Type {
	case gjson.Null, gjson.False:
		return true
	case gjson.Number:
		return b.root.Num == 0
	case gjson.String:
		return b.root.Str == ""
	}
	return false
}

// Value is a value extracted from a request
type Value struct {
	text string
	raw  string // JSON text of the value
}

// StringValue wraps a header or query value
func StringValue(s string) Value {
	quoted, _ := json.Marshal(s)
	return Value{text: s, raw: string(quoted)}
}

func jsonValue(r gjson.Result) Value {
	return Value{text: coerce(r), raw: r.Raw}
}

// String returns the string-coerced form used by equals, not_equals and contains
func (v Value) String() string {
	return v.text
}

// JSON returns the value as JSON text
func (v Value) JSON() string {
	return v.raw
}

// coerce renders a JSON value as a string: strings verbatim, numbers in
// shortest decimal form, booleans as true/false, containers as compact JSON
func coerce(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return strconv.FormatFloat(r.Num, 'f', -1, 64)
	case gjson.True:
		return "true"
	case gjson.False:
		return "false"
	case gjson.Null:
		return "null"
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(r.Raw)); err != nil {
		return r.Raw
	}
	return buf.String()
}

// Extract locates the value a condition refers to. The boolean is false when
// the value is absent.
func Extract(cond models.Condition, data *RequestData, body *Body) (Value, bool) {
	switch cond.Type {
	case models.ConditionHeader:
		// Headers are case-insensitive; repeated values are joined with ", "
		var found []string
		for k, vals := range data.Headers {
			if strings.EqualFold(k, cond.Key) {
				found = append(found, vals...)
			}
		}
		if len(found) == 0 {
			return Value{}, false
		}
		return StringValue(strings.Join(found, ", ")), true

	case models.ConditionQuery:
		if vals, ok := data.QueryParams[cond.Key]; ok && len(vals) > 0 {
			return StringValue(vals[0]), true
		}
		return Value{}, false

	case models.ConditionBody:
		if body == nil {
			return Value{}, false
		}
		r, ok := walk(body.root, strings.Split(cond.Key, "."))
		if !ok {
			return Value{}, false
		}
		return jsonValue(r), true

	default:
		return Value{}, false
	}
}

// walk follows object keys literally. Arrays are never indexed and a null
// leaf counts as absent.
func walk(cur gjson.Result, segments []string) (gjson.Result, bool) {
	for _, seg := range segments {
		if !cur.IsObject() {
			return gjson.Result{}, false
		}

		var (
			next  gjson.Result
			found bool
		)
		cur.ForEach(func(key, value gjson.Result) bool {
			// Duplicate keys resolve to the last occurrence
			if key.Str == seg {
				next, found = value, true
			}
			return true
		})
		if !found {
			return gjson.Result{}, false
		}
		cur = next
	}

	if cur.Type == gjson.Null {
		return gjson.Result{}, false
	}
	return cur, true
}
