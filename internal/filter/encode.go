package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// literalEncoder turns raw filter values into GraphQL literal text for one column.
type literalEncoder struct {
	category Category
	dateLike bool
}

func newEncoder(scalarType string) literalEncoder {
	return literalEncoder{category: Classify(scalarType), dateLike: IsDateLike(scalarType)}
}

// encode returns the literal for op, or false when the value cannot be encoded.
func (e literalEncoder) encode(op Operator, value any) (string, bool) {
	switch op {
	case OpIn, OpNin:
		items := nonEmptyItems(value)
		if len(items) == 0 {
			return "", false
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			lit, ok := e.scalar(item)
			if !ok {
				return "", false
			}
			parts = append(parts, lit)
		}
		return "[" + strings.Join(parts, ", ") + "]", true

	case OpBtw:
		items := nonEmptyItems(value)
		if len(items) == 0 {
			return "", false
		}
		if len(items) == 1 {
			items = append(items, items[0])
		}
		low, ok := e.scalar(items[0])
		if !ok {
			return "", false
		}
		high, ok := e.scalar(items[1])
		if !ok {
			return "", false
		}
		return "[" + low + ", " + high + "]", true

	default:
		// A list passed to a single-value operator uses its first element.
		items := nonEmptyItems(value)
		if len(items) == 0 {
			return "", false
		}
		return e.scalar(items[0])
	}
}

func (e literalEncoder) scalar(value any) (string, bool) {
	switch e.category {
	case CategoryBoolean:
		return encodeBoolean(value)
	case CategoryNumeric:
		if e.dateLike {
			return encodeDate(value)
		}
		return encodeNumber(value)
	default:
		return encodeString(value)
	}
}

func encodeBoolean(value any) (string, bool) {
	switch v := value.(type) {
	case bool:
		return strconv.FormatBool(v), true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return "", false
		}
		return strconv.FormatBool(b), true
	}
	return "", false
}

func encodeNumber(value any) (string, bool) {
	text, ok := numberText(value)
	if !ok {
		return "", false
	}
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return strconv.FormatInt(i, 10), true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', -1, 64), true
}

// encodeDate encodes a date as epoch milliseconds. Numeric input is taken as already encoded.
func encodeDate(value any) (string, bool) {
	switch v := value.(type) {
	case time.Time:
		return strconv.FormatInt(v.UnixMilli(), 10), true
	case string:
		if t, ok := ParseTime(v); ok {
			return strconv.FormatInt(t.UnixMilli(), 10), true
		}
	}
	return encodeNumber(value)
}

// ParseTime parses the date and date-time forms accepted in filters. Values without a
// zone are taken as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func numberText(value any) (string, bool) {
	switch v := value.(type) {
	case json.Number:
		return v.String(), true
	case string:
		return strings.TrimSpace(v), true
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

func encodeString(value any) (string, bool) {
	var text string
	switch v := value.(type) {
	case string:
		text = v
	case json.Number:
		text = v.String()
	case bool:
		text = strconv.FormatBool(v)
	case time.Time:
		text = v.Format(time.RFC3339)
	default:
		if s, ok := numberText(value); ok {
			text = s
		} else {
			text = fmt.Sprint(value)
		}
	}
	return quote(text), true
}

// quote renders a GraphQL string literal. JSON string escapes are a subset of
// GraphQL's, so the JSON encoder output is used without HTML escaping.
func quote(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return `""`
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// nonEmptyItems flattens a value into its list of set elements. A scalar is promoted to
// a singleton list; nil, blank strings and empty lists contribute nothing.
func nonEmptyItems(value any) []any {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if !isEmpty(item) {
				out = append(out, item)
			}
		}
		return out
	case []string:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if !isEmpty(item) {
				out = append(out, item)
			}
		}
		return out
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item := rv.Index(i).Interface()
			if !isEmpty(item) {
				out = append(out, item)
			}
		}
		return out
	}

	if isEmpty(value) {
		return nil
	}
	return []any{value}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case json.Number:
		return v == ""
	}
	return false
}
