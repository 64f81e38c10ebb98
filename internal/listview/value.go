package listview

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"graphql-admin/internal/filter"
)

// Kind tags a cell value.
type Kind string

const (
	KindNull    Kind = "null"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindDate    Kind = "date"
)

// Value is a row value typed from the column's scalar type. Text always holds the
// plain display form; the typed member matching Kind is set.
type Value struct {
	Kind   Kind       `json:"kind"`
	Text   string     `json:"text"`
	Number *float64   `json:"number,omitempty"`
	Bool   *bool      `json:"bool,omitempty"`
	Time   *time.Time `json:"time,omitempty"`
}

// NewValue types a raw row value. Values that do not fit the scalar type fall back
// to strings rather than being dropped.
func NewValue(scalarType string, raw any) Value {
	if raw == nil {
		return Value{Kind: KindNull}
	}

	switch {
	case filter.IsDateLike(scalarType):
		if v, ok := dateValue(raw); ok {
			return v
		}
	case filter.Classify(scalarType) == filter.CategoryBoolean:
		if v, ok := boolValue(raw); ok {
			return v
		}
	case filter.Classify(scalarType) == filter.CategoryNumeric:
		if v, ok := numberValue(raw); ok {
			return v
		}
	}
	return Value{Kind: KindString, Text: textOf(raw)}
}

func dateValue(raw any) (Value, bool) {
	switch v := raw.(type) {
	case time.Time:
		t := v.UTC()
		return Value{Kind: KindDate, Text: t.Format(time.RFC3339), Time: &t}, true
	case string:
		t, ok := filter.ParseTime(v)
		if !ok {
			return Value{}, false
		}
		return Value{Kind: KindDate, Text: v, Time: &t}, true
	}
	f, ok := toFloat(raw)
	if !ok {
		return Value{}, false
	}
	t := time.UnixMilli(int64(f)).UTC()
	return Value{Kind: KindDate, Text: t.Format(time.RFC3339), Time: &t}, true
}

func boolValue(raw any) (Value, bool) {
	var b bool
	switch v := raw.(type) {
	case bool:
		b = v
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Value{}, false
		}
		b = parsed
	default:
		return Value{}, false
	}
	return Value{Kind: KindBoolean, Text: strconv.FormatBool(b), Bool: &b}, true
}

func numberValue(raw any) (Value, bool) {
	f, ok := toFloat(raw)
	if !ok {
		return Value{}, false
	}
	text := strconv.FormatFloat(f, 'f', -1, 64)
	if n, isNumber := raw.(json.Number); isNumber {
		text = n.String()
	}
	return Value{Kind: KindNumber, Text: text, Number: &f}, true
}

func toFloat(raw any) (float64, bool) {
	var f float64
	switch v := raw.(type) {
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func textOf(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	default:
		return fmt.Sprint(v)
	}
}
