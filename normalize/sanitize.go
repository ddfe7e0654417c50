package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"reflect"
	"strings"

	"github.com/poiesic/vectorload/core"
)

// Sanitize walks nested mappings and sequences and replaces every NaN or
// infinite number with nil. Other scalars pass through unchanged. Typed
// containers such as []map[string]any or map[string]float64 are walked too
// and come back as []any and map[string]any.
func Sanitize(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Sanitize(item)
		}
		return out
	case core.RawRecord:
		return Sanitize(map[string]any(x))
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Sanitize(item)
		}
		return out
	case []float64:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Sanitize(item)
		}
		return out
	default:
		return sanitizeTyped(v)
	}
}

func sanitizeTyped(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		if f := rv.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return v
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Sanitize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Sanitize(iter.Value().Interface())
		}
		return out
	}
	return v
}

// CompactJSON sanitizes v and serializes it to compact JSON. A nil value or
// a serialization failure yields nil rather than an error.
func CompactJSON(v any) json.RawMessage {
	clean := Sanitize(v)
	if clean == nil {
		return nil
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return nil
	}
	return data
}

// Nested returns v decoded from JSON when it is a string holding a JSON
// array or object, as exported datasets often stringify nested fields.
// Any other value, or text that fails to decode, is returned unchanged.
func Nested(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '[' && trimmed[0] != '{') {
		return v
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return out
}
