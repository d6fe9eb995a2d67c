package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	ERROR_REQUIRED        = "required"
	ERROR_INVALID_OPTION  = "invalid_option"
	ERROR_INVALID_STRING  = "invalid_string"
	ERROR_INVALID_NUMBER  = "invalid_number"
	ERROR_INVALID_BOOLEAN = "invalid_boolean"
	ERROR_OUT_OF_RANGE    = "out_of_range"
)

// Validate checks input against fields. It returns the collected values and a
// map of field name to error code. Missing fields fall back to their default;
// constant fields and keys unknown to the schema are dropped.
func Validate(fields []Field, input map[string]any) (map[string]any, map[string]string) {
	values := make(map[string]any)
	errs := make(map[string]string)

	for _, f := range fields {
		if f.Kind == KindConstant {
			continue
		}
		raw, present := input[f.Name]
		if !present || raw == nil || raw == "" && f.Kind != KindString {
			if f.Default != nil {
				raw = f.Default
			} else if f.Required {
				errs[f.Name] = ERROR_REQUIRED
				continue
			} else {
				continue
			}
		}
		v, code := coerce(f, raw)
		if code != "" {
			errs[f.Name] = code
			continue
		}
		values[f.Name] = v
	}
	return values, errs
}

func coerce(f Field, raw any) (any, string) {
	switch f.Kind {
	case KindSelect:
		v := optionValue(raw)
		if !f.HasOption(v) {
			return nil, ERROR_INVALID_OPTION
		}
		return v, ""
	case KindString:
		v, ok := raw.(string)
		if !ok {
			return nil, ERROR_INVALID_STRING
		}
		if f.Required && strings.TrimSpace(v) == "" {
			return nil, ERROR_REQUIRED
		}
		return v, ""
	case KindNumber:
		v, ok := toNumber(raw)
		if !ok || f.Integer && v != math.Trunc(v) {
			return nil, ERROR_INVALID_NUMBER
		}
		if f.Min != nil && v < *f.Min || f.Max != nil && v > *f.Max {
			return nil, ERROR_OUT_OF_RANGE
		}
		return v, ""
	case KindBoolean:
		switch t := raw.(type) {
		case bool:
			return t, ""
		case string:
			b, err := strconv.ParseBool(t)
			if err != nil {
				return nil, ERROR_INVALID_BOOLEAN
			}
			return b, ""
		}
		return nil, ERROR_INVALID_BOOLEAN
	}
	return raw, ""
}

func toNumber(raw any) (float64, bool) {
	switch t := raw.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		v, err := t.Float64()
		return v, err == nil
	case string:
		v, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return v, err == nil
	}
	return 0, false
}

// Int returns a collected number as an int.
func Int(values map[string]any, name string) (int, bool) {
	v, ok := toNumber(values[name])
	return int(v), ok
}
