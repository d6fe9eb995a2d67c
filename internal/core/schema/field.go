package schema

import (
	"fmt"
	"strconv"
)

type Kind string

const (
	KindSelect   Kind = "select"
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindBoolean  Kind = "boolean"
	KindConstant Kind = "constant"
)

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field describes one form field. Constant fields are rendered but never
// collected.
type Field struct {
	Name     string   `json:"name"`
	Kind     Kind     `json:"type"`
	Label    string   `json:"label,omitempty"`
	Required bool     `json:"required"`
	Default  any      `json:"default,omitempty"`
	Options  []Option `json:"options,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Integer  bool     `json:"integer,omitempty"`
}

func (k Kind) Valid() bool {
	switch k {
	case KindSelect, KindString, KindNumber, KindBoolean, KindConstant:
		return true
	}
	return false
}

func Bounds(min, max float64) (*float64, *float64) {
	return &min, &max
}

func StringOptions(values ...string) []Option {
	opts := make([]Option, len(values))
	for i, v := range values {
		opts[i] = Option{Value: v, Label: v}
	}
	return opts
}

func (f Field) HasOption(value string) bool {
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// WithDefaults returns a copy of fields whose defaults are taken from values
// where present, so that a form re-opened on stored data shows that data.
func WithDefaults(fields []Field, values map[string]any) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		if v, ok := values[f.Name]; ok && v != nil && f.Kind != KindConstant {
			if f.Kind == KindSelect {
				v = optionValue(v)
			}
			f.Default = v
		}
		out[i] = f
	}
	return out
}

func optionValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
