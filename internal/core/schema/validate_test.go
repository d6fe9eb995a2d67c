package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func gpioFields() []Field {
	min, max := Bounds(1, 100)
	return []Field{
		{Name: "note", Kind: KindConstant, Label: "Pick a line", Default: "read only"},
		{Name: "gpiochip", Kind: KindSelect, Required: true, Options: StringOptions("/dev/gpiochip0", "/dev/gpiochip1")},
		{Name: "gpioline", Kind: KindSelect, Required: true, Options: StringOptions("0", "1", "17")},
		{Name: "count", Kind: KindNumber, Required: true, Default: 1.0, Min: min, Max: max},
		{Name: "inverted", Kind: KindBoolean, Default: false},
		{Name: "label", Kind: KindString},
	}
}

func TestValidateAccepts(t *testing.T) {
	assert := assert.New(t)

	values, errs := Validate(gpioFields(), map[string]any{
		"gpiochip": "/dev/gpiochip1",
		"gpioline": 17,
		"count":    "3",
		"inverted": "true",
		"unknown":  "dropped",
	})

	assert.Empty(errs)
	assert.Equal(map[string]any{
		"gpiochip": "/dev/gpiochip1",
		"gpioline": "17",
		"count":    3.0,
		"inverted": true,
	}, values)
}

func TestValidateErrors(t *testing.T) {
	assert := assert.New(t)

	_, errs := Validate(gpioFields(), map[string]any{
		"gpiochip": "/dev/gpiochip9",
		"count":    101,
		"inverted": "maybe",
		"label":    12,
	})

	assert.Equal(map[string]string{
		"gpiochip": ERROR_INVALID_OPTION,
		"gpioline": ERROR_REQUIRED,
		"count":    ERROR_OUT_OF_RANGE,
		"inverted": ERROR_INVALID_BOOLEAN,
		"label":    ERROR_INVALID_STRING,
	}, errs)
}

func TestConstantNeverCollected(t *testing.T) {
	values, errs := Validate(gpioFields(), map[string]any{
		"note":     "user supplied",
		"gpiochip": "/dev/gpiochip0",
		"gpioline": "0",
	})
	assert.Empty(t, errs)
	assert.NotContains(t, values, "note")
}

func TestDefaultsRoundTrip(t *testing.T) {
	assert := assert.New(t)

	bag := map[string]any{
		"gpiochip": "/dev/gpiochip1",
		"gpioline": "17",
		"count":    4.0,
		"inverted": true,
		"label":    "pump",
	}

	prefilled := WithDefaults(gpioFields(), bag)
	values, errs := Validate(prefilled, map[string]any{})

	assert.Empty(errs)
	assert.Equal(bag, values, "submitting unchanged form reproduces the bag")
	assert.Equal("read only", prefilled[0].Default, "constant untouched")
}

func TestWithDefaultsSelectFromNumber(t *testing.T) {
	prefilled := WithDefaults(gpioFields(), map[string]any{"gpioline": 17.0})
	assert.Equal(t, "17", prefilled[2].Default)
}

func TestValidateIntegerField(t *testing.T) {
	assert := assert.New(t)

	min, max := Bounds(1, 100)
	fields := []Field{{Name: "count", Kind: KindNumber, Required: true, Min: min, Max: max, Integer: true}}

	values, errs := Validate(fields, map[string]any{"count": "4"})
	assert.Empty(errs)
	n, ok := Int(values, "count")
	assert.True(ok)
	assert.Equal(4, n)

	_, errs = Validate(fields, map[string]any{"count": 2.5})
	assert.Equal(map[string]string{"count": ERROR_INVALID_NUMBER}, errs)
	_, errs = Validate(fields, map[string]any{"count": "7.25"})
	assert.Equal(map[string]string{"count": ERROR_INVALID_NUMBER}, errs)
}
