package registry

import (
	"encoding/json"
	"math"
	"strconv"
)

// Validation constants.
const (
	minNameLength = 2
	maxNameLength = 48

	// maxStringValueLen bounds string payloads. Anything longer is
	// rejected with a "value" validation error.
	maxStringValueLen = 255
)

// validValueTypes is a pre-computed set for O(1) type checks.
var validValueTypes map[ValueType]struct{}

func init() {
	validValueTypes = make(map[ValueType]struct{}, len(AllValueTypes()))
	for _, t := range AllValueTypes() {
		validValueTypes[t] = struct{}{}
	}
}

// ValidateName checks device and value name length bounds [2,48].
func ValidateName(name string) error {
	if len(name) < minNameLength || len(name) > maxNameLength {
		return errField("name")
	}
	return nil
}

// ValidateValueType checks that t is one of the four supported types.
func ValidateValueType(t ValueType) error {
	if _, ok := validValueTypes[t]; !ok {
		return errField("type")
	}
	return nil
}

// CoerceValue validates raw against the value type t and returns the
// canonical in-memory representation:
//
//   - boolean: must be literally true or false
//   - int:     must parse as a number; stored as int64 (fraction truncated)
//   - float:   must parse as a number; stored as float64
//   - string:  must be a string of at most 255 characters
//
// Numbers arrive from JSON as float64 or json.Number depending on the
// decoder; numeric strings are also accepted for int and float so device
// firmware that serialises readings as text keeps working.
func CoerceValue(t ValueType, raw any) (any, error) {
	switch t {
	case ValueTypeBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, errField("value")
		}
		return b, nil

	case ValueTypeInt:
		f, err := toNumber(raw)
		if err != nil {
			return nil, err
		}
		return int64(math.Trunc(f)), nil

	case ValueTypeFloat:
		return toNumber(raw)

	case ValueTypeString:
		s, ok := raw.(string)
		if !ok || len(s) > maxStringValueLen {
			return nil, errField("value")
		}
		return s, nil
	}
	return nil, errField("type")
}

// toNumber converts the JSON representations of a number to float64.
func toNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, errField("value")
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, errField("value")
		}
		return f, nil
	}
	return 0, errField("value")
}
