package model

import (
	"math"
	"strconv"

	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// Parameter values arrive from literal grids, samplers and HCL files, so a
// float parameter may hold an int and an int parameter may hold a whole
// float64. The To* helpers accept every lossless representation.

// ToFloat converts a parameter value to float64.
func ToFloat(name string, v interface{}) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, errors.NewValidationError(name, "expected a number", v)
		}
		return f, nil
	default:
		return 0, errors.NewValidationError(name, "expected a number", v)
	}
}

// ToInt converts a parameter value to int. Floats must be whole numbers.
func ToInt(name string, v interface{}) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case int32:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, errors.NewValidationError(name, "expected an integer", v)
		}
		return int(x), nil
	case string:
		i, err := strconv.Atoi(x)
		if err != nil {
			return 0, errors.NewValidationError(name, "expected an integer", v)
		}
		return i, nil
	default:
		return 0, errors.NewValidationError(name, "expected an integer", v)
	}
}

// ToInt64 converts a parameter value to int64.
func ToInt64(name string, v interface{}) (int64, error) {
	i, err := ToInt(name, v)
	return int64(i), err
}

// ToString converts a parameter value to string.
func ToString(name string, v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.NewValidationError(name, "expected a string", v)
	}
	return s, nil
}

// ToBool converts a parameter value to bool.
func ToBool(name string, v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, errors.NewValidationError(name, "expected a boolean", v)
		}
		return b, nil
	default:
		return false, errors.NewValidationError(name, "expected a boolean", v)
	}
}

// OneOf returns a ValidationError unless value is one of allowed.
func OneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return errors.NewValidationError(name, "must be one of "+joinQuoted(allowed), value)
}

func joinQuoted(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += strconv.Quote(v)
	}
	return out
}

// UnknownParam is the error every SetParams returns for a key it does not own.
func UnknownParam(model, key string) error {
	return errors.NewValidationError(key, "invalid parameter for estimator "+model, key)
}

// CopyParams returns a shallow copy of a parameter map.
func CopyParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
