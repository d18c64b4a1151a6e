package experiment

import (
	"math/big"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/YuminosukeSato/scigo-tune/pkg/errors"
)

// ctyToNative converts a primitive cty value to the Go value estimators
// accept. Whole numbers become int so that integer hyperparameters
// such as n_neighbors can be written without a decimal point.
func ctyToNative(name string, v cty.Value) (interface{}, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, errors.NewValidationError(name, "value must be known", nil)
	}

	switch ty := v.Type(); ty {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		return v.True(), nil
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, errors.Wrapf(err, "could not convert %s to float64", name)
		}
		return f, nil
	default:
		return nil, errors.NewValidationError(name,
			"only strings, numbers and bools are supported, got "+ty.FriendlyName(), nil)
	}
}

// ctyToList converts a list or tuple of primitives.
func ctyToList(name string, v cty.Value) ([]interface{}, error) {
	ty := v.Type()
	if !(ty.IsListType() || ty.IsTupleType() || ty.IsSetType()) {
		return nil, errors.NewValidationError(name, "values must be a list, got "+ty.FriendlyName(), nil)
	}
	out := make([]interface{}, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		native, err := ctyToNative(name, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, native)
	}
	return out, nil
}

// ctyToParams converts an object or map of primitives into an estimator
// parameter map. A null value yields nil.
func ctyToParams(name string, v cty.Value) (map[string]interface{}, error) {
	if v.IsNull() {
		return nil, nil
	}
	ty := v.Type()
	if !(ty.IsObjectType() || ty.IsMapType()) {
		return nil, errors.NewValidationError(name, "params must be an object, got "+ty.FriendlyName(), nil)
	}
	out := make(map[string]interface{}, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		k, elem := it.Element()
		key := k.AsString()
		native, err := ctyToNative(name+"."+key, elem)
		if err != nil {
			return nil, err
		}
		out[key] = native
	}
	return out, nil
}
