package experiment

import (
	_ "embed"
)

//go:embed builtin.hcl
var builtinHCL []byte

// BuiltinFilename is the name reported in diagnostics for the builtin cells.
const BuiltinFilename = "builtin.hcl"

// Builtin returns the builtin notebook cells in order.
func Builtin() []*Experiment {
	exps, err := Parse(builtinHCL, BuiltinFilename)
	if err != nil {
		panic("experiment: builtin experiments are invalid: " + err.Error())
	}
	return exps
}

// BuiltinSource returns the HCL source of the builtin cells, as a starting
// point for custom experiment files.
func BuiltinSource() []byte {
	return append([]byte(nil), builtinHCL...)
}
