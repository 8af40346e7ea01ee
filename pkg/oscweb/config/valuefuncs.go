package config

import (
	"errors"
	"fmt"

	"github.com/tsarna/go-structdiff"
	"github.com/tsarna/go2cty2go"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// TypeOfFunc returns the friendly name of a value's type.
var TypeOfFunc = function.New(&function.Spec{
	Description: "Returns the type name of a value",
	Params: []function.Parameter{
		{Name: "value", Type: cty.DynamicPseudoType, AllowNull: true},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.StringVal(args[0].Type().FriendlyName()), nil
	},
})

// ErrorFunc fails evaluation with the given message, for asserting on
// environment-derived settings.
var ErrorFunc = function.New(&function.Spec{
	Description: "Fails with the given message",
	Params: []function.Parameter{
		{Name: "message", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.UnknownVal(cty.String), errors.New(args[0].AsString())
	},
})

// DiffFunc returns the patch that turns a into b.
var DiffFunc = function.New(&function.Spec{
	Description: "Returns the patch that turns the first object into the second",
	Params: []function.Parameter{
		{Name: "a", Type: cty.DynamicPseudoType},
		{Name: "b", Type: cty.DynamicPseudoType},
	},
	Type: function.StaticReturnType(cty.DynamicPseudoType),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		a, err := go2cty2go.CtyToAny(args[0])
		if err != nil {
			return cty.NilVal, fmt.Errorf("first argument: %w", err)
		}
		b, err := go2cty2go.CtyToAny(args[1])
		if err != nil {
			return cty.NilVal, fmt.Errorf("second argument: %w", err)
		}

		diff, err := structdiff.Diff(a, b)
		if err != nil {
			return cty.NilVal, fmt.Errorf("unable to diff values: %w", err)
		}

		return go2cty2go.AnyToCty(diff)
	},
})

// PatchFunc applies a patch produced by diff, or any partial object, to a
// target object. Null attributes in the patch delete the target's attribute.
var PatchFunc = function.New(&function.Spec{
	Description: "Applies a patch object to a target object",
	Params: []function.Parameter{
		{Name: "target", Type: cty.DynamicPseudoType},
		{Name: "patch", Type: cty.DynamicPseudoType},
	},
	Type: function.StaticReturnType(cty.DynamicPseudoType),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		target, err := go2cty2go.CtyToAny(args[0])
		if err != nil {
			return cty.NilVal, fmt.Errorf("target: %w", err)
		}
		patch, err := go2cty2go.CtyToAny(args[1])
		if err != nil {
			return cty.NilVal, fmt.Errorf("patch: %w", err)
		}

		targetMap, ok := target.(map[string]any)
		if !ok {
			return cty.NilVal, fmt.Errorf("target must be an object")
		}
		patchMap, ok := patch.(map[string]any)
		if !ok {
			return cty.NilVal, fmt.Errorf("patch must be an object")
		}

		if err := structdiff.Apply(&targetMap, patchMap); err != nil {
			return cty.NilVal, fmt.Errorf("unable to apply patch: %w", err)
		}

		return go2cty2go.AnyToCty(targetMap)
	},
})
