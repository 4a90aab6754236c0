//go:build js && wasm

// Command wasm exposes the descriptor shim to a browser page. Build with:
//
//	GOOS=js GOARCH=wasm go build -o dist/miniscript-shim.wasm ./wasm
//
// and serve it next to index.html and the toolchain's wasm_exec.js.
package main

import (
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/lightninglabs/miniscript-shim/shim"
)

// jsonValue converts v into a plain JS object via JSON.parse so that
// MarshalJSON implementations are honored.
func jsonValue(v interface{}) (js.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return js.Undefined(), err
	}

	return js.Global().Get("JSON").Call("parse", string(b)), nil
}

func errorValue(err error) interface{} {
	return shim.ErrorFields(err)
}

// stringArg returns the i'th argument as a string.
func stringArg(args []js.Value, i int, name string) (string, error) {
	if len(args) <= i || args[i].Type() != js.TypeString {
		return "", fmt.Errorf("%s argument missing", name)
	}

	return args[i].String(), nil
}

// fragmentsArg reads a JS array of strings.
func fragmentsArg(v js.Value) ([]string, error) {
	if v.Type() != js.TypeObject || !js.Global().Get("Array").Call(
		"isArray", v,
	).Bool() {

		return nil, fmt.Errorf("fragments must be an array")
	}

	frags := make([]string, v.Length())
	for i := range frags {
		item := v.Index(i)
		if item.Type() != js.TypeString {
			return nil, fmt.Errorf("fragment %d is not a string", i)
		}
		frags[i] = item.String()
	}

	return frags, nil
}

// keyTabArg reads a JS object mapping key names to hex x-only keys.
func keyTabArg(v js.Value) (shim.KeyTab, error) {
	if v.Type() != js.TypeObject {
		return nil, fmt.Errorf("keytab must be an object")
	}

	names := js.Global().Get("Object").Call("keys", v)
	keyTab := make(shim.KeyTab, names.Length())
	for i := 0; i < names.Length(); i++ {
		name := names.Index(i).String()
		val := v.Get(name)
		if val.Type() != js.TypeString {
			return nil, fmt.Errorf("key %s is not a string", name)
		}
		keyTab[name] = val.String()
	}

	return keyTab, nil
}

func registerCallbacks(s *shim.Shim) {
	js.Global().Set("getDescriptorTypes", js.FuncOf(
		func(this js.Value, args []js.Value) interface{} {
			v, err := jsonValue(s.DescriptorTypes())
			if err != nil {
				return errorValue(err)
			}

			return v
		},
	))

	js.Global().Set("getScriptType", js.FuncOf(
		func(this js.Value, args []js.Value) interface{} {
			desc, err := stringArg(args, 0, "descriptor")
			if err != nil {
				return errorValue(err)
			}

			scriptType, err := s.ScriptType(desc)
			if err != nil {
				return errorValue(err)
			}

			return scriptType
		},
	))

	js.Global().Set("getThresholdCount", js.FuncOf(
		func(this js.Value, args []js.Value) interface{} {
			desc, err := stringArg(args, 0, "descriptor")
			if err != nil {
				return errorValue(err)
			}

			k, err := s.ThresholdCount(desc)
			if err != nil {
				return errorValue(err)
			}

			return int(k)
		},
	))

	js.Global().Set("taproot", js.FuncOf(
		func(this js.Value, args []js.Value) interface{} {
			if len(args) < 2 {
				return errorValue(fmt.Errorf("taproot takes " +
					"fragments and a keytab"))
			}

			frags, err := fragmentsArg(args[0])
			if err != nil {
				return errorValue(err)
			}
			keyTab, err := keyTabArg(args[1])
			if err != nil {
				return errorValue(err)
			}

			info, err := s.Taproot(frags, keyTab)
			if err != nil {
				return errorValue(err)
			}

			v, err := jsonValue(info)
			if err != nil {
				return errorValue(err)
			}

			return v
		},
	))
}

func main() {
	registerCallbacks(shim.New())

	// Keep the runtime alive for callbacks.
	select {}
}
