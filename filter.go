// Copyright 2026 Franklin "Snaipe" Mathieu.
//
// Use of this source code is governed by the MIT license that can be
// found in the LICENSE file.

package varlink

import (
	"encoding/json"

	"waxwing.dev/go-varlink/internal/service"
	"waxwing.dev/go-varlink/syntax"
)

// validateParams checks that every key in a request's parameters object is a
// declared field of the method's input struct. It is the dispatcher-side
// half of the parameter filter: Go callers build parameters with a static
// struct and encoding/json, so there is no positional/keyword ambiguity to
// resolve on the way out the door, only unknown fields to catch on the way
// in.
func validateParams(raw json.RawMessage, in syntax.StructType) Error {
	if len(raw) == 0 {
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		// Malformed JSON isn't a parameter-validation concern; the codec
		// layer already rejected the frame before this is ever called with
		// invalid input in practice, but guard anyway.
		return nil
	}

	for key := range obj {
		if _, ok := in.Field(key); !ok {
			return service.InvalidParameter(key)
		}
	}
	return nil
}

// FilterValue projects a structural value (typically the result of
// unmarshaling a JSON object into map[string]any) against a schema type
// expression, resolving named references against intf and recursing through
// arrays and structs.
//
// Fields absent from value are omitted from the projection rather than
// filled with zero values or null — the wire should never see a field the
// caller didn't supply. This mirrors Interface.filter_params in the varlink
// reference implementation, restricted to its structural-value case; Go
// clients built against a generated or hand-written struct never need the
// positional-tuple case the reference implementation also supports, since
// encoding/json already performs that projection for static Go types.
func FilterValue(intf *syntax.InterfaceDef, typ syntax.Type, value any) any {
	switch t := typ.(type) {
	case syntax.ArrayType:
		arr, ok := value.([]any)
		if !ok {
			return value
		}
		out := make([]any, len(arr))
		for i, v := range arr {
			out[i] = FilterValue(intf, t.Elem, v)
		}
		return out

	case syntax.NamedType:
		resolved, ok := intf.Resolve(t.Name)
		if !ok {
			return value
		}
		return FilterValue(intf, resolved, value)

	case syntax.StructType:
		m, ok := value.(map[string]any)
		if !ok {
			return value
		}
		out := make(map[string]any, len(t.Fields))
		for _, f := range t.Fields {
			v, ok := m[f.Name]
			if !ok {
				continue
			}
			out[f.Name] = FilterValue(intf, f.Type, v)
		}
		return out

	default: // syntax.Primitive
		return value
	}
}

// filterParams projects raw's decoded object through FilterValue against
// in, producing the canonical wire form a handler is guaranteed to see: only
// fields in declares, with nothing synthesized for fields the caller left
// out. validateParams has already rejected any top-level field in doesn't
// declare; this step is what additionally catches undeclared fields nested
// inside a declared struct or array field, which validateParams's flat
// field-name check never recurses into.
func filterParams(intf *syntax.InterfaceDef, in syntax.StructType, raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return raw
	}

	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return raw
	}

	projected := FilterValue(intf, in, value)
	data, err := json.Marshal(projected)
	if err != nil {
		return raw
	}
	return json.RawMessage(data)
}
