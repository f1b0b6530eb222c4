package host

import (
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/value"
)

// Canonical ABI flattening limits.
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1
)

// flatten returns the core value types t occupies when passed flat.
func flatten(t value.Type) []api.ValueType {
	return appendFlat(nil, t)
}

func appendFlat(out []api.ValueType, t value.Type) []api.ValueType {
	switch t.Kind() {
	case value.KindU64, value.KindS64:
		return append(out, api.ValueTypeI64)
	case value.KindF32:
		return append(out, api.ValueTypeF32)
	case value.KindF64:
		return append(out, api.ValueTypeF64)
	case value.KindString, value.KindList:
		return append(out, api.ValueTypeI32, api.ValueTypeI32)
	case value.KindOption:
		out = append(out, api.ValueTypeI32)
		return appendFlat(out, value.Elem(t))
	}
	return append(out, api.ValueTypeI32)
}

func flattenAll(ts []value.Type) []api.ValueType {
	var out []api.ValueType
	for _, t := range ts {
		out = appendFlat(out, t)
	}
	return out
}

// coreSignature is the core wasm function type of a component function.
type coreSignature struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (s coreSignature) equal(o coreSignature) bool {
	return valueTypesEqual(s.Params, o.Params) && valueTypesEqual(s.Results, o.Results)
}

func (s coreSignature) String() string {
	return valueTypesString(s.Params) + " -> " + valueTypesString(s.Results)
}

func valueTypesEqual(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func valueTypesString(ts []api.ValueType) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = api.ValueTypeName(t)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// liftSignature is the core type of a guest export implementing ty.
func liftSignature(ty FuncType) coreSignature {
	params := flattenAll(ty.Params)
	if len(params) > MaxFlatParams {
		params = []api.ValueType{api.ValueTypeI32}
	}
	results := flattenAll(ty.Results)
	if len(results) > MaxFlatResults {
		results = []api.ValueType{api.ValueTypeI32}
	}
	return coreSignature{Params: params, Results: results}
}

// lowerSignature is the core type of a guest import of a host function
// implementing ty.
func lowerSignature(ty FuncType) coreSignature {
	params := flattenAll(ty.Params)
	if len(params) > MaxFlatParams {
		params = []api.ValueType{api.ValueTypeI32}
	}
	results := flattenAll(ty.Results)
	if len(results) > MaxFlatResults {
		params = append(params, api.ValueTypeI32)
		results = nil
	}
	return coreSignature{Params: params, Results: results}
}

func alignOf(t value.Type) uint32 {
	switch t.Kind() {
	case value.KindBool, value.KindU8, value.KindS8:
		return 1
	case value.KindU16, value.KindS16:
		return 2
	case value.KindU64, value.KindS64, value.KindF64:
		return 8
	case value.KindOption:
		if a := alignOf(value.Elem(t)); a > 1 {
			return a
		}
		return 1
	}
	return 4
}

func sizeOf(t value.Type) uint32 {
	switch t.Kind() {
	case value.KindBool, value.KindU8, value.KindS8:
		return 1
	case value.KindU16, value.KindS16:
		return 2
	case value.KindU64, value.KindS64, value.KindF64:
		return 8
	case value.KindString, value.KindList:
		return 8
	case value.KindOption:
		elem := value.Elem(t)
		size := alignTo(1, alignOf(elem)) + sizeOf(elem)
		return alignTo(size, alignOf(t))
	}
	return 4
}

func payloadOffset(t value.Type) uint32 {
	return alignTo(1, alignOf(value.Elem(t)))
}

func alignTo(n, align uint32) uint32 {
	return (n + align - 1) &^ (align - 1)
}

// tupleLayout returns the field offsets, total size and alignment of ts
// stored as a record.
func tupleLayout(ts []value.Type) (offsets []uint32, size, align uint32) {
	offsets = make([]uint32, len(ts))
	align = 1
	for i, t := range ts {
		a := alignOf(t)
		size = alignTo(size, a)
		offsets[i] = size
		size += sizeOf(t)
		if a > align {
			align = a
		}
	}
	return offsets, alignTo(size, align), align
}
