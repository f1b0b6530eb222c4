package host

import (
	"context"
	"fmt"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/value"
)

// FuncType is the component-level signature of a function.
type FuncType struct {
	Params  []value.Type
	Results []value.Type
}

func (t FuncType) String() string {
	return "func" + value.TypeList(t.Params) + " -> " + value.TypeList(t.Results)
}

// Equal reports whether t and o have identical parameter and result types.
func (t FuncType) Equal(o FuncType) bool {
	return typesEqual(t.Params, o.Params) && typesEqual(t.Results, o.Results)
}

func typesEqual(a, b []value.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !value.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// HostFunc implements a component import. params holds one value per
// declared parameter, lifted from the guest with the declared types;
// results has one slot per declared result which the function must fill.
type HostFunc func(ctx context.Context, params []value.Value, results []value.Value) error

// Func is a host function with its declared signature.
type Func struct {
	ty FuncType
	fn HostFunc
}

// NewFunc pairs a host function with its signature.
func NewFunc(ty FuncType, fn HostFunc) *Func {
	return &Func{ty: ty, fn: fn}
}

// Type returns the declared signature.
func (f *Func) Type() FuncType { return f.ty }

// Call invokes the host function directly. Only the argument count is
// checked; tag validation is left to the function itself, as it is when
// the guest calls it through the canonical ABI.
func (f *Func) Call(ctx context.Context, params []value.Value) ([]value.Value, error) {
	if len(params) != len(f.ty.Params) {
		return nil, errors.InvalidInput(errors.PhaseCall,
			fmt.Sprintf("expected %d arguments, got %d", len(f.ty.Params), len(params)))
	}
	results := make([]value.Value, len(f.ty.Results))
	if err := f.fn(ctx, params, results); err != nil {
		return nil, err
	}
	return results, nil
}

// checkValues validates vs against ts and reports the first mismatch.
func checkValues(phase errors.Phase, path []string, what string, ts []value.Type, vs []value.Value) error {
	if len(vs) != len(ts) {
		return errors.New(phase, errors.KindInvalidInput).
			Path(path...).
			Detail("expected %d %s, got %d", len(ts), what, len(vs)).
			Build()
	}
	for i, t := range ts {
		if vs[i] == nil || !value.Equal(vs[i].Type(), t) {
			return errors.New(phase, errors.KindTypeMismatch).
				Path(sub(path, fmt.Sprintf("%s[%d]", what, i))...).
				WitType(t.String()).
				Detail("got %s", value.Describe(vs[i])).
				Build()
		}
	}
	return nil
}
