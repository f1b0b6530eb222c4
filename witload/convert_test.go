package witload

import (
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/witmodel"
)

func newTestConverter(ifaces map[*wit.Interface]*witmodel.Interface) *converter {
	return &converter{
		model:    &witmodel.Model{},
		packages: map[*wit.Package]*witmodel.Package{},
		ifaces:   ifaces,
		types:    map[*wit.TypeDef]witmodel.TypeID{},
	}
}

func TestConverter_Function(t *testing.T) {
	c := newTestConverter(nil)
	param := wit.Param{Name: "a", Type: wit.U32{}}

	tests := []struct {
		name    string
		results []wit.Param
		want    witmodel.Type
		wantErr bool
	}{
		{"none", nil, nil, false},
		{"single", []wit.Param{{Type: wit.String{}}}, witmodel.String, false},
		{"multiple", []wit.Param{{Name: "x", Type: wit.U32{}}, {Name: "y", Type: wit.U32{}}}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &wit.Function{
				Name:    "run",
				Kind:    &wit.Freestanding{},
				Params:  []wit.Param{param},
				Results: tt.results,
			}
			fn, err := c.function(f)
			if tt.wantErr {
				if !isKind(err, errors.PhaseMap, errors.KindUnsupported) {
					t.Fatalf("error = %v, want map/unsupported", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if len(fn.Params) != 1 || fn.Params[0].Name != "a" || fn.Params[0].Type != witmodel.U32 {
				t.Errorf("params = %+v", fn.Params)
			}
			if fn.Result != tt.want {
				t.Errorf("result = %v, want %v", fn.Result, tt.want)
			}
		})
	}
}

func TestConverter_Entries(t *testing.T) {
	pkg := &witmodel.Package{Name: witmodel.PackageName{Namespace: "example", Name: "calculator"}}
	named := &wit.Interface{}
	inline := &wit.Interface{}
	c := newTestConverter(map[*wit.Interface]*witmodel.Interface{
		named:  {Name: "console", Package: pkg},
		inline: {},
	})

	items := func(yield func(string, wit.WorldItem) bool) {
		if !yield("interface-0", &wit.InterfaceRef{Interface: named}) {
			return
		}
		if !yield("events", &wit.InterfaceRef{Interface: inline}) {
			return
		}
		yield("ping", &wit.Function{Name: "ping", Kind: &wit.Freestanding{}, Results: []wit.Param{{Type: wit.U32{}}}})
	}
	entries, err := c.entries(items)
	if err != nil {
		t.Fatal(err)
	}

	wantKeys := []string{"example:calculator/console", "events", "ping"}
	if len(entries) != len(wantKeys) {
		t.Fatalf("got %d entries, want %d", len(entries), len(wantKeys))
	}
	for i, key := range wantKeys {
		if entries[i].Key != key {
			t.Errorf("entry %d key = %q, want %q", i, entries[i].Key, key)
		}
	}
	if it, ok := entries[0].Item.(*witmodel.InterfaceItem); !ok || it.Interface.Name != "console" {
		t.Errorf("entry 0 = %#v", entries[0].Item)
	}
	if it, ok := entries[2].Item.(*witmodel.FunctionItem); !ok || it.Function.Result != witmodel.U32 {
		t.Errorf("entry 2 = %#v", entries[2].Item)
	}

	unknown := func(yield func(string, wit.WorldItem) bool) {
		yield("interface-1", &wit.InterfaceRef{Interface: &wit.Interface{}})
	}
	if _, err := c.entries(unknown); !isKind(err, errors.PhaseParse, errors.KindNotFound) {
		t.Errorf("unknown interface error = %v, want parse/not_found", err)
	}
}
