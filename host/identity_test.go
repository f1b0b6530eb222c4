package host

import (
	"testing"

	"github.com/coreos/go-semver/semver"
)

func TestCanonicalVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0.1.0", "0.1"},
		{"0.1.7", "0.1"},
		{"1.2.3", "1"},
		{"2.0.0", "2"},
		{"0.0.4", "0.0.4"},
		{"0.0.0", "0.0.0"},
		{"1.0.0-rc.1", "1.0.0-rc.1"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CanonicalVersion(semver.New(tt.in)); got != tt.want {
				t.Errorf("CanonicalVersion(%s) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseInterfaceID(t *testing.T) {
	tests := []struct {
		in      string
		str     string
		wantErr bool
	}{
		{in: "example:calculator/math@0.1.0", str: "example:calculator/math@0.1.0"},
		{in: "example:calculator/math@0.1", str: "example:calculator/math@0.1.0"},
		{in: "test:echo/echo@1", str: "test:echo/echo@1.0.0"},
		{in: "wasi:cli/stdout", str: "wasi:cli/stdout"},
		{in: "console", str: "console"},
		{in: "$root", str: "$root"},
		{in: "", str: "$root"},
		{in: "ns:pkg/iface@1.0.0-rc.1", str: "ns:pkg/iface@1.0.0-rc.1"},
		{in: "nopkg/iface", wantErr: true},
		{in: ":pkg/iface", wantErr: true},
		{in: "ns:pkg/", wantErr: true},
		{in: "ns:pkg/iface@x.y", wantErr: true},
		{in: "bare@1.0.0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, err := ParseInterfaceID(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", id)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInterfaceID: %v", err)
			}
			if got := id.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

func TestInterfaceID_Matches(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"ns:pkg/a@0.1.0", "ns:pkg/a@0.1.9", true},
		{"ns:pkg/a@0.1.0", "ns:pkg/a@0.2.0", false},
		{"ns:pkg/a@1.0.0", "ns:pkg/a@1.4.2", true},
		{"ns:pkg/a@1.0.0", "ns:pkg/a@2.0.0", false},
		{"ns:pkg/a@0.0.1", "ns:pkg/a@0.0.2", false},
		{"ns:pkg/a@1.0.0", "ns:pkg/b@1.0.0", false},
		{"ns:pkg/a@1.0.0", "ns:other/a@1.0.0", false},
		{"ns:pkg/a", "ns:pkg/a", true},
		{"ns:pkg/a", "ns:pkg/a@1.0.0", false},
		{"$root", "", true},
	}
	for _, tt := range tests {
		a, b := MustParseInterfaceID(tt.a), MustParseInterfaceID(tt.b)
		if got := a.Matches(b); got != tt.want {
			t.Errorf("%s.Matches(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got := b.Matches(a); got != tt.want {
			t.Errorf("%s.Matches(%s) = %v, want %v", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestMustParseInterfaceID_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustParseInterfaceID("ns:/bad")
}

func TestNameScheme_Names(t *testing.T) {
	id := MustParseInterfaceID("example:calculator/math@0.1.0")

	tests := []struct {
		scheme     NameScheme
		module     string
		rootModule string
		export     string
		rootExport string
		post       string
		memory     string
		realloc    string
		initialize string
	}{
		{
			scheme:     SchemeCM32P2,
			module:     "cm32p2|example:calculator/math@0.1",
			rootModule: "cm32p2",
			export:     "cm32p2|example:calculator/math@0.1|add",
			rootExport: "cm32p2||run",
			post:       "cm32p2|example:calculator/math@0.1|add_post",
			memory:     "cm32p2_memory",
			realloc:    "cm32p2_realloc",
			initialize: "cm32p2_initialize",
		},
		{
			scheme:     SchemeLegacy,
			module:     "example:calculator/math@0.1.0",
			rootModule: "$root",
			export:     "example:calculator/math@0.1.0#add",
			rootExport: "run",
			post:       "cabi_post_example:calculator/math@0.1.0#add",
			memory:     "memory",
			realloc:    "cabi_realloc",
			initialize: "_initialize",
		},
	}
	for _, tt := range tests {
		t.Run(tt.scheme.String(), func(t *testing.T) {
			s := tt.scheme
			if got := s.ImportModule(id); got != tt.module {
				t.Errorf("ImportModule = %q, want %q", got, tt.module)
			}
			if got := s.ImportModule(RootInterface); got != tt.rootModule {
				t.Errorf("root ImportModule = %q, want %q", got, tt.rootModule)
			}
			if got := s.ExportName(id, "add"); got != tt.export {
				t.Errorf("ExportName = %q, want %q", got, tt.export)
			}
			if got := s.ExportName(RootInterface, "run"); got != tt.rootExport {
				t.Errorf("root ExportName = %q, want %q", got, tt.rootExport)
			}
			if got := s.PostReturnName(tt.export); got != tt.post {
				t.Errorf("PostReturnName = %q, want %q", got, tt.post)
			}
			if s.MemoryExport() != tt.memory || s.ReallocExport() != tt.realloc || s.InitializeExport() != tt.initialize {
				t.Errorf("helpers = %s %s %s", s.MemoryExport(), s.ReallocExport(), s.InitializeExport())
			}

			parsed, err := s.parseImportModule(tt.module)
			if err != nil || !parsed.Matches(id) {
				t.Errorf("parseImportModule(%q) = %v, %v", tt.module, parsed, err)
			}
			root, err := s.parseImportModule(tt.rootModule)
			if err != nil || !root.IsRoot() {
				t.Errorf("parseImportModule(%q) = %v, %v", tt.rootModule, root, err)
			}

			pid, fn, ok := s.parseExportName(tt.export)
			if !ok || fn != "add" || !pid.Matches(id) {
				t.Errorf("parseExportName(%q) = %v %q %v", tt.export, pid, fn, ok)
			}
			rid, fn, ok := s.parseExportName(tt.rootExport)
			if !ok || fn != "run" || !rid.IsRoot() {
				t.Errorf("parseExportName(%q) = %v %q %v", tt.rootExport, rid, fn, ok)
			}
			for _, helper := range []string{tt.post, tt.realloc, tt.initialize} {
				if _, _, ok := s.parseExportName(helper); ok {
					t.Errorf("helper %q parsed as a function", helper)
				}
			}
		})
	}
}

func TestDetectScheme(t *testing.T) {
	tests := []struct {
		name    string
		modules []string
		exports []string
		want    NameScheme
	}{
		{"empty", nil, nil, SchemeLegacy},
		{"cm32p2 import", []string{"cm32p2|a:b/c@1"}, nil, SchemeCM32P2},
		{"cm32p2 root import", []string{"cm32p2"}, nil, SchemeCM32P2},
		{"cm32p2 export", nil, []string{"cm32p2||run"}, SchemeCM32P2},
		{"cm32p2 helper", nil, []string{"cm32p2_memory"}, SchemeCM32P2},
		{"legacy", []string{"a:b/c@1.0.0"}, []string{"a:b/d@1.0.0#f"}, SchemeLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectScheme(tt.modules, tt.exports); got != tt.want {
				t.Errorf("detectScheme = %v, want %v", got, tt.want)
			}
		})
	}
}
