package main

import (
	"bytes"
	"context"
	"encoding/json"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/witbind/host"
	"github.com/wippyai/witbind/internal/testguest"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "witbind v"+Version) {
		t.Errorf("out = %q", out)
	}
}

func TestSchema(t *testing.T) {
	out, err := execute(t, "schema")
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if _, ok := doc["properties"]; !ok {
		t.Errorf("schema has no properties: %s", out)
	}
}

func TestGenerate(t *testing.T) {
	out := filepath.Join(t.TempDir(), "gen", "calculator.go")
	if _, err := execute(t, "generate", "--path", filepath.Join("testdata", "calculator.wit"), "--out", out, "--log-level", "error"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	src, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	f, err := parser.ParseFile(token.NewFileSet(), out, src, 0)
	if err != nil {
		t.Fatalf("output does not parse: %v", err)
	}
	if f.Name.Name != "calculator" {
		t.Errorf("package = %s", f.Name.Name)
	}

	// a second run must leave identical bytes behind
	if _, err := execute(t, "generate", "--path", filepath.Join("testdata", "calculator.wit"), "--out", out, "--log-level", "error"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	again, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(src, again) {
		t.Error("regeneration changed the output")
	}
}

func TestGenerate_ConfigTargets(t *testing.T) {
	dir := t.TempDir()
	wit, err := filepath.Abs(filepath.Join("testdata", "calculator.wit"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "witbind.yaml")
	body := "log_level: error\ntargets:\n" +
		"  - path: " + wit + "\n    out: " + filepath.Join(dir, "a.go") + "\n" +
		"  - path: " + wit + "\n    package: calc\n    out: " + filepath.Join(dir, "b.go") + "\n"
	if err := os.WriteFile(cfg, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "generate", "--config", cfg); err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "b.go"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte("package calc\n")) {
		t.Error("package override ignored")
	}
	if _, err := os.Stat(filepath.Join(dir, "a.go")); err != nil {
		t.Error(err)
	}
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no target", []string{"generate", "--log-level", "error"}, "nothing to generate"},
		{"missing out", []string{"generate", "--path", "testdata/calculator.wit"}, "invalid target"},
		{"unknown world", []string{"generate", "--path", "testdata/calculator.wit", "--world", "nope", "--out", "x.go"}, "not_found"},
		{"bad log level", []string{"generate", "--log-level", "loud"}, "invalid configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			args := tt.args
			for i, a := range args {
				if strings.HasPrefix(a, "testdata/") {
					abs, _ := filepath.Abs(filepath.Join(origDir, a))
					args[i] = abs
				}
			}
			_, err := execute(t, args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

var origDir, _ = os.Getwd()

func TestInspect_WIT(t *testing.T) {
	out, err := execute(t, "inspect", filepath.Join("testdata", "calculator.wit"), "--format", "json")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var items []item
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Direction != "import" || items[0].Name != "example:calculator/console@0.1.0" {
		t.Errorf("import = %+v", items[0])
	}
	if items[1].Direction != "export" || len(items[1].Functions) != 2 || items[1].Functions[0] != "add: func(a: s32, b: s32) -> s32" {
		t.Errorf("export = %+v", items[1])
	}

	out, err = execute(t, "inspect", filepath.Join("testdata", "calculator.wit"))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "example:calculator/math@0.1.0") || !strings.Contains(out, "print: func(line: string)") {
		t.Errorf("table output:\n%s", out)
	}
}

func TestInspect_Binary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calculator.wasm")
	if err := os.WriteFile(path, testguest.Calculator(host.SchemeCM32P2), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "inspect", path, "--format", "yaml")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"example:calculator/console@0.1", "example:calculator/math@0.1", "- add", "- print"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
}
