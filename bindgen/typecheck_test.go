package bindgen

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/go/packages"
)

// typeCheck compiles src as a package inside this module so the generated
// imports of witbind packages resolve against the working tree.
func typeCheck(t *testing.T, src []byte) {
	t.Helper()
	if testing.Short() {
		t.Skip("type checking loads packages through the go command")
	}
	if err := os.MkdirAll("testdata", 0o755); err != nil {
		t.Fatal(err)
	}
	dir, err := os.MkdirTemp("testdata", "typecheck-")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	if err := os.WriteFile(filepath.Join(dir, "bindings.go"), src, 0o644); err != nil {
		t.Fatal(err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
		Dir:  abs,
	}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		t.Fatalf("load generated package: %v", err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("loaded %d packages", len(pkgs))
	}
	for _, e := range pkgs[0].Errors {
		t.Errorf("generated code: %v", e)
	}
	if pkgs[0].Types == nil || !pkgs[0].Types.Complete() {
		t.Error("generated package did not type check")
	}
	if t.Failed() {
		t.Logf("source:\n%s", src)
	}
}
