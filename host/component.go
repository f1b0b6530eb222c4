package host

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sort"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/witbind/errors"
)

var wasmMagic = []byte{0x00, 0x61, 0x73, 0x6D}

const (
	coreVersion = 1
	// component binaries use version 0x0d with layer 1
	componentLayer          = 1
	componentSectionCoreMod = 1
)

// IsComponent reports whether data is a component binary rather than a
// core module.
func IsComponent(data []byte) bool {
	if len(data) < 8 || !bytes.Equal(data[:4], wasmMagic) {
		return false
	}
	return binary.LittleEndian.Uint16(data[6:8]) == componentLayer
}

// coreFunc is one function import or export of the core module. Graph
// components also record the runtime module and canonical options.
type coreFunc struct {
	lower  *lowering
	opts   *canonOpts
	name   string // component-level function name
	core   string // core import or export name
	module string // runtime module exporting core, empty for the main module
	sig    coreSignature
}

type componentImport struct {
	id     InterfaceID
	module string
	funcs  []coreFunc
}

type componentExport struct {
	id    InterfaceID
	funcs []coreFunc
}

func (e *componentExport) function(name string) (coreFunc, bool) {
	for _, f := range e.funcs {
		if f.name == name {
			return f, true
		}
	}
	return coreFunc{}, false
}

// Component is a compiled-once description of a guest: its core module
// or instantiation graph, naming scheme and component-level imports and
// exports.
type Component struct {
	graph   *componentGraph
	core    []byte
	scheme  NameScheme
	imports []*componentImport
	exports []*componentExport
	helpers map[string]bool
}

// InterfaceInfo summarizes one imported or exported interface.
type InterfaceInfo struct {
	Interface InterfaceID
	Functions []string
}

// NewComponent validates and analyzes a guest binary. The binary is a
// core module following the canonical ABI naming conventions, a component
// that embeds exactly one such core module, or a component wiring several
// core modules through core instances, aliases and canonical lift and
// lower.
func NewComponent(ctx context.Context, engine *Engine, data []byte) (*Component, error) {
	if IsComponent(data) {
		sections, err := readSections(data)
		if err != nil {
			return nil, errors.Load("read component sections", err)
		}
		for _, s := range sections {
			if s.id == secCoreInstance {
				return newGraphComponent(ctx, engine, data)
			}
		}
	}
	core, err := extractCore(data)
	if err != nil {
		return nil, err
	}

	rt := engine.newRuntime(ctx)
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, core)
	if err != nil {
		return nil, errors.Load("compile core module", err)
	}
	defer compiled.Close(ctx)

	if mems := compiled.ImportedMemories(); len(mems) > 0 {
		return nil, errors.Unsupported(errors.PhaseLoad, "core modules importing memory")
	}

	imported := compiled.ImportedFunctions()
	exported := compiled.ExportedFunctions()

	modules := make([]string, 0, len(imported))
	for _, def := range imported {
		mod, _, _ := def.Import()
		modules = append(modules, mod)
	}
	exportNames := make([]string, 0, len(exported))
	for name := range exported {
		exportNames = append(exportNames, name)
	}
	sort.Strings(exportNames)

	c := &Component{
		core:    core,
		scheme:  detectScheme(modules, exportNames),
		helpers: make(map[string]bool),
	}

	if err := c.indexImports(imported); err != nil {
		return nil, err
	}
	c.indexExports(exportNames, exported)

	for _, name := range []string{c.scheme.ReallocExport(), c.scheme.InitializeExport()} {
		if _, ok := exported[name]; ok {
			c.helpers[name] = true
		}
	}
	if _, ok := compiled.ExportedMemories()[c.scheme.MemoryExport()]; ok {
		c.helpers[c.scheme.MemoryExport()] = true
	}

	Logger().Debug("loaded component",
		zap.Stringer("scheme", c.scheme),
		zap.Int("imports", len(c.imports)),
		zap.Int("exports", len(c.exports)))
	return c, nil
}

func (c *Component) indexImports(defs []api.FunctionDefinition) error {
	byModule := make(map[string]*componentImport)
	for _, def := range defs {
		mod, name, _ := def.Import()
		imp, ok := byModule[mod]
		if !ok {
			id, err := c.scheme.parseImportModule(mod)
			if err != nil {
				return errors.New(errors.PhaseLoad, errors.KindInvalidData).
					Detail("import module %q is not an interface name", mod).
					Cause(err).
					Build()
			}
			imp = &componentImport{id: id, module: mod}
			byModule[mod] = imp
			c.imports = append(c.imports, imp)
		}
		imp.funcs = append(imp.funcs, coreFunc{
			name: name,
			core: name,
			sig:  coreSignature{Params: def.ParamTypes(), Results: def.ResultTypes()},
		})
	}
	return nil
}

func (c *Component) indexExports(names []string, defs map[string]api.FunctionDefinition) {
	for _, name := range names {
		id, fn, ok := c.scheme.parseExportName(name)
		if !ok {
			continue
		}
		def := defs[name]
		exp := c.export(id)
		if exp == nil {
			exp = &componentExport{id: id}
			c.exports = append(c.exports, exp)
		}
		exp.funcs = append(exp.funcs, coreFunc{
			name: fn,
			core: name,
			sig:  coreSignature{Params: def.ParamTypes(), Results: def.ResultTypes()},
		})
	}
}

func (c *Component) export(id InterfaceID) *componentExport {
	for _, e := range c.exports {
		if e.id.Matches(id) {
			return e
		}
	}
	return nil
}

// Scheme returns the detected naming scheme. Components built from an
// instantiation graph take their names from the binary and report
// SchemeCM32P2.
func (c *Component) Scheme() NameScheme { return c.scheme }

// Imports lists the interfaces the component imports in module order.
func (c *Component) Imports() []InterfaceInfo {
	out := make([]InterfaceInfo, len(c.imports))
	for i, imp := range c.imports {
		out[i] = InterfaceInfo{Interface: imp.id, Functions: funcNames(imp.funcs)}
	}
	return out
}

// Exports lists the interfaces the component exports, sorted by core
// export name.
func (c *Component) Exports() []InterfaceInfo {
	out := make([]InterfaceInfo, len(c.exports))
	for i, exp := range c.exports {
		out[i] = InterfaceInfo{Interface: exp.id, Functions: funcNames(exp.funcs)}
	}
	return out
}

// funcNames lists function names once each; a graph may lower one
// function several times.
func funcNames(fs []coreFunc) []string {
	names := make([]string, 0, len(fs))
	seen := make(map[string]bool, len(fs))
	for _, f := range fs {
		if !seen[f.name] {
			seen[f.name] = true
			names = append(names, f.name)
		}
	}
	return names
}

// newGraphComponent evaluates a multi-module component into an
// instantiation plan.
func newGraphComponent(ctx context.Context, engine *Engine, data []byte) (*Component, error) {
	rt := engine.newRuntime(ctx)
	defer rt.Close(ctx)

	b := &graphBuilder{ctx: ctx, rt: rt, graph: &componentGraph{}}
	if err := b.evaluate(data, &scope{}); err != nil {
		return nil, err
	}
	if len(b.graph.modules) == 0 {
		return nil, errors.Load("component instantiates no core module", nil)
	}

	c := &Component{
		graph:   b.graph,
		scheme:  SchemeCM32P2,
		imports: b.imports,
		exports: b.exports,
		helpers: make(map[string]bool),
	}
	Logger().Debug("loaded component graph",
		zap.Int("modules", len(b.graph.modules)),
		zap.Int("lowerings", b.lowers),
		zap.Int("imports", len(c.imports)),
		zap.Int("exports", len(c.exports)))
	return c, nil
}

func (c *Component) hasHelper(name string) bool { return c.helpers[name] }

// extractCore returns data when it is a core module, or the single core
// module embedded in a component binary.
func extractCore(data []byte) ([]byte, error) {
	if len(data) < 8 || !bytes.Equal(data[:4], wasmMagic) {
		return nil, errors.Load("not a WebAssembly binary", nil)
	}
	if !IsComponent(data) {
		if binary.LittleEndian.Uint32(data[4:8]) != coreVersion {
			return nil, errors.Load("unsupported core module version", nil)
		}
		return data, nil
	}

	var found [][]byte
	r := bytes.NewReader(data[8:])
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, errors.Load("read component section id", err)
		}
		size, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.Load("read component section size", err)
		}
		if size > uint64(r.Len()) {
			return nil, errors.Load("component section exceeds binary length", nil)
		}
		start := len(data) - r.Len()
		body := data[start : start+int(size)]
		if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
			return nil, errors.Load("skip component section", err)
		}
		if id == componentSectionCoreMod {
			found = append(found, body)
		}
	}

	switch len(found) {
	case 0:
		return nil, errors.Load("component contains no core module", nil)
	case 1:
		return found[0], nil
	}
	return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
		Detail("component contains %d core modules but no core instances to wire them", len(found)).
		Build()
}
