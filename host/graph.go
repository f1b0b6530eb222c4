package host

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/witbind/errors"
)

// coreItem locates a core function, table, memory or global by the
// runtime module exporting it and its export name.
type coreItem struct {
	sig    *coreSignature // known function type
	lower  *lowering      // set for host functions lowered into core wasm
	module string
	name   string
	kind   byte
}

// canonOpts locates the memory, allocator and post-return a lift or
// lower uses.
type canonOpts struct {
	memory, realloc, post *coreItem
}

// lowering is one canon lower of an imported function. Each gets its own
// host module; its core type is fixed by the first module importing it.
type lowering struct {
	id     InterfaceID
	opts   canonOpts
	module string
	name   string
	sig    coreSignature
	known  bool
}

func (l *lowering) bind(sig coreSignature) error {
	if !l.known {
		l.sig, l.known = sig, true
		return nil
	}
	if !l.sig.equal(sig) {
		return errors.SignatureMismatch(errors.PhaseLoad, l.id.String(), l.name, l.sig.String(), sig.String())
	}
	return nil
}

// graphModule is one core module instantiation, imports already renamed
// to the modules that satisfy them.
type graphModule struct {
	name string
	wasm []byte
}

// componentGraph is the instantiation plan of a component whose core
// modules are wired through core instances.
type componentGraph struct {
	modules []graphModule
}

type coreModuleDef struct {
	shape      *coreModuleShape
	exportSigs map[string]coreSignature
	importSigs []*coreSignature // aligned with shape.imports
	wasm       []byte
}

type coreInstance struct {
	def     *coreModuleDef      // instantiated module
	exports map[string]coreItem // bundled exports
	module  string
}

func (ci *coreInstance) export(name string) (coreItem, error) {
	if ci.def == nil {
		it, ok := ci.exports[name]
		if !ok {
			return coreItem{}, invalidGraph("core instance has no export %q", name)
		}
		return it, nil
	}
	kind, ok := ci.def.shape.exports[name]
	if !ok {
		return coreItem{}, invalidGraph("core module %s has no export %q", ci.module, name)
	}
	it := coreItem{module: ci.module, name: name, kind: kind}
	if sig, ok := ci.def.exportSigs[name]; ok {
		it.sig = &sig
	}
	return it, nil
}

// compFunc is an imported function or a lifted core function.
type compFunc struct {
	id       InterfaceID
	name     string
	core     coreItem
	opts     canonOpts
	imported bool
}

type compInstance struct {
	exports map[string]item
	id      InterfaceID
	names   []string
	host    bool
}

func (ci *compInstance) export(name string, sort byte) (item, error) {
	if it, ok := ci.exports[name]; ok {
		if it.sort != sort {
			return item{}, invalidGraph("export %q has sort 0x%02x, not 0x%02x", name, it.sort, sort)
		}
		return it, nil
	}
	if !ci.host {
		return item{}, invalidGraph("instance has no export %q", name)
	}
	var it item
	switch sort {
	case sortFunc:
		it = item{sort: sortFunc, fn: &compFunc{id: ci.id, name: name, imported: true}}
	case sortType:
		it = item{sort: sortType}
	default:
		return item{}, unsupportedGraph("alias of %s#%s with sort 0x%02x", ci.id, name, sort)
	}
	ci.exports[name] = it
	ci.names = append(ci.names, name)
	return it, nil
}

type nestedComponent struct {
	scope *scope // where the component was defined
	body  []byte
}

// item is one entry of an index space.
type item struct {
	core     coreItem
	module   *coreModuleDef
	coreInst *coreInstance
	fn       *compFunc
	inst     *compInstance
	comp     *nestedComponent
	sort     byte
	coreSort byte
}

// scope holds the index spaces of one component. Nested components see
// their instantiation arguments as imports and their definer as parent.
type scope struct {
	parent      *scope
	args        map[string]item
	exports     map[string]item
	exportNames []string

	coreFuncs, coreTables, coreMems, coreGlobals []coreItem

	coreModules []*coreModuleDef
	coreInsts   []*coreInstance
	funcs       []*compFunc
	instances   []*compInstance
	components  []*nestedComponent
}

func (s *scope) nested() bool { return s.parent != nil }

// push appends it to its index space. Types and values are not tracked.
func (s *scope) push(it item) {
	switch it.sort {
	case sortCore:
		switch it.coreSort {
		case coreSortFunc:
			s.coreFuncs = append(s.coreFuncs, it.core)
		case coreSortTable:
			s.coreTables = append(s.coreTables, it.core)
		case coreSortMemory:
			s.coreMems = append(s.coreMems, it.core)
		case coreSortGlobal:
			s.coreGlobals = append(s.coreGlobals, it.core)
		case coreSortModule:
			s.coreModules = append(s.coreModules, it.module)
		case coreSortInstance:
			s.coreInsts = append(s.coreInsts, it.coreInst)
		}
	case sortFunc:
		s.funcs = append(s.funcs, it.fn)
	case sortInstance:
		s.instances = append(s.instances, it.inst)
	case sortComponent:
		s.components = append(s.components, it.comp)
	}
}

func (s *scope) get(sort, coreSort byte, idx uint32) (item, error) {
	it := item{sort: sort, coreSort: coreSort}
	i := int(idx)
	bad := func(n int, what string) error {
		if i >= n {
			return invalidGraph("%s index %d out of range (%d defined)", what, idx, n)
		}
		return nil
	}
	var err error
	switch sort {
	case sortCore:
		switch coreSort {
		case coreSortFunc:
			if err = bad(len(s.coreFuncs), "core func"); err == nil {
				it.core = s.coreFuncs[i]
			}
		case coreSortTable:
			if err = bad(len(s.coreTables), "core table"); err == nil {
				it.core = s.coreTables[i]
			}
		case coreSortMemory:
			if err = bad(len(s.coreMems), "core memory"); err == nil {
				it.core = s.coreMems[i]
			}
		case coreSortGlobal:
			if err = bad(len(s.coreGlobals), "core global"); err == nil {
				it.core = s.coreGlobals[i]
			}
		case coreSortModule:
			if err = bad(len(s.coreModules), "core module"); err == nil {
				it.module = s.coreModules[i]
			}
		case coreSortInstance:
			if err = bad(len(s.coreInsts), "core instance"); err == nil {
				it.coreInst = s.coreInsts[i]
			}
		case coreSortType:
		default:
			err = invalidGraph("unknown core sort 0x%02x", coreSort)
		}
	case sortFunc:
		if err = bad(len(s.funcs), "func"); err == nil {
			it.fn = s.funcs[i]
		}
	case sortInstance:
		if err = bad(len(s.instances), "instance"); err == nil {
			it.inst = s.instances[i]
		}
	case sortComponent:
		if err = bad(len(s.components), "component"); err == nil {
			it.comp = s.components[i]
		}
	case sortType:
	case sortValue:
		err = unsupportedGraph("component values")
	default:
		err = invalidGraph("unknown sort 0x%02x", sort)
	}
	return it, err
}

func (s *scope) canonOpts(opts []canonOpt) (canonOpts, error) {
	var o canonOpts
	for _, opt := range opts {
		switch opt.kind {
		case optUTF8, optCoreType:
		case optUTF16, optLatin1:
			return o, unsupportedGraph("string encodings other than utf8")
		case optAsync, optCallback:
			return o, unsupportedGraph("async lifting and lowering")
		case optMemory:
			it, err := s.get(sortCore, coreSortMemory, opt.idx)
			if err != nil {
				return o, err
			}
			o.memory = &it.core
		case optRealloc, optPostReturn:
			it, err := s.get(sortCore, coreSortFunc, opt.idx)
			if err != nil {
				return o, err
			}
			if opt.kind == optRealloc {
				o.realloc = &it.core
			} else {
				o.post = &it.core
			}
		default:
			return o, unsupportedGraph("canonical option 0x%02x", opt.kind)
		}
	}
	return o, nil
}

// graphBuilder evaluates a component's definitions in order. Every core
// instantiation becomes a graph module, every canon lower a host module,
// and top-level imports and exports become the component's surface.
type graphBuilder struct {
	ctx     context.Context
	rt      wazero.Runtime
	graph   *componentGraph
	imports []*componentImport
	exports []*componentExport
	lowers  int
}

func invalidGraph(format string, args ...any) error {
	return errors.New(errors.PhaseLoad, errors.KindInvalidData).Detail(format, args...).Build()
}

func unsupportedGraph(format string, args ...any) error {
	return errors.New(errors.PhaseLoad, errors.KindUnsupported).Detail(format, args...).Build()
}

func (b *graphBuilder) evaluate(data []byte, sc *scope) error {
	sections, err := readSections(data)
	if err != nil {
		return errors.Load("read component sections", err)
	}
	for _, s := range sections {
		if err := b.section(sc, s); err != nil {
			return err
		}
	}
	return nil
}

func decodeFailed(id byte, err error) error {
	return errors.Load(fmt.Sprintf("decode component section %d", id), err)
}

func (b *graphBuilder) section(sc *scope, s section) error {
	switch s.id {
	case secCustom, secCoreType, secType:
		return nil
	case secCoreModule:
		return b.coreModule(sc, s.body)
	case secCoreInstance:
		defs, err := parseCoreInstances(s.body)
		if err != nil {
			return decodeFailed(s.id, err)
		}
		for _, def := range defs {
			if err := b.coreInstance(sc, def); err != nil {
				return err
			}
		}
	case secComponent:
		if !IsComponent(s.body) {
			return invalidGraph("nested component is not a component binary")
		}
		sc.push(item{sort: sortComponent, comp: &nestedComponent{scope: sc, body: s.body}})
	case secInstance:
		defs, err := parseInstances(s.body)
		if err != nil {
			return decodeFailed(s.id, err)
		}
		for _, def := range defs {
			if err := b.instance(sc, def); err != nil {
				return err
			}
		}
	case secAlias:
		aliases, err := parseAliases(s.body)
		if err != nil {
			return decodeFailed(s.id, err)
		}
		for _, a := range aliases {
			if err := b.alias(sc, a); err != nil {
				return err
			}
		}
	case secCanon:
		canons, err := parseCanons(s.body)
		if err != nil {
			if uc, ok := err.(*unsupportedCanonError); ok {
				return unsupportedGraph("%s (resources and async built-ins)", uc)
			}
			return decodeFailed(s.id, err)
		}
		for _, c := range canons {
			if err := b.canon(sc, c); err != nil {
				return err
			}
		}
	case secStart:
		return unsupportedGraph("component start functions")
	case secImport:
		imports, err := parseImports(s.body)
		if err != nil {
			return decodeFailed(s.id, err)
		}
		for _, imp := range imports {
			if err := b.importItem(sc, imp); err != nil {
				return err
			}
		}
	case secExport:
		exports, err := parseExports(s.body)
		if err != nil {
			return decodeFailed(s.id, err)
		}
		for _, exp := range exports {
			if err := b.exportItem(sc, exp); err != nil {
				return err
			}
		}
	default:
		return invalidGraph("unknown component section %d", s.id)
	}
	return nil
}

func sigOf(def api.FunctionDefinition) coreSignature {
	return coreSignature{Params: def.ParamTypes(), Results: def.ResultTypes()}
}

func (b *graphBuilder) coreModule(sc *scope, wasm []byte) error {
	shape, err := parseCoreModule(wasm)
	if err != nil {
		return errors.Load("decode core module", err)
	}
	compiled, err := b.rt.CompileModule(b.ctx, wasm)
	if err != nil {
		return errors.Load("compile core module", err)
	}
	defer compiled.Close(b.ctx)

	def := &coreModuleDef{
		shape:      shape,
		exportSigs: make(map[string]coreSignature),
		importSigs: make([]*coreSignature, len(shape.imports)),
		wasm:       wasm,
	}
	for name, fd := range compiled.ExportedFunctions() {
		def.exportSigs[name] = sigOf(fd)
	}
	funcs := compiled.ImportedFunctions()
	j := 0
	for i, imp := range shape.imports {
		if imp.kind == coreSortFunc && j < len(funcs) {
			sig := sigOf(funcs[j])
			def.importSigs[i] = &sig
			j++
		}
	}
	sc.push(item{sort: sortCore, coreSort: coreSortModule, module: def})
	return nil
}

func (b *graphBuilder) coreInstance(sc *scope, def coreInstanceDef) error {
	if def.inline {
		ci := &coreInstance{exports: make(map[string]coreItem)}
		for _, a := range def.args {
			switch a.sort {
			case coreSortFunc, coreSortTable, coreSortMemory, coreSortGlobal:
			default:
				return unsupportedGraph("core instance export %q of sort 0x%02x", a.name, a.sort)
			}
			it, err := sc.get(sortCore, a.sort, a.idx)
			if err != nil {
				return err
			}
			ci.exports[a.name] = it.core
		}
		sc.push(item{sort: sortCore, coreSort: coreSortInstance, coreInst: ci})
		return nil
	}

	modItem, err := sc.get(sortCore, coreSortModule, def.module)
	if err != nil {
		return err
	}
	mod := modItem.module
	args := make(map[string]*coreInstance, len(def.args))
	for _, a := range def.args {
		it, err := sc.get(sortCore, coreSortInstance, a.idx)
		if err != nil {
			return err
		}
		args[a.name] = it.coreInst
	}

	name := fmt.Sprintf("$i%d", len(b.graph.modules))
	targets := make([]coreItem, len(mod.shape.imports))
	for i, imp := range mod.shape.imports {
		src, ok := args[imp.module]
		if !ok {
			return invalidGraph("core import %q.%q has no instantiation argument", imp.module, imp.name)
		}
		it, err := src.export(imp.name)
		if err != nil {
			return err
		}
		if it.kind != imp.kind {
			return invalidGraph("core import %q.%q has kind 0x%02x, argument provides 0x%02x", imp.module, imp.name, imp.kind, it.kind)
		}
		if want := mod.importSigs[i]; want != nil {
			switch {
			case it.lower != nil:
				if err := it.lower.bind(*want); err != nil {
					return err
				}
			case it.sig != nil && !it.sig.equal(*want):
				return errors.SignatureMismatch(errors.PhaseLoad, imp.module, imp.name, want.String(), it.sig.String())
			}
		}
		targets[i] = it
	}

	b.graph.modules = append(b.graph.modules, graphModule{
		name: name,
		wasm: rewriteImports(mod.wasm, mod.shape.imports, targets),
	})
	sc.push(item{sort: sortCore, coreSort: coreSortInstance, coreInst: &coreInstance{def: mod, module: name}})
	return nil
}

func (b *graphBuilder) instance(sc *scope, def instanceDef) error {
	if def.inline {
		ci := &compInstance{exports: make(map[string]item)}
		for _, a := range def.args {
			it, err := sc.get(a.item.sort, a.item.core, a.item.idx)
			if err != nil {
				return err
			}
			ci.exports[a.name] = it
			ci.names = append(ci.names, a.name)
		}
		sc.push(item{sort: sortInstance, inst: ci})
		return nil
	}

	compItem, err := sc.get(sortComponent, 0, def.component)
	if err != nil {
		return err
	}
	comp := compItem.comp
	ns := &scope{parent: comp.scope, args: make(map[string]item), exports: make(map[string]item)}
	for _, a := range def.args {
		it, err := sc.get(a.item.sort, a.item.core, a.item.idx)
		if err != nil {
			return err
		}
		ns.args[a.name] = it
	}
	if err := b.evaluate(comp.body, ns); err != nil {
		return err
	}
	sc.push(item{sort: sortInstance, inst: &compInstance{exports: ns.exports, names: ns.exportNames}})
	return nil
}

func (b *graphBuilder) alias(sc *scope, a aliasDef) error {
	var it item
	switch a.target {
	case aliasExport:
		instItem, err := sc.get(sortInstance, 0, a.instance)
		if err != nil {
			return err
		}
		if it, err = instItem.inst.export(a.name, a.sort); err != nil {
			return err
		}
	case aliasCoreExport:
		if a.sort != sortCore {
			return invalidGraph("core export alias %q with sort 0x%02x", a.name, a.sort)
		}
		ciItem, err := sc.get(sortCore, coreSortInstance, a.instance)
		if err != nil {
			return err
		}
		core, err := ciItem.coreInst.export(a.name)
		if err != nil {
			return err
		}
		if core.kind != a.core {
			return invalidGraph("core export %q has kind 0x%02x, alias wants 0x%02x", a.name, core.kind, a.core)
		}
		it = item{sort: sortCore, coreSort: a.core, core: core}
	case aliasOuter:
		target := sc
		for i := uint32(0); i < a.count; i++ {
			if target = target.parent; target == nil {
				return invalidGraph("outer alias count %d exceeds nesting", a.count)
			}
		}
		var err error
		if it, err = target.get(a.sort, a.core, a.idx); err != nil {
			return err
		}
	}
	sc.push(it)
	return nil
}

func (b *graphBuilder) canon(sc *scope, c canonDef) error {
	opts, err := sc.canonOpts(c.opts)
	if err != nil {
		return err
	}
	switch c.kind {
	case canonLower:
		fnItem, err := sc.get(sortFunc, 0, c.fn)
		if err != nil {
			return err
		}
		fn := fnItem.fn
		if !fn.imported {
			return unsupportedGraph("lowering a lifted component function")
		}
		lw := &lowering{
			id:     fn.id,
			opts:   opts,
			module: fmt.Sprintf("$lower%d", b.lowers),
			name:   fn.name,
		}
		b.lowers++
		imp := b.importFor(fn.id)
		imp.funcs = append(imp.funcs, coreFunc{name: fn.name, core: fn.name, module: lw.module, lower: lw})
		sc.push(item{sort: sortCore, coreSort: coreSortFunc, core: coreItem{
			module: lw.module,
			name:   fn.name,
			kind:   coreSortFunc,
			lower:  lw,
		}})
	case canonLift:
		core, err := sc.get(sortCore, coreSortFunc, c.fn)
		if err != nil {
			return err
		}
		if core.core.lower != nil {
			return unsupportedGraph("lifting a lowered host function")
		}
		sc.push(item{sort: sortFunc, fn: &compFunc{core: core.core, opts: opts}})
	}
	return nil
}

func (b *graphBuilder) importItem(sc *scope, imp importDef) error {
	if sc.nested() {
		it, ok := sc.args[imp.name]
		switch {
		case ok:
			sc.push(it)
		case imp.desc.kind == sortType:
			sc.push(item{sort: sortType})
		default:
			return invalidGraph("nested component import %q has no argument", imp.name)
		}
		return nil
	}

	switch imp.desc.kind {
	case sortInstance:
		id, err := ParseInterfaceID(imp.name)
		if err != nil {
			return errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Detail("import %q is not an interface name", imp.name).
				Cause(err).
				Build()
		}
		b.importFor(id)
		sc.push(item{sort: sortInstance, inst: &compInstance{id: id, host: true, exports: make(map[string]item)}})
	case sortFunc:
		b.importFor(RootInterface)
		sc.push(item{sort: sortFunc, fn: &compFunc{id: RootInterface, name: imp.name, imported: true}})
	case sortType:
		sc.push(item{sort: sortType})
	default:
		return unsupportedGraph("import %q of kind 0x%02x", imp.name, imp.desc.kind)
	}
	return nil
}

func (b *graphBuilder) exportItem(sc *scope, exp exportDef) error {
	it, err := sc.get(exp.item.sort, exp.item.core, exp.item.idx)
	if err != nil {
		return err
	}
	sc.push(it)
	if sc.nested() {
		if _, dup := sc.exports[exp.name]; !dup {
			sc.exportNames = append(sc.exportNames, exp.name)
		}
		sc.exports[exp.name] = it
		return nil
	}

	switch it.sort {
	case sortFunc:
		return b.exportFunc(RootInterface, exp.name, it.fn)
	case sortInstance:
		id, err := ParseInterfaceID(exp.name)
		if err != nil {
			return errors.New(errors.PhaseLoad, errors.KindInvalidData).
				Detail("export %q is not an interface name", exp.name).
				Cause(err).
				Build()
		}
		if it.inst.host {
			return unsupportedGraph("re-exporting imported instance %s", it.inst.id)
		}
		b.exportFor(id)
		for _, name := range it.inst.names {
			if e := it.inst.exports[name]; e.sort == sortFunc {
				if err := b.exportFunc(id, name, e.fn); err != nil {
					return err
				}
			}
		}
		return nil
	case sortType:
		return nil
	}
	return unsupportedGraph("export %q of sort 0x%02x", exp.name, it.sort)
}

func (b *graphBuilder) exportFunc(id InterfaceID, name string, fn *compFunc) error {
	if fn.imported {
		return unsupportedGraph("re-exporting imported function %s#%s", fn.id, fn.name)
	}
	if fn.core.sig == nil {
		return invalidGraph("lifted function %s has no core type", name)
	}
	opts := fn.opts
	exp := b.exportFor(id)
	exp.funcs = append(exp.funcs, coreFunc{
		name:   name,
		core:   fn.core.name,
		module: fn.core.module,
		sig:    *fn.core.sig,
		opts:   &opts,
	})
	return nil
}

func (b *graphBuilder) importFor(id InterfaceID) *componentImport {
	for _, imp := range b.imports {
		if imp.id.String() == id.String() {
			return imp
		}
	}
	imp := &componentImport{id: id}
	b.imports = append(b.imports, imp)
	return imp
}

func (b *graphBuilder) exportFor(id InterfaceID) *componentExport {
	for _, exp := range b.exports {
		if exp.id.String() == id.String() {
			return exp
		}
	}
	exp := &componentExport{id: id}
	b.exports = append(b.exports, exp)
	return exp
}
