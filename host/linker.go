package host

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/value"
)

// Linker collects host implementations of component imports, grouped by
// interface. A Linker is not safe for concurrent mutation.
type Linker struct {
	instances []*LinkerInstance
}

// NewLinker returns an empty linker.
func NewLinker() *Linker {
	return &Linker{}
}

// LinkerInstance holds the host functions of one interface.
type LinkerInstance struct {
	id    InterfaceID
	names []string
	funcs map[string]*Func
}

// DefineInstance starts the definition of interface id. Defining the same
// interface twice is an error.
func (l *Linker) DefineInstance(id InterfaceID) (*LinkerInstance, error) {
	if existing, ok := l.Instance(id); ok {
		return nil, errors.Duplicate(errors.PhaseLink, "interface", existing.id.String())
	}
	li := &LinkerInstance{id: id, funcs: make(map[string]*Func)}
	l.instances = append(l.instances, li)
	return li, nil
}

// Instance returns the definition of interface id, matching versions by
// compatibility.
func (l *Linker) Instance(id InterfaceID) (*LinkerInstance, bool) {
	for _, li := range l.instances {
		if li.id.Matches(id) {
			return li, true
		}
	}
	return nil, false
}

// ID returns the interface this instance defines.
func (li *LinkerInstance) ID() InterfaceID { return li.id }

// DefineFunc adds a host function.
func (li *LinkerInstance) DefineFunc(name string, fn *Func) error {
	if fn == nil || fn.fn == nil {
		return errors.InvalidInput(errors.PhaseLink, "nil host function "+li.id.String()+"#"+name)
	}
	if _, ok := li.funcs[name]; ok {
		return errors.Duplicate(errors.PhaseLink, "function", li.id.String()+"#"+name)
	}
	li.funcs[name] = fn
	li.names = append(li.names, name)
	return nil
}

// Func returns the host function named name.
func (li *LinkerInstance) Func(name string) (*Func, bool) {
	f, ok := li.funcs[name]
	return f, ok
}

// Funcs returns the defined function names in definition order.
func (li *LinkerInstance) Funcs() []string {
	return append([]string(nil), li.names...)
}

type resolvedImport struct {
	imp   *componentImport
	funcs []*Func
}

// Instantiate links c against the defined imports and instantiates it in
// store. Every component import must be provided with a matching core
// signature; otherwise nothing is instantiated. A store holds at most one
// live instance.
func (l *Linker) Instantiate(ctx context.Context, store Context, c *Component) (*Instance, error) {
	if store == nil || c == nil {
		return nil, errors.InvalidInput(errors.PhaseInstantiate, "nil store or component")
	}
	st := store.state()
	if active(ctx, st) {
		return nil, errors.New(errors.PhaseInstantiate, errors.KindReentrant).
			Detail("store is already executing a call on this context").
			Build()
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return nil, errors.New(errors.PhaseInstantiate, errors.KindClosed).Detail("store is closed").Build()
	}
	if st.instance != nil {
		return nil, errors.New(errors.PhaseInstantiate, errors.KindConflict).
			Detail("store already holds an instance").
			Build()
	}

	resolved, err := l.resolve(c)
	if err != nil {
		return nil, err
	}

	inst := &Instance{store: st, component: c}
	ok := false
	defer func() {
		if !ok {
			inst.closeModules(ctx)
		}
	}()

	if err := inst.defineHostModules(ctx, resolved); err != nil {
		return nil, err
	}

	callCtx := enter(ctx, st)
	if c.graph != nil {
		if err := inst.instantiateGraph(callCtx, c.graph); err != nil {
			return nil, err
		}
	} else if err := inst.instantiateCore(callCtx); err != nil {
		return nil, err
	}

	st.instance = inst
	ok = true

	Logger().Debug("instantiated component",
		zap.Stringer("scheme", c.scheme),
		zap.Int("core_modules", len(inst.modules)),
		zap.Int("host_modules", len(inst.hostModules)))
	return inst, nil
}

// defineHostModules instantiates one host module per core import module.
// Graph lowerings each get their own module.
func (i *Instance) defineHostModules(ctx context.Context, resolved []resolvedImport) error {
	st := i.store
	builders := make(map[string]wazero.HostModuleBuilder)
	var order []string
	for _, r := range resolved {
		for j, cf := range r.imp.funcs {
			module := r.imp.module
			if cf.lower != nil {
				module = cf.lower.module
			}
			builder, ok := builders[module]
			if !ok {
				builder = st.runtime.NewHostModuleBuilder(module)
				builders[module] = builder
				order = append(order, module)
			}
			f := r.funcs[j]
			sig := lowerSignature(f.ty)
			builder.NewFunctionBuilder().
				WithGoModuleFunction(trampoline(st, r.imp.id, cf.name, f, i.memorySource(cf)), sig.Params, sig.Results).
				WithName(cf.name).
				Export(cf.core)
		}
	}
	for _, module := range order {
		hostMod, err := builders[module].Instantiate(ctx)
		if err != nil {
			return errors.Instantiation("host module "+module, err)
		}
		i.hostModules = append(i.hostModules, hostMod)
	}
	return nil
}

// instantiateCore runs the single core module under the naming scheme.
func (i *Instance) instantiateCore(ctx context.Context) error {
	st, c := i.store, i.component
	compiled, err := st.runtime.CompileModule(ctx, c.core)
	if err != nil {
		return errors.Load("compile core module", err)
	}
	i.compiled = append(i.compiled, compiled)

	st.hostErr = nil
	mod, err := st.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("").WithStartFunctions())
	if err != nil {
		return errors.Instantiation("instantiate core module", err)
	}
	i.module = mod
	i.modules = append(i.modules, mod)

	if name := c.scheme.InitializeExport(); c.hasHelper(name) {
		if _, err := mod.ExportedFunction(name).Call(ctx); err != nil {
			if st.hostErr != nil {
				err = st.hostErr
			}
			return errors.Instantiation("run "+name, err)
		}
	}

	if c.hasHelper(c.scheme.ReallocExport()) {
		i.realloc = mod.ExportedFunction(c.scheme.ReallocExport())
	}
	i.memory = mod.ExportedMemory(c.scheme.MemoryExport())
	if i.memory == nil {
		i.memory = mod.Memory()
	}
	return nil
}

// instantiateGraph instantiates the graph's core modules in definition
// order under their planned names, running their start functions.
func (i *Instance) instantiateGraph(ctx context.Context, g *componentGraph) error {
	st := i.store
	i.byName = make(map[string]api.Module, len(g.modules))
	for _, gm := range g.modules {
		compiled, err := st.runtime.CompileModule(ctx, gm.wasm)
		if err != nil {
			return errors.Load("compile core module "+gm.name, err)
		}
		i.compiled = append(i.compiled, compiled)

		st.hostErr = nil
		mod, err := st.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(gm.name).WithStartFunctions())
		if err != nil {
			if st.hostErr != nil {
				err = st.hostErr
			}
			return errors.Instantiation("instantiate core module "+gm.name, err)
		}
		i.modules = append(i.modules, mod)
		i.byName[gm.name] = mod
	}
	return nil
}

// memorySource returns where a host function finds the guest memory and
// allocator: the calling module's helpers under the naming scheme, or the
// canonical options of a graph lowering.
func (i *Instance) memorySource(cf coreFunc) memorySource {
	if cf.lower == nil {
		scheme := i.component.scheme
		return func(caller api.Module) (api.Memory, api.Function) {
			mem := caller.ExportedMemory(scheme.MemoryExport())
			if mem == nil {
				mem = caller.Memory()
			}
			return mem, caller.ExportedFunction(scheme.ReallocExport())
		}
	}
	opts := cf.lower.opts
	return func(api.Module) (api.Memory, api.Function) {
		return i.resolveOpts(opts)
	}
}

// resolveOpts looks up the memory and allocator named by canonical
// options among the instantiated graph modules.
func (i *Instance) resolveOpts(o canonOpts) (mem api.Memory, realloc api.Function) {
	if o.memory != nil {
		if m := i.byName[o.memory.module]; m != nil {
			mem = m.ExportedMemory(o.memory.name)
		}
	}
	if o.realloc != nil {
		if m := i.byName[o.realloc.module]; m != nil {
			realloc = m.ExportedFunction(o.realloc.name)
		}
	}
	return mem, realloc
}

// resolve matches every component import to a host function and checks
// core signatures. Missing functions are reported together.
func (l *Linker) resolve(c *Component) ([]resolvedImport, error) {
	var missing []string
	resolved := make([]resolvedImport, 0, len(c.imports))

	for _, imp := range c.imports {
		li, ok := l.Instance(imp.id)
		if !ok {
			for _, cf := range imp.funcs {
				missing = append(missing, imp.id.String()+"#"+cf.name)
			}
			continue
		}
		r := resolvedImport{imp: imp, funcs: make([]*Func, len(imp.funcs))}
		for i, cf := range imp.funcs {
			f, ok := li.funcs[cf.name]
			if !ok {
				missing = append(missing, imp.id.String()+"#"+cf.name)
				continue
			}
			want := lowerSignature(f.ty)
			got, known := cf.sig, true
			if cf.lower != nil {
				got, known = cf.lower.sig, cf.lower.known
			}
			if known && !want.equal(got) {
				return nil, errors.SignatureMismatch(errors.PhaseLink, imp.id.String(), cf.name, want.String(), got.String())
			}
			r.funcs[i] = f
		}
		resolved = append(resolved, r)
	}

	if len(missing) > 0 {
		return nil, errors.NewMissingImportsError(missing)
	}
	return resolved, nil
}

// memorySource finds the memory and allocator for a host call made by
// caller.
type memorySource func(caller api.Module) (api.Memory, api.Function)

// trampoline adapts a host function to a core import: it lifts the
// guest's arguments, runs the function and lowers its results. Failures
// are recorded on the store and abort the guest.
func trampoline(st *storeState, id InterfaceID, name string, f *Func, src memorySource) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		if err := callHost(ctx, st, id, name, f, src, mod, stack); err != nil {
			st.recordHostError(err)
			panic(err)
		}
	}
}

func callHost(ctx context.Context, st *storeState, id InterfaceID, name string, f *Func, src memorySource, mod api.Module, stack []uint64) error {
	path := []string{id.String(), name}
	mem, realloc := src(mod)
	cd := &codec{
		ctx:     ctx,
		mem:     mem,
		realloc: realloc,
		errs:    &st.errs,
		phase:   errors.PhaseDecode,
	}

	flatParams := len(flattenAll(f.ty.Params))
	params, err := cd.liftValues(f.ty.Params, stack, MaxFlatParams, path)
	if err != nil {
		return err
	}

	results := make([]value.Value, len(f.ty.Results))
	if err := f.fn(ctx, params, results); err != nil {
		return err
	}
	if err := checkValues(errors.PhaseEncode, path, "result", f.ty.Results, results); err != nil {
		return err
	}

	cd.phase = errors.PhaseEncode
	if len(flattenAll(f.ty.Results)) <= MaxFlatResults {
		flat, err := cd.lowerParams(f.ty.Results, results, path)
		if err != nil {
			return err
		}
		copy(stack, flat)
		return nil
	}

	retIdx := flatParams
	if flatParams > MaxFlatParams {
		retIdx = 1
	}
	if retIdx >= len(stack) {
		return errors.InvalidData(errors.PhaseEncode, path, "missing return pointer")
	}
	return cd.storeValues(f.ty.Results, results, uint32(stack[retIdx]), path)
}
