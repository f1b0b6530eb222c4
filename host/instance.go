package host

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/value"
)

// Instance is a live component instance owned by a store.
type Instance struct {
	store       *storeState
	component   *Component
	compiled    []wazero.CompiledModule
	module      api.Module            // single core module
	modules     []api.Module          // core modules in instantiation order
	byName      map[string]api.Module // graph modules by planned name
	hostModules []api.Module
	memory      api.Memory
	realloc     api.Function
}

// ExportInstance gives access to the functions of one exported interface.
type ExportInstance struct {
	inst *Instance
	exp  *componentExport
}

// TypedFunc is a resolved export whose core signature was checked against
// its declared component signature.
type TypedFunc struct {
	inst    *Instance
	iface   InterfaceID
	name    string
	ty      FuncType
	core    api.Function
	post    api.Function
	mem     api.Memory
	realloc api.Function
}

// Export returns the exported interface id.
func (i *Instance) Export(id InterfaceID) (*ExportInstance, error) {
	exp := i.component.export(id)
	if exp == nil {
		return nil, errors.New(errors.PhaseInstantiate, errors.KindMissingExport).
			Path(id.String()).
			Detail("component does not export interface").
			Build()
	}
	return &ExportInstance{inst: i, exp: exp}, nil
}

// Root returns the world-level exported functions.
func (i *Instance) Root() (*ExportInstance, error) {
	return i.Export(RootInterface)
}

// Typed resolves function name and checks it against ty.
func (e *ExportInstance) Typed(name string, ty FuncType) (*TypedFunc, error) {
	id := e.exp.id.String()
	cf, ok := e.exp.function(name)
	if !ok {
		return nil, errors.New(errors.PhaseInstantiate, errors.KindMissingExport).
			Path(id, name).
			Detail("component does not export function").
			Build()
	}
	want := liftSignature(ty)
	if !want.equal(cf.sig) {
		return nil, errors.SignatureMismatch(errors.PhaseInstantiate, id, name, want.String(), cf.sig.String())
	}

	mod := e.inst.module
	if cf.module != "" {
		mod = e.inst.byName[cf.module]
	}
	if mod == nil {
		return nil, errors.NotFound(errors.PhaseInstantiate, "core module", cf.module)
	}
	fn := mod.ExportedFunction(cf.core)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseInstantiate, "core export", cf.core)
	}
	tf := &TypedFunc{
		inst:    e.inst,
		iface:   e.exp.id,
		name:    name,
		ty:      ty,
		core:    fn,
		mem:     e.inst.memory,
		realloc: e.inst.realloc,
	}
	if cf.opts != nil {
		tf.mem, tf.realloc = e.inst.resolveOpts(*cf.opts)
		if p := cf.opts.post; p != nil {
			if pm := e.inst.byName[p.module]; pm != nil {
				tf.post = pm.ExportedFunction(p.name)
			}
		}
		return tf, nil
	}
	if post := e.inst.component.scheme.PostReturnName(cf.core); mod.ExportedFunctionDefinitions()[post] != nil {
		tf.post = mod.ExportedFunction(post)
	}
	return tf, nil
}

// Functions lists the exported function names.
func (e *ExportInstance) Functions() []string {
	return funcNames(e.exp.funcs)
}

// Type returns the declared signature.
func (f *TypedFunc) Type() FuncType { return f.ty }

// Name returns the component-level function name.
func (f *TypedFunc) Name() string { return f.name }

// invoke runs the call. The store lock is held by the caller.
func (i *Instance) invoke(ctx context.Context, f *TypedFunc, args []value.Value) ([]value.Value, error) {
	path := []string{f.iface.String(), f.name}
	if err := checkValues(errors.PhaseEncode, path, "param", f.ty.Params, args); err != nil {
		return nil, err
	}

	cd := &codec{
		ctx:     ctx,
		mem:     f.mem,
		realloc: f.realloc,
		errs:    &i.store.errs,
		phase:   errors.PhaseEncode,
	}
	flat, err := cd.lowerParams(f.ty.Params, args, path)
	if err != nil {
		return nil, err
	}

	raw, err := f.core.Call(ctx, flat...)
	if err != nil {
		if hostErr := i.store.hostErr; hostErr != nil {
			return nil, errors.New(errors.PhaseCall, errors.KindTrap).
				Path(path...).
				Detail("host function failed").
				Cause(hostErr).
				Build()
		}
		return nil, errors.Trap(path[0], path[1], err)
	}

	cd.phase = errors.PhaseDecode
	results, err := cd.liftValues(f.ty.Results, raw, MaxFlatResults, path)
	if err != nil {
		return nil, err
	}

	if f.post != nil {
		if _, err := f.post.Call(ctx, raw...); err != nil {
			return nil, errors.Trap(path[0], path[1], err)
		}
	}

	if ce := Logger().Check(zap.DebugLevel, "call"); ce != nil {
		ce.Write(zap.String("interface", path[0]), zap.String("function", f.name))
	}
	return results, nil
}

// Close releases the instance's modules. The store stays usable for a new
// instantiation.
func (i *Instance) Close(ctx context.Context) error {
	st := i.store
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.instance == i {
		st.instance = nil
	}
	if st.closed {
		return nil
	}
	return i.closeModules(ctx)
}

func (i *Instance) closeModules(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	// dependents first
	for j := len(i.modules) - 1; j >= 0; j-- {
		keep(i.modules[j].Close(ctx))
	}
	i.modules, i.module, i.byName = nil, nil, nil
	for _, m := range i.hostModules {
		keep(m.Close(ctx))
	}
	i.hostModules = nil
	for _, c := range i.compiled {
		keep(c.Close(ctx))
	}
	i.compiled = nil
	return first
}
