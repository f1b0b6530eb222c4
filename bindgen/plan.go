package bindgen

import (
	"go/token"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/typemap"
	"github.com/wippyai/witbind/witmodel"
)

// Direction tells whether the host or the guest implements an interface.
type Direction uint8

const (
	// Import interfaces are implemented by the host and called by the guest.
	Import Direction = iota
	// Export interfaces are implemented by the guest and called by the host.
	Export
)

func (d Direction) String() string {
	if d == Export {
		return "export"
	}
	return "import"
}

// rootID is the identity of world-level functions.
const rootID = "$root"

// Options configure generation.
type Options struct {
	// Package is the Go package name of the generated file. It defaults to
	// the world name with separators removed.
	Package string

	// Sources is the WIT text embedded in the generated file.
	Sources []witmodel.SourceFile
}

// Plan is everything the emitter needs to render one world. It is built
// once and not modified afterwards.
type Plan struct {
	Package string
	World   string // qualified world name
	Imports []*InterfacePlan
	Exports []*InterfacePlan
	Types   []TypePlan
	Sources []witmodel.SourceFile
}

// InterfacePlan is one interface occurrence in a world direction.
type InterfacePlan struct {
	Direction Direction
	Key       string // world key
	ID        string // interface identity, "$root" for world-level functions
	Contract  string // Go interface name
	Field     string // field name in Imports or Exports
	Functions []*FunctionPlan
}

// Root reports whether the occurrence groups world-level functions.
func (p *InterfacePlan) Root() bool { return p.ID == rootID }

// IDVar is the package-level variable holding the interface identity.
func (p *InterfacePlan) IDVar() string { return p.Contract + "ID" }

// Register is the function installing an import occurrence on a linker.
func (p *InterfacePlan) Register() string { return "register" + p.Contract }

// Impl is the private type implementing an export occurrence.
func (p *InterfacePlan) Impl() string { return lowerFirst(p.Contract) + "Exports" }

// Constructor builds the private export type.
func (p *InterfacePlan) Constructor() string { return "new" + p.Contract + "Exports" }

// FunctionPlan is one function of an interface occurrence.
type FunctionPlan struct {
	WIT    string // WIT function name
	Method string // Go method name
	Params []ParamPlan
	Result *typemap.Mapping // nil when the function returns nothing
}

// Handle is the field of the private export type holding the typed call
// handle.
func (f *FunctionPlan) Handle() string { return "fn" + f.Method }

// ParamPlan is one function parameter.
type ParamPlan struct {
	WIT     string
	Name    string
	Mapping typemap.Mapping
}

// TypePlan records a type a world brings into scope. Types are not emitted
// on their own; they surface through functions.
type TypePlan struct {
	Direction Direction
	Key       string
	Type      witmodel.TypeID
}

// Empty reports whether the world has neither imports nor exports.
func (p *Plan) Empty() bool { return len(p.Imports) == 0 && len(p.Exports) == 0 }

// HasImportFuncs reports whether any imported function exists.
func (p *Plan) HasImportFuncs() bool {
	for _, ip := range p.Imports {
		if len(ip.Functions) > 0 {
			return true
		}
	}
	return false
}

// NeedsMarshal reports whether any function has a parameter or a result.
func (p *Plan) NeedsMarshal() bool {
	for _, ip := range p.all() {
		for _, fn := range ip.Functions {
			if len(fn.Params) > 0 || fn.Result != nil {
				return true
			}
		}
	}
	return false
}

// NeedsValue reports whether generated code names the value package.
func (p *Plan) NeedsValue() bool {
	return p.HasImportFuncs() || p.NeedsMarshal()
}

func (p *Plan) all() []*InterfacePlan {
	out := make([]*InterfacePlan, 0, len(p.Imports)+len(p.Exports))
	out = append(out, p.Imports...)
	return append(out, p.Exports...)
}

// BuildPlan walks world's imports then exports and validates every name,
// identity and type. It fails on the first error.
func BuildPlan(model *witmodel.Model, world *witmodel.World, opts Options) (*Plan, error) {
	if model == nil || world == nil {
		return nil, errors.InvalidInput(errors.PhasePlan, "nil model or world")
	}

	pkg := opts.Package
	if pkg == "" {
		pkg = packageName(world.Name)
	}
	if !token.IsIdentifier(pkg) || pkg == "_" {
		return nil, errors.New(errors.PhasePlan, errors.KindInvalidInput).
			Detail("%q is not a valid Go package name", pkg).
			Build()
	}

	b := &planner{
		mapper: typemap.New(model),
		world:  world,
		plan: &Plan{
			Package: pkg,
			World:   world.QualifiedName(),
			Sources: opts.Sources,
		},
	}

	b.dir = Import
	if err := witmodel.Walk(world.Imports, b); err != nil {
		return nil, err
	}
	b.dir = Export
	b.root = nil
	if err := witmodel.Walk(world.Exports, b); err != nil {
		return nil, err
	}

	if err := b.checkConflicts(); err != nil {
		return nil, err
	}
	if err := assignNames(b.plan); err != nil {
		return nil, err
	}

	Logger().Debug("built plan",
		zap.String("world", b.plan.World),
		zap.Int("imports", len(b.plan.Imports)),
		zap.Int("exports", len(b.plan.Exports)),
		zap.Int("mapped_types", b.mapper.Len()))
	return b.plan, nil
}

// planner is the ItemVisitor building a Plan for one direction at a time.
type planner struct {
	mapper *typemap.Mapper
	world  *witmodel.World
	plan   *Plan
	dir    Direction
	root   *InterfacePlan
}

func (b *planner) occurrences() *[]*InterfacePlan {
	if b.dir == Export {
		return &b.plan.Exports
	}
	return &b.plan.Imports
}

func (b *planner) VisitInterface(key string, item *witmodel.InterfaceItem) error {
	iface := item.Interface
	if iface == nil {
		return errors.New(errors.PhasePlan, errors.KindInvalidData).
			Path(b.dir.String(), key).
			Detail("interface item has no interface").
			Build()
	}

	id := iface.QualifiedName()
	name := iface.Name
	if name == "" {
		// inline interfaces are named by their world key
		id, name = key, key
	}

	list := b.occurrences()
	for _, other := range *list {
		if other.ID == id {
			return errors.New(errors.PhasePlan, errors.KindDuplicate).
				Path(b.dir.String(), id).
				Detail("interface occurs twice in the world's %ss", b.dir).
				Build()
		}
	}

	ip := &InterfacePlan{
		Direction: b.dir,
		Key:       key,
		ID:        id,
		Contract:  pascal(name),
	}
	if ip.Contract == "" {
		return errors.New(errors.PhasePlan, errors.KindInvalidInput).
			Path(b.dir.String(), id).
			Detail("interface name has no Go rendering").
			Build()
	}
	for _, fn := range iface.Functions {
		if err := b.addFunction(ip, fn); err != nil {
			return err
		}
	}
	*list = append(*list, ip)
	return nil
}

func (b *planner) VisitFunction(key string, item *witmodel.FunctionItem) error {
	if item.Function == nil {
		return errors.New(errors.PhasePlan, errors.KindInvalidData).
			Path(b.dir.String(), key).
			Detail("function item has no function").
			Build()
	}
	if b.root == nil {
		b.root = &InterfacePlan{
			Direction: b.dir,
			Key:       rootID,
			ID:        rootID,
			Contract:  pascal(b.world.Name) + "Funcs",
		}
		list := b.occurrences()
		*list = append(*list, b.root)
	}
	return b.addFunction(b.root, item.Function)
}

func (b *planner) VisitType(key string, item *witmodel.TypeItem) error {
	b.plan.Types = append(b.plan.Types, TypePlan{Direction: b.dir, Key: key, Type: item.Type})
	return nil
}

func (b *planner) addFunction(ip *InterfacePlan, fn *witmodel.Function) error {
	path := []string{ip.ID, fn.Name}
	method := pascal(fn.Name)
	if method == "" {
		return errors.New(errors.PhasePlan, errors.KindInvalidInput).
			Path(path...).
			Detail("function name has no Go rendering").
			Build()
	}
	for _, other := range ip.Functions {
		if other.WIT == fn.Name {
			return errors.Duplicate(errors.PhasePlan, "function", ip.ID+"#"+fn.Name)
		}
		if other.Method == method {
			return errors.New(errors.PhasePlan, errors.KindConflict).
				Path(path...).
				Detail("functions %q and %q both render as method %s", other.WIT, fn.Name, method).
				Build()
		}
	}

	fp := &FunctionPlan{WIT: fn.Name, Method: method}
	seen := make(map[string]string, len(fn.Params))
	for _, p := range fn.Params {
		m, err := b.mapper.Map(p.Type)
		if err != nil {
			return withPath(err, ip.ID, fn.Name, p.Name)
		}
		name := paramName(p.Name)
		if prev, ok := seen[name]; ok {
			return errors.New(errors.PhasePlan, errors.KindDuplicate).
				Path(path...).
				Detail("parameters %q and %q both render as %s", prev, p.Name, name).
				Build()
		}
		seen[name] = p.Name
		fp.Params = append(fp.Params, ParamPlan{WIT: p.Name, Name: name, Mapping: m})
	}
	if fn.Result != nil {
		m, err := b.mapper.Map(fn.Result)
		if err != nil {
			return withPath(err, ip.ID, fn.Name, "result")
		}
		fp.Result = &m
	}
	ip.Functions = append(ip.Functions, fp)
	return nil
}

// checkConflicts rejects interfaces that are both imported and exported.
// World-level functions may appear in both directions.
func (b *planner) checkConflicts() error {
	for _, imp := range b.plan.Imports {
		if imp.Root() {
			continue
		}
		for _, exp := range b.plan.Exports {
			if exp.ID == imp.ID {
				return errors.New(errors.PhasePlan, errors.KindConflict).
					Path(imp.ID).
					Detail("interface is both imported and exported").
					Build()
			}
		}
	}
	return nil
}

// assignNames makes contract names unique across the file. Colliding
// names are prefixed with their package name, then their namespace; root
// occurrences present in both directions get a direction qualifier.
func assignNames(p *Plan) error {
	all := p.all()

	for _, ip := range all {
		if reservedNames[ip.Contract] {
			ip.Contract += "Interface"
		}
	}

	if bothRoots(p) {
		for _, ip := range all {
			if ip.Root() {
				ip.Contract = pascal(ip.Direction.String()) + ip.Contract
			}
		}
	}

	qualify := func(level int) {
		counts := make(map[string]int, len(all))
		for _, ip := range all {
			counts[ip.Contract]++
		}
		for _, ip := range all {
			if counts[ip.Contract] < 2 || ip.Root() {
				continue
			}
			pkg, ns := packageParts(ip.ID)
			switch level {
			case 0:
				ip.Contract = pascal(pkg) + ip.Contract
			case 1:
				ip.Contract = pascal(ns) + ip.Contract
			}
		}
	}
	qualify(0)
	qualify(1)

	names := make(map[string]*InterfacePlan, len(all)*5)
	for name := range reservedNames {
		names[name] = nil
	}
	fields := map[Direction]map[string]bool{Import: {}, Export: {}}
	for _, ip := range all {
		ip.Field = ip.Contract
		if ip.Root() {
			ip.Field = "Funcs"
		}
		if fields[ip.Direction][ip.Field] {
			return errors.New(errors.PhasePlan, errors.KindConflict).
				Path(ip.Direction.String(), ip.ID).
				Detail("field %s is used twice", ip.Field).
				Build()
		}
		fields[ip.Direction][ip.Field] = true
		for _, name := range []string{ip.Contract, ip.IDVar(), ip.Register(), ip.Impl(), ip.Constructor()} {
			if other, ok := names[name]; ok {
				what := "a generated declaration"
				if other != nil {
					what = strconv.Quote(other.ID)
				}
				return errors.New(errors.PhasePlan, errors.KindConflict).
					Path(ip.Direction.String(), ip.ID).
					Detail("Go name %s collides with %s", name, what).
					Build()
			}
			names[name] = ip
		}
	}
	return nil
}

func bothRoots(p *Plan) bool {
	var imp, exp bool
	for _, ip := range p.Imports {
		imp = imp || ip.Root()
	}
	for _, ip := range p.Exports {
		exp = exp || ip.Root()
	}
	return imp && exp
}

// packageParts extracts the package name and namespace of an identity
// rendered as ns:pkg/name@version.
func packageParts(id string) (pkg, ns string) {
	colon, slash := -1, -1
	for i := 0; i < len(id); i++ {
		switch id[i] {
		case ':':
			if colon < 0 {
				colon = i
			}
		case '/':
			slash = i
		}
	}
	if colon < 0 || slash < colon {
		return "", ""
	}
	return id[colon+1 : slash], id[:colon]
}

func withPath(err error, prefix ...string) error {
	if e, ok := err.(*errors.Error); ok {
		return e.WithPath(prefix...)
	}
	return err
}
