package witload

import (
	"fmt"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/witmodel"
)

// Convert adapts a resolved WIT document into a witmodel.Model. Collection
// order follows res. Functions bound to resources are skipped; resources
// themselves have no Go mapping.
func Convert(res *wit.Resolve) (*witmodel.Model, error) {
	if res == nil {
		return nil, errors.InvalidInput(errors.PhaseParse, "nil resolve")
	}
	c := &converter{
		model:    &witmodel.Model{},
		packages: make(map[*wit.Package]*witmodel.Package, len(res.Packages)),
		ifaces:   make(map[*wit.Interface]*witmodel.Interface, len(res.Interfaces)),
		types:    make(map[*wit.TypeDef]witmodel.TypeID, len(res.TypeDefs)),
	}

	for _, p := range res.Packages {
		wp := &witmodel.Package{Name: witmodel.PackageName{
			Namespace: p.Name.Namespace,
			Name:      p.Name.Package,
			Version:   p.Name.Version,
		}}
		c.packages[p] = wp
		c.model.Packages = append(c.model.Packages, wp)
	}

	// ids first: definitions may refer to definitions declared later
	for _, td := range res.TypeDefs {
		c.types[td] = c.model.AddTypeDef(&witmodel.TypeDef{Name: deref(td.Name)})
	}

	for _, i := range res.Interfaces {
		wi := &witmodel.Interface{Name: deref(i.Name), Package: c.packages[i.Package]}
		if wi.Package != nil && wi.Name != "" {
			wi.Package.Interfaces = append(wi.Package.Interfaces, wi)
		}
		c.ifaces[i] = wi
		c.model.Interfaces = append(c.model.Interfaces, wi)
	}

	for _, td := range res.TypeDefs {
		if err := c.typeDef(td); err != nil {
			return nil, err
		}
	}

	for _, i := range res.Interfaces {
		if err := c.interfaceBody(i); err != nil {
			return nil, err
		}
	}

	for _, w := range res.Worlds {
		if err := c.world(w); err != nil {
			return nil, err
		}
	}
	return c.model, nil
}

type converter struct {
	model    *witmodel.Model
	packages map[*wit.Package]*witmodel.Package
	ifaces   map[*wit.Interface]*witmodel.Interface
	types    map[*wit.TypeDef]witmodel.TypeID
}

func (c *converter) typeDef(td *wit.TypeDef) error {
	def := c.model.TypeDef(c.types[td])
	if owner, ok := td.Owner.(*wit.Interface); ok {
		def.Owner = c.ifaces[owner]
	}

	var err error
	switch k := td.Kind.(type) {
	case *wit.Record:
		def.Kind = witmodel.KindRecord
	case *wit.Resource:
		def.Kind = witmodel.KindResource
	case *wit.Own, *wit.Borrow:
		def.Kind = witmodel.KindHandle
	case *wit.Flags:
		def.Kind = witmodel.KindFlags
	case *wit.Enum:
		def.Kind = witmodel.KindEnum
	case *wit.Variant:
		def.Kind = witmodel.KindVariant
	case *wit.Tuple:
		def.Kind = witmodel.KindTuple
	case *wit.Result:
		def.Kind = witmodel.KindResult
	case *wit.List:
		def.Kind = witmodel.KindList
		def.Target, err = c.typ(k.Type)
	case *wit.Option:
		def.Kind = witmodel.KindOption
		def.Target, err = c.typ(k.Type)
	case wit.Type:
		def.Kind = witmodel.KindAlias
		def.Target, err = c.typ(k)
	default:
		// left unclassified; it fails to map only if a function uses it
		Logger().Debug("unclassified type definition",
			zap.String("name", def.Name),
			zap.String("kind", fmt.Sprintf("%T", k)))
	}
	if err != nil {
		return withPath(err, "type", def.Name)
	}
	return nil
}

func (c *converter) interfaceBody(i *wit.Interface) error {
	wi := c.ifaces[i]
	for _, td := range i.TypeDefs.All() {
		wi.TypeDefs = append(wi.TypeDefs, c.types[td])
	}
	for name, f := range i.Functions.All() {
		if _, ok := f.Kind.(*wit.Freestanding); !ok {
			Logger().Debug("skipping resource function",
				zap.String("interface", wi.QualifiedName()),
				zap.String("function", name))
			continue
		}
		fn, err := c.function(f)
		if err != nil {
			return withPath(err, wi.QualifiedName())
		}
		wi.Functions = append(wi.Functions, fn)
	}
	return nil
}

func (c *converter) function(f *wit.Function) (*witmodel.Function, error) {
	fn := &witmodel.Function{Name: f.Name}
	for _, p := range f.Params {
		t, err := c.typ(p.Type)
		if err != nil {
			return nil, withPath(err, f.Name, p.Name)
		}
		fn.Params = append(fn.Params, witmodel.Param{Name: p.Name, Type: t})
	}
	switch len(f.Results) {
	case 0:
	case 1:
		t, err := c.typ(f.Results[0].Type)
		if err != nil {
			return nil, withPath(err, f.Name, "result")
		}
		fn.Result = t
	default:
		return nil, errors.New(errors.PhaseMap, errors.KindUnsupported).
			Path(f.Name).
			Detail("%d results; at most one is supported", len(f.Results)).
			Build()
	}
	return fn, nil
}

func (c *converter) world(w *wit.World) error {
	ww := &witmodel.World{Name: w.Name, Package: c.packages[w.Package]}
	var err error
	if ww.Imports, err = c.entries(w.Imports.All()); err != nil {
		return withPath(err, w.Name, "import")
	}
	if ww.Exports, err = c.entries(w.Exports.All()); err != nil {
		return withPath(err, w.Name, "export")
	}
	if ww.Package != nil {
		ww.Package.Worlds = append(ww.Package.Worlds, ww)
	}
	c.model.Worlds = append(c.model.Worlds, ww)
	return nil
}

func (c *converter) entries(items func(yield func(string, wit.WorldItem) bool)) ([]witmodel.WorldEntry, error) {
	var out []witmodel.WorldEntry
	for key, item := range items {
		var wi witmodel.WorldItem
		switch it := item.(type) {
		case *wit.InterfaceRef:
			iface := c.ifaces[it.Interface]
			if iface == nil {
				return nil, errors.NotFound(errors.PhaseParse, "interface", key)
			}
			// named interfaces are keyed by their qualified name; inline
			// ones keep the name the world gives them
			if iface.Name != "" && iface.Package != nil {
				key = iface.QualifiedName()
			}
			wi = &witmodel.InterfaceItem{Interface: iface}
		case *wit.Function:
			fn, err := c.function(it)
			if err != nil {
				return nil, withPath(err, key)
			}
			wi = &witmodel.FunctionItem{Function: fn}
		case *wit.TypeDef:
			wi = &witmodel.TypeItem{Type: c.types[it]}
		default:
			return nil, errors.New(errors.PhaseParse, errors.KindUnsupported).
				Path(key).
				Detail("world item %T", item).
				Build()
		}
		out = append(out, witmodel.WorldEntry{Key: key, Item: wi})
	}
	return out, nil
}

func (c *converter) typ(t wit.Type) (witmodel.Type, error) {
	switch t := t.(type) {
	case wit.Bool:
		return witmodel.Bool, nil
	case wit.U8:
		return witmodel.U8, nil
	case wit.U16:
		return witmodel.U16, nil
	case wit.U32:
		return witmodel.U32, nil
	case wit.U64:
		return witmodel.U64, nil
	case wit.S8:
		return witmodel.S8, nil
	case wit.S16:
		return witmodel.S16, nil
	case wit.S32:
		return witmodel.S32, nil
	case wit.S64:
		return witmodel.S64, nil
	case wit.F32:
		return witmodel.F32, nil
	case wit.F64:
		return witmodel.F64, nil
	case wit.Char:
		return witmodel.Char, nil
	case wit.String:
		return witmodel.String, nil
	case *wit.TypeDef:
		id, ok := c.types[t]
		if !ok {
			return nil, errors.NotFound(errors.PhaseParse, "type definition", deref(t.Name))
		}
		return witmodel.Named{ID: id, Name: deref(t.Name)}, nil
	case nil:
		return nil, errors.InvalidInput(errors.PhaseParse, "missing type")
	}
	return nil, errors.New(errors.PhaseParse, errors.KindUnsupported).
		Detail("WIT type %T", t).
		Build()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func withPath(err error, prefix ...string) error {
	if e, ok := err.(*errors.Error); ok {
		return e.WithPath(prefix...)
	}
	return err
}
