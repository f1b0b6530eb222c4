package witmodel

import (
	"strings"

	"github.com/coreos/go-semver/semver"
)

// PackageName identifies a WIT package: namespace:name@version.
type PackageName struct {
	Namespace string
	Name      string
	Version   *semver.Version
}

func (p PackageName) String() string {
	var b strings.Builder
	b.WriteString(p.Namespace)
	b.WriteByte(':')
	b.WriteString(p.Name)
	if p.Version != nil {
		b.WriteByte('@')
		b.WriteString(p.Version.String())
	}
	return b.String()
}

// Package owns interfaces and worlds in declaration order.
type Package struct {
	Name       PackageName
	Interfaces []*Interface
	Worlds     []*World
}

// Interface is a named set of functions.
type Interface struct {
	Name      string // empty for inline interfaces declared inside a world
	Package   *Package
	Functions []*Function
	TypeDefs  []TypeID
}

// Function returns the function named name, or nil.
func (i *Interface) Function(name string) *Function {
	for _, f := range i.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// QualifiedName renders ns:pkg/name@version, or the bare name when the
// interface has no package.
func (i *Interface) QualifiedName() string {
	if i.Package == nil {
		return i.Name
	}
	var b strings.Builder
	b.WriteString(i.Package.Name.Namespace)
	b.WriteByte(':')
	b.WriteString(i.Package.Name.Name)
	b.WriteByte('/')
	b.WriteString(i.Name)
	if v := i.Package.Name.Version; v != nil {
		b.WriteByte('@')
		b.WriteString(v.String())
	}
	return b.String()
}

// Param is a named function parameter.
type Param struct {
	Name string
	Type Type
}

// Function is a WIT function signature.
type Function struct {
	Name   string
	Params []Param
	Result Type // nil when the function returns nothing
}

// World is a named set of imports and exports.
type World struct {
	Name    string
	Package *Package
	Imports []WorldEntry
	Exports []WorldEntry
}

// QualifiedName renders ns:pkg/world.
func (w *World) QualifiedName() string {
	if w.Package == nil {
		return w.Name
	}
	return w.Package.Name.Namespace + ":" + w.Package.Name.Name + "/" + w.Name
}

// Import returns the import item under key.
func (w *World) Import(key string) (WorldItem, bool) {
	return lookup(w.Imports, key)
}

// Export returns the export item under key.
func (w *World) Export(key string) (WorldItem, bool) {
	return lookup(w.Exports, key)
}

func lookup(entries []WorldEntry, key string) (WorldItem, bool) {
	for _, e := range entries {
		if e.Key == key {
			return e.Item, true
		}
	}
	return nil, false
}

// Model is a resolved WIT document set. It is built once by a loader and
// never mutated afterwards.
type Model struct {
	Packages   []*Package
	Worlds     []*World
	Interfaces []*Interface
	TypeDefs   []*TypeDef
}

// TypeDef returns the definition with the given id, or nil.
func (m *Model) TypeDef(id TypeID) *TypeDef {
	if int(id) < 0 || int(id) >= len(m.TypeDefs) {
		return nil
	}
	return m.TypeDefs[id]
}

// AddTypeDef appends d, assigning its id.
func (m *Model) AddTypeDef(d *TypeDef) TypeID {
	d.ID = TypeID(len(m.TypeDefs))
	m.TypeDefs = append(m.TypeDefs, d)
	return d.ID
}

// Resolve follows aliases until it reaches a non-alias type. It returns the
// last definition seen, which is nil when t is not Named.
func (m *Model) Resolve(t Type) (Type, *TypeDef) {
	var last *TypeDef
	for i := 0; i <= len(m.TypeDefs); i++ {
		n, ok := t.(Named)
		if !ok {
			return t, last
		}
		d := m.TypeDef(n.ID)
		if d == nil {
			return t, last
		}
		last = d
		if d.Kind != KindAlias || d.Target == nil {
			return t, last
		}
		t = d.Target
	}
	return t, last
}

// SourceFile is one WIT source text a model was loaded from.
type SourceFile struct {
	Name string
	Text string
}
