// Package wasmbuild assembles component binaries around core modules. It
// writes the sections a component toolchain emits for a world: imports,
// embedded core modules, core instances wired by aliases and canonical
// lift and lower, nested components and exports. Core modules themselves
// are written in the text format and compiled with internal/wat.
package wasmbuild

import (
	"bytes"
)

const (
	sectionCoreModule   = 0x01
	sectionCoreInstance = 0x02
	sectionComponent    = 0x04
	sectionInstance     = 0x05
	sectionAlias        = 0x06
	sectionType         = 0x07
	sectionCanon        = 0x08
	sectionImport       = 0x0a
	sectionExport       = 0x0b
)

var componentPreamble = []byte{0x00, 0x61, 0x73, 0x6d, 0x0d, 0x00, 0x01, 0x00}

// Sort selects an index space. Core sorts carry the 0x00 prefix.
type Sort []byte

var (
	CoreFunc     = Sort{0x00, 0x00}
	CoreTable    = Sort{0x00, 0x01}
	CoreMemory   = Sort{0x00, 0x02}
	CoreGlobal   = Sort{0x00, 0x03}
	CoreModule   = Sort{0x00, 0x11}
	CoreInstance = Sort{0x00, 0x12}
	Func         = Sort{0x01}
	Value        = Sort{0x02}
	Type         = Sort{0x03}
	Component    = Sort{0x04}
	Instance     = Sort{0x05}
)

// Primitive component value types.
const (
	Bool   byte = 0x7f
	S32    byte = 0x7a
	U32    byte = 0x79
	S64    byte = 0x78
	U64    byte = 0x77
	String byte = 0x73
)

// Extern is an encoded extern descriptor.
type Extern []byte

// ExternFunc describes a function of component type idx.
func ExternFunc(typeIdx uint32) Extern { return append(Extern{0x01}, u32(typeIdx)...) }

// ExternInstance describes an instance of component type idx.
func ExternInstance(typeIdx uint32) Extern { return append(Extern{0x05}, u32(typeIdx)...) }

// ExternComponent describes a component of component type idx.
func ExternComponent(typeIdx uint32) Extern { return append(Extern{0x04}, u32(typeIdx)...) }

// ExternType describes a type import equal to type idx.
func ExternType(typeIdx uint32) Extern { return append(Extern{0x03, 0x00}, u32(typeIdx)...) }

// Param is a named function parameter of a primitive type.
type Param struct {
	Name string
	Type byte
}

// FuncType encodes a component function type with at most one result.
func FuncType(params []Param, result ...byte) []byte {
	var w bytes.Buffer
	w.WriteByte(0x40)
	writeU32(&w, uint32(len(params)))
	for _, p := range params {
		writeName(&w, p.Name)
		w.WriteByte(p.Type)
	}
	if len(result) == 0 {
		w.Write([]byte{0x01, 0x00})
	} else {
		w.WriteByte(0x00)
		w.WriteByte(result[0])
	}
	return w.Bytes()
}

// InstanceType encodes an instance type from TypeDecl and ExportDecl items.
func InstanceType(decls ...[]byte) []byte {
	var w bytes.Buffer
	w.WriteByte(0x42)
	writeU32(&w, uint32(len(decls)))
	for _, d := range decls {
		w.Write(d)
	}
	return w.Bytes()
}

// ComponentType encodes a component type from ImportDecl, TypeDecl and
// ExportDecl items.
func ComponentType(decls ...[]byte) []byte {
	b := InstanceType(decls...)
	b[0] = 0x41
	return b
}

// TypeDecl declares a type inside an instance or component type.
func TypeDecl(def []byte) []byte { return append([]byte{0x01}, def...) }

// ExportDecl declares an export inside an instance or component type.
func ExportDecl(name string, desc Extern) []byte {
	var w bytes.Buffer
	w.WriteByte(0x04)
	w.WriteByte(0x00)
	writeName(&w, name)
	w.Write(desc)
	return w.Bytes()
}

// ImportDecl declares an import inside a component type.
func ImportDecl(name string, desc Extern) []byte {
	d := ExportDecl(name, desc)
	d[0] = 0x03
	return d
}

// Opt is an encoded canonical option.
type Opt []byte

var (
	UTF8  = Opt{0x00}
	UTF16 = Opt{0x01}
	Async = Opt{0x06}
)

// Memory selects core memory idx for a lift or lower.
func Memory(idx uint32) Opt { return append(Opt{0x03}, u32(idx)...) }

// Realloc selects core function idx as the allocator.
func Realloc(idx uint32) Opt { return append(Opt{0x04}, u32(idx)...) }

// PostReturn selects core function idx as the post-return.
func PostReturn(idx uint32) Opt { return append(Opt{0x05}, u32(idx)...) }

// Arg binds name to an item when instantiating.
type Arg struct {
	Name  string
	Sort  Sort
	Index uint32
}

// Builder accumulates component sections in order.
type Builder struct {
	w bytes.Buffer
}

// New starts a component.
func New() *Builder {
	b := &Builder{}
	b.w.Write(componentPreamble)
	return b
}

// Bytes returns the encoded component.
func (b *Builder) Bytes() []byte {
	return append([]byte(nil), b.w.Bytes()...)
}

// Raw appends a section with the given id and body.
func (b *Builder) Raw(id byte, body []byte) *Builder {
	writeSection(&b.w, id, body)
	return b
}

func (b *Builder) one(id byte, item []byte) *Builder {
	var w bytes.Buffer
	writeU32(&w, 1)
	w.Write(item)
	return b.Raw(id, w.Bytes())
}

// CoreModule embeds a core module.
func (b *Builder) CoreModule(wasm []byte) *Builder {
	return b.Raw(sectionCoreModule, wasm)
}

// Component embeds a nested component.
func (b *Builder) Component(nested []byte) *Builder {
	return b.Raw(sectionComponent, nested)
}

// Types appends type definitions.
func (b *Builder) Types(defs ...[]byte) *Builder {
	var w bytes.Buffer
	writeU32(&w, uint32(len(defs)))
	for _, d := range defs {
		w.Write(d)
	}
	return b.Raw(sectionType, w.Bytes())
}

// Import declares an import.
func (b *Builder) Import(name string, desc Extern) *Builder {
	var w bytes.Buffer
	w.WriteByte(0x00)
	writeName(&w, name)
	w.Write(desc)
	return b.one(sectionImport, w.Bytes())
}

// Export exports the item at idx in sort under name.
func (b *Builder) Export(name string, sort Sort, idx uint32) *Builder {
	var w bytes.Buffer
	w.WriteByte(0x00)
	writeName(&w, name)
	w.Write(sort)
	writeU32(&w, idx)
	w.WriteByte(0x00)
	return b.one(sectionExport, w.Bytes())
}

// CoreInstantiate instantiates core module idx. Every arg names a core
// instance.
func (b *Builder) CoreInstantiate(module uint32, args ...Arg) *Builder {
	var w bytes.Buffer
	w.WriteByte(0x00)
	writeU32(&w, module)
	writeU32(&w, uint32(len(args)))
	for _, a := range args {
		writeName(&w, a.Name)
		w.WriteByte(0x12)
		writeU32(&w, a.Index)
	}
	return b.one(sectionCoreInstance, w.Bytes())
}

// CoreInstanceFromExports bundles core items into an instance.
func (b *Builder) CoreInstanceFromExports(exports ...Arg) *Builder {
	var w bytes.Buffer
	w.WriteByte(0x01)
	writeU32(&w, uint32(len(exports)))
	for _, e := range exports {
		writeName(&w, e.Name)
		w.WriteByte(e.Sort[len(e.Sort)-1])
		writeU32(&w, e.Index)
	}
	return b.one(sectionCoreInstance, w.Bytes())
}

// AliasCoreExport aliases export name of core instance idx.
func (b *Builder) AliasCoreExport(instance uint32, sort Sort, name string) *Builder {
	var w bytes.Buffer
	w.Write(sort)
	w.WriteByte(0x01)
	writeU32(&w, instance)
	writeName(&w, name)
	return b.one(sectionAlias, w.Bytes())
}

// AliasExport aliases export name of component instance idx.
func (b *Builder) AliasExport(instance uint32, sort Sort, name string) *Builder {
	var w bytes.Buffer
	w.Write(sort)
	w.WriteByte(0x00)
	writeU32(&w, instance)
	writeName(&w, name)
	return b.one(sectionAlias, w.Bytes())
}

// AliasOuter aliases item idx of the component count levels out.
func (b *Builder) AliasOuter(count uint32, sort Sort, idx uint32) *Builder {
	var w bytes.Buffer
	w.Write(sort)
	w.WriteByte(0x02)
	writeU32(&w, count)
	writeU32(&w, idx)
	return b.one(sectionAlias, w.Bytes())
}

func writeOpts(w *bytes.Buffer, opts []Opt) {
	writeU32(w, uint32(len(opts)))
	for _, o := range opts {
		w.Write(o)
	}
}

// Lift lifts core function fn to component function type typeIdx.
func (b *Builder) Lift(fn, typeIdx uint32, opts ...Opt) *Builder {
	var w bytes.Buffer
	w.Write([]byte{0x00, 0x00})
	writeU32(&w, fn)
	writeOpts(&w, opts)
	writeU32(&w, typeIdx)
	return b.one(sectionCanon, w.Bytes())
}

// Lower lowers component function fn to a core function.
func (b *Builder) Lower(fn uint32, opts ...Opt) *Builder {
	var w bytes.Buffer
	w.Write([]byte{0x01, 0x00})
	writeU32(&w, fn)
	writeOpts(&w, opts)
	return b.one(sectionCanon, w.Bytes())
}

// ResourceDrop defines resource.drop for resource type idx.
func (b *Builder) ResourceDrop(typeIdx uint32) *Builder {
	var w bytes.Buffer
	w.WriteByte(0x03)
	writeU32(&w, typeIdx)
	return b.one(sectionCanon, w.Bytes())
}

// Instantiate instantiates nested component idx with args.
func (b *Builder) Instantiate(component uint32, args ...Arg) *Builder {
	var w bytes.Buffer
	w.WriteByte(0x00)
	writeU32(&w, component)
	writeU32(&w, uint32(len(args)))
	for _, a := range args {
		writeName(&w, a.Name)
		w.Write(a.Sort)
		writeU32(&w, a.Index)
	}
	return b.one(sectionInstance, w.Bytes())
}

// InstanceFromExports bundles component items into an instance.
func (b *Builder) InstanceFromExports(exports ...Arg) *Builder {
	var w bytes.Buffer
	w.WriteByte(0x01)
	writeU32(&w, uint32(len(exports)))
	for _, e := range exports {
		w.WriteByte(0x00)
		writeName(&w, e.Name)
		w.Write(e.Sort)
		writeU32(&w, e.Index)
	}
	return b.one(sectionInstance, w.Bytes())
}

// WrapComponent embeds core modules in a component binary with no other
// sections.
func WrapComponent(cores ...[]byte) []byte {
	b := New()
	for _, core := range cores {
		b.CoreModule(core)
	}
	return b.Bytes()
}
