package host

import (
	"fmt"
	"io"
)

// Component section ids.
const (
	secCustom       = 0x00
	secCoreModule   = 0x01
	secCoreInstance = 0x02
	secCoreType     = 0x03
	secComponent    = 0x04
	secInstance     = 0x05
	secAlias        = 0x06
	secType         = 0x07
	secCanon        = 0x08
	secStart        = 0x09
	secImport       = 0x0a
	secExport       = 0x0b
)

// Sorts of the component index spaces. Core sorts follow sortCore.
const (
	sortCore      = 0x00
	sortFunc      = 0x01
	sortValue     = 0x02
	sortType      = 0x03
	sortComponent = 0x04
	sortInstance  = 0x05

	coreSortFunc     = 0x00
	coreSortTable    = 0x01
	coreSortMemory   = 0x02
	coreSortGlobal   = 0x03
	coreSortType     = 0x10
	coreSortModule   = 0x11
	coreSortInstance = 0x12
)

// Canonical definition kinds and options.
const (
	canonLift         = 0x00
	canonLower        = 0x01
	canonResourceNew  = 0x02
	canonResourceDrop = 0x03
	canonResourceRep  = 0x04

	optUTF8       = 0x00
	optUTF16      = 0x01
	optLatin1     = 0x02
	optMemory     = 0x03
	optRealloc    = 0x04
	optPostReturn = 0x05
	optAsync      = 0x06
	optCallback   = 0x07
	optCoreType   = 0x08
	optGC         = 0x09
)

// reader decodes LEB128 integers, names and bytes of a binary.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) done() bool { return r.pos >= len(r.data) }

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u32() (uint32, error) {
	var v uint32
	for shift := uint(0); shift < 35; shift += 7 {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("LEB128 integer too long at offset %d", r.pos)
}

func (r *reader) bytes(n uint32) ([]byte, error) {
	if uint64(n) > uint64(len(r.data)-r.pos) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(n)
	return string(b), err
}

// vec reads a count and calls item that many times.
func (r *reader) vec(item func() error) error {
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if err := item(); err != nil {
			return err
		}
	}
	return nil
}

type section struct {
	id   byte
	body []byte
}

// readSections splits a binary after its preamble.
func readSections(data []byte) ([]section, error) {
	r := &reader{data: data, pos: 8}
	var out []section
	for !r.done() {
		id, err := r.byte()
		if err != nil {
			return nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, err
		}
		body, err := r.bytes(size)
		if err != nil {
			return nil, fmt.Errorf("section %d exceeds binary length", id)
		}
		out = append(out, section{id: id, body: body})
	}
	return out, nil
}

// sortIdx names an item: sort, core sort when sort is sortCore, index.
type sortIdx struct {
	sort, core byte
	idx        uint32
}

func (r *reader) sortIdx() (sortIdx, error) {
	var s sortIdx
	var err error
	if s.sort, err = r.byte(); err != nil {
		return s, err
	}
	if s.sort == sortCore {
		if s.core, err = r.byte(); err != nil {
			return s, err
		}
	}
	s.idx, err = r.u32()
	return s, err
}

// coreInstanceDef instantiates a module or bundles exports.
type coreInstanceDef struct {
	args    []coreArg
	module  uint32
	inline  bool
}

// coreArg is an instantiation argument or an inline export.
type coreArg struct {
	name string
	sort byte
	idx  uint32
}

func parseCoreInstances(body []byte) ([]coreInstanceDef, error) {
	r := &reader{data: body}
	var out []coreInstanceDef
	err := r.vec(func() error {
		kind, err := r.byte()
		if err != nil {
			return err
		}
		var def coreInstanceDef
		switch kind {
		case 0x00:
			if def.module, err = r.u32(); err != nil {
				return err
			}
			err = r.vec(func() error {
				name, err := r.name()
				if err != nil {
					return err
				}
				sort, err := r.byte()
				if err != nil {
					return err
				}
				if sort != coreSortInstance {
					return fmt.Errorf("instantiation argument %q has sort 0x%02x", name, sort)
				}
				idx, err := r.u32()
				def.args = append(def.args, coreArg{name: name, sort: sort, idx: idx})
				return err
			})
		case 0x01:
			def.inline = true
			err = r.vec(func() error {
				name, err := r.name()
				if err != nil {
					return err
				}
				sort, err := r.byte()
				if err != nil {
					return err
				}
				idx, err := r.u32()
				def.args = append(def.args, coreArg{name: name, sort: sort, idx: idx})
				return err
			})
		default:
			return fmt.Errorf("unknown core instance kind 0x%02x", kind)
		}
		out = append(out, def)
		return err
	})
	return out, err
}

// Alias targets.
const (
	aliasExport     = 0x00
	aliasCoreExport = 0x01
	aliasOuter      = 0x02
)

type aliasDef struct {
	name     string
	sort     byte
	core     byte
	target   byte
	instance uint32 // export targets
	count    uint32 // outer target
	idx      uint32 // outer target
}

func parseAliases(body []byte) ([]aliasDef, error) {
	r := &reader{data: body}
	var out []aliasDef
	err := r.vec(func() error {
		var a aliasDef
		var err error
		if a.sort, err = r.byte(); err != nil {
			return err
		}
		if a.sort == sortCore {
			if a.core, err = r.byte(); err != nil {
				return err
			}
		}
		if a.target, err = r.byte(); err != nil {
			return err
		}
		switch a.target {
		case aliasExport, aliasCoreExport:
			if a.instance, err = r.u32(); err != nil {
				return err
			}
			a.name, err = r.name()
		case aliasOuter:
			if a.count, err = r.u32(); err != nil {
				return err
			}
			a.idx, err = r.u32()
		default:
			return fmt.Errorf("unknown alias target 0x%02x", a.target)
		}
		out = append(out, a)
		return err
	})
	return out, err
}

type canonOpt struct {
	kind byte
	idx  uint32
}

type canonDef struct {
	opts    []canonOpt
	fn      uint32
	typeIdx uint32
	kind    byte
}

// unsupportedCanonError marks canonical definitions this host cannot
// run; the kind decides the error category.
type unsupportedCanonError struct{ kind byte }

func (e *unsupportedCanonError) Error() string {
	return fmt.Sprintf("canonical definition 0x%02x", e.kind)
}

func parseCanons(body []byte) ([]canonDef, error) {
	r := &reader{data: body}
	var out []canonDef
	err := r.vec(func() error {
		var c canonDef
		var err error
		if c.kind, err = r.byte(); err != nil {
			return err
		}
		switch c.kind {
		case canonLift:
			if _, err = r.byte(); err != nil {
				return err
			}
			if c.fn, err = r.u32(); err != nil {
				return err
			}
			if c.opts, err = r.canonOpts(); err != nil {
				return err
			}
			c.typeIdx, err = r.u32()
		case canonLower:
			if _, err = r.byte(); err != nil {
				return err
			}
			if c.fn, err = r.u32(); err != nil {
				return err
			}
			c.opts, err = r.canonOpts()
		default:
			return &unsupportedCanonError{kind: c.kind}
		}
		out = append(out, c)
		return err
	})
	return out, err
}

func (r *reader) canonOpts() ([]canonOpt, error) {
	var opts []canonOpt
	err := r.vec(func() error {
		kind, err := r.byte()
		if err != nil {
			return err
		}
		o := canonOpt{kind: kind}
		switch kind {
		case optMemory, optRealloc, optPostReturn, optCallback, optCoreType:
			o.idx, err = r.u32()
		}
		opts = append(opts, o)
		return err
	})
	return opts, err
}

// externDesc is the kind and type index of an import or export.
type externDesc struct {
	kind byte
	idx  uint32
}

func (r *reader) externDesc() (externDesc, error) {
	var d externDesc
	var err error
	if d.kind, err = r.byte(); err != nil {
		return d, err
	}
	switch d.kind {
	case 0x00:
		b, err := r.byte()
		if err != nil {
			return d, err
		}
		if b != coreSortModule {
			return d, fmt.Errorf("core extern 0x%02x", b)
		}
		d.idx, err = r.u32()
		return d, err
	case sortFunc, sortComponent, sortInstance:
		d.idx, err = r.u32()
	case sortValue:
		return d, fmt.Errorf("value imports")
	case sortType:
		bound, err := r.byte()
		if err != nil {
			return d, err
		}
		if bound == 0x00 {
			d.idx, err = r.u32()
		}
		return d, err
	default:
		return d, fmt.Errorf("unknown extern kind 0x%02x", d.kind)
	}
	return d, err
}

// externName reads importname' and exportname': a discriminant byte then
// the name.
func (r *reader) externName() (string, error) {
	if _, err := r.byte(); err != nil {
		return "", err
	}
	return r.name()
}

type importDef struct {
	name string
	desc externDesc
}

func parseImports(body []byte) ([]importDef, error) {
	r := &reader{data: body}
	var out []importDef
	err := r.vec(func() error {
		name, err := r.externName()
		if err != nil {
			return err
		}
		desc, err := r.externDesc()
		out = append(out, importDef{name: name, desc: desc})
		return err
	})
	return out, err
}

type exportDef struct {
	name string
	item sortIdx
}

func parseExports(body []byte) ([]exportDef, error) {
	r := &reader{data: body}
	var out []exportDef
	err := r.vec(func() error {
		name, err := r.externName()
		if err != nil {
			return err
		}
		item, err := r.sortIdx()
		if err != nil {
			return err
		}
		has, err := r.byte()
		if err != nil {
			return err
		}
		if has == 0x01 {
			if _, err := r.externDesc(); err != nil {
				return err
			}
		}
		out = append(out, exportDef{name: name, item: item})
		return nil
	})
	return out, err
}

// instanceDef instantiates a nested component or bundles exports.
type instanceDef struct {
	args      []instanceArg
	component uint32
	inline    bool
}

type instanceArg struct {
	name string
	item sortIdx
}

func parseInstances(body []byte) ([]instanceDef, error) {
	r := &reader{data: body}
	var out []instanceDef
	err := r.vec(func() error {
		kind, err := r.byte()
		if err != nil {
			return err
		}
		var def instanceDef
		switch kind {
		case 0x00:
			if def.component, err = r.u32(); err != nil {
				return err
			}
			err = r.vec(func() error {
				name, err := r.name()
				if err != nil {
					return err
				}
				item, err := r.sortIdx()
				def.args = append(def.args, instanceArg{name: name, item: item})
				return err
			})
		case 0x01:
			def.inline = true
			err = r.vec(func() error {
				name, err := r.externName()
				if err != nil {
					return err
				}
				item, err := r.sortIdx()
				def.args = append(def.args, instanceArg{name: name, item: item})
				return err
			})
		default:
			return fmt.Errorf("unknown instance kind 0x%02x", kind)
		}
		out = append(out, def)
		return err
	})
	return out, err
}
