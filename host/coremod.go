package host

import (
	"fmt"
)

const (
	coreSecImport = 0x02
	coreSecExport = 0x07
)

// coreImport is one entry of a core module's import section.
type coreImport struct {
	module, name string
	kind         byte
	desc         []byte // encoded descriptor after the kind
}

// coreModuleShape is the import and export surface of a core module.
type coreModuleShape struct {
	imports []coreImport
	exports map[string]byte
}

func (r *reader) skipLEB() error {
	for i := 0; i < 10; i++ {
		b, err := r.byte()
		if err != nil {
			return err
		}
		if b&0x80 == 0 {
			return nil
		}
	}
	return fmt.Errorf("LEB128 integer too long at offset %d", r.pos)
}

func (r *reader) skipLimits() error {
	flags, err := r.byte()
	if err != nil {
		return err
	}
	if err := r.skipLEB(); err != nil {
		return err
	}
	if flags&0x01 != 0 {
		return r.skipLEB()
	}
	return nil
}

// importDesc reads a core import descriptor and returns its bytes.
func (r *reader) importDesc(kind byte) ([]byte, error) {
	start := r.pos
	var err error
	switch kind {
	case coreSortFunc:
		err = r.skipLEB()
	case coreSortTable:
		if _, err = r.byte(); err == nil {
			err = r.skipLimits()
		}
	case coreSortMemory:
		err = r.skipLimits()
	case coreSortGlobal:
		_, err = r.bytes(2)
	case 0x04: // tag
		if _, err = r.byte(); err == nil {
			err = r.skipLEB()
		}
	default:
		err = fmt.Errorf("unknown import kind 0x%02x", kind)
	}
	if err != nil {
		return nil, err
	}
	return r.data[start:r.pos], nil
}

// parseCoreModule reads the import and export sections of a core module.
func parseCoreModule(wasm []byte) (*coreModuleShape, error) {
	if len(wasm) < 8 || string(wasm[:4]) != string(wasmMagic) {
		return nil, fmt.Errorf("not a core module")
	}
	sections, err := readSections(wasm)
	if err != nil {
		return nil, err
	}
	shape := &coreModuleShape{exports: make(map[string]byte)}
	for _, s := range sections {
		r := &reader{data: s.body}
		switch s.id {
		case coreSecImport:
			err = r.vec(func() error {
				var imp coreImport
				var err error
				if imp.module, err = r.name(); err != nil {
					return err
				}
				if imp.name, err = r.name(); err != nil {
					return err
				}
				if imp.kind, err = r.byte(); err != nil {
					return err
				}
				imp.desc, err = r.importDesc(imp.kind)
				shape.imports = append(shape.imports, imp)
				return err
			})
		case coreSecExport:
			err = r.vec(func() error {
				name, err := r.name()
				if err != nil {
					return err
				}
				kind, err := r.byte()
				if err != nil {
					return err
				}
				if _, err := r.u32(); err != nil {
					return err
				}
				shape.exports[name] = kind
				return nil
			})
		}
		if err != nil {
			return nil, err
		}
	}
	return shape, nil
}

// rewriteImports renames the imports of a core module so each resolves
// to the runtime module and export given for it, in import order.
func rewriteImports(wasm []byte, imports []coreImport, targets []coreItem) []byte {
	if len(imports) == 0 {
		return wasm
	}
	var sec []byte
	sec = appendU32(sec, uint32(len(imports)))
	for i, imp := range imports {
		sec = appendName(sec, targets[i].module)
		sec = appendName(sec, targets[i].name)
		sec = append(sec, imp.kind)
		sec = append(sec, imp.desc...)
	}

	out := append([]byte(nil), wasm[:8]...)
	sections, _ := readSections(wasm)
	for _, s := range sections {
		body := s.body
		if s.id == coreSecImport {
			body = sec
		}
		out = append(out, s.id)
		out = appendU32(out, uint32(len(body)))
		out = append(out, body...)
	}
	return out
}

func appendU32(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return b
		}
	}
}

func appendName(b []byte, s string) []byte {
	b = appendU32(b, uint32(len(s)))
	return append(b, s...)
}
