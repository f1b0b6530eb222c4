package wat

import (
	"fmt"
	"strconv"
)

type valType byte

const (
	typeI32       valType = 0x7f
	typeI64       valType = 0x7e
	typeF32       valType = 0x7d
	typeF64       valType = 0x7c
	typeFuncref   valType = 0x70
	typeExternref valType = 0x6f
)

var valTypes = map[string]valType{
	"i32": typeI32,
	"i64": typeI64,
	"f32": typeF32,
	"f64": typeF64,
}

// external kinds
const (
	kindFunc   = 0x00
	kindTable  = 0x01
	kindMemory = 0x02
	kindGlobal = 0x03
)

type funcType struct {
	params, results []valType
}

func (t funcType) equal(o funcType) bool {
	return sameTypes(t.params, o.params) && sameTypes(t.results, o.results)
}

func sameTypes(a, b []valType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type limits struct {
	max *uint32
	min uint32
}

type tableType struct {
	lim limits
	ref valType
}

type globalType struct {
	typ valType
	mut bool
}

type importDef struct {
	module, name string
	table        tableType
	mem          limits
	global       globalType
	typeIdx      uint32
	kind         byte
}

type funcDef struct {
	body       *cursor
	localNames map[string]uint32
	locals     []valType
	code       []byte
	typeIdx    uint32
}

type globalDef struct {
	initExpr *cursor
	init     []byte
	typ      globalType
}

type exportDef struct {
	name string
	idx  uint32
	kind byte
}

type elemDef struct {
	offset []byte
	funcs  []uint32
	table  uint32
}

type dataDef struct {
	offset []byte
	data   []byte
	mem    uint32
}

// space is one index space: imports first, then definitions.
type space struct {
	names   map[string]uint32
	n       uint32
	defined bool
}

func (s *space) add(name string, n *node, imported bool) (uint32, error) {
	if imported && s.defined {
		return 0, n.errorf("import after definition")
	}
	if !imported {
		s.defined = true
	}
	idx := s.n
	s.n++
	if name != "" {
		if s.names == nil {
			s.names = make(map[string]uint32)
		}
		if _, dup := s.names[name]; dup {
			return 0, n.errorf("duplicate name %s", name)
		}
		s.names[name] = idx
	}
	return idx, nil
}

// resolve maps a $name or a number to an index.
func (s *space) resolve(n *node, what string) (uint32, error) {
	if n == nil || !n.isAtom() {
		return 0, fmt.Errorf("expected %s index", what)
	}
	if n.isName() {
		idx, ok := s.names[n.tok.value]
		if !ok {
			return 0, n.errorf("unknown %s %s", what, n.tok.value)
		}
		return idx, nil
	}
	v, err := strconv.ParseUint(n.tok.value, 0, 32)
	if err != nil {
		return 0, n.errorf("invalid %s index %q", what, n.tok.value)
	}
	return uint32(v), nil
}

type module struct {
	start     *uint32
	typeNames map[string]uint32
	types     []funcType
	imports   []importDef
	funcs     []*funcDef
	tables    []tableType
	mems      []limits
	globals   []*globalDef
	exports   []exportDef
	elems     []elemDef
	data      []dataDef
	deferred  []*node

	funcSpace, tableSpace, memSpace, globalSpace space
}

// Compile translates a (module ...) text into a binary module.
func Compile(src string) ([]byte, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	nodes, err := parseNodes(tokens)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 || nodes[0].head() != "module" {
		return nil, fmt.Errorf("expected 'module'")
	}
	m := &module{typeNames: make(map[string]uint32)}
	if err := m.build(nodes[0]); err != nil {
		return nil, err
	}
	return m.encode(), nil
}

func (m *module) build(root *node) error {
	c := newCursor(root, 1)
	c.name()
	var fields []*node
	for !c.done() {
		f := c.next()
		if !f.isList() {
			return f.errorf("expected module field, got %s", f)
		}
		fields = append(fields, f)
	}

	// types first so type uses may refer forward
	for _, f := range fields {
		if f.head() == "type" {
			if err := m.typeField(f); err != nil {
				return err
			}
		}
	}
	for _, f := range fields {
		var err error
		switch f.head() {
		case "type":
		case "import":
			err = m.importField(f)
		case "func":
			err = m.funcField(f)
		case "table":
			err = m.tableField(f)
		case "memory":
			err = m.memoryField(f)
		case "global":
			err = m.globalField(f)
		case "export", "start", "elem", "data":
			m.deferred = append(m.deferred, f)
		default:
			err = f.errorf("unknown module field %q", f.head())
		}
		if err != nil {
			return err
		}
	}

	for _, g := range m.globals {
		init, err := m.constExpr(g.initExpr)
		if err != nil {
			return err
		}
		g.init = init
	}
	for _, f := range m.deferred {
		var err error
		switch f.head() {
		case "export":
			err = m.exportField(f)
		case "start":
			err = m.startField(f)
		case "elem":
			err = m.elemField(f)
		case "data":
			err = m.dataField(f)
		}
		if err != nil {
			return err
		}
	}
	for _, f := range m.funcs {
		b := &body{m: m, locals: f.localNames}
		if err := b.sequence(f.body); err != nil {
			return err
		}
		b.out.byte(opEnd)
		f.code = b.out.b
	}
	return nil
}

func (m *module) typeField(f *node) error {
	c := newCursor(f, 1)
	name := c.name()
	fn := c.next()
	if fn == nil || fn.head() != "func" {
		return f.errorf("expected (func ...) in type")
	}
	t, _, err := signature(newCursor(fn, 1))
	if err != nil {
		return err
	}
	if name != "" {
		if _, dup := m.typeNames[name]; dup {
			return f.errorf("duplicate type %s", name)
		}
		m.typeNames[name] = uint32(len(m.types))
	}
	m.types = append(m.types, t)
	return nil
}

// signature reads (param ...) and (result ...) lists. It returns the
// param names, "" where a param is unnamed.
func signature(c *cursor) (funcType, []string, error) {
	var t funcType
	var names []string
	for c.peekList("param") {
		p := newCursor(c.next(), 1)
		if name := p.name(); name != "" {
			vt, err := valueType(p.next())
			if err != nil {
				return t, nil, err
			}
			t.params = append(t.params, vt)
			names = append(names, name)
			continue
		}
		for !p.done() {
			vt, err := valueType(p.next())
			if err != nil {
				return t, nil, err
			}
			t.params = append(t.params, vt)
			names = append(names, "")
		}
	}
	for c.peekList("result") {
		r := newCursor(c.next(), 1)
		for !r.done() {
			vt, err := valueType(r.next())
			if err != nil {
				return t, nil, err
			}
			t.results = append(t.results, vt)
		}
	}
	return t, names, nil
}

func valueType(n *node) (valType, error) {
	if n == nil || !n.isAtom() {
		return 0, fmt.Errorf("expected value type")
	}
	if vt, ok := valTypes[n.tok.value]; ok {
		return vt, nil
	}
	return 0, n.errorf("unknown value type %q", n.tok.value)
}

// typeUse reads an optional (type $t) followed by params and results and
// returns the type index, adding an implicit type when needed.
func (m *module) typeUse(c *cursor) (uint32, []string, error) {
	var explicit *uint32
	if c.peekList("type") {
		tn := c.next()
		idx, err := m.typeRef(tn)
		if err != nil {
			return 0, nil, err
		}
		explicit = &idx
	}
	t, names, err := signature(c)
	if err != nil {
		return 0, nil, err
	}
	if explicit != nil {
		if len(t.params) == 0 && len(t.results) == 0 {
			names = make([]string, len(m.types[*explicit].params))
		} else if !t.equal(m.types[*explicit]) {
			return 0, nil, c.owner.errorf("inline signature does not match type %d", *explicit)
		}
		return *explicit, names, nil
	}
	return m.internType(t), names, nil
}

func (m *module) typeRef(tn *node) (uint32, error) {
	ref := newCursor(tn, 1).next()
	if ref == nil || !ref.isAtom() {
		return 0, tn.errorf("expected type index")
	}
	if ref.isName() {
		idx, ok := m.typeNames[ref.tok.value]
		if !ok {
			return 0, ref.errorf("unknown type %s", ref.tok.value)
		}
		return idx, nil
	}
	v, err := strconv.ParseUint(ref.tok.value, 0, 32)
	if err != nil || v >= uint64(len(m.types)) {
		return 0, ref.errorf("invalid type index %q", ref.tok.value)
	}
	return uint32(v), nil
}

func (m *module) internType(t funcType) uint32 {
	for i, have := range m.types {
		if have.equal(t) {
			return uint32(i)
		}
	}
	m.types = append(m.types, t)
	return uint32(len(m.types) - 1)
}

// inlineExports consumes (export "name") lists.
func (m *module) inlineExports(c *cursor, kind byte, idx uint32) error {
	for c.peekList("export") {
		name, err := newCursor(c.next(), 1).str("export name")
		if err != nil {
			return err
		}
		m.exports = append(m.exports, exportDef{name: name, kind: kind, idx: idx})
	}
	return nil
}

func (m *module) importField(f *node) error {
	c := newCursor(f, 1)
	module, err := c.str("import module")
	if err != nil {
		return err
	}
	name, err := c.str("import name")
	if err != nil {
		return err
	}
	desc := c.next()
	if desc == nil || !desc.isList() {
		return f.errorf("expected import descriptor")
	}
	imp := importDef{module: module, name: name}
	dc := newCursor(desc, 1)
	id := dc.name()
	switch desc.head() {
	case "func":
		imp.kind = kindFunc
		if imp.typeIdx, _, err = m.typeUse(dc); err != nil {
			return err
		}
		_, err = m.funcSpace.add(id, desc, true)
	case "table":
		imp.kind = kindTable
		if imp.table, err = tableTypeOf(dc); err != nil {
			return err
		}
		_, err = m.tableSpace.add(id, desc, true)
	case "memory":
		imp.kind = kindMemory
		if imp.mem, err = limitsOf(dc); err != nil {
			return err
		}
		_, err = m.memSpace.add(id, desc, true)
	case "global":
		imp.kind = kindGlobal
		if imp.global, err = globalTypeOf(dc.next()); err != nil {
			return err
		}
		_, err = m.globalSpace.add(id, desc, true)
	default:
		return desc.errorf("unknown import kind %q", desc.head())
	}
	if err != nil {
		return err
	}
	m.imports = append(m.imports, imp)
	return nil
}

func (m *module) funcField(f *node) error {
	c := newCursor(f, 1)
	idx, err := m.funcSpace.add(c.name(), f, false)
	if err != nil {
		return err
	}
	if err := m.inlineExports(c, kindFunc, idx); err != nil {
		return err
	}
	typeIdx, names, err := m.typeUse(c)
	if err != nil {
		return err
	}
	fd := &funcDef{typeIdx: typeIdx, localNames: make(map[string]uint32)}
	for i, n := range names {
		if n != "" {
			fd.localNames[n] = uint32(i)
		}
	}
	next := uint32(len(m.types[typeIdx].params))
	for c.peekList("local") {
		lc := newCursor(c.next(), 1)
		if name := lc.name(); name != "" {
			vt, err := valueType(lc.next())
			if err != nil {
				return err
			}
			fd.localNames[name] = next
			fd.locals = append(fd.locals, vt)
			next++
			continue
		}
		for !lc.done() {
			vt, err := valueType(lc.next())
			if err != nil {
				return err
			}
			fd.locals = append(fd.locals, vt)
			next++
		}
	}
	fd.body = c
	m.funcs = append(m.funcs, fd)
	return nil
}

func (m *module) tableField(f *node) error {
	c := newCursor(f, 1)
	idx, err := m.tableSpace.add(c.name(), f, false)
	if err != nil {
		return err
	}
	if err := m.inlineExports(c, kindTable, idx); err != nil {
		return err
	}
	t, err := tableTypeOf(c)
	if err != nil {
		return err
	}
	m.tables = append(m.tables, t)
	return nil
}

func (m *module) memoryField(f *node) error {
	c := newCursor(f, 1)
	idx, err := m.memSpace.add(c.name(), f, false)
	if err != nil {
		return err
	}
	if err := m.inlineExports(c, kindMemory, idx); err != nil {
		return err
	}
	l, err := limitsOf(c)
	if err != nil {
		return err
	}
	m.mems = append(m.mems, l)
	return nil
}

func (m *module) globalField(f *node) error {
	c := newCursor(f, 1)
	idx, err := m.globalSpace.add(c.name(), f, false)
	if err != nil {
		return err
	}
	if err := m.inlineExports(c, kindGlobal, idx); err != nil {
		return err
	}
	gt, err := globalTypeOf(c.next())
	if err != nil {
		return err
	}
	m.globals = append(m.globals, &globalDef{typ: gt, initExpr: c})
	return nil
}

func (m *module) exportField(f *node) error {
	c := newCursor(f, 1)
	name, err := c.str("export name")
	if err != nil {
		return err
	}
	desc := c.next()
	if desc == nil || !desc.isList() {
		return f.errorf("expected export descriptor")
	}
	ref := newCursor(desc, 1).next()
	e := exportDef{name: name}
	switch desc.head() {
	case "func":
		e.kind = kindFunc
		e.idx, err = m.funcSpace.resolve(ref, "func")
	case "table":
		e.kind = kindTable
		e.idx, err = m.tableSpace.resolve(ref, "table")
	case "memory":
		e.kind = kindMemory
		e.idx, err = m.memSpace.resolve(ref, "memory")
	case "global":
		e.kind = kindGlobal
		e.idx, err = m.globalSpace.resolve(ref, "global")
	default:
		return desc.errorf("unknown export kind %q", desc.head())
	}
	if err != nil {
		return err
	}
	m.exports = append(m.exports, e)
	return nil
}

func (m *module) startField(f *node) error {
	idx, err := m.funcSpace.resolve(newCursor(f, 1).next(), "func")
	if err != nil {
		return err
	}
	m.start = &idx
	return nil
}

// offsetExpr reads (offset expr...) or a single folded instruction.
func (m *module) offsetExpr(c *cursor) ([]byte, error) {
	n := c.next()
	if n == nil || !n.isList() {
		return nil, c.owner.errorf("expected offset expression")
	}
	if n.head() == "offset" {
		return m.constExpr(newCursor(n, 1))
	}
	return m.constExpr(&cursor{items: []*node{n}, owner: c.owner})
}

func (m *module) elemField(f *node) error {
	c := newCursor(f, 1)
	c.name()
	var e elemDef
	if c.peekList("table") {
		idx, err := m.tableSpace.resolve(newCursor(c.next(), 1).next(), "table")
		if err != nil {
			return err
		}
		e.table = idx
	}
	offset, err := m.offsetExpr(c)
	if err != nil {
		return err
	}
	e.offset = offset
	if n := c.peek(); n != nil && n.isAtom() && n.tok.value == "func" {
		c.next()
	}
	for !c.done() {
		idx, err := m.funcSpace.resolve(c.next(), "func")
		if err != nil {
			return err
		}
		e.funcs = append(e.funcs, idx)
	}
	m.elems = append(m.elems, e)
	return nil
}

func (m *module) dataField(f *node) error {
	c := newCursor(f, 1)
	c.name()
	var d dataDef
	if c.peekList("memory") {
		idx, err := m.memSpace.resolve(newCursor(c.next(), 1).next(), "memory")
		if err != nil {
			return err
		}
		d.mem = idx
	}
	offset, err := m.offsetExpr(c)
	if err != nil {
		return err
	}
	d.offset = offset
	for !c.done() {
		s, err := c.str("data")
		if err != nil {
			return err
		}
		d.data = append(d.data, s...)
	}
	m.data = append(m.data, d)
	return nil
}

// constExpr encodes an initializer expression with its end opcode.
func (m *module) constExpr(c *cursor) ([]byte, error) {
	b := &body{m: m}
	if err := b.sequence(c); err != nil {
		return nil, err
	}
	b.out.byte(opEnd)
	return b.out.b, nil
}

func limitsOf(c *cursor) (limits, error) {
	var l limits
	n, err := c.atom("limits")
	if err != nil {
		return l, err
	}
	v, err := strconv.ParseUint(n.tok.value, 0, 32)
	if err != nil {
		return l, n.errorf("invalid limit %q", n.tok.value)
	}
	l.min = uint32(v)
	if p := c.peek(); p != nil && p.isAtom() {
		if v, err := strconv.ParseUint(p.tok.value, 0, 32); err == nil {
			c.next()
			hi := uint32(v)
			l.max = &hi
		}
	}
	return l, nil
}

func tableTypeOf(c *cursor) (tableType, error) {
	lim, err := limitsOf(c)
	if err != nil {
		return tableType{}, err
	}
	ref, err := c.atom("reference type")
	if err != nil {
		return tableType{}, err
	}
	t := tableType{lim: lim}
	switch ref.tok.value {
	case "funcref":
		t.ref = typeFuncref
	case "externref":
		t.ref = typeExternref
	default:
		return t, ref.errorf("unknown reference type %q", ref.tok.value)
	}
	return t, nil
}

func globalTypeOf(n *node) (globalType, error) {
	if n != nil && n.head() == "mut" {
		vt, err := valueType(newCursor(n, 1).next())
		return globalType{typ: vt, mut: true}, err
	}
	vt, err := valueType(n)
	return globalType{typ: vt}, err
}
