package wat

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	opBlock        = 0x02
	opLoop         = 0x03
	opIf           = 0x04
	opElse         = 0x05
	opEnd          = 0x0b
	opCallIndirect = 0x11
	opSelect       = 0x1b
	opSelectTyped  = 0x1c
	blockEmpty     = 0x40
)

// immediate describes what follows an opcode.
type immediate int

const (
	immNone immediate = iota
	immLabel
	immLabels
	immFunc
	immLocal
	immGlobal
	immMem
	immI32
	immI64
	immF32
	immF64
	immMemIdx
	immMemCopy
	immCallIndirect
	immSelect
)

type opInfo struct {
	code  []byte
	imm   immediate
	align uint32 // natural alignment, log2, for memory access
}

var ops = map[string]opInfo{
	"unreachable":   {code: []byte{0x00}},
	"nop":           {code: []byte{0x01}},
	"br":            {code: []byte{0x0c}, imm: immLabel},
	"br_if":         {code: []byte{0x0d}, imm: immLabel},
	"br_table":      {code: []byte{0x0e}, imm: immLabels},
	"return":        {code: []byte{0x0f}},
	"call":          {code: []byte{0x10}, imm: immFunc},
	"call_indirect": {code: []byte{opCallIndirect}, imm: immCallIndirect},
	"drop":          {code: []byte{0x1a}},
	"select":        {code: []byte{opSelect}, imm: immSelect},
	"local.get":     {code: []byte{0x20}, imm: immLocal},
	"local.set":     {code: []byte{0x21}, imm: immLocal},
	"local.tee":     {code: []byte{0x22}, imm: immLocal},
	"global.get":    {code: []byte{0x23}, imm: immGlobal},
	"global.set":    {code: []byte{0x24}, imm: immGlobal},
	"memory.size":   {code: []byte{0x3f}, imm: immMemIdx},
	"memory.grow":   {code: []byte{0x40}, imm: immMemIdx},
	"i32.const":     {code: []byte{0x41}, imm: immI32},
	"i64.const":     {code: []byte{0x42}, imm: immI64},
	"f32.const":     {code: []byte{0x43}, imm: immF32},
	"f64.const":     {code: []byte{0x44}, imm: immF64},
	"memory.copy":   {code: []byte{0xfc, 0x0a}, imm: immMemCopy},
	"memory.fill":   {code: []byte{0xfc, 0x0b}, imm: immMemIdx},
}

func init() {
	// loads and stores with their natural alignment
	memOps := []struct {
		name  string
		align uint32
	}{
		{"i32.load", 2}, {"i64.load", 3}, {"f32.load", 2}, {"f64.load", 3},
		{"i32.load8_s", 0}, {"i32.load8_u", 0}, {"i32.load16_s", 1}, {"i32.load16_u", 1},
		{"i64.load8_s", 0}, {"i64.load8_u", 0}, {"i64.load16_s", 1}, {"i64.load16_u", 1},
		{"i64.load32_s", 2}, {"i64.load32_u", 2},
		{"i32.store", 2}, {"i64.store", 3}, {"f32.store", 2}, {"f64.store", 3},
		{"i32.store8", 0}, {"i32.store16", 1},
		{"i64.store8", 0}, {"i64.store16", 1}, {"i64.store32", 2},
	}
	for i, op := range memOps {
		ops[op.name] = opInfo{code: []byte{byte(0x28 + i)}, imm: immMem, align: op.align}
	}

	// numeric operators are numbered consecutively from 0x45
	numeric := []string{
		"i32.eqz", "i32.eq", "i32.ne", "i32.lt_s", "i32.lt_u", "i32.gt_s", "i32.gt_u",
		"i32.le_s", "i32.le_u", "i32.ge_s", "i32.ge_u",
		"i64.eqz", "i64.eq", "i64.ne", "i64.lt_s", "i64.lt_u", "i64.gt_s", "i64.gt_u",
		"i64.le_s", "i64.le_u", "i64.ge_s", "i64.ge_u",
		"f32.eq", "f32.ne", "f32.lt", "f32.gt", "f32.le", "f32.ge",
		"f64.eq", "f64.ne", "f64.lt", "f64.gt", "f64.le", "f64.ge",
		"i32.clz", "i32.ctz", "i32.popcnt", "i32.add", "i32.sub", "i32.mul",
		"i32.div_s", "i32.div_u", "i32.rem_s", "i32.rem_u", "i32.and", "i32.or",
		"i32.xor", "i32.shl", "i32.shr_s", "i32.shr_u", "i32.rotl", "i32.rotr",
		"i64.clz", "i64.ctz", "i64.popcnt", "i64.add", "i64.sub", "i64.mul",
		"i64.div_s", "i64.div_u", "i64.rem_s", "i64.rem_u", "i64.and", "i64.or",
		"i64.xor", "i64.shl", "i64.shr_s", "i64.shr_u", "i64.rotl", "i64.rotr",
		"f32.abs", "f32.neg", "f32.ceil", "f32.floor", "f32.trunc", "f32.nearest",
		"f32.sqrt", "f32.add", "f32.sub", "f32.mul", "f32.div", "f32.min", "f32.max",
		"f32.copysign",
		"f64.abs", "f64.neg", "f64.ceil", "f64.floor", "f64.trunc", "f64.nearest",
		"f64.sqrt", "f64.add", "f64.sub", "f64.mul", "f64.div", "f64.min", "f64.max",
		"f64.copysign",
		"i32.wrap_i64", "i32.trunc_f32_s", "i32.trunc_f32_u", "i32.trunc_f64_s",
		"i32.trunc_f64_u", "i64.extend_i32_s", "i64.extend_i32_u", "i64.trunc_f32_s",
		"i64.trunc_f32_u", "i64.trunc_f64_s", "i64.trunc_f64_u", "f32.convert_i32_s",
		"f32.convert_i32_u", "f32.convert_i64_s", "f32.convert_i64_u", "f32.demote_f64",
		"f64.convert_i32_s", "f64.convert_i32_u", "f64.convert_i64_s", "f64.convert_i64_u",
		"f64.promote_f32", "i32.reinterpret_f32", "i64.reinterpret_f64",
		"f32.reinterpret_i32", "f64.reinterpret_i64",
		"i32.extend8_s", "i32.extend16_s", "i64.extend8_s", "i64.extend16_s",
		"i64.extend32_s",
	}
	for i, name := range numeric {
		ops[name] = opInfo{code: []byte{byte(0x45 + i)}}
	}
}

// body encodes one instruction sequence.
type body struct {
	m      *module
	locals map[string]uint32
	labels []string
	out    buffer
}

// sequence encodes every remaining item of c.
func (b *body) sequence(c *cursor) error {
	stop, err := b.until(c)
	if err != nil {
		return err
	}
	if stop != nil {
		return stop.errorf("unexpected %s", stop.tok.value)
	}
	return nil
}

// until encodes items until c is exhausted or a flat else or end, which
// it consumes and returns.
func (b *body) until(c *cursor) (*node, error) {
	for !c.done() {
		n := c.next()
		if n.isList() {
			if err := b.folded(n); err != nil {
				return nil, err
			}
			continue
		}
		if !n.isAtom() {
			return nil, n.errorf("unexpected %s", n)
		}
		switch n.tok.value {
		case "end", "else":
			return n, nil
		case "block", "loop", "if":
			if err := b.flatBlock(n, c); err != nil {
				return nil, err
			}
			continue
		}
		imm, info, err := b.plain(n, c)
		if err != nil {
			return nil, err
		}
		b.out.bytes(info.code)
		b.out.bytes(imm)
	}
	return nil, nil
}

func blockOp(kw string) byte {
	switch kw {
	case "loop":
		return opLoop
	case "if":
		return opIf
	}
	return opBlock
}

// flatBlock encodes block, loop or if up to its matching end.
func (b *body) flatBlock(kw *node, c *cursor) error {
	label := c.name()
	bt, err := b.blockType(c)
	if err != nil {
		return err
	}
	b.out.byte(blockOp(kw.tok.value))
	b.out.bytes(bt)
	b.labels = append(b.labels, label)
	defer b.popLabel()
	for {
		stop, err := b.until(c)
		if err != nil {
			return err
		}
		if stop == nil {
			return kw.errorf("%s without end", kw.tok.value)
		}
		if stop.tok.value == "else" {
			if kw.tok.value != "if" {
				return stop.errorf("else outside if")
			}
			c.name()
			b.out.byte(opElse)
			continue
		}
		c.name()
		b.out.byte(opEnd)
		return nil
	}
}

func (b *body) popLabel() { b.labels = b.labels[:len(b.labels)-1] }

// folded encodes (op immediates... operands...) and the block forms.
func (b *body) folded(n *node) error {
	kw := n.head()
	c := newCursor(n, 1)
	switch kw {
	case "":
		return n.errorf("expected instruction")
	case "block", "loop":
		label := c.name()
		bt, err := b.blockType(c)
		if err != nil {
			return err
		}
		b.out.byte(blockOp(kw))
		b.out.bytes(bt)
		b.labels = append(b.labels, label)
		defer b.popLabel()
		if err := b.sequence(c); err != nil {
			return err
		}
		b.out.byte(opEnd)
		return nil
	case "if":
		return b.foldedIf(n, c)
	}

	imm, info, err := b.plain(n.list[0], c)
	if err != nil {
		return err
	}
	for !c.done() {
		op := c.next()
		if !op.isList() {
			return op.errorf("unexpected %s in folded %s", op, kw)
		}
		if err := b.folded(op); err != nil {
			return err
		}
	}
	b.out.bytes(info.code)
	b.out.bytes(imm)
	return nil
}

func (b *body) foldedIf(n *node, c *cursor) error {
	label := c.name()
	bt, err := b.blockType(c)
	if err != nil {
		return err
	}
	for !c.done() && !c.peekList("then") {
		cond := c.next()
		if !cond.isList() {
			return cond.errorf("unexpected %s in if condition", cond)
		}
		if err := b.folded(cond); err != nil {
			return err
		}
	}
	if !c.peekList("then") {
		return n.errorf("if without then")
	}
	b.out.byte(opIf)
	b.out.bytes(bt)
	b.labels = append(b.labels, label)
	defer b.popLabel()
	if err := b.sequence(newCursor(c.next(), 1)); err != nil {
		return err
	}
	if c.peekList("else") {
		b.out.byte(opElse)
		if err := b.sequence(newCursor(c.next(), 1)); err != nil {
			return err
		}
	}
	if !c.done() {
		return c.peek().errorf("unexpected %s after if", c.peek())
	}
	b.out.byte(opEnd)
	return nil
}

// blockType reads an optional (type $t) or single (result t).
func (b *body) blockType(c *cursor) ([]byte, error) {
	if c.peekList("type") {
		idx, err := b.m.typeRef(c.next())
		if err != nil {
			return nil, err
		}
		var w buffer
		w.s64(int64(idx))
		return w.b, nil
	}
	if c.peekList("param") {
		return nil, c.peek().errorf("block params are not supported")
	}
	if !c.peekList("result") {
		return []byte{blockEmpty}, nil
	}
	r := c.next()
	rc := newCursor(r, 1)
	vt, err := valueType(rc.next())
	if err != nil {
		return nil, err
	}
	if !rc.done() || c.peekList("result") {
		return nil, r.errorf("multi-value blocks are not supported")
	}
	return []byte{byte(vt)}, nil
}

// plain looks up op and encodes its immediates from c.
func (b *body) plain(op *node, c *cursor) ([]byte, opInfo, error) {
	info, ok := ops[op.tok.value]
	if !ok {
		return nil, info, op.errorf("unknown instruction %q", op.tok.value)
	}
	var w buffer
	switch info.imm {
	case immNone:
	case immLabel:
		d, err := b.label(c.next())
		if err != nil {
			return nil, info, err
		}
		w.u32(d)
	case immLabels:
		var depths []uint32
		for isIndex(c.peek()) {
			d, err := b.label(c.next())
			if err != nil {
				return nil, info, err
			}
			depths = append(depths, d)
		}
		if len(depths) == 0 {
			return nil, info, op.errorf("br_table needs a default label")
		}
		w.u32(uint32(len(depths) - 1))
		for _, d := range depths {
			w.u32(d)
		}
	case immFunc:
		idx, err := b.m.funcSpace.resolve(c.next(), "func")
		if err != nil {
			return nil, info, err
		}
		w.u32(idx)
	case immLocal:
		idx, err := b.local(c.next())
		if err != nil {
			return nil, info, err
		}
		w.u32(idx)
	case immGlobal:
		idx, err := b.m.globalSpace.resolve(c.next(), "global")
		if err != nil {
			return nil, info, err
		}
		w.u32(idx)
	case immMem:
		offset, align, err := memArg(c, info.align)
		if err != nil {
			return nil, info, err
		}
		w.u32(align)
		w.u32(offset)
	case immI32:
		n, err := c.atom("i32 literal")
		if err != nil {
			return nil, info, err
		}
		v, err := parseInt(n, 32)
		if err != nil {
			return nil, info, err
		}
		w.s64(int64(int32(v)))
	case immI64:
		n, err := c.atom("i64 literal")
		if err != nil {
			return nil, info, err
		}
		v, err := parseInt(n, 64)
		if err != nil {
			return nil, info, err
		}
		w.s64(v)
	case immF32:
		n, err := c.atom("f32 literal")
		if err != nil {
			return nil, info, err
		}
		v, err := parseFloat(n, 32)
		if err != nil {
			return nil, info, err
		}
		w.f32(float32(v))
	case immF64:
		n, err := c.atom("f64 literal")
		if err != nil {
			return nil, info, err
		}
		v, err := parseFloat(n, 64)
		if err != nil {
			return nil, info, err
		}
		w.f64(v)
	case immMemIdx:
		w.byte(0x00)
	case immMemCopy:
		w.byte(0x00)
		w.byte(0x00)
	case immCallIndirect:
		table := uint32(0)
		if isIndex(c.peek()) {
			idx, err := b.m.tableSpace.resolve(c.next(), "table")
			if err != nil {
				return nil, info, err
			}
			table = idx
		}
		typeIdx, _, err := b.m.typeUse(c)
		if err != nil {
			return nil, info, err
		}
		w.u32(typeIdx)
		w.u32(table)
	case immSelect:
		if c.peekList("result") {
			vt, err := valueType(newCursor(c.next(), 1).next())
			if err != nil {
				return nil, info, err
			}
			info.code = []byte{opSelectTyped}
			w.u32(1)
			w.byte(byte(vt))
		}
	}
	return w.b, info, nil
}

func (b *body) label(n *node) (uint32, error) {
	if n == nil || !n.isAtom() {
		return 0, errorAt(n, "expected label")
	}
	if n.isName() {
		for i := len(b.labels) - 1; i >= 0; i-- {
			if b.labels[i] == n.tok.value {
				return uint32(len(b.labels) - 1 - i), nil
			}
		}
		return 0, n.errorf("unknown label %s", n.tok.value)
	}
	v, err := strconv.ParseUint(n.tok.value, 10, 32)
	if err != nil {
		return 0, n.errorf("invalid label %q", n.tok.value)
	}
	return uint32(v), nil
}

func (b *body) local(n *node) (uint32, error) {
	if n == nil || !n.isAtom() {
		return 0, errorAt(n, "expected local")
	}
	if n.isName() {
		idx, ok := b.locals[n.tok.value]
		if !ok {
			return 0, n.errorf("unknown local %s", n.tok.value)
		}
		return idx, nil
	}
	v, err := strconv.ParseUint(n.tok.value, 0, 32)
	if err != nil {
		return 0, n.errorf("invalid local %q", n.tok.value)
	}
	return uint32(v), nil
}

// memArg reads optional offset= and align= atoms.
func memArg(c *cursor, natural uint32) (offset, align uint32, err error) {
	align = natural
	for n := c.peek(); n != nil && n.isAtom(); n = c.peek() {
		key, val, ok := strings.Cut(n.tok.value, "=")
		if !ok {
			break
		}
		v, perr := strconv.ParseUint(val, 0, 32)
		if perr != nil {
			return 0, 0, n.errorf("invalid %s %q", key, val)
		}
		switch key {
		case "offset":
			offset = uint32(v)
		case "align":
			if v == 0 || v&(v-1) != 0 {
				return 0, 0, n.errorf("alignment %d is not a power of two", v)
			}
			align = 0
			for v > 1 {
				v >>= 1
				align++
			}
		default:
			return 0, 0, n.errorf("unknown memory argument %q", key)
		}
		c.next()
	}
	return offset, align, nil
}

// parseInt accepts signed or unsigned spellings that fit in bits.
func parseInt(n *node, bits int) (int64, error) {
	s := n.tok.value
	if v, err := strconv.ParseInt(s, 0, bits); err == nil {
		return v, nil
	}
	if u, err := strconv.ParseUint(s, 0, bits); err == nil {
		return int64(u), nil
	}
	return 0, n.errorf("invalid i%d literal %q", bits, s)
}

func parseFloat(n *node, bits int) (float64, error) {
	v, err := strconv.ParseFloat(n.tok.value, bits)
	if err != nil {
		return 0, n.errorf("invalid f%d literal %q", bits, n.tok.value)
	}
	return v, nil
}

func errorAt(n *node, msg string) error {
	if n == nil {
		return fmt.Errorf("%s, got end of list", msg)
	}
	return n.errorf("%s, got %s", msg, n)
}

func isIndex(n *node) bool {
	if n == nil || !n.isAtom() {
		return false
	}
	if n.isName() {
		return true
	}
	_, err := strconv.ParseUint(n.tok.value, 0, 32)
	return err == nil
}
