package wat

import (
	"fmt"
	"strings"
)

// node is an atom, a string or a parenthesized list.
type node struct {
	tok  token
	list []*node
	line int
}

func (n *node) isList() bool { return n.tok.typ == tokLParen }

func (n *node) isAtom() bool { return n.tok.typ == tokAtom }

func (n *node) isString() bool { return n.tok.typ == tokString }

func (n *node) isName() bool { return n.isAtom() && strings.HasPrefix(n.tok.value, "$") }

// head returns the keyword a list starts with.
func (n *node) head() string {
	if !n.isList() || len(n.list) == 0 || !n.list[0].isAtom() {
		return ""
	}
	return n.list[0].tok.value
}

func (n *node) String() string {
	if n.isList() {
		return "(" + n.head() + " ...)"
	}
	return n.tok.value
}

func (n *node) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", n.line, fmt.Sprintf(format, args...))
}

// parseNodes builds the list tree of a token stream.
func parseNodes(tokens []token) ([]*node, error) {
	var stack [][]*node
	var opened []token
	var cur []*node
	for _, t := range tokens {
		switch t.typ {
		case tokLParen:
			stack = append(stack, cur)
			opened = append(opened, t)
			cur = nil
		case tokRParen:
			if len(stack) == 0 {
				return nil, fmt.Errorf("line %d: unexpected ')'", t.line)
			}
			open := opened[len(opened)-1]
			n := &node{tok: open, list: cur, line: open.line}
			cur = append(stack[len(stack)-1], n)
			stack = stack[:len(stack)-1]
			opened = opened[:len(opened)-1]
		default:
			cur = append(cur, &node{tok: t, line: t.line})
		}
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("line %d: unexpected end of input", opened[len(opened)-1].line)
	}
	return cur, nil
}

// cursor walks the items of a list.
type cursor struct {
	items []*node
	pos   int
	owner *node
}

func newCursor(n *node, skip int) *cursor {
	return &cursor{items: n.list, pos: skip, owner: n}
}

func (c *cursor) done() bool { return c.pos >= len(c.items) }

func (c *cursor) peek() *node {
	if c.done() {
		return nil
	}
	return c.items[c.pos]
}

func (c *cursor) next() *node {
	n := c.peek()
	if n != nil {
		c.pos++
	}
	return n
}

// peekList reports whether the next item is a list with the given head.
func (c *cursor) peekList(head string) bool {
	n := c.peek()
	return n != nil && n.head() == head
}

// name consumes an optional $name.
func (c *cursor) name() string {
	if n := c.peek(); n != nil && n.isName() {
		c.pos++
		return n.tok.value
	}
	return ""
}

func (c *cursor) atom(what string) (*node, error) {
	n := c.next()
	if n == nil {
		return nil, c.owner.errorf("unexpected end of %s, want %s", c.owner, what)
	}
	if !n.isAtom() {
		return nil, n.errorf("expected %s, got %s", what, n)
	}
	return n, nil
}

func (c *cursor) str(what string) (string, error) {
	n := c.next()
	if n == nil || !n.isString() {
		return "", c.owner.errorf("expected %s string", what)
	}
	return n.tok.value, nil
}
