package wat

import (
	"fmt"
	"unicode"
)

type tokenType int

const (
	tokLParen tokenType = iota
	tokRParen
	tokAtom
	tokString
)

func (t tokenType) String() string {
	switch t {
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokAtom:
		return "atom"
	case tokString:
		return "string"
	}
	return "unknown"
}

type token struct {
	value string
	typ   tokenType
	line  int
}

// tokenize splits source into parens, atoms and decoded string literals.
func tokenize(src string) ([]token, error) {
	var tokens []token
	line := 1
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\n':
			line++
		case c == ' ' || c == '\t' || c == '\r':
		case c == ';' && i+1 < len(src) && src[i+1] == ';':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			line++
		case c == '(' && i+1 < len(src) && src[i+1] == ';':
			depth := 1
			start := line
			for i += 2; depth > 0; i++ {
				if i+1 >= len(src) {
					return nil, fmt.Errorf("line %d: unterminated block comment", start)
				}
				switch {
				case src[i] == '(' && src[i+1] == ';':
					depth++
					i++
				case src[i] == ';' && src[i+1] == ')':
					depth--
					i++
				case src[i] == '\n':
					line++
				}
			}
			i--
		case c == '(':
			tokens = append(tokens, token{"(", tokLParen, line})
		case c == ')':
			tokens = append(tokens, token{")", tokRParen, line})
		case c == '"':
			s, n, err := readString(src[i+1:])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			tokens = append(tokens, token{s, tokString, line})
			i += n
		default:
			start := i
			for i < len(src) && isAtomChar(src[i]) {
				i++
			}
			if i == start {
				return nil, fmt.Errorf("line %d: unexpected character %q", line, c)
			}
			tokens = append(tokens, token{src[start:i], tokAtom, line})
			i--
		}
	}
	return tokens, nil
}

func isAtomChar(c byte) bool {
	if c >= 0x80 {
		return true
	}
	if unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) {
		return true
	}
	switch c {
	case '(', ')', '"', ';', ' ', '\t', '\n', '\r':
		return false
	}
	return c > ' '
}

// readString decodes a literal whose opening quote was consumed. It
// returns the text and the count of source bytes read, closing quote
// included.
func readString(src string) (string, int, error) {
	var out []byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch c {
		case '"':
			return string(out), i + 1, nil
		case '\n':
			return "", 0, fmt.Errorf("newline in string")
		case '\\':
			i++
			if i >= len(src) {
				return "", 0, fmt.Errorf("unterminated string")
			}
			switch e := src[i]; e {
			case 'n':
				out = append(out, '\n')
			case 't':
				out = append(out, '\t')
			case 'r':
				out = append(out, '\r')
			case '\\', '"', '\'':
				out = append(out, e)
			case 'u':
				end := i + 1
				for end < len(src) && src[end] != '}' {
					end++
				}
				if i+1 >= len(src) || src[i+1] != '{' || end >= len(src) {
					return "", 0, fmt.Errorf("malformed unicode escape")
				}
				var r rune
				if _, err := fmt.Sscanf(src[i+2:end], "%x", &r); err != nil {
					return "", 0, fmt.Errorf("malformed unicode escape: %w", err)
				}
				out = append(out, string(r)...)
				i = end
			default:
				if i+1 >= len(src) || !isHex(e) || !isHex(src[i+1]) {
					return "", 0, fmt.Errorf("unknown escape \\%c", e)
				}
				out = append(out, hexVal(e)<<4|hexVal(src[i+1]))
				i++
			}
		default:
			out = append(out, c)
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	}
	return c - '0'
}
