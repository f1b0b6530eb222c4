package bindgen

import (
	"go/token"
	"go/types"
	"strings"
	"unicode"
)

// initialisms are rendered in a single case, following Go naming style.
var initialisms = map[string]bool{
	"API": true, "ASCII": true, "CPU": true, "CSS": true, "DNS": true,
	"EOF": true, "FD": true, "GUID": true, "HTML": true, "HTTP": true,
	"HTTPS": true, "ID": true, "IO": true, "IP": true, "JSON": true,
	"OS": true, "RPC": true, "SQL": true, "TCP": true, "TLS": true,
	"TTL": true, "UDP": true, "UI": true, "URI": true, "URL": true,
	"UTF8": true, "UUID": true, "WASI": true, "WASM": true, "WIT": true,
	"XML": true,
}

// words splits a WIT kebab-case identifier. A leading % escapes WIT
// keywords and is dropped.
func words(name string) []string {
	name = strings.TrimPrefix(name, "%")
	var out []string
	for _, w := range strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' '
	}) {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

func titleWord(w string) string {
	if up := strings.ToUpper(w); initialisms[up] {
		return up
	}
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// pascal renders a WIT identifier as an exported Go identifier:
// "get-user-id" becomes "GetUserID".
func pascal(name string) string {
	var b strings.Builder
	for _, w := range words(name) {
		b.WriteString(titleWord(w))
	}
	return sanitize(b.String())
}

// camel renders a WIT identifier as an unexported Go identifier:
// "user-id" becomes "userID", "url" becomes "url".
func camel(name string) string {
	ws := words(name)
	if len(ws) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(ws[0]))
	for _, w := range ws[1:] {
		b.WriteString(titleWord(w))
	}
	return sanitize(b.String())
}

// lowerFirst lowercases the leading initialism or letter of an exported
// identifier: "Math" becomes "math", "HTTPClient" becomes "httpClient".
func lowerFirst(s string) string {
	r := []rune(s)
	n := 0
	for n < len(r) && unicode.IsUpper(r[n]) {
		n++
	}
	if n == 0 {
		return s
	}
	if n > 1 && n < len(r) && unicode.IsLower(r[n]) {
		n-- // the last upper letter starts the next word
	}
	for i := 0; i < n; i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

// sanitize drops characters that cannot appear in Go identifiers and
// guards against a leading digit.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out != "" && unicode.IsDigit([]rune(out)[0]) {
		out = "X" + out
	}
	return out
}

// localNames are identifiers generated functions declare or reference in
// the scope of user-named parameters. Conversion closure parameters are
// absent: a closure only reads its own parameter, so shadowing is harmless.
var localNames = map[string]bool{
	"ctx": true, "err": true, "e": true, "r": true, "zero": true,
	"params": true, "results": true, "impl": true, "mu": true, "li": true,
	"linker": true, "store": true, "inst": true, "exp": true,
	"component": true, "imports": true, "exports": true,
	"context": true, "sync": true, "errors": true, "host": true,
	"marshal": true, "value": true,
}

// paramName renders a parameter as a Go identifier that cannot shadow a
// keyword, a predeclared identifier or a name the generated code uses.
func paramName(name string) string {
	id := camel(name)
	if id == "" {
		id = "arg"
	}
	if token.IsKeyword(id) || types.Universe.Lookup(id) != nil || localNames[id] {
		id += "_"
	}
	return id
}

// packageName derives a Go package name from a world name.
func packageName(world string) string {
	var b strings.Builder
	for _, w := range words(world) {
		b.WriteString(strings.ToLower(w))
	}
	name := sanitize(b.String())
	if name == "" {
		return "bindings"
	}
	if token.IsKeyword(name) {
		name += "wit"
	}
	return name
}

// reservedNames are exported identifiers the generated file declares
// itself, or methods of Exports that a field must not shadow.
var reservedNames = map[string]bool{
	"WITSource": true, "Sources": true, "Imports": true, "Exports": true,
	"Instantiate": true, "Store": true, "Instance": true, "Close": true,
}
