package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Phase indicates which stage produced the error
type Phase string

const (
	PhaseParse       Phase = "parse"       // WIT parsing and resolution
	PhaseSelect      Phase = "select"      // world selection
	PhaseMap         Phase = "map"         // WIT type to Go type mapping
	PhasePlan        Phase = "plan"        // binding plan validation
	PhaseEmit        Phase = "emit"        // Go source rendering
	PhaseConfig      Phase = "config"      // generator configuration
	PhaseLoad        Phase = "load"        // component loading
	PhaseLink        Phase = "link"        // import resolution
	PhaseInstantiate Phase = "instantiate" // instance creation and export lookup
	PhaseEncode      Phase = "encode"      // Go to component values
	PhaseDecode      Phase = "decode"      // component values to Go
	PhaseCall        Phase = "call"        // function invocation
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidData       Kind = "invalid_data"
	KindNotFound          Kind = "not_found"
	KindAmbiguous         Kind = "ambiguous"
	KindUnsupported       Kind = "unsupported"
	KindDuplicate         Kind = "duplicate"
	KindConflict          Kind = "conflict"
	KindTypeMismatch      Kind = "type_mismatch"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindMissingImport     Kind = "missing_import"
	KindMissingExport     Kind = "missing_export"
	KindReentrant         Kind = "reentrant"
	KindClosed            Kind = "closed"
	KindTrap              Kind = "trap"
	KindAllocation        Kind = "allocation"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidUTF8       Kind = "invalid_utf8"
)

// Error is the structured error type used throughout witbind
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	GoType  string
	WitType string
	Detail  string
	Path    []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	typed := e.GoType != "" || e.WitType != ""
	if typed {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.WitType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", WIT type ")
			b.WriteString(e.WitType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("WIT type ")
			b.WriteString(e.WitType)
		}
	}

	if e.Detail != "" {
		if typed {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// WithPath returns a copy of e with prefix prepended to its path.
func (e *Error) WithPath(prefix ...string) *Error {
	cp := *e
	cp.Path = append(append([]string(nil), prefix...), e.Path...)
	return &cp
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the item path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WitType sets the WIT type name
func (b *Builder) WitType(t string) *Builder {
	b.err.WitType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, witType string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindTypeMismatch,
		Path:    path,
		GoType:  goType,
		WitType: witType,
	}
}

// Unsupported creates an unsupported construct error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Duplicate creates a duplicate definition error
func Duplicate(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Detail: fmt.Sprintf("duplicate %s %q", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// OutOfBounds creates a guest memory access error
func OutOfBounds(phase Phase, path []string, offset, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("%d bytes at offset %d out of bounds", size, offset),
		Value:  offset,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Load creates a component loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// SignatureMismatch reports a function whose core signature differs from
// the declared one.
func SignatureMismatch(phase Phase, iface, fn, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindSignatureMismatch,
		Path:   []string{iface, fn},
		Detail: fmt.Sprintf("expected %s, component has %s", want, got),
	}
}

// Trap wraps a guest trap raised during a call
func Trap(iface, fn string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindTrap,
		Path:   []string{iface, fn},
		Detail: "guest trapped",
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Interface string // e.g., "example:calculator/console@0.1.0"
	Function  string // e.g., "print"; empty when the whole interface is missing
}

// MissingImportsError is returned when instantiation fails because the
// linker does not provide everything the component imports
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "interface#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		iface, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Interface: iface,
			Function:  fn,
		})
	}
	return result
}

func parseImportKey(key string) (iface, function string) {
	ns, fn, found := strings.Cut(key, "#")
	if found {
		return ns, fn
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[link] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[link] missing_import: %d unresolved import(s):\n", len(e.Imports))

	byIface := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byIface[imp.Interface]; !exists {
			order = append(order, imp.Interface)
		}
		if imp.Function != "" {
			byIface[imp.Interface] = append(byIface[imp.Interface], imp.Function)
		} else if byIface[imp.Interface] == nil {
			byIface[imp.Interface] = []string{}
		}
	}

	for _, iface := range order {
		b.WriteString("\n  ")
		b.WriteString(iface)
		fns := byIface[iface]
		if len(fns) == 0 {
			b.WriteString(" (interface not provided)\n")
			continue
		}
		b.WriteString(":\n")
		sort.Strings(fns)
		for _, fn := range fns {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type. A MissingImportsError
// also matches a link-phase missing_import *Error.
func (e *MissingImportsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingImportsError:
		return true
	case *Error:
		return t.Phase == PhaseLink && t.Kind == KindMissingImport
	}
	return false
}
