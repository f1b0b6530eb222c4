package host

import (
	"strconv"
	"strings"

	"github.com/coreos/go-semver/semver"

	"github.com/wippyai/witbind/errors"
)

// PackageID identifies a WIT package.
type PackageID struct {
	Namespace string
	Name      string
	Version   *semver.Version
}

// InterfaceID identifies an interface a component imports or exports. The
// zero value is the root interface holding world-level functions.
type InterfaceID struct {
	Package PackageID
	Name    string
}

// RootInterface identifies world-level functions.
var RootInterface = InterfaceID{}

// IsRoot reports whether id is the root interface.
func (id InterfaceID) IsRoot() bool {
	return id.Name == "" && id.Package.Namespace == ""
}

// String renders ns:pkg/name@version, the bare name for package-less
// interfaces, or "$root".
func (id InterfaceID) String() string {
	if id.IsRoot() {
		return "$root"
	}
	return id.render(fullVersion)
}

// canonical renders the interface with its version reduced to the
// compatibility-significant prefix.
func (id InterfaceID) canonical() string {
	return id.render(CanonicalVersion)
}

func (id InterfaceID) render(version func(*semver.Version) string) string {
	if id.Package.Namespace == "" {
		return id.Name
	}
	var b strings.Builder
	b.WriteString(id.Package.Namespace)
	b.WriteByte(':')
	b.WriteString(id.Package.Name)
	b.WriteByte('/')
	b.WriteString(id.Name)
	if id.Package.Version != nil {
		b.WriteByte('@')
		b.WriteString(version(id.Package.Version))
	}
	return b.String()
}

// Matches reports whether id and other name the same interface at
// compatible versions.
func (id InterfaceID) Matches(other InterfaceID) bool {
	if id.Name != other.Name ||
		id.Package.Namespace != other.Package.Namespace ||
		id.Package.Name != other.Package.Name {
		return false
	}
	a, b := id.Package.Version, other.Package.Version
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return CanonicalVersion(a) == CanonicalVersion(b)
}

func fullVersion(v *semver.Version) string { return v.String() }

// CanonicalVersion reduces v to the part that determines compatibility:
// the major version when nonzero, otherwise 0.minor when nonzero,
// otherwise 0.0.patch. Pre-release versions are kept whole.
func CanonicalVersion(v *semver.Version) string {
	if v.PreRelease != "" {
		return v.String()
	}
	switch {
	case v.Major > 0:
		return strconv.FormatInt(v.Major, 10)
	case v.Minor > 0:
		return "0." + strconv.FormatInt(v.Minor, 10)
	}
	return "0.0." + strconv.FormatInt(v.Patch, 10)
}

// ParseInterfaceID parses "ns:pkg/name", "ns:pkg/name@version" or a bare
// interface name. Versions may be canonical ("0.2", "1").
func ParseInterfaceID(s string) (InterfaceID, error) {
	if s == "" || s == "$root" {
		return RootInterface, nil
	}

	path, ver, hasVersion := strings.Cut(s, "@")
	slash := strings.LastIndexByte(path, '/')
	if slash < 0 {
		if hasVersion || strings.ContainsAny(path, ":/") {
			return InterfaceID{}, errors.InvalidInput(errors.PhaseLoad, "malformed interface name "+strconv.Quote(s))
		}
		return InterfaceID{Name: path}, nil
	}

	pkg, name := path[:slash], path[slash+1:]
	ns, pkgName, ok := strings.Cut(pkg, ":")
	if !ok || ns == "" || pkgName == "" || name == "" {
		return InterfaceID{}, errors.InvalidInput(errors.PhaseLoad, "malformed interface name "+strconv.Quote(s))
	}

	id := InterfaceID{Package: PackageID{Namespace: ns, Name: pkgName}, Name: name}
	if hasVersion {
		v, err := parseVersion(ver)
		if err != nil {
			return InterfaceID{}, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
				Detail("interface %q has invalid version", s).
				Cause(err).
				Build()
		}
		id.Package.Version = v
	}
	return id, nil
}

// MustParseInterfaceID is ParseInterfaceID that panics on error. It is
// meant for generated package-level variables.
func MustParseInterfaceID(s string) InterfaceID {
	id, err := ParseInterfaceID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// parseVersion accepts full semver and the canonical short forms.
func parseVersion(s string) (*semver.Version, error) {
	core, rest := s, ""
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		core, rest = s[:i], s[i:]
	}
	switch strings.Count(core, ".") {
	case 0:
		core += ".0.0"
	case 1:
		core += ".0"
	}
	return semver.NewVersion(core + rest)
}
