package host

import "strings"

// NameScheme is the convention a core module uses to name its component
// imports, exports and canonical ABI helpers.
type NameScheme uint8

const (
	// SchemeLegacy is the wit-bindgen convention: import modules are full
	// interface names, exports are "iface#func" and helpers are "memory",
	// "cabi_realloc", "_initialize" and "cabi_post_*".
	SchemeLegacy NameScheme = iota
	// SchemeCM32P2 is the cm32p2 convention: names are prefixed with
	// "cm32p2", versions are canonical and helpers are "cm32p2_*".
	SchemeCM32P2
)

const (
	cm32p2Prefix = "cm32p2"
	legacyRoot   = "$root"
)

func (s NameScheme) String() string {
	if s == SchemeCM32P2 {
		return "cm32p2"
	}
	return "legacy"
}

// MemoryExport is the name of the exported linear memory.
func (s NameScheme) MemoryExport() string {
	if s == SchemeCM32P2 {
		return "cm32p2_memory"
	}
	return "memory"
}

// ReallocExport is the name of the exported allocator.
func (s NameScheme) ReallocExport() string {
	if s == SchemeCM32P2 {
		return "cm32p2_realloc"
	}
	return "cabi_realloc"
}

// InitializeExport is the name of the optional initializer export.
func (s NameScheme) InitializeExport() string {
	if s == SchemeCM32P2 {
		return "cm32p2_initialize"
	}
	return "_initialize"
}

// ImportModule returns the core import module name for id.
func (s NameScheme) ImportModule(id InterfaceID) string {
	if s == SchemeCM32P2 {
		if id.IsRoot() {
			return cm32p2Prefix
		}
		return cm32p2Prefix + "|" + id.canonical()
	}
	if id.IsRoot() {
		return legacyRoot
	}
	return id.String()
}

// ExportName returns the core export name of function fn in id.
func (s NameScheme) ExportName(id InterfaceID, fn string) string {
	if s == SchemeCM32P2 {
		if id.IsRoot() {
			return cm32p2Prefix + "||" + fn
		}
		return cm32p2Prefix + "|" + id.canonical() + "|" + fn
	}
	if id.IsRoot() {
		return fn
	}
	return id.String() + "#" + fn
}

// PostReturnName returns the post-return helper name for an export.
func (s NameScheme) PostReturnName(export string) string {
	if s == SchemeCM32P2 {
		return export + "_post"
	}
	return "cabi_post_" + export
}

func (s NameScheme) parseImportModule(module string) (InterfaceID, error) {
	if s == SchemeCM32P2 {
		if module == cm32p2Prefix {
			return RootInterface, nil
		}
		if rest, ok := strings.CutPrefix(module, cm32p2Prefix+"|"); ok {
			return ParseInterfaceID(rest)
		}
	}
	if module == legacyRoot {
		return RootInterface, nil
	}
	return ParseInterfaceID(module)
}

// parseExportName splits an export name into interface and function. ok is
// false for helper exports that are not component functions.
func (s NameScheme) parseExportName(name string) (id InterfaceID, fn string, ok bool) {
	if s.isHelper(name) {
		return InterfaceID{}, "", false
	}
	if s == SchemeCM32P2 {
		rest, found := strings.CutPrefix(name, cm32p2Prefix+"|")
		if !found {
			return InterfaceID{}, "", false
		}
		iface, fn, found := strings.Cut(rest, "|")
		if !found || fn == "" {
			return InterfaceID{}, "", false
		}
		if iface == "" {
			return RootInterface, fn, true
		}
		parsed, err := ParseInterfaceID(iface)
		if err != nil {
			return InterfaceID{}, "", false
		}
		return parsed, fn, true
	}

	iface, fn, found := strings.Cut(name, "#")
	if !found {
		return RootInterface, name, true
	}
	parsed, err := ParseInterfaceID(iface)
	if err != nil || fn == "" {
		return InterfaceID{}, "", false
	}
	return parsed, fn, true
}

func (s NameScheme) isHelper(name string) bool {
	if s == SchemeCM32P2 {
		return strings.HasPrefix(name, cm32p2Prefix+"_") ||
			(strings.HasPrefix(name, cm32p2Prefix+"|") && strings.HasSuffix(name, "_post"))
	}
	switch name {
	case "memory", "_initialize", "_start":
		return true
	}
	return strings.HasPrefix(name, "cabi_") || strings.HasPrefix(name, "__")
}

func detectScheme(importModules, exportNames []string) NameScheme {
	for _, m := range importModules {
		if m == cm32p2Prefix || strings.HasPrefix(m, cm32p2Prefix+"|") {
			return SchemeCM32P2
		}
	}
	for _, n := range exportNames {
		if strings.HasPrefix(n, cm32p2Prefix+"|") || strings.HasPrefix(n, cm32p2Prefix+"_") {
			return SchemeCM32P2
		}
	}
	return SchemeLegacy
}
