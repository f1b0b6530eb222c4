package witload

import (
	"strings"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/witmodel"
)

// SelectWorld picks the world to generate. An empty name selects the only
// world of the model. A bare name must match exactly one world; a qualified
// ns:pkg/world name, optionally versioned, resolves between worlds that
// share a name.
func SelectWorld(model *witmodel.Model, name string) (*witmodel.World, error) {
	if model == nil || len(model.Worlds) == 0 {
		return nil, errors.New(errors.PhaseSelect, errors.KindNotFound).
			Detail("the WIT defines no worlds").
			Build()
	}

	var matches []*witmodel.World
	switch {
	case name == "":
		matches = model.Worlds
	case strings.Contains(name, "/"):
		want := stripVersion(name)
		for _, w := range model.Worlds {
			if w.QualifiedName() == want {
				matches = append(matches, w)
			}
		}
	default:
		for _, w := range model.Worlds {
			if w.Name == name {
				matches = append(matches, w)
			}
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return nil, errors.New(errors.PhaseSelect, errors.KindNotFound).
			Path(name).
			Detail("no such world; candidates: %s", candidates(model.Worlds)).
			Build()
	}
	if name == "" {
		return nil, errors.New(errors.PhaseSelect, errors.KindAmbiguous).
			Detail("several worlds are defined, choose one of: %s", candidates(matches)).
			Build()
	}
	return nil, errors.New(errors.PhaseSelect, errors.KindAmbiguous).
		Path(name).
		Detail("the name matches several worlds, qualify it as one of: %s", candidates(matches)).
		Build()
}

func stripVersion(name string) string {
	if i := strings.LastIndexByte(name, '@'); i > strings.LastIndexByte(name, '/') {
		return name[:i]
	}
	return name
}

func candidates(worlds []*witmodel.World) string {
	names := make([]string, len(worlds))
	for i, w := range worlds {
		names[i] = w.QualifiedName()
	}
	return strings.Join(names, ", ")
}
