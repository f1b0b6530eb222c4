package witload

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/witmodel"
)

// InlineName is the source name given to inline WIT text.
const InlineName = "inline.wit"

// Source is where WIT text comes from. Exactly one field must be set.
type Source struct {
	// Path is a .wit file or a directory holding a package and its deps/.
	Path string

	// Inline is WIT text given directly.
	Inline string
}

// Validate checks that exactly one of Path and Inline is set.
func (s Source) Validate() error {
	switch {
	case s.Path != "" && s.Inline != "":
		return errors.InvalidInput(errors.PhaseParse, "path and inline WIT are mutually exclusive")
	case s.Path == "" && strings.TrimSpace(s.Inline) == "":
		return errors.InvalidInput(errors.PhaseParse, "a WIT path or inline WIT text is required")
	}
	return nil
}

func (s Source) String() string {
	if s.Path != "" {
		return s.Path
	}
	return InlineName
}

// SourceFiles returns the WIT text behind s: the file itself, every .wit
// file under a directory sorted by slash-separated relative name, or a
// single inline.wit.
func SourceFiles(s Source) ([]witmodel.SourceFile, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Path == "" {
		return []witmodel.SourceFile{{Name: InlineName, Text: s.Inline}}, nil
	}

	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindNotFound, err, "stat WIT path")
	}
	if !info.IsDir() {
		text, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidInput, err, "read WIT file")
		}
		return []witmodel.SourceFile{{Name: filepath.Base(s.Path), Text: string(text)}}, nil
	}

	var files []witmodel.SourceFile
	err = filepath.WalkDir(s.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".wit" {
			return nil
		}
		rel, err := filepath.Rel(s.Path, path)
		if err != nil {
			return err
		}
		text, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files = append(files, witmodel.SourceFile{Name: filepath.ToSlash(rel), Text: string(text)})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidInput, err, "read WIT directory")
	}
	if len(files) == 0 {
		return nil, errors.New(errors.PhaseParse, errors.KindNotFound).
			Path(s.Path).
			Detail("directory holds no .wit files").
			Build()
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
