package witload

import (
	"os"
	"path/filepath"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/witmodel"
)

// Load parses and resolves the WIT behind src. It returns the converted
// model and the source text it was read from.
func Load(src Source) (*witmodel.Model, []witmodel.SourceFile, error) {
	files, err := SourceFiles(src)
	if err != nil {
		return nil, nil, err
	}

	path := src.Path
	if path == "" {
		dir, err := os.MkdirTemp("", "witbind-*")
		if err != nil {
			return nil, nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidInput, err, "create scratch directory")
		}
		defer os.RemoveAll(dir)
		path = filepath.Join(dir, InlineName)
		if err := os.WriteFile(path, []byte(src.Inline), 0o600); err != nil {
			return nil, nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidInput, err, "write inline WIT")
		}
	}

	res, err := wit.LoadWIT(path)
	if err != nil {
		return nil, nil, errors.ParseFailed(src.String(), err)
	}

	model, err := Convert(res)
	if err != nil {
		return nil, nil, err
	}

	Logger().Debug("loaded WIT",
		zap.String("source", src.String()),
		zap.Int("files", len(files)),
		zap.Int("packages", len(model.Packages)),
		zap.Int("worlds", len(model.Worlds)),
		zap.Int("interfaces", len(model.Interfaces)))
	return model, files, nil
}
