package bindgen

import (
	"go.uber.org/zap"

	"github.com/wippyai/witbind/witmodel"
)

// Generate renders the bindings of world as a formatted Go source file.
// Identical inputs produce byte-identical output.
func Generate(model *witmodel.Model, world *witmodel.World, opts Options) ([]byte, error) {
	plan, err := BuildPlan(model, world, opts)
	if err != nil {
		return nil, err
	}
	out, err := plan.Emit()
	if err != nil {
		return nil, err
	}
	Logger().Info("generated bindings",
		zap.String("world", plan.World),
		zap.String("package", plan.Package),
		zap.Int("bytes", len(out)))
	return out, nil
}
