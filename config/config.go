// Package config holds the generator configuration: the WIT targets to
// generate and the CLI's ambient settings.
package config

import (
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/witload"
)

// Defaults.
const (
	DefaultFile     = "witbind.yaml"
	DefaultLogLevel = "info"
	DefaultFormat   = "table"
	DefaultDebounce = 200 * time.Millisecond
	EnvPrefix       = "WITBIND_"
)

// Target is one generation: WIT input, world and output file.
type Target struct {
	Path    string `koanf:"path" json:"path,omitempty" validate:"required_without=Inline,excluded_with=Inline" jsonschema:"description=WIT file or directory"`
	Inline  string `koanf:"inline" json:"inline,omitempty" validate:"required_without=Path" jsonschema:"description=WIT text given directly"`
	World   string `koanf:"world" json:"world,omitempty" jsonschema:"description=World name or ns:pkg/world; optional when the WIT defines one world"`
	Package string `koanf:"package" json:"package,omitempty" jsonschema:"description=Go package name of the generated file"`
	Out     string `koanf:"out" json:"out" validate:"required" jsonschema:"description=Output file path"`
}

// Source returns the WIT source of t.
func (t Target) Source() witload.Source {
	return witload.Source{Path: t.Path, Inline: t.Inline}
}

// Config is the generator configuration. The top-level path, inline,
// world, package and out keys describe one implicit target, which is how
// CLI flags select what to generate.
type Config struct {
	Path    string `koanf:"path" json:"path,omitempty" jsonschema:"description=WIT file or directory of the implicit target"`
	Inline  string `koanf:"inline" json:"inline,omitempty" jsonschema:"description=WIT text of the implicit target"`
	World   string `koanf:"world" json:"world,omitempty" jsonschema:"description=World of the implicit target"`
	Package string `koanf:"package" json:"package,omitempty" jsonschema:"description=Go package of the implicit target"`
	Out     string `koanf:"out" json:"out,omitempty" jsonschema:"description=Output file of the implicit target"`

	Targets []Target `koanf:"targets" json:"targets,omitempty" jsonschema:"description=Additional generation targets"`

	LogLevel string        `koanf:"log_level" json:"log_level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format   string        `koanf:"format" json:"format" validate:"oneof=table yaml json" jsonschema:"enum=table,enum=yaml,enum=json"`
	Watch    bool          `koanf:"watch" json:"watch,omitempty" jsonschema:"description=Regenerate when WIT files change"`
	Debounce time.Duration `koanf:"debounce" json:"debounce" validate:"gte=0" jsonschema:"type=string,description=Quiet period before regenerating in watch mode"`
}

var validate = validator.New()

// AllTargets returns the implicit target, when its path or inline text is
// set, followed by Targets.
func (c *Config) AllTargets() []Target {
	var out []Target
	if c.Path != "" || c.Inline != "" {
		out = append(out, Target{Path: c.Path, Inline: c.Inline, World: c.World, Package: c.Package, Out: c.Out})
	}
	return append(out, c.Targets...)
}

// Validate checks c and every target.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid configuration")
	}
	for i, t := range c.AllTargets() {
		if err := validate.Struct(t); err != nil {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path("targets", targetName(i, t)).
				Detail("invalid target").
				Cause(err).
				Build()
		}
	}
	return nil
}

func targetName(i int, t Target) string {
	if t.Out != "" {
		return t.Out
	}
	return "#" + strconv.Itoa(i)
}
