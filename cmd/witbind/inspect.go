package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/witbind/config"
	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/host"
	"github.com/wippyai/witbind/witload"
	"github.com/wippyai/witbind/witmodel"
)

// item is one row of inspect output.
type item struct {
	World     string   `json:"world,omitempty" yaml:"world,omitempty"`
	Direction string   `json:"direction" yaml:"direction"`
	Name      string   `json:"name" yaml:"name"`
	Kind      string   `json:"kind" yaml:"kind"`
	Functions []string `json:"functions,omitempty" yaml:"functions,omitempty"`
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "List the imports and exports of WIT worlds or a guest binary",
		Long: `Inspect shows what a world imports and exports. The input is a WIT file or
directory (argument, --path or --inline) or a compiled guest, either a
canonical-ABI core module or a single-module component.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := stateFrom(cmd.Context())
			cfg := st.cfg.Config

			var (
				items []item
				err   error
			)
			switch {
			case len(args) == 1 && isBinary(args[0]):
				items, err = inspectBinary(cmd, args[0])
			case len(args) == 1:
				items, err = inspectWIT(witload.Source{Path: args[0]}, cfg.World)
			default:
				items, err = inspectWIT(witload.Source{Path: cfg.Path, Inline: cfg.Inline}, cfg.World)
			}
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), cfg.Format, items)
		},
	}
	fs := cmd.Flags()
	witFlags(fs)
	fs.StringP("format", "f", config.DefaultFormat, "output format (table|yaml|json)")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "yaml", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func isBinary(path string) bool {
	if filepath.Ext(path) == ".wasm" {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return false
	}
	return string(magic) == "\x00asm"
}

func inspectBinary(cmd *cobra.Command, path string) ([]item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read guest binary", err)
	}
	ctx := cmd.Context()
	engine := host.NewEngine(nil)
	defer engine.Close(ctx)

	c, err := host.NewComponent(ctx, engine, data)
	if err != nil {
		return nil, err
	}
	var items []item
	for _, info := range c.Imports() {
		items = append(items, item{Direction: "import", Name: info.Interface.String(), Kind: "interface", Functions: info.Functions})
	}
	for _, info := range c.Exports() {
		items = append(items, item{Direction: "export", Name: info.Interface.String(), Kind: "interface", Functions: info.Functions})
	}
	stateFrom(ctx).log.Sugar().Debugf("%s uses the %s naming scheme", path, c.Scheme())
	return items, nil
}

func inspectWIT(src witload.Source, world string) ([]item, error) {
	model, _, err := witload.Load(src)
	if err != nil {
		return nil, err
	}
	worlds := model.Worlds
	if world != "" {
		w, err := witload.SelectWorld(model, world)
		if err != nil {
			return nil, err
		}
		worlds = []*witmodel.World{w}
	}

	var items []item
	for _, w := range worlds {
		c := &collector{model: model, world: w.QualifiedName()}
		c.direction = "import"
		if err := witmodel.Walk(w.Imports, c); err != nil {
			return nil, err
		}
		c.direction = "export"
		if err := witmodel.Walk(w.Exports, c); err != nil {
			return nil, err
		}
		items = append(items, c.items...)
	}
	return items, nil
}

// collector turns world items into rows.
type collector struct {
	model     *witmodel.Model
	world     string
	direction string
	items     []item
}

func (c *collector) VisitInterface(key string, it *witmodel.InterfaceItem) error {
	var fns []string
	for _, f := range it.Interface.Functions {
		fns = append(fns, signature(f))
	}
	c.items = append(c.items, item{World: c.world, Direction: c.direction, Name: key, Kind: "interface", Functions: fns})
	return nil
}

func (c *collector) VisitFunction(key string, it *witmodel.FunctionItem) error {
	c.items = append(c.items, item{World: c.world, Direction: c.direction, Name: key, Kind: "function", Functions: []string{signature(it.Function)}})
	return nil
}

func (c *collector) VisitType(key string, it *witmodel.TypeItem) error {
	kind := "type"
	if def := c.model.TypeDef(it.Type); def != nil {
		kind = def.Kind.String()
	}
	c.items = append(c.items, item{World: c.world, Direction: c.direction, Name: key, Kind: kind})
	return nil
}

func signature(f *witmodel.Function) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Name + ": " + p.Type.String()
	}
	s := f.Name + ": func(" + strings.Join(params, ", ") + ")"
	if f.Result != nil {
		s += " -> " + f.Result.String()
	}
	return s
}

func render(w io.Writer, format string, items []item) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(items); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(items) == 0 {
		_, _ = fmt.Fprintln(w, "(no imports or exports)")
		return nil
	}
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"World", "Direction", "Name", "Kind", "Functions"})
	for _, it := range items {
		t.AppendRow(table.Row{it.World, it.Direction, it.Name, it.Kind, strings.Join(it.Functions, "\n")})
	}
	t.Render()
	return nil
}
