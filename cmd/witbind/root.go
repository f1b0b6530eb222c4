package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wippyai/witbind/bindgen"
	"github.com/wippyai/witbind/config"
	"github.com/wippyai/witbind/host"
	"github.com/wippyai/witbind/witload"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

type stateKey struct{}

// state is what PersistentPreRunE hands to subcommands.
type state struct {
	cfg *config.Loaded
	log *zap.Logger
}

func stateFrom(ctx context.Context) *state {
	if s, ok := ctx.Value(stateKey{}).(*state); ok {
		return s
	}
	return &state{cfg: &config.Loaded{Config: &config.Config{}}, log: zap.NewNop()}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "witbind",
		Short: "Generate Go host bindings for WIT worlds",
		Long: `witbind reads a WIT package, selects a world and writes a Go file with
one contract interface per imported or exported interface, typed
marshaling glue and an Instantiate function for the component runtime.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(cfgFile, allFlags(cmd))
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			host.SetLogger(log.Named("host"))
			bindgen.SetLogger(log.Named("bindgen"))
			witload.SetLogger(log.Named("witload"))
			if cfg.File != "" {
				log.Debug("using config file", zap.String("path", cfg.File))
			}
			cmd.SetContext(context.WithValue(cmd.Context(), stateKey{}, &state{cfg: cfg, log: log}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./witbind.yaml)")
	root.PersistentFlags().String("log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")
	_ = root.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(newGenerateCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// allFlags merges a command's own and inherited flags so that the config
// loader sees every flag the user could have set.
func allFlags(cmd *cobra.Command) *pflag.FlagSet {
	fs := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	fs.AddFlagSet(cmd.Flags())
	fs.AddFlagSet(cmd.InheritedFlags())
	return fs
}

// witFlags registers the flags describing one WIT input.
func witFlags(fs *pflag.FlagSet) {
	fs.String("path", "", "WIT file or directory")
	fs.String("inline", "", "WIT text given directly")
	fs.String("world", "", "world name or ns:pkg/world")
}
