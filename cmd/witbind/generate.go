package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/witbind/bindgen"
	"github.com/wippyai/witbind/config"
	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/witload"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate bindings for one or more WIT worlds",
		Long: `Generate writes one Go file per target. A target comes from the --path or
--inline flags, or from the targets list of the config file. Targets run
concurrently; the first failure cancels the rest.`,
		Example: `  witbind generate --path wit --world calculator --out bindings/calculator.go
  witbind generate --config witbind.yaml --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := stateFrom(cmd.Context())
			targets := st.cfg.AllTargets()
			if len(targets) == 0 {
				return errors.InvalidInput(errors.PhaseConfig, "nothing to generate: set --path or --inline, or list targets in the config file")
			}
			if err := generateAll(cmd.Context(), st.log, targets); err != nil {
				return err
			}
			if !st.cfg.Watch {
				return nil
			}
			return watch(cmd.Context(), st.log, targets, st.cfg.Debounce)
		},
	}
	fs := cmd.Flags()
	witFlags(fs)
	fs.String("package", "", "Go package name (default: derived from the world name)")
	fs.StringP("out", "o", "", "output file, - for stdout")
	fs.BoolP("watch", "w", false, "regenerate when WIT files change")
	fs.Duration("debounce", config.DefaultDebounce, "quiet period before regenerating in watch mode")
	return cmd
}

// generateAll runs every target concurrently.
func generateAll(ctx context.Context, log *zap.Logger, targets []config.Target) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return generateTarget(log, t)
		})
	}
	return g.Wait()
}

func generateTarget(log *zap.Logger, t config.Target) error {
	start := time.Now()
	model, files, err := witload.Load(t.Source())
	if err != nil {
		return err
	}
	world, err := witload.SelectWorld(model, t.World)
	if err != nil {
		return err
	}
	out, err := bindgen.Generate(model, world, bindgen.Options{Package: t.Package, Sources: files})
	if err != nil {
		return err
	}
	if err := writeOutput(t.Out, out); err != nil {
		return err
	}
	log.Info("generated",
		zap.String("world", world.QualifiedName()),
		zap.String("out", t.Out),
		zap.Duration("took", time.Since(start)))
	return nil
}

// writeOutput replaces path atomically. Nothing is written when generation
// failed.
func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(errors.PhaseEmit, errors.KindInvalidInput, err, "create output directory")
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(errors.PhaseEmit, errors.KindInvalidInput, err, "create output file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(errors.PhaseEmit, errors.KindInvalidInput, err, "write output file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.PhaseEmit, errors.KindInvalidInput, err, "write output file")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(errors.PhaseEmit, errors.KindInvalidInput, err, "write output file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(errors.PhaseEmit, errors.KindInvalidInput, err, "replace output file")
	}
	return nil
}
