package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/wippyai/witbind/config"
	"github.com/wippyai/witbind/errors"
)

// watch regenerates every target after WIT files under the targets' paths
// change and stay quiet for debounce. Generation errors are logged, not
// returned; watch ends when ctx is done.
func watch(ctx context.Context, log *zap.Logger, targets []config.Target, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "create watcher")
	}
	defer func() { _ = watcher.Close() }()

	watched := 0
	for _, t := range targets {
		if t.Path == "" {
			continue
		}
		if err := watchPath(watcher, t.Path); err != nil {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(t.Path).
				Detail("watch WIT path").
				Cause(err).
				Build()
		}
		watched++
	}
	if watched == 0 {
		return errors.InvalidInput(errors.PhaseConfig, "watch mode needs at least one target with a path")
	}
	log.Info("watching for changes", zap.Int("targets", len(targets)))

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) {
				// files may land in the directory before it is watched
				if err := watchPath(watcher, event.Name); err != nil {
					log.Warn("watch new directory", zap.String("dir", event.Name), zap.Error(err))
				} else {
					log.Debug("watching new directory", zap.String("dir", event.Name))
				}
			} else {
				if filepath.Ext(event.Name) != ".wit" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
			}
			log.Debug("change detected", zap.String("file", event.Name), zap.Stringer("op", event.Op))
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if err := generateAll(ctx, log, targets); err != nil {
				log.Error("regeneration failed", zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}

// watchPath adds a file's directory, or a directory and its
// subdirectories, to the watcher.
func watchPath(watcher *fsnotify.Watcher, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(filepath.Dir(path))
	}
	return filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
