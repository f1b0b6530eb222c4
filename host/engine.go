package host

import (
	"context"

	"github.com/tetratelabs/wazero"
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// CloseOnContextDone makes running guest code observe context
	// cancellation. It slows down guest execution.
	CloseOnContextDone bool
}

// Engine holds runtime configuration and a compilation cache shared by
// every store created from it. An Engine is safe for concurrent use.
type Engine struct {
	runtimeConfig wazero.RuntimeConfig
	cache         wazero.CompilationCache
}

// NewEngine creates an engine. cfg may be nil.
func NewEngine(cfg *Config) *Engine {
	cache := wazero.NewCompilationCache()
	rc := wazero.NewRuntimeConfig().WithCompilationCache(cache)
	if cfg != nil {
		if cfg.MemoryLimitPages > 0 {
			rc = rc.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
		if cfg.CloseOnContextDone {
			rc = rc.WithCloseOnContextDone(true)
		}
	}
	return &Engine{runtimeConfig: rc, cache: cache}
}

func (e *Engine) newRuntime(ctx context.Context) wazero.Runtime {
	return wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig)
}

// Close releases the compilation cache. Stores created from the engine
// must be closed first.
func (e *Engine) Close(ctx context.Context) error {
	return e.cache.Close(ctx)
}
