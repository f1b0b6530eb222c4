package host

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/witbind/errors"
	"github.com/wippyai/witbind/value"
)

// Context is implemented by *Store[T] for every T. It lets the linker
// accept stores regardless of their user data type.
type Context interface {
	state() *storeState
}

// storeState is the type-independent part of a store.
type storeState struct {
	engine  *Engine
	runtime wazero.Runtime

	// mu serializes every call into the store's instance. It is not
	// reentrant; see enter.
	mu       sync.Mutex
	closed   bool
	instance *Instance
	errs     errorTable

	// hostErr is the first error raised by a host function during the
	// current call. Guarded by mu.
	hostErr error
}

// Store owns one wazero runtime, at most one live instance and the user
// data T. All calls into the instance are serialized by the store's lock.
type Store[T any] struct {
	data T
	st   *storeState
}

// NewStore creates a store backed by a fresh runtime from engine.
func NewStore[T any](ctx context.Context, engine *Engine, data T) *Store[T] {
	return &Store[T]{
		data: data,
		st: &storeState{
			engine:  engine,
			runtime: engine.newRuntime(ctx),
		},
	}
}

// Data returns a pointer to the store's user data.
func (s *Store[T]) Data() *T { return &s.data }

// Engine returns the engine the store was created from.
func (s *Store[T]) Engine() *Engine { return s.st.engine }

func (s *Store[T]) state() *storeState { return s.st }

// Call invokes fn with the store lock held for the whole call, including
// any host functions the guest calls back into. A call made from within a
// host function of the same store, with the context that host function
// received, fails with a reentrant error instead of deadlocking.
func (s *Store[T]) Call(ctx context.Context, fn *TypedFunc, args ...value.Value) ([]value.Value, error) {
	return s.st.call(ctx, fn, args)
}

// Close releases the instance and the runtime. It is safe to call more
// than once.
func (s *Store[T]) Close(ctx context.Context) error {
	st := s.st
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return nil
	}
	st.closed = true
	st.instance = nil
	return st.runtime.Close(ctx)
}

func (s *storeState) call(ctx context.Context, fn *TypedFunc, args []value.Value) ([]value.Value, error) {
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseCall, "nil function handle")
	}
	if active(ctx, s) {
		return nil, errors.New(errors.PhaseCall, errors.KindReentrant).
			Path(fn.iface.String(), fn.name).
			Detail("store is already executing a call on this context").
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New(errors.PhaseCall, errors.KindClosed).
			Path(fn.iface.String(), fn.name).
			Detail("store is closed").
			Build()
	}
	if fn.inst == nil || fn.inst.store != s || s.instance != fn.inst {
		return nil, errors.InvalidInput(errors.PhaseCall, "function handle does not belong to this store's instance")
	}

	s.hostErr = nil
	return fn.inst.invoke(enter(ctx, s), fn, args)
}

func (s *storeState) recordHostError(err error) {
	if s.hostErr == nil {
		s.hostErr = err
	}
}

type activeKey struct{}

// activeCall links the stores currently executing on a context.
type activeCall struct {
	store  *storeState
	parent *activeCall
}

func enter(ctx context.Context, s *storeState) context.Context {
	parent, _ := ctx.Value(activeKey{}).(*activeCall)
	return context.WithValue(ctx, activeKey{}, &activeCall{store: s, parent: parent})
}

func active(ctx context.Context, s *storeState) bool {
	if ctx == nil {
		return false
	}
	for c, _ := ctx.Value(activeKey{}).(*activeCall); c != nil; c = c.parent {
		if c.store == s {
			return true
		}
	}
	return false
}
