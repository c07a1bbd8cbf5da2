package worker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/spyglass/inspect"
	"github.com/chazu/spyglass/wire"
)

// ErrUnknownOp reports a request naming an operation outside the registered
// set.
var ErrUnknownOp = errors.New("worker: unknown operation")

// OpFunc is a context-free operation: it runs without any session state.
type OpFunc func(args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// SessionOpFunc runs against one session. Handle arguments arrive already
// resolved to live access wrappers.
type SessionOpFunc func(s *Session, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

// Info describes this worker to the host. The host reads it once, before
// any other traffic, to settle the protocol version.
type Info struct {
	SupportRoot    string
	RuntimeVersion string
	// Protocol is the worker's native protocol version. Zero means the
	// newest version this build speaks.
	Protocol uint8
}

// Registry holds the closed set of operations a worker can execute, plus
// the named root objects inspection starts from. Embedders register roots
// and may add operations of their own before the listener starts.
type Registry struct {
	info Info

	mu      sync.RWMutex
	free    map[string]OpFunc
	session map[string]SessionOpFunc
	roots   map[string]interface{}
}

// NewRegistry creates a registry with the built-in operation set.
func NewRegistry(info Info) *Registry {
	if info.Protocol == 0 {
		info.Protocol = wire.MaxProtocol
	}
	r := &Registry{
		info:    info,
		free:    make(map[string]OpFunc),
		session: make(map[string]SessionOpFunc),
		roots:   make(map[string]interface{}),
	}
	r.RegisterFree(wire.OpWorkerInfo, r.workerInfo)
	r.RegisterFree(wire.OpSearchPath, r.searchPath)
	r.RegisterSession(wire.OpAccessInvoke, accessInvoke)
	r.RegisterSession(wire.OpGetRoot, r.getRoot)
	return r
}

// RegisterFree adds a context-free operation.
func (r *Registry) RegisterFree(name string, fn OpFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.free[name] = fn
}

// RegisterSession adds a session operation.
func (r *Registry) RegisterSession(name string, fn SessionOpFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session[name] = fn
}

// RegisterRoot exposes a named object as an inspection root.
func (r *Registry) RegisterRoot(name string, obj interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots[name] = obj
}

func (r *Registry) lookupFree(name string) (OpFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.free[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, name)
	}
	return fn, nil
}

func (r *Registry) lookupSession(name string) (SessionOpFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.session[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, name)
	}
	return fn, nil
}

func (r *Registry) workerInfo(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		wire.InfoProtocol:   int64(r.info.Protocol),
		wire.InfoRuntime:    r.info.RuntimeVersion,
		wire.InfoSearchPath: r.searchDirs(),
	}, nil
}

func (r *Registry) searchPath(args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	return r.searchDirs(), nil
}

func (r *Registry) searchDirs() []interface{} {
	if r.info.SupportRoot == "" {
		return nil
	}
	return []interface{}{r.info.SupportRoot}
}

// getRoot wraps a registered root object for a session and returns its
// access wrapper, which crosses back to the host as a handle.
func (r *Registry) getRoot(s *Session, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("worker: get_root takes exactly one argument, got %d", len(args))
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("worker: get_root wants a string argument, got %T", args[0])
	}
	r.mu.RLock()
	obj, ok := r.roots[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("worker: no root object named %q", name)
	}
	_, access := s.Handles.GetOrCreate(obj, func() *inspect.Access {
		return inspect.NewAccess(obj, name)
	})
	return access, nil
}

// accessInvoke dispatches one introspection operation on a live wrapper:
// args are (wrapper, operation name, operation args...).
func accessInvoke(s *Session, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("worker: access_invoke wants (handle, op, ...), got %d arguments", len(args))
	}
	access, ok := args[0].(*inspect.Access)
	if !ok {
		return nil, fmt.Errorf("worker: access_invoke wants a handle first, got %T", args[0])
	}
	op, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("worker: access_invoke wants an operation name second, got %T", args[1])
	}
	return access.Invoke(inspect.Op(op), args[2:]...)
}
