package worker

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/chazu/spyglass/inspect"
)

// ErrStaleHandle reports a handle id with no live object on this side. The
// failure is local to one request; the channel stays healthy and the host
// re-creates the reference as needed.
var ErrStaleHandle = errors.New("worker: no live object for handle")

// HandleStore is the worker-side registry of live access wrappers, keyed
// by handle id. Ids come from a monotonic counter rather than object
// identity so they stay stable regardless of how the runtime exposes
// identity. Repeated wraps of the same object reuse the same id where the
// object is identity-comparable; values that are neither comparable nor
// reference-like get a fresh id per wrap.
type HandleStore struct {
	mu    sync.Mutex
	next  uint64
	byID  map[uint64]*inspect.Access
	byObj map[interface{}]uint64
}

// NewHandleStore creates an empty handle store.
func NewHandleStore() *HandleStore {
	return &HandleStore{
		byID:  make(map[uint64]*inspect.Access),
		byObj: make(map[interface{}]uint64),
	}
}

// pointerKey stands in for reference-like values (maps, slices, funcs)
// that cannot be map keys themselves.
type pointerKey struct {
	ptr  uintptr
	kind reflect.Kind
}

func objKey(obj interface{}) (interface{}, bool) {
	if obj == nil {
		return nil, true
	}
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Func:
		return pointerKey{ptr: rv.Pointer(), kind: rv.Kind()}, true
	}
	if !rv.Type().Comparable() {
		return nil, false
	}
	return obj, true
}

// GetOrCreate returns the id of the wrapper for obj, registering the
// wrapper produced by wrap on first sight.
func (s *HandleStore) GetOrCreate(obj interface{}, wrap func() *inspect.Access) (uint64, *inspect.Access) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, comparable := objKey(obj)
	if comparable {
		if id, ok := s.byObj[key]; ok {
			return id, s.byID[id]
		}
	}

	s.next++
	id := s.next
	access := wrap()
	s.byID[id] = access
	if comparable {
		s.byObj[key] = id
	}
	return id, access
}

// Lookup resolves a handle id to its live wrapper.
func (s *HandleStore) Lookup(id uint64) (*inspect.Access, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	access, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrStaleHandle, id)
	}
	return access, nil
}

// Count returns the number of live handles.
func (s *HandleStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
