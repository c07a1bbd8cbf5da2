package host

import (
	"fmt"

	"github.com/chazu/spyglass/inspect"
	"github.com/chazu/spyglass/wire"
)

// Handle is the host-side proxy for an object living in the worker's
// memory. Its id is its only serializable state; the dispatcher guarantees
// one instance per remote id, so handles can be compared and used as cache
// keys. Method calls go through Invoke against the closed introspection
// operation set.
type Handle struct {
	ID uint64

	d    *Dispatcher
	memo map[memoKey]interface{}
}

func (h *Handle) String() string {
	return fmt.Sprintf("<Handle #%d>", h.ID)
}

// Invoke runs one introspection operation on the remote object. Results
// are memoized per (operation, argument digest), so repeated identical
// queries are served without a round trip. Calls carrying a range argument
// bypass the cache: open-ended ranges have no deterministic digest.
func (h *Handle) Invoke(op inspect.Op, args ...interface{}) (interface{}, error) {
	wargs, err := toWireList(args)
	if err != nil {
		return nil, err
	}

	key, cacheable := memoKeyFor(string(op), wargs)
	if cacheable {
		if cached, ok := h.memo[key]; ok {
			return cached, nil
		}
	}

	result, err := h.invoke(string(op), wargs)
	if err != nil {
		return nil, err
	}
	if cacheable {
		h.memo[key] = result
	}
	return result, nil
}

func (h *Handle) invoke(op string, args []wire.Value) (interface{}, error) {
	callArgs := append([]wire.Value{wire.HandleRef(h.ID), wire.FromString(op)}, args...)
	res, err := h.d.call(wire.OpAccessInvoke, callArgs)
	if err != nil {
		return nil, err
	}
	return h.d.fromWire(res), nil
}

// AttrNames lists the remote object's attribute names.
func (h *Handle) AttrNames() ([]string, error) {
	res, err := h.Invoke(inspect.OpAttrNames)
	if err != nil {
		return nil, err
	}
	items, _ := res.([]interface{})
	names := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}

// GetAttr resolves an attribute of the remote object to a handle.
func (h *Handle) GetAttr(name string) (*Handle, error) {
	res, err := h.Invoke(inspect.OpGetAttr, name)
	if err != nil {
		return nil, err
	}
	child, ok := res.(*Handle)
	if !ok {
		return nil, fmt.Errorf("host: attribute %q did not resolve to a handle, got %T", name, res)
	}
	return child, nil
}

// Repr returns the remote object's display form.
func (h *Handle) Repr() (string, error) {
	res, err := h.Invoke(inspect.OpRepr)
	if err != nil {
		return "", err
	}
	s, _ := res.(string)
	return s, nil
}
