package worker

import (
	"fmt"

	"github.com/chazu/spyglass/inspect"
	"github.com/chazu/spyglass/wire"
)

// resolveArgs rewrites wire arguments into live values. Handle references
// are looked up in the session's store; a miss is a stale-handle failure
// for this one request, not a channel fault. Context-free operations have
// no session and therefore cannot receive handles.
func resolveArgs(s *Session, args []wire.Value) ([]interface{}, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]interface{}, len(args))
	for i, arg := range args {
		v, err := resolveValue(s, arg)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func resolveKwargs(s *Session, kwargs map[string]wire.Value) (map[string]interface{}, error) {
	if len(kwargs) == 0 {
		return nil, nil
	}
	out := make(map[string]interface{}, len(kwargs))
	for key, arg := range kwargs {
		v, err := resolveValue(s, arg)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

func resolveValue(s *Session, v wire.Value) (interface{}, error) {
	switch v.Kind {
	case wire.KindNil:
		return nil, nil
	case wire.KindBool:
		return v.Bool, nil
	case wire.KindInt:
		return v.Int, nil
	case wire.KindFloat:
		return v.Float, nil
	case wire.KindString:
		return v.Str, nil
	case wire.KindBytes:
		return v.Bytes, nil
	case wire.KindList:
		items := make([]interface{}, len(v.List))
		for i, item := range v.List {
			resolved, err := resolveValue(s, item)
			if err != nil {
				return nil, err
			}
			items[i] = resolved
		}
		return items, nil
	case wire.KindMap:
		m := make(map[string]interface{}, len(v.Map))
		for key, item := range v.Map {
			resolved, err := resolveValue(s, item)
			if err != nil {
				return nil, err
			}
			m[key] = resolved
		}
		return m, nil
	case wire.KindHandle:
		if s == nil {
			return nil, fmt.Errorf("worker: handle argument on a context-free call")
		}
		return s.Handles.Lookup(v.Handle)
	case wire.KindRange:
		if v.Range == nil {
			return nil, fmt.Errorf("worker: range value without a range payload")
		}
		return &inspect.Range{Start: v.Range.Start, Stop: v.Range.Stop, Step: v.Range.Step}, nil
	default:
		return nil, fmt.Errorf("worker: cannot accept argument of kind %d", v.Kind)
	}
}

// wrapResult rewrites an operation's return value for the wire. Scalars
// and containers pass by value; access wrappers and any other object
// become handles registered in the session's store.
func wrapResult(s *Session, v interface{}) (wire.Value, error) {
	if s == nil {
		// Context-free operations have no handle store to register
		// wrappers in.
		switch v.(type) {
		case *inspect.Access, []*inspect.Access, *inspect.Param, []*inspect.Param, *inspect.AccessPath:
			return wire.Value{}, fmt.Errorf("worker: cannot return %T from a context-free call", v)
		}
	}
	switch val := v.(type) {
	case nil:
		return wire.Nil(), nil
	case wire.Value:
		return val, nil
	case bool:
		return wire.FromBool(val), nil
	case int:
		return wire.FromInt(int64(val)), nil
	case int8:
		return wire.FromInt(int64(val)), nil
	case int16:
		return wire.FromInt(int64(val)), nil
	case int32:
		return wire.FromInt(int64(val)), nil
	case int64:
		return wire.FromInt(val), nil
	case uint:
		return wire.FromInt(int64(val)), nil
	case uint8:
		return wire.FromInt(int64(val)), nil
	case uint16:
		return wire.FromInt(int64(val)), nil
	case uint32:
		return wire.FromInt(int64(val)), nil
	case uint64:
		return wire.FromInt(int64(val)), nil
	case float32:
		return wire.FromFloat(float64(val)), nil
	case float64:
		return wire.FromFloat(val), nil
	case string:
		return wire.FromString(val), nil
	case []byte:
		return wire.FromBytes(val), nil
	case []string:
		items := make([]wire.Value, len(val))
		for i, item := range val {
			items[i] = wire.FromString(item)
		}
		return wire.FromList(items...), nil
	case []interface{}:
		items := make([]wire.Value, len(val))
		for i, item := range val {
			wrapped, err := wrapResult(s, item)
			if err != nil {
				return wire.Value{}, err
			}
			items[i] = wrapped
		}
		return wire.FromList(items...), nil
	case map[string]interface{}:
		m := make(map[string]wire.Value, len(val))
		for key, item := range val {
			wrapped, err := wrapResult(s, item)
			if err != nil {
				return wire.Value{}, err
			}
			m[key] = wrapped
		}
		return wire.FromMap(m), nil
	case *inspect.Access:
		return s.wrapAccess(val), nil
	case []*inspect.Access:
		items := make([]wire.Value, len(val))
		for i, item := range val {
			items[i] = s.wrapAccess(item)
		}
		return wire.FromList(items...), nil
	case *inspect.Param:
		return s.wrapParam(val)
	case []*inspect.Param:
		items := make([]wire.Value, len(val))
		for i, item := range val {
			wrapped, err := s.wrapParam(item)
			if err != nil {
				return wire.Value{}, err
			}
			items[i] = wrapped
		}
		return wire.FromList(items...), nil
	case *inspect.AccessPath:
		steps := make([]wire.PathStep, len(val.Steps))
		for i, step := range val.Steps {
			steps[i] = wire.PathStep{Handle: s.wrapAccess(step.Access), Name: step.Name}
		}
		return wire.FromPath(steps), nil
	case *inspect.Range:
		return wire.FromRange(&wire.Range{Start: val.Start, Stop: val.Stop, Step: val.Step}), nil
	default:
		if s == nil {
			return wire.Value{}, fmt.Errorf("worker: cannot return %T from a context-free call", v)
		}
		// Anything else lives only in the worker and crosses as a handle.
		access := s.wrapObject(v)
		return s.wrapAccess(access), nil
	}
}

// wrapAccess registers a wrapper (reusing the id of an already-wrapped
// object) and returns its handle reference.
func (s *Session) wrapAccess(a *inspect.Access) wire.Value {
	id, _ := s.Handles.GetOrCreate(a.Object(), func() *inspect.Access { return a })
	return wire.HandleRef(id)
}

// wrapObject wraps an arbitrary object reached outside the attribute chain.
func (s *Session) wrapObject(obj interface{}) *inspect.Access {
	_, access := s.Handles.GetOrCreate(obj, func() *inspect.Access {
		return inspect.NewAccess(obj, fmt.Sprintf("%T", obj))
	})
	return access
}

func (s *Session) wrapParam(p *inspect.Param) (wire.Value, error) {
	def, err := wrapResult(s, p.Default)
	if err != nil {
		return wire.Value{}, err
	}
	wp := &wire.Param{Name: p.Name, Kind: p.Kind, Default: def}
	if p.Type != nil {
		wp.Type = s.wrapAccess(p.Type)
	} else {
		wp.Type = wire.Nil()
	}
	return wire.FromParam(wp), nil
}
