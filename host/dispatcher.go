package host

import (
	"fmt"

	"github.com/chazu/spyglass/wire"
)

// Sender is the channel a Dispatcher issues calls through. *Subprocess is
// the real one; *Local serves the same calls without a worker process.
type Sender interface {
	Send(ctxID *uint64, op string, args []wire.Value, kwargs map[string]wire.Value) (wire.Value, error)
	DeleteContext(id uint64)
	IsCrashed() bool
}

// Dispatcher is the per-context view over one worker channel. It owns the
// canonical handle instance for every remote id it has seen, so repeated
// references to the same remote object compare equal and memoize cleanly.
type Dispatcher struct {
	sender    Sender
	contextID uint64
	used      bool
	handles   map[uint64]*Handle
}

// NewDispatcher creates a dispatcher for one context id.
func NewDispatcher(sender Sender, contextID uint64) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		contextID: contextID,
		handles:   make(map[uint64]*Handle),
	}
}

// ContextID returns the context this dispatcher speaks for.
func (d *Dispatcher) ContextID() uint64 {
	return d.contextID
}

// Call runs one operation in this context. Handle results anywhere in the
// returned structure are rewritten to this dispatcher's canonical
// instances, preserving container types and order.
func (d *Dispatcher) Call(op string, args ...interface{}) (interface{}, error) {
	wargs, err := toWireList(args)
	if err != nil {
		return nil, err
	}
	res, err := d.call(op, wargs)
	if err != nil {
		return nil, err
	}
	return d.fromWire(res), nil
}

func (d *Dispatcher) call(op string, args []wire.Value) (wire.Value, error) {
	d.used = true
	ctx := d.contextID
	return d.sender.Send(&ctx, op, args, nil)
}

// Close tears the context down. The worker only hears about it if the
// context actually issued a call, and only while the channel is alive;
// there is nothing to clean up on a dead channel.
func (d *Dispatcher) Close() {
	if d.used && !d.sender.IsCrashed() {
		d.sender.DeleteContext(d.contextID)
	}
}

// handleFor returns the canonical Handle for a remote id, creating and
// caching it on first sight.
func (d *Dispatcher) handleFor(id uint64) *Handle {
	if h, ok := d.handles[id]; ok {
		return h
	}
	h := &Handle{ID: id, d: d, memo: make(map[memoKey]interface{})}
	d.handles[id] = h
	return h
}

// fromWire rewrites a wire value into host values, replacing every handle
// reference with its canonical instance.
func (d *Dispatcher) fromWire(v wire.Value) interface{} {
	switch v.Kind {
	case wire.KindNil:
		return nil
	case wire.KindBool:
		return v.Bool
	case wire.KindInt:
		return v.Int
	case wire.KindFloat:
		return v.Float
	case wire.KindString:
		return v.Str
	case wire.KindBytes:
		return v.Bytes
	case wire.KindList:
		items := make([]interface{}, len(v.List))
		for i, item := range v.List {
			items[i] = d.fromWire(item)
		}
		return items
	case wire.KindMap:
		m := make(map[string]interface{}, len(v.Map))
		for key, item := range v.Map {
			m[key] = d.fromWire(item)
		}
		return m
	case wire.KindHandle:
		return d.handleFor(v.Handle)
	case wire.KindRange:
		if v.Range == nil {
			return nil
		}
		return &Range{Start: v.Range.Start, Stop: v.Range.Stop, Step: v.Range.Step}
	case wire.KindParam:
		if v.Param == nil {
			return nil
		}
		return &Param{
			Name:    v.Param.Name,
			Kind:    v.Param.Kind,
			Type:    d.fromWire(v.Param.Type),
			Default: d.fromWire(v.Param.Default),
		}
	case wire.KindPath:
		steps := make([]PathStep, len(v.Path))
		for i, step := range v.Path {
			steps[i] = PathStep{Handle: d.fromWire(step.Handle), Name: step.Name}
		}
		return &AccessPath{Steps: steps}
	case wire.KindError:
		if v.Err == nil {
			return nil
		}
		return &RemoteError{Kind: v.Err.Kind, Message: v.Err.Message}
	default:
		return nil
	}
}

// Range mirrors a slice-like index range argument. Calls carrying one
// bypass the handle's result cache.
type Range struct {
	Start *int64
	Stop  *int64
	Step  int64
}

// Param is a host-side parameter descriptor; Type and Default may hold
// canonical handles.
type Param struct {
	Name    string
	Kind    string
	Type    interface{}
	Default interface{}
}

// PathStep is one link of a qualified reference chain on the host side.
type PathStep struct {
	Handle interface{}
	Name   string
}

// AccessPath is a qualified reference chain whose handles have been
// rewritten to canonical instances.
type AccessPath struct {
	Steps []PathStep
}

// toWire converts an argument into its wire form. Handles serialize by id
// only.
func toWire(v interface{}) (wire.Value, error) {
	switch val := v.(type) {
	case nil:
		return wire.Nil(), nil
	case wire.Value:
		return val, nil
	case bool:
		return wire.FromBool(val), nil
	case int:
		return wire.FromInt(int64(val)), nil
	case int32:
		return wire.FromInt(int64(val)), nil
	case int64:
		return wire.FromInt(val), nil
	case uint64:
		return wire.FromInt(int64(val)), nil
	case float64:
		return wire.FromFloat(val), nil
	case string:
		return wire.FromString(val), nil
	case []byte:
		return wire.FromBytes(val), nil
	case *Handle:
		return wire.HandleRef(val.ID), nil
	case *Range:
		return wire.FromRange(&wire.Range{Start: val.Start, Stop: val.Stop, Step: val.Step}), nil
	case []interface{}:
		items, err := toWireList(val)
		if err != nil {
			return wire.Value{}, err
		}
		return wire.FromList(items...), nil
	case map[string]interface{}:
		m := make(map[string]wire.Value, len(val))
		for key, item := range val {
			converted, err := toWire(item)
			if err != nil {
				return wire.Value{}, err
			}
			m[key] = converted
		}
		return wire.FromMap(m), nil
	default:
		return wire.Value{}, fmt.Errorf("host: cannot send value of type %T", v)
	}
}

func toWireList(args []interface{}) ([]wire.Value, error) {
	if len(args) == 0 {
		return nil, nil
	}
	out := make([]wire.Value, len(args))
	for i, arg := range args {
		converted, err := toWire(arg)
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}
