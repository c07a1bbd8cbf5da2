package host

import (
	"testing"

	"github.com/chazu/spyglass/inspect"
	"github.com/chazu/spyglass/wire"
)

// fakeSender answers every call from a script function and records what it
// was asked, without any worker behind it.
type fakeSender struct {
	sends   []string
	deletes []uint64
	crashed bool
	reply   func(op string, args []wire.Value) (wire.Value, error)
}

func (f *fakeSender) Send(ctxID *uint64, op string, args []wire.Value, kwargs map[string]wire.Value) (wire.Value, error) {
	f.sends = append(f.sends, op)
	return f.reply(op, args)
}

func (f *fakeSender) DeleteContext(id uint64) { f.deletes = append(f.deletes, id) }
func (f *fakeSender) IsCrashed() bool         { return f.crashed }

func TestDispatcher_CanonicalHandles(t *testing.T) {
	f := &fakeSender{reply: func(op string, args []wire.Value) (wire.Value, error) {
		return wire.FromList(wire.HandleRef(4), wire.HandleRef(4), wire.HandleRef(9)), nil
	}}
	d := NewDispatcher(f, 1)

	res, err := d.Call("anything")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	items := res.([]interface{})
	first, second, third := items[0].(*Handle), items[1].(*Handle), items[2].(*Handle)
	if first != second {
		t.Error("same remote id produced distinct handle instances")
	}
	if first == third {
		t.Error("distinct remote ids share a handle instance")
	}

	// A later call mentioning id 4 gets the same instance again.
	res, err = d.Call("anything")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.([]interface{})[0].(*Handle) != first {
		t.Error("handle instance not stable across calls")
	}
}

func TestDispatcher_FromWireNested(t *testing.T) {
	f := &fakeSender{reply: func(op string, args []wire.Value) (wire.Value, error) {
		return wire.FromMap(map[string]wire.Value{
			"name":  wire.FromString("probe"),
			"owner": wire.HandleRef(2),
			"range": wire.FromRange(&wire.Range{Step: 1}),
			"path": wire.FromPath([]wire.PathStep{
				{Handle: wire.HandleRef(2), Name: "root"},
			}),
		}), nil
	}}
	d := NewDispatcher(f, 1)

	res, err := d.Call("describe")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	m := res.(map[string]interface{})
	if m["name"].(string) != "probe" {
		t.Errorf("name: got %v", m["name"])
	}
	owner := m["owner"].(*Handle)
	if owner.ID != 2 {
		t.Errorf("owner id: got %d", owner.ID)
	}
	r := m["range"].(*Range)
	if r.Start != nil || r.Stop != nil || r.Step != 1 {
		t.Errorf("range: got %+v", r)
	}
	path := m["path"].(*AccessPath)
	if len(path.Steps) != 1 || path.Steps[0].Name != "root" {
		t.Fatalf("path: got %+v", path)
	}
	if path.Steps[0].Handle.(*Handle) != owner {
		t.Error("path step handle is not the canonical instance")
	}
}

func TestDispatcher_CloseNotifiesOnlyWhenUsed(t *testing.T) {
	f := &fakeSender{reply: func(op string, args []wire.Value) (wire.Value, error) {
		return wire.Nil(), nil
	}}

	// Never used: nothing to delete.
	NewDispatcher(f, 7).Close()
	if len(f.deletes) != 0 {
		t.Fatalf("unused close sent deletes: %v", f.deletes)
	}

	d := NewDispatcher(f, 8)
	if _, err := d.Call("poke"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	d.Close()
	if len(f.deletes) != 1 || f.deletes[0] != 8 {
		t.Fatalf("used close: got deletes %v, want [8]", f.deletes)
	}

	// A dead channel gets no teardown traffic.
	d2 := NewDispatcher(f, 9)
	if _, err := d2.Call("poke"); err != nil {
		t.Fatalf("Call: %v", err)
	}
	f.crashed = true
	d2.Close()
	if len(f.deletes) != 1 {
		t.Errorf("close on crashed channel sent deletes: %v", f.deletes)
	}
}

func TestDispatcher_RejectsUnsendableArgs(t *testing.T) {
	f := &fakeSender{reply: func(op string, args []wire.Value) (wire.Value, error) {
		return wire.Nil(), nil
	}}
	d := NewDispatcher(f, 1)

	_, err := d.Call("op", struct{ X int }{1})
	if err == nil {
		t.Fatal("expected conversion error for struct argument")
	}
	if len(f.sends) != 0 {
		t.Errorf("unsendable argument still reached the channel: %v", f.sends)
	}
}

func TestHandle_Memoization(t *testing.T) {
	f := &fakeSender{reply: func(op string, args []wire.Value) (wire.Value, error) {
		return wire.FromString("cached"), nil
	}}
	d := NewDispatcher(f, 1)
	h := d.handleFor(5)

	for i := 0; i < 3; i++ {
		res, err := h.Invoke(inspect.OpRepr)
		if err != nil {
			t.Fatalf("Invoke %d: %v", i, err)
		}
		if res.(string) != "cached" {
			t.Errorf("Invoke %d: got %v", i, res)
		}
	}
	if len(f.sends) != 1 {
		t.Errorf("sends for repeated identical invoke: got %d, want 1", len(f.sends))
	}

	// Different arguments miss the cache.
	if _, err := h.Invoke(inspect.OpGetAttr, "Label"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if _, err := h.Invoke(inspect.OpGetAttr, "Count"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if len(f.sends) != 3 {
		t.Errorf("sends after two distinct invokes: got %d, want 3", len(f.sends))
	}
}

func TestHandle_RangeArgsBypassCache(t *testing.T) {
	f := &fakeSender{reply: func(op string, args []wire.Value) (wire.Value, error) {
		return wire.Nil(), nil
	}}
	d := NewDispatcher(f, 1)
	h := d.handleFor(5)

	stop := int64(3)
	r := &Range{Stop: &stop, Step: 1}
	for i := 0; i < 2; i++ {
		if _, err := h.Invoke(inspect.OpGetItem, r); err != nil {
			t.Fatalf("Invoke %d: %v", i, err)
		}
	}
	if len(f.sends) != 2 {
		t.Errorf("range calls were cached: got %d sends, want 2", len(f.sends))
	}
}

func TestHandle_FailuresAreNotCached(t *testing.T) {
	calls := 0
	f := &fakeSender{reply: func(op string, args []wire.Value) (wire.Value, error) {
		calls++
		if calls == 1 {
			return wire.Value{}, &RemoteError{Kind: wire.ErrKindRuntime, Message: "transient"}
		}
		return wire.FromString("ok"), nil
	}}
	d := NewDispatcher(f, 1)
	h := d.handleFor(5)

	if _, err := h.Invoke(inspect.OpRepr); err == nil {
		t.Fatal("expected first invoke to fail")
	}
	res, err := h.Invoke(inspect.OpRepr)
	if err != nil {
		t.Fatalf("second invoke: %v", err)
	}
	if res.(string) != "ok" {
		t.Errorf("second invoke: got %v", res)
	}
}
