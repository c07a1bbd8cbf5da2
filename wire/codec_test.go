package wire

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
)

func int64p(v int64) *int64 { return &v }

func sampleValues() []Value {
	return []Value{
		Nil(),
		FromBool(true),
		FromInt(-42),
		FromFloat(2.5),
		FromString("attr"),
		FromBytes([]byte{0x01, 0x02}),
		FromList(FromInt(1), FromString("two"), HandleRef(3)),
		FromMap(map[string]Value{"a": FromInt(1), "b": Nil()}),
		HandleRef(17),
		FromRange(&Range{Start: int64p(1), Stop: int64p(9), Step: 2}),
		FromParam(&Param{Name: "arg0", Kind: "positional", Type: HandleRef(4), Default: Nil()}),
		FromPath([]PathStep{
			{Handle: HandleRef(1), Name: "mod"},
			{Handle: HandleRef(2), Name: "Attr"},
		}),
		FromError(ErrKindStaleHandle, "no live object for handle 9"),
	}
}

func TestRequest_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf, &buf)

	ctx := uint64(7)
	req := &Request{
		Context: &ctx,
		Op:      "access_invoke",
		Args:    sampleValues(),
		Kwargs:  map[string]Value{"depth": FromInt(3)},
	}
	if err := codec.WriteRequest(req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	got, err := codec.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if got.Context == nil || *got.Context != 7 {
		t.Errorf("Context: got %v, want 7", got.Context)
	}
	if got.Op != "access_invoke" {
		t.Errorf("Op: got %q, want %q", got.Op, "access_invoke")
	}
	if !reflect.DeepEqual(got.Args, req.Args) {
		t.Errorf("Args did not round-trip:\n got %#v\nwant %#v", got.Args, req.Args)
	}
	if !reflect.DeepEqual(got.Kwargs, req.Kwargs) {
		t.Errorf("Kwargs did not round-trip: got %#v", got.Kwargs)
	}
}

func TestResponse_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf, &buf)

	resp := &Response{
		Failure: true,
		Trace:   "worker: boom\nstack",
		Result:  FromError(ErrKindRuntime, "boom"),
	}
	if err := codec.WriteResponse(resp); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	got, err := codec.ReadResponse()
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if !got.Failure {
		t.Error("Failure flag lost")
	}
	if got.Trace != resp.Trace {
		t.Errorf("Trace: got %q, want %q", got.Trace, resp.Trace)
	}
	if got.Result.Kind != KindError || got.Result.Err == nil || got.Result.Err.Kind != ErrKindRuntime {
		t.Errorf("Result: got %#v", got.Result)
	}
}

func TestCodec_MultipleMessagesOneStream(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf, &buf)

	for i := int64(0); i < 3; i++ {
		if err := codec.WriteRequest(&Request{Op: "get_search_path", Args: []Value{FromInt(i)}}); err != nil {
			t.Fatalf("WriteRequest %d: %v", i, err)
		}
	}
	for i := int64(0); i < 3; i++ {
		got, err := codec.ReadRequest()
		if err != nil {
			t.Fatalf("ReadRequest %d: %v", i, err)
		}
		if got.Args[0].Int != i {
			t.Errorf("message %d: got arg %d", i, got.Args[0].Int)
		}
	}
	if _, err := codec.ReadRequest(); err != io.EOF {
		t.Errorf("after last message: got %v, want io.EOF", err)
	}
}

func TestCodec_TruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	out := NewCodec(nil, &buf)
	if err := out.WriteResponse(&Response{Result: FromString("partial")}); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	data := buf.Bytes()
	in := NewCodec(bytes.NewReader(data[:len(data)-2]), nil)
	_, err := in.ReadResponse()
	if !errors.Is(err, ErrShortStream) {
		t.Errorf("truncated stream: got %v, want ErrShortStream", err)
	}
}

func TestCodec_EmptyStreamIsEOF(t *testing.T) {
	codec := NewCodec(bytes.NewReader(nil), nil)
	if _, err := codec.ReadRequest(); err != io.EOF {
		t.Errorf("empty stream: got %v, want io.EOF", err)
	}
}

func TestCodec_SetVersion(t *testing.T) {
	codec := NewCodec(nil, io.Discard)
	if err := codec.SetVersion(ProtocolV1); err != nil {
		t.Fatalf("SetVersion(1): %v", err)
	}
	if codec.Version() != ProtocolV1 {
		t.Errorf("Version: got %d, want %d", codec.Version(), ProtocolV1)
	}
	if err := codec.SetVersion(MaxProtocol + 1); err == nil {
		t.Error("SetVersion past MaxProtocol: expected error")
	}
	if err := codec.SetVersion(0); err == nil {
		t.Error("SetVersion(0): expected error")
	}
}

func TestCodec_V1DropsKwargs(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf, &buf)
	if err := codec.SetVersion(ProtocolV1); err != nil {
		t.Fatalf("SetVersion: %v", err)
	}

	req := &Request{Op: "op", Kwargs: map[string]Value{"k": FromInt(1)}}
	if err := codec.WriteRequest(req); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	got, err := codec.ReadRequest()
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if got.Version != ProtocolV1 {
		t.Errorf("Version: got %d, want %d", got.Version, ProtocolV1)
	}
	if got.Kwargs != nil {
		t.Errorf("Kwargs survived a v1 request: %#v", got.Kwargs)
	}
}

func TestContainsRange(t *testing.T) {
	r := FromRange(&Range{Step: 1})
	cases := []struct {
		name string
		v    Value
		want bool
	}{
		{"scalar", FromInt(1), false},
		{"range", r, true},
		{"nested list", FromList(FromInt(1), FromList(r)), true},
		{"nested map", FromMap(map[string]Value{"r": r}), true},
		{"param default", FromParam(&Param{Name: "a", Type: Nil(), Default: r}), true},
		{"plain list", FromList(FromInt(1), FromString("x")), false},
	}
	for _, tc := range cases {
		if got := ContainsRange(tc.v); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanonicalMarshal_Deterministic(t *testing.T) {
	v := FromMap(map[string]Value{"b": FromInt(2), "a": FromInt(1), "c": Nil()})
	first, err := CanonicalMarshal(v)
	if err != nil {
		t.Fatalf("CanonicalMarshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := CanonicalMarshal(v)
		if err != nil {
			t.Fatalf("CanonicalMarshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding not deterministic:\n%x\n%x", first, again)
		}
	}
}
