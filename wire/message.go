// Package wire implements the versioned binary protocol spoken between an
// analysis host and its inspection worker. Each message is a single CBOR
// item written to the stream; CBOR items are self-delimiting, so message
// boundaries need no explicit length framing.
package wire

// Kind discriminates the closed set of value shapes the protocol carries.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
	KindHandle
	KindRange
	KindParam
	KindPath
	KindError
)

// Value is the tagged union carried in requests and responses. Exactly the
// field selected by Kind is meaningful; the rest stay zero so canonical
// encodings of equal values are byte-identical.
type Value struct {
	Kind   Kind             `cbor:"k"`
	Bool   bool             `cbor:"b,omitempty"`
	Int    int64            `cbor:"i,omitempty"`
	Float  float64          `cbor:"f,omitempty"`
	Str    string           `cbor:"s,omitempty"`
	Bytes  []byte           `cbor:"y,omitempty"`
	List   []Value          `cbor:"l,omitempty"`
	Map    map[string]Value `cbor:"m,omitempty"`
	Handle uint64           `cbor:"h,omitempty"`
	Range  *Range           `cbor:"r,omitempty"`
	Param  *Param           `cbor:"p,omitempty"`
	Path   []PathStep       `cbor:"q,omitempty"`
	Err    *ErrorValue      `cbor:"e,omitempty"`
}

// Range is a slice-like index range argument. Start and Stop are nil when
// open-ended. Range arguments are excluded from result memoization because
// open endpoints make their digests non-deterministic across encodings.
type Range struct {
	Start *int64 `cbor:"a,omitempty"`
	Stop  *int64 `cbor:"o,omitempty"`
	Step  int64  `cbor:"t,omitempty"`
}

// Param describes one parameter of a remote callable's signature. Type and
// Default may embed handle values and are rewritten when they cross back to
// the host.
type Param struct {
	Name    string `cbor:"n"`
	Kind    string `cbor:"k"`
	Type    Value  `cbor:"t"`
	Default Value  `cbor:"d"`
}

// PathStep is one link of a qualified reference chain: the handle of the
// object reached so far and the name used to reach the next one.
type PathStep struct {
	Handle Value  `cbor:"h"`
	Name   string `cbor:"n"`
}

// ErrorValue is the failure payload shipped in place of a result. The wire
// never carries live error objects, only a kind tag and text; the receiving
// side reconstructs a local error from those.
type ErrorValue struct {
	Kind    string `cbor:"k"`
	Message string `cbor:"m"`
}

// Failure kinds carried in ErrorValue.Kind.
const (
	ErrKindRuntime     = "runtime"
	ErrKindStaleHandle = "stale-handle"
	ErrKindUnknownOp   = "unknown-op"
	ErrKindBadArgument = "bad-argument"
)

// Request asks the worker to run one operation. A nil Context means a
// context-free call; an empty Op with a real Context tells the worker to
// destroy that session. Exactly one Response is read per Request written.
type Request struct {
	Version uint8            `cbor:"v"`
	Context *uint64          `cbor:"c,omitempty"`
	Op      string           `cbor:"o,omitempty"`
	Args    []Value          `cbor:"a,omitempty"`
	Kwargs  map[string]Value `cbor:"w,omitempty"`
}

// Response carries the outcome of one Request. On failure, Trace holds the
// formatted worker-side trace and Result is a KindError value.
type Response struct {
	Version uint8  `cbor:"v"`
	Failure bool   `cbor:"x,omitempty"`
	Trace   string `cbor:"t,omitempty"`
	Result  Value  `cbor:"r"`
}

// Names of the operations the host issues itself, outside any embedder's
// registered set.
const (
	OpWorkerInfo    = "worker_info"
	OpSearchPath    = "get_search_path"
	OpAccessInvoke  = "access_invoke"
	OpGetRoot       = "get_root"
)

// Keys of the worker_info result map.
const (
	InfoProtocol   = "protocol"
	InfoRuntime    = "runtime"
	InfoSearchPath = "search_path"
)

// Nil returns the nil value.
func Nil() Value { return Value{Kind: KindNil} }

// FromBool wraps a boolean.
func FromBool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// FromInt wraps an integer.
func FromInt(i int64) Value { return Value{Kind: KindInt, Int: i} }

// FromFloat wraps a float.
func FromFloat(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// FromString wraps a string.
func FromString(s string) Value { return Value{Kind: KindString, Str: s} }

// FromBytes wraps a byte slice.
func FromBytes(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// FromList wraps a sequence.
func FromList(items ...Value) Value { return Value{Kind: KindList, List: items} }

// FromMap wraps a mapping.
func FromMap(m map[string]Value) Value { return Value{Kind: KindMap, Map: m} }

// HandleRef wraps a handle id. A handle's id is its only serializable
// state; everything else is re-resolved on the receiving side.
func HandleRef(id uint64) Value { return Value{Kind: KindHandle, Handle: id} }

// FromRange wraps an index range.
func FromRange(r *Range) Value { return Value{Kind: KindRange, Range: r} }

// FromParam wraps a parameter descriptor.
func FromParam(p *Param) Value { return Value{Kind: KindParam, Param: p} }

// FromPath wraps a qualified reference chain.
func FromPath(steps []PathStep) Value { return Value{Kind: KindPath, Path: steps} }

// FromError wraps a failure payload.
func FromError(kind, message string) Value {
	return Value{Kind: KindError, Err: &ErrorValue{Kind: kind, Message: message}}
}

// ContainsRange reports whether the value or anything nested in it is a
// range. Callers that key caches on argument digests use this to detect
// arguments that must bypass the cache.
func ContainsRange(v Value) bool {
	switch v.Kind {
	case KindRange:
		return true
	case KindList:
		for _, item := range v.List {
			if ContainsRange(item) {
				return true
			}
		}
	case KindMap:
		for _, item := range v.Map {
			if ContainsRange(item) {
				return true
			}
		}
	case KindParam:
		if v.Param != nil {
			return ContainsRange(v.Param.Type) || ContainsRange(v.Param.Default)
		}
	case KindPath:
		for _, step := range v.Path {
			if ContainsRange(step.Handle) {
				return true
			}
		}
	}
	return false
}
