package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Protocol versions. Version 1 is the original protocol; version 2 added
// keyword arguments on requests. The host starts at DefaultProtocol and may
// settle on a lower version after the worker's first response reveals its
// native support; after that the version is immutable for the worker's
// lifetime.
const (
	ProtocolV1      uint8 = 1
	ProtocolV2      uint8 = 2
	DefaultProtocol       = ProtocolV2
	MaxProtocol           = ProtocolV2
)

// ErrShortStream reports that the stream ended in the middle of a message.
// It is distinct from io.EOF, which marks a clean end between messages.
var ErrShortStream = errors.New("wire: stream ended before a complete message")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// CanonicalMarshal serializes a value with canonical CBOR options, so equal
// values always produce identical bytes. Used for message encoding and for
// cache digests.
func CanonicalMarshal(v interface{}) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// Codec writes and reads protocol messages on a byte stream. One side of a
// duplex channel holds exactly one Codec; it is not safe for concurrent use.
type Codec struct {
	version uint8
	enc     *cbor.Encoder
	dec     *cbor.Decoder
}

// NewCodec creates a Codec reading messages from r and writing them to w,
// starting at the default protocol version.
func NewCodec(r io.Reader, w io.Writer) *Codec {
	return &Codec{
		version: DefaultProtocol,
		enc:     cborEncMode.NewEncoder(w),
		dec:     cbor.NewDecoder(r),
	}
}

// Version returns the protocol version stamped on outgoing messages.
func (c *Codec) Version() uint8 {
	return c.version
}

// SetVersion pins the protocol version. The host calls this once, after the
// worker's first response reveals its native support.
func (c *Codec) SetVersion(v uint8) error {
	if v == 0 || v > MaxProtocol {
		return fmt.Errorf("wire: unsupported protocol version %d", v)
	}
	c.version = v
	return nil
}

// WriteRequest encodes one request to the stream.
func (c *Codec) WriteRequest(req *Request) error {
	req.Version = c.version
	if c.version < ProtocolV2 {
		// Version 1 has no keyword arguments.
		req.Kwargs = nil
	}
	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("wire: write request: %w", err)
	}
	return nil
}

// ReadRequest decodes one request from the stream. Returns io.EOF when the
// stream ends cleanly between messages, and an error wrapping
// ErrShortStream when it ends mid-message.
func (c *Codec) ReadRequest() (*Request, error) {
	var req Request
	if err := c.dec.Decode(&req); err != nil {
		return nil, readErr("request", err)
	}
	if req.Version == 0 || req.Version > MaxProtocol {
		return nil, fmt.Errorf("wire: request with unsupported protocol version %d", req.Version)
	}
	return &req, nil
}

// WriteResponse encodes one response to the stream.
func (c *Codec) WriteResponse(resp *Response) error {
	resp.Version = c.version
	if err := c.enc.Encode(resp); err != nil {
		return fmt.Errorf("wire: write response: %w", err)
	}
	return nil
}

// ReadResponse decodes one response from the stream. EOF handling matches
// ReadRequest.
func (c *Codec) ReadResponse() (*Response, error) {
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return nil, readErr("response", err)
	}
	if resp.Version == 0 || resp.Version > MaxProtocol {
		return nil, fmt.Errorf("wire: response with unsupported protocol version %d", resp.Version)
	}
	return &resp, nil
}

func readErr(what string, err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("wire: read %s: %w", what, ErrShortStream)
	}
	return fmt.Errorf("wire: read %s: %w", what, err)
}
