package worker

import (
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/tliron/commonlog"

	"github.com/chazu/spyglass/wire"
)

// Handler executes decoded requests against the session store and registry.
// It is shared by the subprocess listener and the in-process call path.
type Handler struct {
	reg      *Registry
	sessions *SessionStore
}

// NewHandler creates a Handler over a registry.
func NewHandler(reg *Registry) *Handler {
	return &Handler{reg: reg, sessions: NewSessionStore()}
}

// Sessions returns the handler's session store.
func (h *Handler) Sessions() *SessionStore {
	return h.sessions
}

// Handle runs one request and packages the outcome. Failures during lookup
// or execution, including panics, become failure responses; they never
// propagate to the caller.
func (h *Handler) Handle(req *wire.Request) *wire.Response {
	result, err := h.dispatch(req)
	if err != nil {
		return &wire.Response{
			Failure: true,
			Trace:   err.Error(),
			Result:  wire.FromError(errKind(err), err.Error()),
		}
	}
	return &wire.Response{Result: result}
}

func errKind(err error) string {
	switch {
	case errors.Is(err, ErrStaleHandle):
		return wire.ErrKindStaleHandle
	case errors.Is(err, ErrUnknownOp):
		return wire.ErrKindUnknownOp
	default:
		return wire.ErrKindRuntime
	}
}

func (h *Handler) dispatch(req *wire.Request) (result wire.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: panic in %q: %v\n%s", req.Op, r, debug.Stack())
		}
	}()

	if req.Context == nil {
		fn, lerr := h.reg.lookupFree(req.Op)
		if lerr != nil {
			return wire.Value{}, lerr
		}
		args, lerr := resolveArgs(nil, req.Args)
		if lerr != nil {
			return wire.Value{}, lerr
		}
		kwargs, lerr := resolveKwargs(nil, req.Kwargs)
		if lerr != nil {
			return wire.Value{}, lerr
		}
		out, lerr := fn(args, kwargs)
		if lerr != nil {
			return wire.Value{}, lerr
		}
		return wrapResult(nil, out)
	}

	if req.Op == "" {
		// Deletion notice for this context.
		h.sessions.Delete(*req.Context)
		return wire.Nil(), nil
	}

	fn, lerr := h.reg.lookupSession(req.Op)
	if lerr != nil {
		return wire.Value{}, lerr
	}
	sess := h.sessions.GetOrCreate(*req.Context)
	args, lerr := resolveArgs(sess, req.Args)
	if lerr != nil {
		return wire.Value{}, lerr
	}
	kwargs, lerr := resolveKwargs(sess, req.Kwargs)
	if lerr != nil {
		return wire.Value{}, lerr
	}
	out, lerr := fn(sess, args, kwargs)
	if lerr != nil {
		return wire.Value{}, lerr
	}
	return wrapResult(sess, out)
}

// Listener is the worker-side receive loop: read one request, execute it,
// write one response, until the request stream ends.
type Listener struct {
	handler *Handler
	log     commonlog.Logger
}

// NewListener creates a Listener over a registry.
func NewListener(reg *Registry) *Listener {
	return &Listener{
		handler: NewHandler(reg),
		log:     commonlog.GetLogger("spyglass.worker"),
	}
}

// Handler returns the listener's request handler.
func (l *Listener) Handler() *Handler {
	return l.handler
}

// Listen runs the loop until r reaches end-of-stream, which is the clean
// shutdown signal (the host closed the channel). A malformed stream or an
// unrecoverable write error terminates the loop with an error; a failing
// request handler never does.
func (l *Listener) Listen(r io.Reader, w io.Writer) error {
	codec := wire.NewCodec(r, w)
	for {
		req, err := codec.ReadRequest()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("worker: %w", err)
		}
		if err := codec.SetVersion(req.Version); err != nil {
			return fmt.Errorf("worker: %w", err)
		}

		resp := l.handler.Handle(req)
		if resp.Failure {
			l.log.Warningf("operation %q failed: %s", req.Op, resp.Trace)
		}
		if err := codec.WriteResponse(resp); err != nil {
			return fmt.Errorf("worker: %w", err)
		}
	}
}
