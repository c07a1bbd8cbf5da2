package host

import (
	"github.com/chazu/spyglass/wire"
	"github.com/chazu/spyglass/worker"
)

// Local serves the Dispatcher call surface without a subprocess: requests
// run in-process against a worker handler. Useful when the inspected
// objects live in the host's own runtime and process isolation buys
// nothing.
type Local struct {
	handler *worker.Handler
}

// NewLocal creates an in-process sender over a registry.
func NewLocal(reg *worker.Registry) *Local {
	return &Local{handler: worker.NewHandler(reg)}
}

// Send executes the request directly. Remote-style failures come back as
// *RemoteError, exactly as over a real channel.
func (l *Local) Send(ctxID *uint64, op string, args []wire.Value, kwargs map[string]wire.Value) (wire.Value, error) {
	req := &wire.Request{Version: wire.DefaultProtocol, Context: ctxID, Op: op, Args: args, Kwargs: kwargs}
	resp := l.handler.Handle(req)
	if resp.Failure {
		re := &RemoteError{Kind: wire.ErrKindRuntime, Trace: resp.Trace}
		if resp.Result.Err != nil {
			re.Kind = resp.Result.Err.Kind
			re.Message = resp.Result.Err.Message
		}
		return wire.Value{}, re
	}
	return resp.Result, nil
}

// DeleteContext destroys the session immediately; there is no round trip
// to defer.
func (l *Local) DeleteContext(id uint64) {
	l.handler.Sessions().Delete(id)
}

// IsCrashed always reports false: there is no channel to lose.
func (l *Local) IsCrashed() bool {
	return false
}
