// Package host implements the host side of the inspection protocol: the
// worker process manager, the per-context call dispatcher, and the handle
// proxy standing in for worker-resident objects.
package host

import (
	"errors"
	"fmt"

	"github.com/chazu/spyglass/wire"
)

// InternalError reports an unrecoverable channel failure: the worker
// crashed, the pipe broke, or the stream was malformed. Once raised, every
// later call on the same Subprocess fails immediately with the same
// condition; the worker is never restarted by the manager.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return e.Msg
}

// RemoteError is a failure raised inside the worker while executing one
// operation. It carries the error kind and the worker-side trace, and it
// leaves the channel healthy for subsequent calls.
type RemoteError struct {
	Kind    string
	Message string
	Trace   string
}

func (e *RemoteError) Error() string {
	if e.Trace != "" {
		return fmt.Sprintf("worker %s failure: %s", e.Kind, e.Trace)
	}
	return fmt.Sprintf("worker %s failure: %s", e.Kind, e.Message)
}

// IsInternal reports whether err marks a dead channel.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// IsStaleHandle reports whether err is the worker signaling a handle id
// with no live object behind it. Callers recover by re-creating the
// reference; the channel is unaffected.
func IsStaleHandle(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == wire.ErrKindStaleHandle
}
