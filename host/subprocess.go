package host

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/tliron/commonlog"

	"github.com/chazu/spyglass/config"
	"github.com/chazu/spyglass/wire"
)

// channel bundles the three streams of one worker process plus the codec
// speaking over the request/response pair.
type channel struct {
	codec  *wire.Codec
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *stderrDrain
	kill   func()
	wait   func()
}

func (ch *channel) close() {
	if ch.kill != nil {
		ch.kill()
	}
	// The streams may already be broken; closing them again is harmless.
	if ch.stdin != nil {
		ch.stdin.Close()
	}
	if ch.stdout != nil {
		ch.stdout.Close()
	}
	if ch.stderr != nil {
		ch.stderr.join()
	}
	if ch.wait != nil {
		ch.wait()
	}
}

// Subprocess owns the lifecycle of one worker process and the duplex
// channel to it. The worker starts lazily on the first call; after a
// transport failure the instance is permanently crashed and every later
// call fails immediately. A Subprocess is confined to one goroutine;
// callers needing concurrency must serialize access themselves.
type Subprocess struct {
	executable     string
	supportRoot    string
	runtimeVersion string
	stderrLimit    int
	log            commonlog.Logger

	// launch is the process start seam; tests swap it for an in-memory
	// channel.
	launch func() (*channel, error)

	ch         *channel
	started    bool
	crashed    bool
	terminated bool

	// Context teardown is not urgent: deletion notices queue up here and
	// flush at the start of the next real send, saving round trips.
	pendingDeletes []uint64
}

// Option configures a Subprocess.
type Option func(*Subprocess)

// WithStderrLimit bounds the diagnostic queue in lines.
func WithStderrLimit(n int) Option {
	return func(s *Subprocess) { s.stderrLimit = n }
}

// NewSubprocess creates a manager for one worker executable. The worker is
// spawned as `executable <support-root> <runtime-version>` on first use.
func NewSubprocess(executable, supportRoot, runtimeVersion string, opts ...Option) *Subprocess {
	s := &Subprocess{
		executable:     executable,
		supportRoot:    supportRoot,
		runtimeVersion: runtimeVersion,
		stderrLimit:    defaultStderrLimit,
		log:            commonlog.GetLogger("spyglass.host"),
	}
	s.launch = s.spawn
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromConfig creates a manager from loaded configuration.
func FromConfig(cfg *config.Config) *Subprocess {
	return NewSubprocess(
		cfg.Worker.Executable,
		cfg.Worker.SupportRoot,
		cfg.Worker.RuntimeVersion,
		WithStderrLimit(cfg.Limits.StderrQueueLines),
	)
}

func (s *Subprocess) spawn() (*channel, error) {
	cmd := exec.Command(s.executable, s.supportRoot, s.runtimeVersion)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	s.log.Infof("started worker subprocess %s (pid %d)", s.executable, cmd.Process.Pid)

	return &channel{
		codec:  wire.NewCodec(stdout, stdin),
		stdin:  stdin,
		stdout: stdout,
		stderr: newStderrDrain(stderr, s.log, s.stderrLimit),
		kill: func() {
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
		},
		wait: func() { cmd.Wait() },
	}, nil
}

// IsCrashed reports whether the channel is permanently dead.
func (s *Subprocess) IsCrashed() bool {
	return s.crashed
}

// Send issues one call and waits for its single response. Pending context
// deletions flush first. A nil ctxID makes a context-free call. On a
// remote execution failure the returned error is a *RemoteError and the
// channel stays usable; on any transport or decode failure the manager
// crashes permanently and the error is a *InternalError.
func (s *Subprocess) Send(ctxID *uint64, op string, args []wire.Value, kwargs map[string]wire.Value) (wire.Value, error) {
	if err := s.ensureStarted(); err != nil {
		return wire.Value{}, err
	}
	for len(s.pendingDeletes) > 0 {
		id := s.pendingDeletes[len(s.pendingDeletes)-1]
		s.pendingDeletes = s.pendingDeletes[:len(s.pendingDeletes)-1]
		if _, err := s.roundTrip(&id, "", nil, nil); err != nil {
			return wire.Value{}, err
		}
	}
	return s.roundTrip(ctxID, op, args, kwargs)
}

// DeleteContext enqueues a deletion notice for a context id. The worker
// hears about it at the start of the next Send.
func (s *Subprocess) DeleteContext(id uint64) {
	s.pendingDeletes = append(s.pendingDeletes, id)
}

// SearchPath asks the worker for its module search path.
func (s *Subprocess) SearchPath() ([]string, error) {
	res, err := s.Send(nil, wire.OpSearchPath, nil, nil)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, item := range res.List {
		if item.Kind == wire.KindString {
			dirs = append(dirs, item.Str)
		}
	}
	return dirs, nil
}

// Terminate shuts the worker down for good: kill, join the diagnostic
// reader, close all three streams. Idempotent, and safe on an already
// broken channel. The manager is crashed afterwards; it never restarts
// the worker.
func (s *Subprocess) Terminate() {
	if s.terminated {
		return
	}
	s.terminated = true
	s.crashed = true
	if s.ch != nil {
		s.ch.close()
		s.ch = nil
	}
}

func (s *Subprocess) ensureStarted() error {
	if s.crashed {
		return &InternalError{Msg: fmt.Sprintf("spyglass: the subprocess %s has crashed", s.executable)}
	}
	if s.started {
		return nil
	}
	ch, err := s.launch()
	if err != nil {
		s.crashed = true
		return &InternalError{Msg: fmt.Sprintf("spyglass: cannot start subprocess %s: %v", s.executable, err)}
	}
	s.ch = ch
	s.started = true

	// Settle the protocol version before any other traffic. The codec
	// starts at the default version; the worker's reported native version
	// can only pull it down, and it stays fixed for the worker's lifetime.
	info, err := s.roundTrip(nil, wire.OpWorkerInfo, nil, nil)
	if err != nil {
		return err
	}
	if native, ok := info.Map[wire.InfoProtocol]; ok && native.Kind == wire.KindInt {
		v := uint8(native.Int)
		if v >= 1 && v < s.ch.codec.Version() {
			s.ch.codec.SetVersion(v)
			s.log.Infof("worker %s speaks protocol %d", s.executable, v)
		}
	}
	return nil
}

func (s *Subprocess) roundTrip(ctxID *uint64, op string, args []wire.Value, kwargs map[string]wire.Value) (wire.Value, error) {
	req := &wire.Request{Context: ctxID, Op: op, Args: args, Kwargs: kwargs}
	if err := s.ch.codec.WriteRequest(req); err != nil {
		// A failed write means the worker side of the pipe is gone.
		return wire.Value{}, s.fail("write failed", err)
	}
	resp, err := s.ch.codec.ReadResponse()
	if err != nil {
		return wire.Value{}, s.fail("unexpected end of stream", err)
	}

	s.ch.stderr.logPending()

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

// fail transitions the manager to its permanent crashed state, capturing
// whatever diagnostics the worker left behind.
func (s *Subprocess) fail(what string, cause error) error {
	s.crashed = true
	msg := fmt.Sprintf("spyglass: the subprocess %s was killed (%s: %v)", s.executable, what, cause)
	if s.ch != nil {
		if captured := s.ch.stderr.capture(); captured != "" {
			msg += fmt.Sprintf(", stderr=%s", captured)
		}
		s.ch.close()
		s.ch = nil
	}
	s.log.Errorf("%s", msg)
	return &InternalError{Msg: msg}
}
