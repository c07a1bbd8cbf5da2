package host

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

// defaultStderrLimit bounds the diagnostic queue in lines.
const defaultStderrLimit = 256

// stderrDrain continuously reads the worker's diagnostic stream on its own
// goroutine so the worker never blocks on stderr. Lines land in a bounded
// queue with a drop-oldest policy: when debugging a crash the newest
// output is the part worth keeping.
type stderrDrain struct {
	log     commonlog.Logger
	lines   chan string
	dropped atomic.Uint64
	done    chan struct{}
}

func newStderrDrain(r io.Reader, log commonlog.Logger, limit int) *stderrDrain {
	if limit <= 0 {
		limit = defaultStderrLimit
	}
	d := &stderrDrain{
		log:   log,
		lines: make(chan string, limit),
		done:  make(chan struct{}),
	}
	go d.loop(r)
	return d
}

func (d *stderrDrain) loop(r io.Reader) {
	defer close(d.done)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		d.push(scanner.Text())
	}
}

func (d *stderrDrain) push(line string) {
	for {
		select {
		case d.lines <- line:
			return
		default:
		}
		select {
		case <-d.lines:
			d.dropped.Add(1)
		default:
		}
	}
}

// logPending forwards queued diagnostics into the host log without
// blocking. Called after each successful round trip.
func (d *stderrDrain) logPending() {
	for {
		select {
		case line := <-d.lines:
			d.log.Warningf("stderr output: %s", line)
		default:
			return
		}
	}
}

// capture collects whatever diagnostics remain for embedding in a crash
// report. Best effort: it waits briefly for the reader goroutine to hit
// EOF on the dead worker's stderr, then drains the queue.
func (d *stderrDrain) capture() string {
	select {
	case <-d.done:
	case <-time.After(200 * time.Millisecond):
	}

	var lines []string
	for {
		select {
		case line := <-d.lines:
			lines = append(lines, line)
		default:
			if n := d.dropped.Load(); n > 0 {
				lines = append(lines, fmt.Sprintf("... (%d older lines dropped)", n))
			}
			return strings.Join(lines, "\n")
		}
	}
}

// join blocks until the reader goroutine exits. Called from Terminate
// after the worker has been killed, which closes its stderr.
func (d *stderrDrain) join() {
	<-d.done
}
