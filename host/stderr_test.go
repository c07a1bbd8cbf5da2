package host

import (
	"strings"
	"testing"

	"github.com/tliron/commonlog"
)

func TestStderrDrain_CaptureKeepsNewest(t *testing.T) {
	input := "one\ntwo\nthree\nfour\nfive\n"
	d := newStderrDrain(strings.NewReader(input), commonlog.GetLogger("test"), 3)
	d.join()

	got := d.capture()
	for _, line := range []string{"three", "four", "five"} {
		if !strings.Contains(got, line) {
			t.Errorf("capture missing %q: %q", line, got)
		}
	}
	for _, line := range []string{"one\n", "two\n"} {
		if strings.Contains(got, line) {
			t.Errorf("capture kept dropped line %q: %q", line, got)
		}
	}
	if !strings.Contains(got, "(2 older lines dropped)") {
		t.Errorf("capture missing drop note: %q", got)
	}
}

func TestStderrDrain_CaptureEmpty(t *testing.T) {
	d := newStderrDrain(strings.NewReader(""), commonlog.GetLogger("test"), 3)
	d.join()
	if got := d.capture(); got != "" {
		t.Errorf("capture of silent stream: got %q, want empty", got)
	}
}

func TestStderrDrain_LogPendingEmptiesQueue(t *testing.T) {
	d := newStderrDrain(strings.NewReader("noise\nmore noise\n"), commonlog.GetLogger("test"), 8)
	d.join()

	d.logPending()
	if got := d.capture(); got != "" {
		t.Errorf("queue not empty after logPending: %q", got)
	}
}
