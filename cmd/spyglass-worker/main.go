// spyglass-worker - the inspection worker process. The host spawns one of
// these per analysis session group and speaks the binary protocol over its
// stdin/stdout; stderr carries diagnostics.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/spyglass/worker"
)

func main() {
	verbosity := flag.Int("verbosity", 0, "Diagnostic verbosity (on stderr)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: spyglass-worker [options] <support-root> <runtime-version>\n\n")
		fmt.Fprintf(os.Stderr, "Runs the inspection listener over stdin/stdout. Not meant to be\n")
		fmt.Fprintf(os.Stderr, "started by hand; the analysis host launches it.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	supportRoot := flag.Arg(0)
	runtimeVersion := flag.Arg(1)

	commonlog.Configure(*verbosity, nil)

	// stdout is the call channel. Anything else trying to print must not
	// corrupt it, so the process-wide stdout goes to a discarded sink.
	out := os.Stdout
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		// Running with stdout exposed would let any stray print corrupt
		// the channel.
		fmt.Fprintf(os.Stderr, "spyglass-worker: cannot open %s: %v\n", os.DevNull, err)
		os.Exit(1)
	}
	os.Stdout = devnull

	reg := worker.NewRegistry(worker.Info{
		SupportRoot:    supportRoot,
		RuntimeVersion: runtimeVersion,
	})

	listener := worker.NewListener(reg)
	if err := listener.Listen(os.Stdin, out); err != nil {
		fmt.Fprintf(os.Stderr, "spyglass-worker: %v\n", err)
		os.Exit(1)
	}
	// End-of-stream on stdin: the host closed the channel.
}
