package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/use-agent/appraise/session"
)

// stdinOperator resumes the pending intervention when the operator
// presses Enter.
type stdinOperator struct {
	out io.Writer

	mu      sync.Mutex
	pending *session.Gate
}

// newStdinOperator starts reading lines from in until it is closed.
func newStdinOperator(in io.Reader, out io.Writer) *stdinOperator {
	o := &stdinOperator{out: out}
	go o.read(in)
	return o
}

func (o *stdinOperator) Notify(_ context.Context, iv session.Intervention) {
	o.mu.Lock()
	o.pending = iv.Gate
	o.mu.Unlock()
	fmt.Fprintf(o.out, "\n%s needs attention (%s).\nSolve it in the browser window, then press Enter to continue.\n", iv.URL, iv.Reason)
}

func (o *stdinOperator) read(in io.Reader) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		o.mu.Lock()
		gate := o.pending
		o.pending = nil
		o.mu.Unlock()
		if gate != nil && gate.Resume() {
			fmt.Fprintln(o.out, "Continuing.")
		}
	}
}
