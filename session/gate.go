package session

import (
	"context"
	"sync"
	"time"
)

// Gate is a single-resolution resume signal. The first Resume releases
// every waiter; later calls are no-ops. Each blocked page gets its own
// Gate, so two sessions can never resume each other.
type Gate struct {
	once sync.Once
	done chan struct{}
}

// NewGate returns an unresolved gate.
func NewGate() *Gate {
	return &Gate{done: make(chan struct{})}
}

// Resume resolves the gate. It reports whether this call did the resolving.
func (g *Gate) Resume() bool {
	resolved := false
	g.once.Do(func() {
		close(g.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the gate is resolved.
func (g *Gate) Done() <-chan struct{} { return g.done }

// Resolved reports whether Resume has been called.
func (g *Gate) Resolved() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate resolves or ctx is done. There is no timeout:
// a human must act. When heartbeat is positive, tick is called at that
// interval while waiting.
func (g *Gate) Wait(ctx context.Context, heartbeat time.Duration, tick func(waited time.Duration)) error {
	var beat <-chan time.Time
	if heartbeat > 0 && tick != nil {
		t := time.NewTicker(heartbeat)
		defer t.Stop()
		beat = t.C
	}
	start := time.Now()
	for {
		select {
		case <-g.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-beat:
			tick(time.Since(start))
		}
	}
}

type stopKey struct{}

// Detach returns a context that is never cancelled, so page actions run
// to completion, while cancelling ctx still ends operator waits.
func Detach(ctx context.Context) context.Context {
	return context.WithValue(context.WithoutCancel(ctx), stopKey{}, ctx)
}

// stopContext returns the context whose cancellation ends an operator
// wait: the one passed to Detach, or ctx itself.
func stopContext(ctx context.Context) context.Context {
	if stop, ok := ctx.Value(stopKey{}).(context.Context); ok {
		return stop
	}
	return ctx
}
