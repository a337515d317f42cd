// Package lifecycle implements cooperative shutdown coordination.
//
// DESIGN: A Coordinator is an explicit cancellation token handed to every
// long-lived task at spawn time, never a package-level singleton. Tasks
// select over Done() directly, so the worst-case signal-to-exit latency is
// scheduler latency rather than a polling interval. The top-level shutdown
// sequence waits a bounded time for tracked tasks and then abandons
// stragglers, which the cancelled context terminates.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Coordinator carries the shared shutdown signal and tracks long-lived tasks.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu      sync.Mutex
	running map[string]int
	wg      sync.WaitGroup
}

// NewCoordinator creates a coordinator rooted in parent.
func NewCoordinator(parent context.Context) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[string]int),
	}
}

// Signal flips the shutdown flag. Idempotent and irreversible.
func (c *Coordinator) Signal() {
	c.once.Do(func() {
		log.Info().Msg("shutdown signaled")
		c.cancel()
	})
}

// Signaled reports whether shutdown has been requested. Non-blocking.
func (c *Coordinator) Signaled() bool {
	return c.ctx.Err() != nil
}

// Done returns a channel closed when shutdown is signaled, for use in
// select statements alongside tickers and client contexts.
func (c *Coordinator) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Context returns the cancellation context tasks should derive from.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// Track registers a task that runs on the caller's own goroutine (an HTTP
// stream handler, typically). The returned release func must be called when
// the task exits; calling it more than once is safe.
func (c *Coordinator) Track(name string) (release func()) {
	c.mu.Lock()
	c.running[name]++
	c.mu.Unlock()
	c.wg.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.running[name]--
			if c.running[name] == 0 {
				delete(c.running, name)
			}
			c.mu.Unlock()
			c.wg.Done()
		})
	}
}

// Go runs fn as a tracked task on a new goroutine. The task receives the
// coordinator's context and must return promptly once it is cancelled.
func (c *Coordinator) Go(name string, fn func(ctx context.Context)) {
	release := c.Track(name)
	go func() {
		defer release()
		fn(c.ctx)
	}()
}

// AwaitDrain blocks until every tracked task has exited or the timeout
// elapses, whichever comes first. Returns true when fully drained. On
// timeout the remaining tasks are abandoned rather than awaited; the
// cancelled context stops them.
func (c *Coordinator) AwaitDrain(timeout time.Duration) bool {
	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return true
	case <-time.After(timeout):
		c.mu.Lock()
		stragglers := make([]string, 0, len(c.running))
		for name, n := range c.running {
			if n > 0 {
				stragglers = append(stragglers, name)
			}
		}
		c.mu.Unlock()
		log.Warn().Strs("tasks", stragglers).Dur("timeout", timeout).
			Msg("drain timed out, abandoning stragglers")
		return false
	}
}
