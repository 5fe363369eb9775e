package vectorstore

import (
	"context"
	"sync"
	"time"
)

// pinger is the slice of pgxpool.Pool the gate needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthGate tracks whether the vector backend is reachable. While
// degraded, calls short-circuit instead of blocking on a fresh
// connection attempt, which keeps a dead backend from cascading
// timeouts through every request. At most one reconnection probe runs
// per resetTimeout window.
type healthGate struct {
	pool         pinger
	maxFailures  int
	resetTimeout time.Duration
	probeTimeout time.Duration

	mu        sync.Mutex
	failures  int
	degraded  bool
	lastProbe time.Time
}

func newHealthGate(pool pinger) *healthGate {
	return &healthGate{
		pool:         pool,
		maxFailures:  3,
		resetTimeout: 15 * time.Second,
		probeTimeout: 2 * time.Second,
	}
}

// available reports whether calls may proceed. When degraded and the
// reset window has elapsed, it probes the backend once; a successful
// probe restores the healthy state.
func (g *healthGate) available(ctx context.Context) bool {
	g.mu.Lock()
	if !g.degraded {
		g.mu.Unlock()
		return true
	}
	if time.Since(g.lastProbe) < g.resetTimeout {
		g.mu.Unlock()
		return false
	}
	g.lastProbe = time.Now()
	g.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, g.probeTimeout)
	defer cancel()
	if err := g.pool.Ping(probeCtx); err != nil {
		return false
	}

	g.mu.Lock()
	g.degraded = false
	g.failures = 0
	g.mu.Unlock()
	return true
}

// recordFailure counts a failed backend call; enough consecutive
// failures trip the gate into the degraded state.
func (g *healthGate) recordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	if g.failures >= g.maxFailures {
		g.degraded = true
		g.lastProbe = time.Now()
	}
}

// recordSuccess resets the failure count.
func (g *healthGate) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = 0
	g.degraded = false
}

// markDegraded trips the gate immediately, used when the startup
// connectivity check fails.
func (g *healthGate) markDegraded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.degraded = true
	g.lastProbe = time.Now()
}

// isDegraded reports the current state without probing.
func (g *healthGate) isDegraded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degraded
}
