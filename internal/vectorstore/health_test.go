package vectorstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakePinger is a scriptable pinger: it fails while down and counts
// probe attempts.
type fakePinger struct {
	mu    sync.Mutex
	down  bool
	pings int
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pings++
	if p.down {
		return errors.New("connection refused")
	}
	return nil
}

func (p *fakePinger) setDown(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.down = down
}

func (p *fakePinger) pingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pings
}

func TestHealthGateTripsAfterConsecutiveFailures(t *testing.T) {
	gate := newHealthGate(&fakePinger{})

	gate.recordFailure()
	gate.recordFailure()
	if gate.isDegraded() {
		t.Fatal("degraded before reaching the failure limit")
	}
	gate.recordFailure()
	if !gate.isDegraded() {
		t.Fatal("not degraded after three consecutive failures")
	}
}

func TestHealthGateSuccessResetsFailures(t *testing.T) {
	gate := newHealthGate(&fakePinger{})

	gate.recordFailure()
	gate.recordFailure()
	gate.recordSuccess()
	gate.recordFailure()
	gate.recordFailure()
	if gate.isDegraded() {
		t.Fatal("failure count survived an intervening success")
	}
}

func TestHealthGateShortCircuitsWhileDegraded(t *testing.T) {
	pinger := &fakePinger{}
	gate := newHealthGate(pinger)
	gate.markDegraded()

	// Inside the reset window: no probe, calls short-circuit.
	if gate.available(context.Background()) {
		t.Fatal("available while degraded inside the reset window")
	}
	if pinger.pingCount() != 0 {
		t.Errorf("probed %d times inside the reset window, want 0", pinger.pingCount())
	}
}

func TestHealthGateProbesAfterResetWindow(t *testing.T) {
	pinger := &fakePinger{}
	pinger.setDown(true)
	gate := newHealthGate(pinger)
	gate.resetTimeout = 10 * time.Millisecond
	gate.markDegraded()

	time.Sleep(20 * time.Millisecond)
	if gate.available(context.Background()) {
		t.Fatal("available while the backend still refuses connections")
	}
	if pinger.pingCount() != 1 {
		t.Errorf("probes = %d, want exactly 1 per window", pinger.pingCount())
	}

	// Backend recovers: the next window's probe restores service.
	pinger.setDown(false)
	time.Sleep(20 * time.Millisecond)
	if !gate.available(context.Background()) {
		t.Fatal("still degraded after a successful probe")
	}
	if gate.isDegraded() {
		t.Error("degraded flag not cleared by the successful probe")
	}
}
