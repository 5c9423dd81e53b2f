package toolmanager

import (
	"sync"
	"time"
)

// breakerState is the circuit breaker's state per spec §4.2 step 5.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// circuitBreaker is a per-tool failure gate: closed passes calls through,
// open fails fast until a cooldown lapses, half-open allows exactly one
// probe call to decide whether to close or re-open (doubling the cooldown).
type circuitBreaker struct {
	mu             sync.Mutex
	state          breakerState
	cooldown       time.Duration
	baseCooldown   time.Duration
	maxCooldown    time.Duration
	openedAt       time.Time
	halfOpenInUse  bool
}

func newCircuitBreaker(base, max time.Duration) *circuitBreaker {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if max <= 0 {
		max = 60 * time.Second
	}
	return &circuitBreaker{state: breakerClosed, cooldown: base, baseCooldown: base, maxCooldown: max}
}

// allow reports whether a call may proceed now, transitioning open->half-open
// when the cooldown has elapsed.
func (b *circuitBreaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if now.Sub(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			b.halfOpenInUse = true
			return true
		}
		return false
	case breakerHalfOpen:
		if b.halfOpenInUse {
			return false // only one probe in flight
		}
		b.halfOpenInUse = true
		return true
	}
	return false
}

func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.cooldown = b.baseCooldown
	b.halfOpenInUse = false
}

func (b *circuitBreaker) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.halfOpenInUse = false
	if b.state == breakerHalfOpen {
		b.cooldown *= 2
		if b.cooldown > b.maxCooldown {
			b.cooldown = b.maxCooldown
		}
	}
	b.state = breakerOpen
	b.openedAt = now
}

func (b *circuitBreaker) snapshot() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
