// Package breaker implements the per-origin circuit breaker and cached health probe
// the forwarder consults before dialing the local origin server.
package breaker

import (
	"sync"
	"time"

	"github.com/kiva-corp/localrun/internal/protocol"
)

// CircuitBreaker gates origin dials after repeated consecutive failures. It opens once
// ConsecutiveErrors crosses protocol.BreakerThreshold and self-resets protocol.BreakerResetWindow
// after the last recorded error, matching the simple binary (no half-open) model spec'd —
// a simplification of the half-open pattern seen in other reverse-proxy circuit breakers.
type CircuitBreaker struct {
	mu                sync.Mutex
	consecutiveErrors int
	lastErrorTime     time.Time
	isOpen            bool

	onOpen   func(consecutiveErrors int, cooldown time.Duration)
	onClosed func()
}

// NewCircuitBreaker returns a closed breaker. onOpen/onClosed may be nil; when set they are
// invoked (synchronously, under no lock) on the open/close transitions so callers can emit
// session events.
func NewCircuitBreaker(onOpen func(int, time.Duration), onClosed func()) *CircuitBreaker {
	return &CircuitBreaker{onOpen: onOpen, onClosed: onClosed}
}

// RecordError increments the consecutive-error count and opens the breaker once the
// threshold is crossed.
func (b *CircuitBreaker) RecordError() {
	b.mu.Lock()
	b.consecutiveErrors++
	b.lastErrorTime = time.Now()
	crossed := !b.isOpen && b.consecutiveErrors >= protocol.BreakerThreshold
	if crossed {
		b.isOpen = true
	}
	errs := b.consecutiveErrors
	b.mu.Unlock()

	if crossed && b.onOpen != nil {
		b.onOpen(errs, protocol.BreakerResetWindow)
	}
}

// RecordSuccess clears the consecutive-error count and, if the breaker was open, closes it.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	wasOpen := b.isOpen
	b.consecutiveErrors = 0
	b.isOpen = false
	b.mu.Unlock()

	if wasOpen && b.onClosed != nil {
		b.onClosed()
	}
}

// IsOpen reports whether the breaker currently rejects requests. A breaker left open for
// longer than protocol.BreakerResetWindow since its last error self-resets here.
func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.isOpen {
		return false
	}
	if time.Since(b.lastErrorTime) > protocol.BreakerResetWindow {
		b.isOpen = false
		b.consecutiveErrors = 0
		return false
	}
	return true
}

// ConsecutiveErrors reports the current streak length, for diagnostics/tests.
func (b *CircuitBreaker) ConsecutiveErrors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveErrors
}
