package loader

import (
	"errors"
	"sync"
	"time"
)

// ErrOriginUnavailable is returned when an origin's breaker is open.
var ErrOriginUnavailable = errors.New("script origin unavailable")

// breakerState is the circuit state for one script origin.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// breaker trips an origin after consecutive fetch failures so a dead CDN
// does not eat the full retry budget on every mount. Half-open admits one
// probe after the cooldown.
type breaker struct {
	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	probing  bool

	threshold int
	cooldown  time.Duration
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// allow reports whether a fetch may proceed.
func (b *breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return nil
	case breakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return ErrOriginUnavailable
		}
		b.state = breakerHalfOpen
		b.probing = true
		return nil
	default: // half-open
		if b.probing {
			return ErrOriginUnavailable
		}
		b.probing = true
		return nil
	}
}

// record folds a fetch outcome into the circuit.
func (b *breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.state = breakerClosed
		b.failures = 0
		b.probing = false
		return
	}

	b.probing = false
	b.failures++
	if b.state == breakerHalfOpen || b.failures >= b.threshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
		b.failures = 0
	}
}
