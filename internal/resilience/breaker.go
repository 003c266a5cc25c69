// Package resilience keeps transcription available when a recognition
// backend degrades. A [Breaker] stops hammering a backend that keeps
// failing; a [Failover] tries an ordered list of backends (live service,
// local model, canned fallback) and hands out the first stream that opens.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned when the breaker is open and the cooldown has
// not yet elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards all calls.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls until the cooldown elapses.
	BreakerOpen

	// BreakerProbing lets a limited number of calls through after the
	// cooldown; success closes the breaker, failure re-opens it.
	BreakerProbing
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero values take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Trip is the number of consecutive failures that open the breaker.
	// Default: 3.
	Trip int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 15s.
	Cooldown time.Duration

	// Probes is how many consecutive probe successes close the breaker.
	// Default: 1.
	Probes int
}

// Breaker is a three-state circuit breaker guarding one recognition
// backend. Stream opens are infrequent, so the defaults trip fast and probe
// with a single call. Safe for concurrent use.
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration
	probes   int
	log      *slog.Logger

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig, log *slog.Logger) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Breaker{
		name:     cfg.Name,
		trip:     cfg.Trip,
		cooldown: cfg.Cooldown,
		probes:   cfg.Probes,
		log:      log,
	}
}

// Allow reports whether a call may proceed, transitioning open to probing
// once the cooldown has elapsed. Callers must report the outcome via
// [Breaker.Succeed] or [Breaker.Fail].
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen {
		if time.Since(b.openedAt) < b.cooldown {
			return ErrBreakerOpen
		}
		b.state = BreakerProbing
		b.successes = 0
		b.log.Info("recognition backend probing after cooldown", "backend", b.name)
	}
	return nil
}

// Succeed records a successful call.
func (b *Breaker) Succeed() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerProbing:
		b.successes++
		if b.successes >= b.probes {
			b.state = BreakerClosed
			b.failures = 0
			b.log.Info("recognition backend recovered", "backend", b.name)
		}
	default:
		b.failures = 0
	}
}

// Fail records a failed call. A probing failure re-opens immediately.
func (b *Breaker) Fail() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerProbing {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.log.Warn("recognition backend still failing, re-opened", "backend", b.name)
		return
	}

	b.failures++
	if b.failures >= b.trip {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.log.Warn("recognition backend tripped",
			"backend", b.name,
			"consecutive_failures", b.failures,
		)
	}
}

// State returns the current breaker state. An elapsed cooldown reports as
// [BreakerProbing]; the transition itself happens on the next Allow.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.successes = 0
}
