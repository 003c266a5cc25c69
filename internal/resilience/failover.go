package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/feldspar-health/murmur/pkg/provider/stt"
)

// ErrAllBackendsFailed is returned when no recognition backend could open a
// stream. The last backend's error is wrapped alongside it.
var ErrAllBackendsFailed = errors.New("resilience: all recognition backends failed")

// FailoverConfig tunes the per-backend breakers of a [Failover].
type FailoverConfig struct {
	// Trip, Cooldown, and Probes apply to every backend's breaker.
	// Zero values take the [BreakerConfig] defaults.
	Trip     int
	Cooldown time.Duration
	Probes   int
}

type backend struct {
	name     string
	provider stt.Provider
	breaker  *Breaker
}

// Failover is an [stt.Provider] that tries an ordered list of backends until
// one opens a stream. Each backend carries its own [Breaker], so a backend
// that keeps failing is skipped until its cooldown elapses. The usual order
// is the live streaming service first, a local whisper fallback second, and
// the canned source last.
type Failover struct {
	cfg FailoverConfig
	log *slog.Logger

	mu       sync.RWMutex
	backends []backend
}

var _ stt.Provider = (*Failover)(nil)

// NewFailover creates an empty [Failover]. Backends are added in preference
// order with [Failover.Add].
func NewFailover(cfg FailoverConfig, log *slog.Logger) *Failover {
	if log == nil {
		log = slog.Default()
	}
	return &Failover{cfg: cfg, log: log}
}

// Add appends a backend at the lowest preference so far.
func (f *Failover) Add(name string, p stt.Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backends = append(f.backends, backend{
		name:     name,
		provider: p,
		breaker: NewBreaker(BreakerConfig{
			Name:     name,
			Trip:     f.cfg.Trip,
			Cooldown: f.cfg.Cooldown,
			Probes:   f.cfg.Probes,
		}, f.log),
	})
}

// Backends returns the configured backend names in preference order.
func (f *Failover) Backends() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, len(f.backends))
	for i, b := range f.backends {
		names[i] = b.name
	}
	return names
}

// StartStream opens a session on the first healthy backend. Backends with an
// open breaker are skipped. If every backend fails or is skipped, the error
// wraps [ErrAllBackendsFailed] and the last backend error seen.
func (f *Failover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	f.mu.RLock()
	backends := make([]backend, len(f.backends))
	copy(backends, f.backends)
	f.mu.RUnlock()

	if len(backends) == 0 {
		return nil, fmt.Errorf("resilience: no recognition backends configured")
	}

	var lastErr error
	for _, b := range backends {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resilience: start stream: %w", err)
		}
		if err := b.breaker.Allow(); err != nil {
			f.log.Debug("skipping open recognition backend", "backend", b.name)
			continue
		}

		handle, err := b.provider.StartStream(ctx, cfg)
		if err != nil {
			b.breaker.Fail()
			lastErr = err
			f.log.Warn("recognition backend failed to open stream",
				"backend", b.name,
				"error", err,
			)
			continue
		}

		b.breaker.Succeed()
		f.log.Debug("recognition stream opened", "backend", b.name)
		return handle, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: last error: %w", ErrAllBackendsFailed, lastErr)
	}
	return nil, ErrAllBackendsFailed
}
