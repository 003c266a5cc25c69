package config

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/feldspar-health/murmur/internal/resilience"
	"github.com/feldspar-health/murmur/pkg/provider/stt"
	"github.com/feldspar-health/murmur/pkg/provider/stt/canned"
	"github.com/feldspar-health/murmur/pkg/provider/stt/stream"
	"github.com/feldspar-health/murmur/pkg/provider/stt/whisper"
)

// ErrProviderNotRegistered is returned by [Registry.Create] when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps recognition backend names to their constructor functions.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]func(STTConfig) (stt.Provider, error)
}

// NewRegistry returns a [Registry] pre-populated with the built-in
// recognition backends: live, whisper, whisper-native, and canned.
func NewRegistry() *Registry {
	r := &Registry{
		factories: make(map[string]func(STTConfig) (stt.Provider, error)),
	}
	r.Register("live", func(cfg STTConfig) (stt.Provider, error) {
		return stream.New(cfg.Endpoint, cfg.APIKey, stream.WithLanguage(cfg.Language))
	})
	r.Register("whisper", func(cfg STTConfig) (stt.Provider, error) {
		return whisper.New(cfg.Endpoint, whisper.WithLanguage(cfg.Language))
	})
	r.Register("whisper-native", func(cfg STTConfig) (stt.Provider, error) {
		return whisper.NewNative(cfg.ModelPath, whisper.WithNativeLanguage(cfg.Language))
	})
	r.Register("canned", func(cfg STTConfig) (stt.Provider, error) {
		return canned.New(), nil
	})
	return r
}

// Register adds a recognition backend factory under name. Subsequent calls
// with the same name overwrite the previous registration.
func (r *Registry) Register(name string, factory func(STTConfig) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the recognition backend registered under name.
// Returns [ErrProviderNotRegistered] when the name is unknown.
func (r *Registry) Create(name string, cfg STTConfig) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}

// BuildProvider assembles the configured recognition stack: the primary
// backend plus any fallbacks, wrapped in a [resilience.Failover]. With no
// fallbacks configured the primary is returned directly.
func (r *Registry) BuildProvider(cfg STTConfig, log *slog.Logger) (stt.Provider, error) {
	primary, err := r.Create(cfg.Provider, cfg)
	if err != nil {
		return nil, err
	}
	if len(cfg.Fallbacks) == 0 {
		return primary, nil
	}

	f := resilience.NewFailover(resilience.FailoverConfig{}, log)
	f.Add(cfg.Provider, primary)
	for _, name := range cfg.Fallbacks {
		p, err := r.Create(name, cfg)
		if err != nil {
			return nil, err
		}
		f.Add(name, p)
	}
	return f, nil
}
