// Package app wires the dictation subsystems into a running pipeline.
//
// The Pipeline owns the full lifecycle: New creates and connects all
// subsystems, Run serves the UI gateway until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject fakes via functional options (WithAudioContext,
// WithSTTProvider, WithBackend). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/feldspar-health/murmur/internal/backend"
	"github.com/feldspar-health/murmur/internal/config"
	"github.com/feldspar-health/murmur/internal/dispatch"
	"github.com/feldspar-health/murmur/internal/gate"
	"github.com/feldspar-health/murmur/internal/gateway"
	"github.com/feldspar-health/murmur/internal/health"
	"github.com/feldspar-health/murmur/internal/history"
	"github.com/feldspar-health/murmur/internal/observe"
	"github.com/feldspar-health/murmur/internal/pii"
	"github.com/feldspar-health/murmur/internal/recording"
	"github.com/feldspar-health/murmur/internal/submit"
	"github.com/feldspar-health/murmur/internal/transcribe"
	"github.com/feldspar-health/murmur/pkg/audio"
	"github.com/feldspar-health/murmur/pkg/provider/stt"
)

// Backend is the slice of the backend client the pipeline needs. Satisfied
// by [backend.Client].
type Backend interface {
	submit.Backend
	TranscribeAudio(ctx context.Context, blob audio.Blob) string
}

// Pipeline owns all subsystem lifetimes and routes UI intents through the
// dictation flow: record, transcribe, scan, gate, submit, remember.
type Pipeline struct {
	cfg *config.Config
	log *slog.Logger

	scanner    *pii.Scanner
	provider   stt.Provider
	audioCtx   audio.Context
	manager    *recording.Manager
	gate       *gate.Gate
	backend    Backend
	coord      *submit.Coordinator
	history    *history.Store
	dispatcher *dispatch.Dispatcher
	hub        *gateway.Hub
	health     *health.Handler
	metrics    *observe.Metrics

	mu          sync.Mutex
	capture     *recording.Capture
	pendingText string
	recordStart time.Time

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New]. Use these to inject test doubles.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithAudioContext injects a capture context instead of opening the platform
// audio backend.
func WithAudioContext(ctx audio.Context) Option {
	return func(p *Pipeline) { p.audioCtx = ctx }
}

// WithSTTProvider injects a recognition provider instead of building one
// from the config registry.
func WithSTTProvider(prov stt.Provider) Option {
	return func(p *Pipeline) { p.provider = prov }
}

// WithBackend injects a backend client instead of creating one from config.
func WithBackend(b Backend) Option {
	return func(p *Pipeline) { p.backend = b }
}

// WithMetrics injects a metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline by wiring all subsystems together. Initialisation
// is synchronous: scanner construction, recognition stack assembly, backend
// client, optional history store connection, and intent registration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg, log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}

	p.scanner = buildScanner(cfg.PII)

	if err := p.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}
	if err := p.initBackend(); err != nil {
		return nil, fmt.Errorf("app: init backend: %w", err)
	}
	if err := p.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	p.gate = gate.New(p.scanner, gate.WithChangeFunc(func(pending bool) {
		p.hub.Broadcast(gateway.EventScanResult, map[string]any{"pending": pending})
	}))
	p.initCoordinator()
	p.manager = recording.NewManager(p.newSession, p.log)

	if err := p.initDispatch(); err != nil {
		return nil, fmt.Errorf("app: init dispatch: %w", err)
	}
	p.hub = gateway.NewHub(p.dispatcher, p.log)
	p.hub.SetClientFunc(func(delta int) {
		p.metrics.GatewayClients.Add(context.Background(), int64(delta))
	})
	p.initHealth()

	return p, nil
}

// buildScanner assembles the disclosure scanner from config: the built-in
// category set, the known-name matcher, and any site-specific patterns.
func buildScanner(cfg config.PIIConfig) *pii.Scanner {
	opts := make([]pii.Option, 0, 1+len(cfg.ExtraPatterns))
	if len(cfg.KnownNames) > 0 {
		opts = append(opts, pii.WithKnownNames(cfg.KnownNames))
	}
	for _, ep := range cfg.ExtraPatterns {
		opts = append(opts, pii.WithExtraPattern(pii.EntityType(ep.Category), ep.Regexp, ep.Placeholder))
	}
	return pii.NewScanner(opts...)
}

func (p *Pipeline) initProviders() error {
	if p.provider == nil {
		prov, err := config.NewRegistry().BuildProvider(p.cfg.STT, p.log)
		if err != nil {
			return err
		}
		p.provider = prov
	}

	if p.audioCtx == nil {
		actx, err := audio.NewContext()
		if err != nil {
			return err
		}
		p.audioCtx = actx
		p.closers = append(p.closers, actx.Close)
	}
	return nil
}

func (p *Pipeline) initBackend() error {
	if p.backend != nil || p.cfg.Backend.BaseURL == "" {
		return nil
	}
	client, err := backend.New(p.cfg.Backend.BaseURL,
		backend.WithAPIKey(p.cfg.Backend.APIKey),
		backend.WithLogger(p.log),
	)
	if err != nil {
		return err
	}
	p.backend = client
	return nil
}

func (p *Pipeline) initHistory(ctx context.Context) error {
	if p.cfg.History.PostgresDSN == "" {
		return nil
	}
	store, err := history.NewStore(ctx, p.cfg.History.PostgresDSN, history.PayloadFormat(p.cfg.History.PayloadFormat))
	if err != nil {
		return err
	}
	p.history = store
	p.closers = append(p.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

func (p *Pipeline) initCoordinator() {
	if p.backend == nil {
		return
	}
	opts := []submit.Option{
		submit.WithLogger(p.log),
		submit.WithStateFunc(func(s submit.State) {
			p.hub.Broadcast(gateway.EventSubmissionState, map[string]any{"state": string(s)})
		}),
		submit.WithRecordFunc(p.recordHistory),
	}
	if p.cfg.Backend.SendTimeout > 0 {
		opts = append(opts, submit.WithTimeout(time.Duration(p.cfg.Backend.SendTimeout)))
	}
	p.coord = submit.New(p.backend, p.gate, opts...)
}

// newSession builds one recording session with a fresh transcriber. The
// manager calls it per take.
func (p *Pipeline) newSession() *recording.Session {
	tr := transcribe.New(p.provider, stt.StreamConfig{
		SampleRate: p.cfg.Recording.SampleRate,
		Channels:   p.cfg.Recording.Channels,
		Language:   p.cfg.STT.Language,
	},
		transcribe.WithLogger(p.log),
		transcribe.WithRestartFunc(func() {
			p.metrics.TranscriberRestarts.Add(context.Background(), 1)
		}),
		transcribe.WithUpdateFunc(func(final, preview string) {
			p.hub.Broadcast(gateway.EventTranscript, map[string]any{
				"final":   final,
				"preview": preview,
			})
		}),
	)

	return recording.NewSession(recording.SessionConfig{
		AudioContext: p.audioCtx,
		Device:       p.deviceInfo(),
		SampleRate:   p.cfg.Recording.SampleRate,
		Channels:     p.cfg.Recording.Channels,
		Transcriber:  tr,
		Scanner:      p.scanner,
		Logger:       p.log,
		OnState: func(st recording.State) {
			p.hub.Broadcast(gateway.EventSessionState, map[string]any{"state": string(st)})
		},
	})
}

// deviceInfo resolves the configured capture device name, nil for the
// platform default or when the name is not found.
func (p *Pipeline) deviceInfo() *audio.DeviceInfo {
	if p.cfg.Recording.Device == "" {
		return nil
	}
	devices, err := p.audioCtx.Devices()
	if err != nil {
		p.log.Warn("enumerating capture devices", "error", err)
		return nil
	}
	for i := range devices {
		if devices[i].Name == p.cfg.Recording.Device {
			return &devices[i]
		}
	}
	p.log.Warn("configured capture device not found, using default",
		"device", p.cfg.Recording.Device)
	return nil
}

func (p *Pipeline) initHealth() {
	var checkers []health.Checker
	if p.history != nil {
		checkers = append(checkers, health.Database("history", p.history))
	}
	if p.cfg.Backend.BaseURL != "" {
		checkers = append(checkers, health.Backend("backend", p.cfg.Backend.BaseURL, nil))
	}
	p.health = health.New(checkers...)
}

// typeStrings converts detected categories to their wire form.
func typeStrings(types []pii.EntityType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// Hub returns the UI gateway hub, for serving and for tests.
func (p *Pipeline) Hub() *gateway.Hub { return p.hub }

// Dispatcher returns the intent dispatcher, for tests.
func (p *Pipeline) Dispatcher() *dispatch.Dispatcher { return p.dispatcher }

// Gate returns the disposition gate, for tests.
func (p *Pipeline) Gate() *gate.Gate { return p.gate }

// Manager returns the recording manager, for tests.
func (p *Pipeline) Manager() *recording.Manager { return p.manager }

// Shutdown tears down all subsystems in reverse-init order, respecting the
// context deadline.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	var shutdownErr error
	p.stopOnce.Do(func() {
		p.log.Info("shutting down", "closers", len(p.closers))

		// A live recording is discarded: nothing was accepted for send.
		if p.manager.Recording() {
			if _, err := p.manager.Stop(); err != nil {
				p.log.Warn("stopping recording on shutdown", "error", err)
			}
		}

		for i := len(p.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				p.log.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := p.closers[i](); err != nil {
				p.log.Warn("closer error", "index", i, "error", err)
			}
		}
	})
	return shutdownErr
}
