// Package transcribe turns a streaming recognition session into a stable
// transcript. It owns the [Accumulator] for the current recording, keeps the
// stream alive across mid-session drops, and resolves the final text when
// recording ends.
//
// Stream restarts are guarded by a per-generation [Token]. Stopping a
// transcriber cancels the token before the stream handle is closed, so the
// consume loop can always distinguish a deliberate teardown from an upstream
// death: a closed channel observed under a cancelled token never triggers a
// restart.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/feldspar-health/murmur/pkg/provider/stt"
)

// SentinelUnheard is stored as the transcript when a recording produced no
// recognisable speech. Downstream stages treat it as "defer transcription to
// the server": the redaction scanner leaves it alone and submission relies on
// the captured audio instead.
const SentinelUnheard = "[unclear audio — transcription pending]"

// IsSentinel reports whether text is the no-speech placeholder rather than
// real transcript content.
func IsSentinel(text string) bool {
	return strings.TrimSpace(text) == SentinelUnheard
}

// Token marks one streaming generation as live. A restart is only attempted
// while the token that owned the dead stream is still valid.
type Token struct {
	mu        sync.Mutex
	cancelled bool
}

// Cancel invalidates the token. Safe to call multiple times.
func (t *Token) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
}

// Cancelled reports whether the token has been invalidated.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// UpdateFunc receives transcript snapshots as recognition results arrive.
// final is the accumulated final text; preview additionally includes the
// current interim hypothesis.
type UpdateFunc func(final, preview string)

// Option is a functional option for configuring a [Transcriber].
type Option func(*Transcriber)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(t *Transcriber) {
		t.log = log
	}
}

// WithUpdateFunc registers a callback invoked after every accepted
// recognition result. The callback runs on the consume goroutine and must
// not block.
func WithUpdateFunc(fn UpdateFunc) Option {
	return func(t *Transcriber) {
		t.onUpdate = fn
	}
}

// WithRestartFunc registers a callback invoked after every successful
// mid-recording stream restart. Runs on the consume goroutine and must not
// block.
func WithRestartFunc(fn func()) Option {
	return func(t *Transcriber) {
		t.onRestart = fn
	}
}

// Transcriber drives one [stt.Provider] stream at a time and accumulates its
// results. All methods are safe for concurrent use.
type Transcriber struct {
	provider  stt.Provider
	cfg       stt.StreamConfig
	log       *slog.Logger
	onUpdate  UpdateFunc
	onRestart func()
	acc       *Accumulator

	mu     sync.Mutex
	handle stt.SessionHandle
	tok    *Token
}

// New creates a Transcriber for the given provider and stream configuration.
func New(provider stt.Provider, cfg stt.StreamConfig, opts ...Option) *Transcriber {
	t := &Transcriber{
		provider: provider,
		cfg:      cfg,
		log:      slog.Default(),
		acc:      &Accumulator{},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Start opens a recognition stream and begins accumulating results. The
// accumulator is reset, so each Start begins a fresh transcript. Returns an
// error if a stream is already active.
func (t *Transcriber) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handle != nil {
		return errors.New("transcribe: stream already active")
	}

	handle, err := t.provider.StartStream(ctx, t.cfg)
	if err != nil {
		return fmt.Errorf("transcribe: start stream: %w", err)
	}

	t.acc.Reset()
	tok := &Token{}
	t.tok = tok
	t.handle = handle

	go t.consume(ctx, handle, tok)
	return nil
}

// SendAudio forwards a captured audio chunk to the active stream.
func (t *Transcriber) SendAudio(chunk []byte) error {
	t.mu.Lock()
	handle := t.handle
	t.mu.Unlock()

	if handle == nil {
		return errors.New("transcribe: no active stream")
	}
	return handle.SendAudio(chunk)
}

// Stop ends the active stream. The generation token is cancelled first and
// the handle closed after, so the consume loop will not restart the stream
// it is about to see die. Safe to call when no stream is active.
func (t *Transcriber) Stop() {
	t.mu.Lock()
	if t.tok != nil {
		t.tok.Cancel()
	}
	handle := t.handle
	t.tok = nil
	t.handle = nil
	t.mu.Unlock()

	if handle != nil {
		if err := handle.Close(); err != nil {
			t.log.Warn("closing transcription stream", "error", err)
		}
	}
}

// Active reports whether a stream is currently open.
func (t *Transcriber) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handle != nil
}

// Text returns the accumulated final transcript so far.
func (t *Transcriber) Text() string {
	return t.acc.Text()
}

// Preview returns the display transcript including the current interim
// hypothesis.
func (t *Transcriber) Preview() string {
	return t.acc.Preview()
}

// Finalize resolves the transcript of a finished recording. An empty or
// whitespace-only accumulation resolves to [SentinelUnheard].
func (t *Transcriber) Finalize() string {
	text := strings.TrimSpace(t.acc.Text())
	if text == "" {
		return SentinelUnheard
	}
	return text
}

// consume drains one stream generation, restarting it on upstream death
// while tok remains valid.
func (t *Transcriber) consume(ctx context.Context, handle stt.SessionHandle, tok *Token) {
	partials := handle.Partials()
	finals := handle.Finals()

	for {
		select {
		case <-ctx.Done():
			return
		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			t.acc.SetInterim(tr.Text)
			t.notify()
		case tr, ok := <-finals:
			if !ok {
				next := t.restart(ctx, tok)
				if next == nil {
					return
				}
				handle = next
				partials = handle.Partials()
				finals = handle.Finals()
				continue
			}
			t.acc.AddFinal(tr.Text)
			t.notify()
		}
	}
}

// restart opens a replacement stream after an upstream death. Returns nil
// when the generation has been cancelled, superseded, or the provider
// refuses a new stream; restart failures are logged and swallowed so the
// recording keeps the transcript accumulated so far.
func (t *Transcriber) restart(ctx context.Context, tok *Token) stt.SessionHandle {
	if tok.Cancelled() {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tok != tok {
		return nil
	}

	handle, err := t.provider.StartStream(ctx, t.cfg)
	if err != nil {
		t.log.Warn("transcription stream restart failed, keeping partial transcript", "error", err)
		return nil
	}

	t.log.Info("transcription stream restarted mid-recording")
	t.handle = handle
	if t.onRestart != nil {
		t.onRestart()
	}
	return handle
}

func (t *Transcriber) notify() {
	if t.onUpdate != nil {
		t.onUpdate(t.acc.Text(), t.acc.Preview())
	}
}
