// Package canned provides the fallback STT provider used when no live
// recognition service is available. After a fixed delay each session emits a
// single deterministic placeholder transcript, so the rest of the dictation
// pipeline stays exercisable in environments without speech capability.
package canned

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/feldspar-health/murmur/pkg/provider/stt"
)

// DefaultText is the placeholder transcript emitted when none is configured.
const DefaultText = "Dictated note recorded without live transcription."

// DefaultDelay is the pause before the placeholder transcript is emitted.
const DefaultDelay = 500 * time.Millisecond

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the canned Provider.
type Option func(*Provider)

// WithText overrides the placeholder transcript emitted by each session.
func WithText(text string) Option {
	return func(p *Provider) { p.text = text }
}

// WithDelay overrides the emission delay. Useful in tests.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) { p.delay = d }
}

// Provider implements stt.Provider with a deterministic canned transcript.
type Provider struct {
	text  string
	delay time.Duration
}

// New creates a canned Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		text:  DefaultText,
		delay: DefaultDelay,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// StartStream opens a session that emits one final transcript after the
// configured delay, then holds its channels open until Close.
func (p *Provider) StartStream(ctx context.Context, _ stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &session{
		partials: make(chan stt.Transcript, 1),
		finals:   make(chan stt.Transcript, 1),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(s.partials)
		defer close(s.finals)

		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-time.After(p.delay):
		}

		select {
		case s.finals <- stt.Transcript{Text: p.text, IsFinal: true, Confidence: 1}:
		case <-s.done:
			return
		}

		// Hold the channels open so the accumulator treats this like any
		// other live session until the recording stops.
		select {
		case <-ctx.Done():
		case <-s.done:
		}
	}()

	return s, nil
}

// session implements stt.SessionHandle. Audio is accepted and discarded.
type session struct {
	partials chan stt.Transcript
	finals   chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *session) SendAudio(_ []byte) error {
	select {
	case <-s.done:
		return errors.New("canned: session is closed")
	default:
		return nil
	}
}

func (s *session) Partials() <-chan stt.Transcript { return s.partials }

func (s *session) Finals() <-chan stt.Transcript { return s.finals }

func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}
