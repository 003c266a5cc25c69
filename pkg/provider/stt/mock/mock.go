// Package mock provides a scripted in-memory STT provider for tests.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/feldspar-health/murmur/pkg/provider/stt"
)

// Provider implements [stt.Provider]. Each StartStream call consumes the next
// scripted session; once the script is exhausted, StartErr (or a fresh empty
// session) is returned.
type Provider struct {
	// Scripts holds one transcript sequence per expected session.
	Scripts [][]stt.Transcript

	// StartErr, when non-nil, is returned by StartStream once Scripts is
	// exhausted. Leave nil to hand out empty sessions indefinitely.
	StartErr error

	mu       sync.Mutex
	started  int
	sessions []*Session
}

func (p *Provider) StartStream(ctx context.Context, _ stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var script []stt.Transcript
	if p.started < len(p.Scripts) {
		script = p.Scripts[p.started]
	} else if p.StartErr != nil {
		return nil, p.StartErr
	}
	p.started++

	s := newSession(script)
	p.sessions = append(p.sessions, s)
	return s, nil
}

// Started reports how many sessions have been opened.
func (p *Provider) Started() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Sessions returns all sessions handed out so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Session implements [stt.SessionHandle]. The scripted transcripts are
// delivered immediately on open; the channels then stay open until Close or
// [Session.EndStream] (which simulates an unexpected upstream termination).
type Session struct {
	partials chan stt.Transcript
	finals   chan stt.Transcript

	mu       sync.Mutex
	audio    [][]byte
	closed   bool
	ended    bool
	doneOnce sync.Once
}

func newSession(script []stt.Transcript) *Session {
	s := &Session{
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
	}
	for _, tr := range script {
		if tr.IsFinal {
			s.finals <- tr
		} else {
			s.partials <- tr
		}
	}
	return s
}

func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session is closed")
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.audio = append(s.audio, cp)
	return nil
}

func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.closeChannels()
	return nil
}

// EndStream closes the transcript channels without marking the session
// closed, simulating an upstream stream death mid-recording.
func (s *Session) EndStream() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
	s.closeChannels()
}

// Audio returns the chunks delivered via SendAudio.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) closeChannels() {
	s.doneOnce.Do(func() {
		close(s.partials)
		close(s.finals)
	})
}
