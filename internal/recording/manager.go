package recording

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Manager enforces the single-recording invariant: at most one [Session] is
// live at any moment. Starting while a recording is already in progress
// tears the old one down first and discards its capture; a restart request
// is always a statement that the previous take no longer matters.
//
// All methods are safe for concurrent use.
type Manager struct {
	newSession func() *Session
	log        *slog.Logger

	mu      sync.Mutex
	current *Session
}

// NewManager creates a Manager that obtains fresh sessions from the given
// factory.
func NewManager(newSession func() *Session, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{newSession: newSession, log: log}
}

// Start begins a new recording. A session still in [StateRecording] is
// stopped and its capture discarded before the new one starts.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.State() == StateRecording {
		m.log.Warn("starting a recording while one is active, discarding the previous take")
		if _, err := m.current.Stop(); err != nil {
			m.log.Warn("tearing down previous recording", "error", err)
		}
	}

	s := m.newSession()
	if err := s.Start(ctx); err != nil {
		m.current = s
		return fmt.Errorf("recording manager: %w", err)
	}
	m.current = s
	return nil
}

// Stop ends the active recording and returns its capture.
func (m *Manager) Stop() (*Capture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, fmt.Errorf("recording manager: no recording to stop")
	}
	capture, err := m.current.Stop()
	if err != nil {
		return nil, fmt.Errorf("recording manager: %w", err)
	}
	return capture, nil
}

// Current returns the most recent session, or nil before the first Start.
// Useful for state and failure inspection.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Recording reports whether a recording is in progress.
func (m *Manager) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.State() == StateRecording
}
