package recording

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/feldspar-health/murmur/internal/pii"
	"github.com/feldspar-health/murmur/internal/transcribe"
	"github.com/feldspar-health/murmur/pkg/audio"
	audiomock "github.com/feldspar-health/murmur/pkg/audio/mock"
	"github.com/feldspar-health/murmur/pkg/provider/stt"
	sttmock "github.com/feldspar-health/murmur/pkg/provider/stt/mock"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func final(text string) stt.Transcript {
	return stt.Transcript{Text: text, IsFinal: true}
}

// newTestSession wires a session against the audio and STT mocks, returning
// the transcriber so tests can wait for recognition results.
func newTestSession(audioCtx *audiomock.Context, provider *sttmock.Provider, onState StateFunc) (*Session, *transcribe.Transcriber) {
	tr := transcribe.New(provider, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	s := NewSession(SessionConfig{
		AudioContext: audioCtx,
		SampleRate:   16000,
		Channels:     1,
		Transcriber:  tr,
		Scanner:      pii.NewScanner(),
		OnState:      onState,
	})
	return s, tr
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	audioCtx := &audiomock.Context{Chunks: [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8}}}
	provider := &sttmock.Provider{Scripts: [][]stt.Transcript{
		{final("patient presents with chest pain")},
	}}

	var stateMu sync.Mutex
	var states []State
	s, tr := newTestSession(audioCtx, provider, func(st State) {
		stateMu.Lock()
		states = append(states, st)
		stateMu.Unlock()
	})

	if got := s.State(); got != StateIdle {
		t.Fatalf("initial state = %q", got)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.State(); got != StateRecording {
		t.Fatalf("state after Start = %q", got)
	}

	// Chunks reach the recogniser as well as the WAV buffer.
	if got := provider.Sessions()[0].Audio(); len(got) != 2 {
		t.Errorf("recogniser received %d chunks, want 2", len(got))
	}

	waitFor(t, func() bool {
		return tr.Text() == "patient presents with chest pain"
	}, "transcript")

	capture, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := s.State(); got != StateStopped {
		t.Errorf("state after Stop = %q", got)
	}
	if capture.Transcript != "patient presents with chest pain" {
		t.Errorf("Transcript = %q", capture.Transcript)
	}
	if capture.Scan.Detected {
		t.Errorf("unexpected PII detection: %v", capture.Scan.Types)
	}
	if capture.Notice != "" {
		t.Errorf("Notice = %q, want empty", capture.Notice)
	}
	if want := audio.WAVHeaderSize + 8; len(capture.Audio.Data) != want {
		t.Errorf("audio blob = %d bytes, want %d", len(capture.Audio.Data), want)
	}
	if !audioCtx.Opened()[0].Closed() {
		t.Error("capture device not closed")
	}

	stateMu.Lock()
	defer stateMu.Unlock()
	want := []State{StateAcquiring, StateRecording, StateStopping, StateStopped}
	if len(states) != len(want) {
		t.Fatalf("state transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state transitions = %v, want %v", states, want)
		}
	}
}

func TestSessionDetectsPII(t *testing.T) {
	t.Parallel()
	audioCtx := &audiomock.Context{Chunks: [][]byte{{1, 2}}}
	provider := &sttmock.Provider{Scripts: [][]stt.Transcript{
		{final("NHS number is 943 476 5919")},
	}}
	s, tr := newTestSession(audioCtx, provider, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return tr.Text() != "" }, "transcript")

	capture, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !capture.Scan.Detected {
		t.Fatal("PII not detected")
	}
	if !strings.Contains(capture.Scan.RedactedText, "[NHS-NUMBER]") {
		t.Errorf("RedactedText = %q", capture.Scan.RedactedText)
	}
}

func TestSessionEmptyCapture(t *testing.T) {
	t.Parallel()
	audioCtx := &audiomock.Context{}
	provider := &sttmock.Provider{Scripts: [][]stt.Transcript{{}}}
	s, _ := newTestSession(audioCtx, provider, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	capture, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if capture.Transcript != transcribe.SentinelUnheard {
		t.Errorf("Transcript = %q, want sentinel", capture.Transcript)
	}
	if capture.Scan.Detected {
		t.Error("scan fired on the sentinel transcript")
	}
	if capture.Scan.RedactedText != transcribe.SentinelUnheard {
		t.Errorf("RedactedText = %q, want sentinel passed through", capture.Scan.RedactedText)
	}
	if capture.Notice != CaptureNotice {
		t.Errorf("Notice = %q, want capture notice", capture.Notice)
	}
	if !capture.Audio.Empty() {
		t.Error("header-only blob not reported as empty")
	}
	if len(capture.Audio.Data) != audio.WAVHeaderSize {
		t.Errorf("audio blob = %d bytes, want bare header", len(capture.Audio.Data))
	}
}

func TestSessionFailureClassification(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		kind FailureKind
	}{
		{"permission denied", audio.ErrPermissionDenied, FailurePermissionDenied},
		{"no device", audio.ErrNoDevice, FailureNoDevice},
		{"unsupported", audio.ErrUnsupported, FailureUnsupported},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			audioCtx := &audiomock.Context{OpenErr: tc.err}
			provider := &sttmock.Provider{Scripts: [][]stt.Transcript{{}}}
			s, _ := newTestSession(audioCtx, provider, nil)

			if err := s.Start(context.Background()); err == nil {
				t.Fatal("Start succeeded with a failing device")
			}
			if got := s.State(); got != StateFailed {
				t.Errorf("state = %q, want failed", got)
			}
			if got := s.Failure(); got != tc.kind {
				t.Errorf("Failure = %q, want %q", got, tc.kind)
			}
			// The recognition stream opened before acquisition must be torn
			// down again.
			if !provider.Sessions()[0].Closed() {
				t.Error("recognition stream left open after device failure")
			}
		})
	}
}

func TestSessionRestartAfterFailure(t *testing.T) {
	t.Parallel()
	audioCtx := &audiomock.Context{OpenErr: audio.ErrNoDevice}
	provider := &sttmock.Provider{Scripts: [][]stt.Transcript{{}, {}}}
	s, _ := newTestSession(audioCtx, provider, nil)

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start succeeded with no device")
	}

	audioCtx.OpenErr = nil
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start after failure: %v", err)
	}
	if got := s.State(); got != StateRecording {
		t.Errorf("state = %q", got)
	}
	if got := s.Failure(); got != FailureNone {
		t.Errorf("Failure = %q, want cleared", got)
	}
}

func TestSessionDoubleStart(t *testing.T) {
	t.Parallel()
	audioCtx := &audiomock.Context{}
	provider := &sttmock.Provider{Scripts: [][]stt.Transcript{{}, {}}}
	s, _ := newTestSession(audioCtx, provider, nil)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("second Start succeeded mid-recording")
	}
}

func TestManagerSingleActiveSession(t *testing.T) {
	t.Parallel()
	audioCtx := &audiomock.Context{}
	provider := &sttmock.Provider{Scripts: [][]stt.Transcript{{}, {}}}

	m := NewManager(func() *Session {
		s, _ := newTestSession(audioCtx, provider, nil)
		return s
	}, nil)

	if m.Recording() {
		t.Fatal("Recording true before first Start")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	firstDevice := audioCtx.Opened()[0]

	// A second Start tears the first session down and begins a new one.
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !firstDevice.Closed() {
		t.Error("previous capture device left open")
	}
	if got := len(audioCtx.Opened()); got != 2 {
		t.Fatalf("opened %d devices, want 2", got)
	}
	if !m.Recording() {
		t.Error("Recording false with an active session")
	}

	if _, err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if m.Recording() {
		t.Error("Recording true after Stop")
	}
	if _, err := m.Stop(); err == nil {
		t.Fatal("Stop succeeded with nothing recording")
	}
}
