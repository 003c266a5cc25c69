// Package recording owns the dictation recording lifecycle. A [Session]
// drives one microphone capture from device acquisition through transcript
// finalization and PII scanning; the [Manager] guarantees that at most one
// session is live at any moment.
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/feldspar-health/murmur/internal/pii"
	"github.com/feldspar-health/murmur/internal/transcribe"
	"github.com/feldspar-health/murmur/pkg/audio"
)

// chunkInterval is the capture callback period. Short on purpose: at most
// this much audio is lost if the device dies between callbacks.
const chunkInterval = 250 * time.Millisecond

// CaptureNotice is attached to a capture that produced no audio chunks, so
// the user learns the microphone was silent at disposition time rather than
// after submission.
const CaptureNotice = "no audio was captured from the input device"

// State is a recording session lifecycle state.
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring-device"
	StateRecording State = "recording"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// FailureKind classifies why a session entered [StateFailed].
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailurePermissionDenied FailureKind = "permission-denied"
	FailureNoDevice         FailureKind = "no-device"
	FailureUnsupported      FailureKind = "unsupported"
	FailureOther            FailureKind = "other"
)

// classifyFailure maps a device acquisition error onto a [FailureKind].
func classifyFailure(err error) FailureKind {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return FailurePermissionDenied
	case errors.Is(err, audio.ErrNoDevice):
		return FailureNoDevice
	case errors.Is(err, audio.ErrUnsupported):
		return FailureUnsupported
	default:
		return FailureOther
	}
}

// Capture is the product of one completed recording: the resolved
// transcript, its PII scan, and the captured audio as a WAV blob.
type Capture struct {
	// Transcript is the finalized transcript, or the no-speech sentinel.
	Transcript string

	// Scan is the PII scan of the transcript. For a sentinel transcript the
	// scan is empty: there is nothing local to redact.
	Scan pii.Result

	// ScanDuration is how long the scan took, zero when it was skipped.
	ScanDuration time.Duration

	// Audio is the captured PCM encoded as WAV. With zero captured chunks
	// this is a valid header-only blob, which still counts as submittable
	// content.
	Audio audio.Blob

	// Notice is a human-readable capture warning, or empty. Set to
	// [CaptureNotice] when no chunks arrived.
	Notice string
}

// StateFunc observes session state transitions. Called synchronously; must
// not call back into the session.
type StateFunc func(State)

// SessionConfig holds the dependencies of a [Session].
type SessionConfig struct {
	// AudioContext opens capture devices.
	AudioContext audio.Context

	// Device selects the capture device. Nil selects the platform default.
	Device *audio.DeviceInfo

	// SampleRate and Channels define the capture PCM format.
	SampleRate int
	Channels   int

	// Transcriber receives the captured audio and accumulates the
	// transcript.
	Transcriber *transcribe.Transcriber

	// Scanner performs the PII scan on the finalized transcript.
	Scanner *pii.Scanner

	// OnState, when non-nil, observes state transitions.
	OnState StateFunc

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// Session is a single recording lifecycle:
//
//	Idle -> AcquiringDevice -> Recording -> Stopping -> Stopped
//
// Device acquisition failures move the session to Failed with a classified
// [FailureKind]. Start is legal from Idle, Stopped, and Failed; each Start
// begins a fresh capture. All methods are safe for concurrent use.
type Session struct {
	cfg SessionConfig
	log *slog.Logger

	mu      sync.Mutex
	state   State
	failure FailureKind
	device  audio.CaptureDevice

	// bufMu guards the PCM buffer separately from mu: the chunk callback
	// runs on the device's capture goroutine, which may fire while mu is
	// held by Start.
	bufMu  sync.Mutex
	pcm    bytes.Buffer
	chunks int
}

// NewSession creates an idle recording session.
func NewSession(cfg SessionConfig) *Session {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{cfg: cfg, log: log, state: StateIdle}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcriber returns the session's transcriber, for live transcript
// access while recording.
func (s *Session) Transcriber() *transcribe.Transcriber {
	return s.cfg.Transcriber
}

// Failure returns the classified failure of the last failed Start, or
// [FailureNone].
func (s *Session) Failure() FailureKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// setState transitions the state under mu and notifies the observer.
func (s *Session) setState(st State) {
	s.state = st
	if s.cfg.OnState != nil {
		s.cfg.OnState(st)
	}
}

// Start acquires the capture device and begins recording. The transcription
// stream is opened before the device starts delivering chunks, so no audio
// is captured without a recogniser attached.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle, StateStopped, StateFailed:
	default:
		return fmt.Errorf("recording: cannot start from state %q", s.state)
	}

	s.setState(StateAcquiring)
	s.failure = FailureNone
	s.bufMu.Lock()
	s.pcm.Reset()
	s.chunks = 0
	s.bufMu.Unlock()

	if err := s.cfg.Transcriber.Start(ctx); err != nil {
		s.setState(StateFailed)
		s.failure = FailureOther
		return fmt.Errorf("recording: start transcription: %w", err)
	}

	captureCfg := audio.CaptureConfig{
		SampleRate:    s.cfg.SampleRate,
		Channels:      s.cfg.Channels,
		ChunkInterval: chunkInterval,
	}
	device, err := s.cfg.AudioContext.OpenCapture(s.cfg.Device, captureCfg, s.onChunk)
	if err != nil {
		s.cfg.Transcriber.Stop()
		s.failure = classifyFailure(err)
		s.setState(StateFailed)
		return fmt.Errorf("recording: open capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		_ = device.Close()
		s.cfg.Transcriber.Stop()
		s.failure = classifyFailure(err)
		s.setState(StateFailed)
		return fmt.Errorf("recording: start capture device: %w", err)
	}

	s.device = device
	s.setState(StateRecording)
	s.log.Info("recording started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
	)
	return nil
}

// onChunk runs on the device capture goroutine. It buffers the chunk for
// WAV finalization and forwards it to the recogniser. Forwarding errors are
// logged and swallowed: a dead stream is the transcriber's restart problem,
// never a reason to drop captured audio.
func (s *Session) onChunk(chunk []byte) {
	s.bufMu.Lock()
	s.pcm.Write(chunk)
	s.chunks++
	s.bufMu.Unlock()

	if err := s.cfg.Transcriber.SendAudio(chunk); err != nil {
		s.log.Debug("forwarding audio chunk", "error", err)
	}
}

// Stop ends the recording and resolves its [Capture]. The transcription
// token is cancelled before the device stops, then the buffered PCM is
// finalized as WAV, the transcript resolved, and the scan run.
//
// Stop is only legal from [StateRecording].
func (s *Session) Stop() (*Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return nil, fmt.Errorf("recording: cannot stop from state %q", s.state)
	}
	s.setState(StateStopping)

	s.cfg.Transcriber.Stop()

	if err := s.device.Stop(); err != nil {
		s.log.Warn("stopping capture device", "error", err)
	}
	if err := s.device.Close(); err != nil {
		s.log.Warn("closing capture device", "error", err)
	}
	s.device = nil

	s.bufMu.Lock()
	pcm := append([]byte(nil), s.pcm.Bytes()...)
	chunks := s.chunks
	s.bufMu.Unlock()

	capture := &Capture{
		Audio: audio.EncodeWAV(pcm, s.cfg.SampleRate, s.cfg.Channels),
	}
	if chunks == 0 {
		capture.Notice = CaptureNotice
		s.log.Warn("recording produced no audio chunks")
	}

	capture.Transcript = s.cfg.Transcriber.Finalize()
	if transcribe.IsSentinel(capture.Transcript) {
		capture.Scan = pii.Result{
			OriginalText: capture.Transcript,
			RedactedText: capture.Transcript,
		}
	} else {
		start := time.Now()
		capture.Scan = s.cfg.Scanner.Scan(capture.Transcript)
		capture.ScanDuration = time.Since(start)
	}

	s.setState(StateStopped)
	s.log.Info("recording stopped",
		"chunks", chunks,
		"audio_bytes", len(capture.Audio.Data),
		"pii_detected", capture.Scan.Detected,
	)

	return capture, nil
}
