// Package submit coordinates message submission to the reporting backend.
// The [Coordinator] is the single chokepoint between locally captured
// content and the network: it refuses empty sends, refuses to bypass an
// open PII gate, serialises concurrent sends, and maps the backend's typed
// outcomes onto pipeline state.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/feldspar-health/murmur/internal/backend"
	"github.com/feldspar-health/murmur/internal/gate"
	"github.com/feldspar-health/murmur/internal/pii"
	"github.com/feldspar-health/murmur/internal/transcribe"
	"github.com/feldspar-health/murmur/pkg/audio"
)

// defaultTimeout bounds one submission round trip. Dictations carry audio
// blobs, so the bound is generous; it exists so a dead backend can never
// wedge the pipeline in Sending.
const defaultTimeout = 2 * time.Minute

var (
	// ErrNoContent is returned when there is nothing to send. A present
	// audio blob counts as content even when it carries no samples.
	ErrNoContent = errors.New("submit: no content to send")

	// ErrPIIPending is returned while the PII gate awaits a decision.
	ErrPIIPending = errors.New("submit: pii decision pending")

	// ErrSendInFlight is returned when a submission is already running.
	// The caller's send is dropped, not queued.
	ErrSendInFlight = errors.New("submit: a submission is already in flight")

	// ErrTimeout is returned when the backend did not answer within the
	// submission timeout. Retryable; the staged content is preserved.
	ErrTimeout = errors.New("submit: submission timed out")
)

// State is the submission pipeline state.
type State string

const (
	StateIdle         State = "idle"
	StateSending      State = "sending"
	StateBlockedByPII State = "blocked-by-pii"
	StateFailed       State = "failed"
	StateSucceeded    State = "succeeded"
)

// Content is the staged material of one submission.
type Content struct {
	// Text is the candidate transcript. The no-speech sentinel is never
	// sent: it switches the submission to server-side transcription.
	Text string

	// Audio is the captured recording, nil when none exists.
	Audio *audio.Blob

	// Attachments are additional files.
	Attachments []backend.Attachment
}

// empty reports whether there is nothing submittable.
func (c Content) empty() bool {
	return strings.TrimSpace(c.Text) == "" && c.Audio == nil && len(c.Attachments) == 0
}

// Backend is the slice of the backend client the coordinator needs.
type Backend interface {
	SubmitMessage(ctx context.Context, chatID string, p backend.Payload) (*backend.Outcome, error)
}

// RecordFunc persists a successfully submitted message.
type RecordFunc func(ctx context.Context, chatID string, content Content, out *backend.Outcome) error

// StateFunc observes submission state transitions.
type StateFunc func(State)

// Option is a functional option for configuring a [Coordinator].
type Option func(*Coordinator)

// WithTimeout overrides the submission timeout. Defaults to 2 minutes.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// WithRecordFunc registers a history recorder called after every accepted
// submission. Recording failures are logged, never surfaced: the message
// is already delivered.
func WithRecordFunc(fn RecordFunc) Option {
	return func(c *Coordinator) {
		c.record = fn
	}
}

// WithStateFunc registers a state observer.
func WithStateFunc(fn StateFunc) Option {
	return func(c *Coordinator) {
		c.onState = fn
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// Coordinator owns the submission lifecycle. All methods are safe for
// concurrent use.
type Coordinator struct {
	backend Backend
	gate    *gate.Gate
	timeout time.Duration
	record  RecordFunc
	onState StateFunc
	log     *slog.Logger

	mu      sync.Mutex
	sending bool
	state   State
	staged  Content
	hasWork bool
}

// New creates a Coordinator in [StateIdle].
func New(b Backend, g *gate.Gate, opts ...Option) *Coordinator {
	c := &Coordinator{
		backend: b,
		gate:    g,
		timeout: defaultTimeout,
		log:     slog.Default(),
		state:   StateIdle,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current submission state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Staged returns the content held for resubmission, if any. Content stays
// staged through timeouts, transport failures, and PII blocks; success and
// [Clear] remove it.
func (c *Coordinator) Staged() (Content, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.staged, c.hasWork
}

// Clear drops the staged content, for a user abandoning a failed send.
func (c *Coordinator) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = Content{}
	c.hasWork = false
	c.setStateLocked(StateIdle)
}

// Send submits content to the given chat.
//
// Refusals that never reach the network: [ErrNoContent], [ErrPIIPending],
// [ErrSendInFlight]. The gate is consulted here, immediately before the
// network attempt, because a server verdict may have reopened it since the
// content was scanned.
func (c *Coordinator) Send(ctx context.Context, chatID string, content Content) (*backend.Outcome, error) {
	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil, ErrSendInFlight
	}
	if content.empty() {
		c.mu.Unlock()
		return nil, ErrNoContent
	}
	if c.gate.Pending() {
		c.mu.Unlock()
		return nil, ErrPIIPending
	}
	c.sending = true
	c.staged = content
	c.hasWork = true
	c.setStateLocked(StateSending)
	c.mu.Unlock()

	out, err := c.attempt(ctx, chatID, content)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false

	switch {
	case err != nil && errors.Is(err, ErrTimeout):
		c.setStateLocked(StateIdle)
		return nil, err
	case err != nil:
		// Transport failures roll back to Idle like timeouts do; Failed is
		// flashed to observers, the staged content stays for a retry.
		c.setStateLocked(StateFailed)
		c.setStateLocked(StateIdle)
		return nil, err
	case out.PIIRejected():
		c.gate.Reopen(pii.TypesFromStrings(out.PIIEntities))
		c.setStateLocked(StateBlockedByPII)
		c.log.Warn("backend rejected content over pii", "entities", out.PIIEntities)
		return out, nil
	default:
		c.staged = Content{}
		c.hasWork = false
		c.setStateLocked(StateSucceeded)
		c.setStateLocked(StateIdle)
		return out, nil
	}
}

// attempt performs the network round trip under the submission timeout.
func (c *Coordinator) attempt(ctx context.Context, chatID string, content Content) (*backend.Outcome, error) {
	sendCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload := backend.Payload{
		Text:        content.Text,
		Audio:       content.Audio,
		Attachments: content.Attachments,
	}
	if transcribe.IsSentinel(content.Text) {
		payload.Text = ""
		payload.DeferTranscription = true
	}

	out, err := c.backend.SubmitMessage(sendCtx, chatID, payload)
	if err != nil {
		if sendCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("submit: %w", err)
	}

	if out.PIIRejected() {
		return out, nil
	}

	if c.record != nil {
		if err := c.record(ctx, chatID, content, out); err != nil {
			c.log.Warn("recording submitted message", "error", err)
		}
	}
	if out.Usage != nil {
		c.log.Info("submission accepted",
			"chat_id", chatID,
			"messages", len(out.Messages),
			"total_tokens", out.Usage.TotalTokens,
		)
	}
	return out, nil
}

// setStateLocked is called with mu held.
func (c *Coordinator) setStateLocked(s State) {
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}
