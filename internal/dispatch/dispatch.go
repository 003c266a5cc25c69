// Package dispatch routes named user intents to pipeline operations. The
// intent set is closed: every interaction surface (WebSocket gateway, future
// CLI or desktop shells) speaks these names and nothing else, so a renderer
// can be swapped without touching the pipeline.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Intent is a named user action.
type Intent string

// The closed intent set.
const (
	IntentRecordStart Intent = "record.start"
	IntentRecordStop  Intent = "record.stop"
	IntentPIIAccept   Intent = "pii.accept"
	IntentPIIRerecord Intent = "pii.rerecord"
	IntentPIIReview   Intent = "pii.review"
	IntentMessageSend Intent = "message.send"
)

// Intents returns the closed intent set in a stable order.
func Intents() []Intent {
	return []Intent{
		IntentRecordStart,
		IntentRecordStop,
		IntentPIIAccept,
		IntentPIIRerecord,
		IntentPIIReview,
		IntentMessageSend,
	}
}

// known reports whether the intent belongs to the closed set.
func known(i Intent) bool {
	switch i {
	case IntentRecordStart, IntentRecordStop, IntentPIIAccept,
		IntentPIIRerecord, IntentPIIReview, IntentMessageSend:
		return true
	}
	return false
}

var (
	// ErrUnknownIntent is returned for a name outside the closed set.
	ErrUnknownIntent = errors.New("dispatch: unknown intent")

	// ErrNotRegistered is returned for a known intent with no handler.
	ErrNotRegistered = errors.New("dispatch: intent not registered")
)

// Request is one intent invocation.
type Request struct {
	// Intent names the action.
	Intent Intent

	// ChatID is the target conversation, where the intent needs one.
	ChatID string
}

// HandlerFunc performs one intent. The returned value is the
// renderer-agnostic result payload handed back to the interaction surface.
type HandlerFunc func(ctx context.Context, req Request) (any, error)

// Dispatcher maps intents to handlers. Registration happens at wiring time;
// Dispatch is safe for concurrent use.
type Dispatcher struct {
	log *slog.Logger

	mu       sync.RWMutex
	handlers map[Intent]HandlerFunc
}

// New creates an empty Dispatcher.
func New(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		log:      log,
		handlers: make(map[Intent]HandlerFunc),
	}
}

// Register binds a handler to an intent. Intents outside the closed set are
// rejected: extending the vocabulary is a code change here, not a runtime
// registration.
func (d *Dispatcher) Register(intent Intent, h HandlerFunc) error {
	if !known(intent) {
		return fmt.Errorf("%w: %q", ErrUnknownIntent, intent)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[intent] = h
	return nil
}

// Dispatch routes a request to its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (any, error) {
	if !known(req.Intent) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, req.Intent)
	}

	d.mu.RLock()
	h, ok := d.handlers[req.Intent]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, req.Intent)
	}

	out, err := h(ctx, req)
	if err != nil {
		d.log.Warn("intent failed", "intent", req.Intent, "error", err)
		return nil, err
	}
	d.log.Debug("intent handled", "intent", req.Intent)
	return out, nil
}
