package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/feldspar-health/murmur/internal/backend"
	"github.com/feldspar-health/murmur/internal/dispatch"
	"github.com/feldspar-health/murmur/internal/gateway"
	"github.com/feldspar-health/murmur/internal/history"
	"github.com/feldspar-health/murmur/internal/submit"
	"github.com/feldspar-health/murmur/internal/transcribe"
)

// ErrNoBackend is returned by message.send when no backend is configured.
var ErrNoBackend = errors.New("app: no backend configured")

// ErrNoCapture is returned by message.send before any recording finished.
var ErrNoCapture = errors.New("app: no finished recording to send")

// stopResult is the payload answered to a record.stop intent.
type stopResult struct {
	Transcript string   `json:"transcript"`
	Detected   bool     `json:"detected"`
	Types      []string `json:"types,omitempty"`
	Redacted   string   `json:"redacted,omitempty"`
	Notice     string   `json:"notice,omitempty"`
}

// initDispatch registers a handler for every intent in the closed set.
func (p *Pipeline) initDispatch() error {
	p.dispatcher = dispatch.New(p.log)

	handlers := map[dispatch.Intent]dispatch.HandlerFunc{
		dispatch.IntentRecordStart: p.handleRecordStart,
		dispatch.IntentRecordStop:  p.handleRecordStop,
		dispatch.IntentPIIAccept:   p.handlePIIAccept,
		dispatch.IntentPIIRerecord: p.handlePIIRerecord,
		dispatch.IntentPIIReview:   p.handlePIIReview,
		dispatch.IntentMessageSend: p.handleMessageSend,
	}
	for intent, h := range handlers {
		if err := p.dispatcher.Register(intent, h); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) handleRecordStart(ctx context.Context, _ dispatch.Request) (any, error) {
	wasRecording := p.manager.Recording()
	if err := p.manager.Start(ctx); err != nil {
		p.metrics.RecordRecording(ctx, "failed", 0)
		return nil, err
	}

	p.mu.Lock()
	p.recordStart = time.Now()
	p.capture = nil
	p.pendingText = ""
	p.mu.Unlock()

	if !wasRecording {
		p.metrics.ActiveRecordings.Add(ctx, 1)
	}
	return map[string]any{"state": "recording"}, nil
}

func (p *Pipeline) handleRecordStop(ctx context.Context, _ dispatch.Request) (any, error) {
	capture, err := p.manager.Stop()
	if err != nil {
		return nil, err
	}
	p.metrics.ActiveRecordings.Add(ctx, -1)

	p.mu.Lock()
	started := p.recordStart
	p.capture = capture
	p.pendingText = capture.Transcript
	p.mu.Unlock()

	seconds := 0.0
	if !started.IsZero() {
		seconds = time.Since(started).Seconds()
	}
	p.metrics.RecordRecording(ctx, "stopped", seconds)

	res := stopResult{
		Transcript: capture.Transcript,
		Detected:   capture.Scan.Detected,
		Notice:     capture.Notice,
	}
	// Every scan reaches the gate: a clean take closes a decision left
	// pending by an abandoned earlier take.
	p.gate.Offer(capture.Scan)

	if capture.ScanDuration > 0 {
		p.metrics.ScanDuration.Record(ctx, capture.ScanDuration.Seconds())
	}
	if capture.Scan.Detected {
		res.Types = typeStrings(capture.Scan.Types)
		res.Redacted = capture.Scan.RedactedText
		p.metrics.RecordScanDetections(ctx, res.Types)
	}

	p.hub.Broadcast(gateway.EventScanResult, res)
	return res, nil
}

func (p *Pipeline) handlePIIAccept(ctx context.Context, _ dispatch.Request) (any, error) {
	text, err := p.gate.AcceptRedacted()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.pendingText = text
	p.mu.Unlock()

	p.metrics.RecordGateDecision(ctx, "accept-redacted")
	return map[string]any{"text": text}, nil
}

func (p *Pipeline) handlePIIRerecord(ctx context.Context, _ dispatch.Request) (any, error) {
	if err := p.gate.DiscardAndRestart(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.capture = nil
	p.pendingText = ""
	p.mu.Unlock()
	p.metrics.RecordGateDecision(ctx, "rerecord")

	wasRecording := p.manager.Recording()
	if err := p.manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("app: restart recording: %w", err)
	}
	if !wasRecording {
		p.metrics.ActiveRecordings.Add(ctx, 1)
	}
	p.mu.Lock()
	p.recordStart = time.Now()
	p.mu.Unlock()

	return map[string]any{"state": "recording"}, nil
}

func (p *Pipeline) handlePIIReview(_ context.Context, _ dispatch.Request) (any, error) {
	cmp, err := p.gate.ReviewComparison()
	if err != nil {
		return nil, err
	}
	return cmp, nil
}

func (p *Pipeline) handleMessageSend(ctx context.Context, req dispatch.Request) (any, error) {
	if p.coord == nil {
		return nil, ErrNoBackend
	}

	p.mu.Lock()
	capture := p.capture
	text := p.pendingText
	p.mu.Unlock()
	if capture == nil {
		return nil, ErrNoCapture
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = p.cfg.Backend.ChatID
	}

	// The blob is always attached: a header-only capture still counts as
	// content, and a deferred-transcription send needs the audio present.
	content := submit.Content{Text: text, Audio: &capture.Audio}

	start := time.Now()
	out, err := p.coord.Send(ctx, chatID, content)
	seconds := time.Since(start).Seconds()
	switch {
	case errors.Is(err, submit.ErrTimeout):
		p.metrics.RecordSubmission(ctx, "timeout", seconds)
		return nil, err
	case err != nil:
		p.metrics.RecordSubmission(ctx, "failed", seconds)
		return nil, err
	case out.PIIRejected():
		p.metrics.RecordSubmission(ctx, "pii-rejected", seconds)
		return map[string]any{
			"accepted": false,
			"entities": out.PIIEntities,
		}, nil
	}

	p.metrics.RecordSubmission(ctx, "succeeded", seconds)

	p.mu.Lock()
	p.capture = nil
	p.pendingText = ""
	p.mu.Unlock()

	res := map[string]any{"accepted": true, "messages": len(out.Messages)}
	if out.Usage != nil {
		res["total_tokens"] = out.Usage.TotalTokens
	}
	return res, nil
}

// recordHistory persists an accepted submission. For a deferred-transcription
// send the server is asked for its transcription so the stored row carries a
// readable text.
func (p *Pipeline) recordHistory(ctx context.Context, chatID string, content submit.Content, out *backend.Outcome) error {
	if p.history == nil {
		return nil
	}

	local := content.Text
	remote := ""
	if transcribe.IsSentinel(local) && content.Audio != nil {
		remote = p.backend.TranscribeAudio(ctx, *content.Audio)
	}
	combined := strings.TrimSpace(local)
	if remote != "" {
		combined = remote
	}

	msg := history.Message{
		ChatID: chatID,
		Transcript: history.Transcript{
			Local:    local,
			Remote:   remote,
			Combined: combined,
		},
	}
	if scan, ok := p.gate.LastScan(); ok && scan.Detected {
		msg.PIITypes = typeStrings(scan.Types)
	}
	if out.Usage != nil {
		msg.TotalTokens = out.Usage.TotalTokens
	}
	return p.history.Record(ctx, msg)
}
