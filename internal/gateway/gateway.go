// Package gateway is the WebSocket surface between the pipeline and its UI
// shells. One [Hub] serves many clients: pipeline events (scan results,
// session and submission state) are pushed to everyone, and intent frames
// received from any client are routed through the dispatcher.
//
// The gateway renders nothing. It moves named events and intents, so the UI
// can be HTMX, a desktop shell, or a test harness without pipeline changes.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/feldspar-health/murmur/internal/dispatch"
)

// EventType names a pushed pipeline event.
type EventType string

const (
	// EventScanResult carries a PII scan outcome.
	EventScanResult EventType = "scan_result"

	// EventSessionState carries a recording session state change.
	EventSessionState EventType = "session_state"

	// EventSubmissionState carries a submission state change.
	EventSubmissionState EventType = "submission_state"

	// EventTranscript carries a live transcript preview update.
	EventTranscript EventType = "transcript"

	// EventIntentResult answers one intent frame, sent only to its sender.
	EventIntentResult EventType = "intent_result"
)

// Event is one frame pushed to UI clients.
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// intentFrame is one frame received from a UI client.
type intentFrame struct {
	Intent string `json:"intent"`
	ChatID string `json:"chat_id"`
}

// intentResult is the payload of an [EventIntentResult] frame.
type intentResult struct {
	Intent string `json:"intent"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// client is one connected UI. Slow clients lose events rather than stall
// the pipeline.
type client struct {
	send chan []byte
}

// Hub broadcasts pipeline events and routes received intents. Safe for
// concurrent use; implements [http.Handler] for the /ws endpoint.
type Hub struct {
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
	onClients  func(delta int)

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a Hub routing intents through d.
func NewHub(d *dispatch.Dispatcher, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		dispatcher: d,
		log:        log,
		clients:    make(map[*client]struct{}),
	}
}

// SetClientFunc registers an observer called with +1/-1 on every client
// connect and disconnect. Set at wiring time, before the hub serves.
func (h *Hub) SetClientFunc(fn func(delta int)) {
	h.onClients = fn
}

// Broadcast pushes an event to every connected client. Encoding failures
// are logged and the event dropped; a UI event is never worth an error
// path in the pipeline.
func (h *Hub) Broadcast(t EventType, data any) {
	frame, err := encodeEvent(t, data)
	if err != nil {
		h.log.Warn("encoding gateway event", "type", t, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			h.log.Debug("dropping event for slow client", "type", t)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a WebSocket and serves the client until
// it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn("websocket accept", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "gateway shutting down")

	c := &client{send: make(chan []byte, 32)}
	h.register(c)
	defer h.unregister(c)

	ctx := r.Context()
	go h.writeLoop(ctx, conn, c)

	h.readLoop(ctx, conn, c)
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.log.Debug("ui client connected", "clients", len(h.clients))
	if h.onClients != nil {
		h.onClients(1)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	h.log.Debug("ui client disconnected", "clients", len(h.clients))
	if h.onClients != nil {
		h.onClients(-1)
	}
}

// writeLoop drains the client's send queue onto the wire.
func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.send:
			if err := conn.Write(ctx, websocket.MessageText, frame); err != nil {
				return
			}
		}
	}
}

// readLoop receives intent frames until the connection drops.
func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var frame intentFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.reply(c, intentResult{OK: false, Error: "malformed intent frame"})
			continue
		}
		h.handleIntent(ctx, c, frame)
	}
}

// handleIntent dispatches one intent and answers the sending client.
func (h *Hub) handleIntent(ctx context.Context, c *client, frame intentFrame) {
	out, err := h.dispatcher.Dispatch(ctx, dispatch.Request{
		Intent: dispatch.Intent(frame.Intent),
		ChatID: frame.ChatID,
	})
	res := intentResult{Intent: frame.Intent, OK: err == nil, Result: out}
	if err != nil {
		res.Error = err.Error()
	}
	h.reply(c, res)
}

// reply queues an intent result for one client only.
func (h *Hub) reply(c *client, res intentResult) {
	frame, err := encodeEvent(EventIntentResult, res)
	if err != nil {
		h.log.Warn("encoding intent result", "error", err)
		return
	}
	select {
	case c.send <- frame:
	default:
		h.log.Debug("dropping intent result for slow client")
	}
}

func encodeEvent(t EventType, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{
		Type:      t,
		Data:      payload,
		Timestamp: time.Now().UTC(),
	})
}
