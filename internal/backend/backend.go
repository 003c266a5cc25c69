// Package backend is the HTTP client for the reporting backend. It submits
// dictated messages, offers server-side transcription for recordings the
// local recogniser could not hear, and exposes the server's own PII check.
//
// A server-side PII rejection is a typed [Outcome], not an error: transport
// worked, the content was refused. Callers branch on [Outcome.PIIRejected].
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/feldspar-health/murmur/pkg/audio"
)

// Attachment is a file submitted alongside a message.
type Attachment struct {
	Filename string
	MIME     string
	Data     []byte
}

// Payload is the content of one message submission.
type Payload struct {
	// Text is the transcript to submit. May be empty when Audio carries the
	// content.
	Text string

	// Audio, when non-nil, is the captured recording. Presence switches the
	// submission to multipart encoding; a header-only blob is still sent so
	// the server can transcribe (or reject) what was captured.
	Audio *audio.Blob

	// Attachments are additional files.
	Attachments []Attachment

	// DeferTranscription asks the server to transcribe the audio itself
	// because no usable local transcript exists.
	DeferTranscription bool
}

// Message is one message as recorded by the server.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage is the server's resource accounting for a submission.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Outcome is the typed result of a successful round trip to the backend.
type Outcome struct {
	// Messages are the messages the server created, empty on rejection.
	Messages []Message

	// PIIEntities is the server's entity list when it refused the content.
	PIIEntities []string

	// Usage is present when the server reported accounting metadata.
	Usage *Usage
}

// PIIRejected reports whether the server refused the content over
// identifying information.
func (o *Outcome) PIIRejected() bool {
	return len(o.PIIEntities) > 0
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient replaces the underlying [http.Client].
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// Client talks to the reporting backend. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *slog.Logger
}

// New creates a Client for the backend at baseURL. Request deadlines come
// from the caller's context; the underlying [http.Client] carries no
// timeout of its own.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("backend: base URL is required")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// messageRequest is the JSON submission body.
type messageRequest struct {
	Text               string           `json:"text,omitempty"`
	Attachments        []attachmentJSON `json:"attachments,omitempty"`
	DeferTranscription bool             `json:"defer_transcription,omitempty"`
}

type attachmentJSON struct {
	Filename string `json:"filename"`
	MIME     string `json:"mime"`
	Data     string `json:"data"` // base64
}

// messageResponse covers both acceptance and PII rejection bodies.
type messageResponse struct {
	Messages []Message `json:"messages"`
	Usage    *Usage    `json:"usage"`
	Error    string    `json:"error"`
	Entities []string  `json:"entities"`
}

// SubmitMessage submits a message to the given chat. Encoding is
// multipart/form-data when the payload carries audio and JSON otherwise.
// A PII refusal arrives as an Outcome, any other non-2xx status as an error.
func (c *Client) SubmitMessage(ctx context.Context, chatID string, p Payload) (*Outcome, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, fmt.Errorf("backend: chat id is required")
	}

	var (
		body        io.Reader
		contentType string
		err         error
	)
	if p.Audio != nil {
		body, contentType, err = encodeMultipart(p)
	} else {
		body, contentType, err = encodeJSON(p)
	}
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/chats/%s/messages", c.baseURL, chatID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: submit message: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read response body: %w", err)
	}

	var mr messageResponse
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if err := json.Unmarshal(data, &mr); err != nil {
			return nil, fmt.Errorf("backend: parse response: %w", err)
		}
		return &Outcome{Messages: mr.Messages, Usage: mr.Usage}, nil
	case http.StatusUnprocessableEntity:
		if err := json.Unmarshal(data, &mr); err != nil {
			return nil, fmt.Errorf("backend: parse rejection: %w", err)
		}
		if len(mr.Entities) == 0 {
			return nil, fmt.Errorf("backend: content rejected: %s", mr.Error)
		}
		return &Outcome{PIIEntities: mr.Entities, Usage: mr.Usage}, nil
	default:
		return nil, fmt.Errorf("backend: server returned HTTP %d", resp.StatusCode)
	}
}

// TranscribeAudio asks the server to transcribe a recording. Failures are
// swallowed: the caller falls back to the local transcript, so the return
// is empty text rather than an error.
func (c *Client) TranscribeAudio(ctx context.Context, blob audio.Blob) string {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "audio.wav")
	if err == nil {
		_, err = fw.Write(blob.Data)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		c.log.Warn("encoding transcription request", "error", err)
		return ""
	}

	url := c.baseURL + "/api/transcribe"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		c.log.Warn("creating transcription request", "error", err)
		return ""
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("server transcription failed, keeping local transcript", "error", err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Warn("server transcription failed, keeping local transcript", "status", resp.StatusCode)
		return ""
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.log.Warn("parsing transcription response", "error", err)
		return ""
	}
	return result.Text
}

// DetectPII runs the server's PII check over text and returns the detected
// entity names.
func (c *Client) DetectPII(ctx context.Context, text string) ([]string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("backend: encode pii request: %w", err)
	}

	url := c.baseURL + "/api/pii/detect"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: detect pii: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend: server returned HTTP %d", resp.StatusCode)
	}

	var result struct {
		Entities []string `json:"entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("backend: parse pii response: %w", err)
	}
	return result.Entities, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func encodeJSON(p Payload) (io.Reader, string, error) {
	mr := messageRequest{
		Text:               p.Text,
		DeferTranscription: p.DeferTranscription,
	}
	for _, a := range p.Attachments {
		mr.Attachments = append(mr.Attachments, attachmentJSON{
			Filename: a.Filename,
			MIME:     a.MIME,
			Data:     base64.StdEncoding.EncodeToString(a.Data),
		})
	}
	data, err := json.Marshal(mr)
	if err != nil {
		return nil, "", fmt.Errorf("backend: encode message: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

func encodeMultipart(p Payload) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if p.Text != "" {
		if err := mw.WriteField("text", p.Text); err != nil {
			return nil, "", fmt.Errorf("backend: write text field: %w", err)
		}
	}
	if p.DeferTranscription {
		if err := mw.WriteField("defer_transcription", "true"); err != nil {
			return nil, "", fmt.Errorf("backend: write defer field: %w", err)
		}
	}

	fw, err := mw.CreateFormFile("audio", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("backend: create audio part: %w", err)
	}
	if _, err := fw.Write(p.Audio.Data); err != nil {
		return nil, "", fmt.Errorf("backend: write audio part: %w", err)
	}

	for i, a := range p.Attachments {
		name := fmt.Sprintf("attachment_%d", i)
		fw, err := mw.CreateFormFile(name, a.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("backend: create attachment part: %w", err)
		}
		if _, err := fw.Write(a.Data); err != nil {
			return nil, "", fmt.Errorf("backend: write attachment part: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("backend: close multipart writer: %w", err)
	}
	return &body, mw.FormDataContentType(), nil
}
