package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/feldspar-health/murmur/pkg/audio"
)

func TestSubmitMessageJSON(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chats/chat-1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}

		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "chest pain resolved" {
			t.Errorf("text = %q", req.Text)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{{"id": "m1", "role": "user", "content": "chest pain resolved"}},
			"usage":    map[string]int{"total_tokens": 12},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := c.SubmitMessage(context.Background(), "chat-1", Payload{Text: "chest pain resolved"})
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	if out.PIIRejected() {
		t.Fatal("unexpected PII rejection")
	}
	if len(out.Messages) != 1 || out.Messages[0].ID != "m1" {
		t.Errorf("Messages = %+v", out.Messages)
	}
	if out.Usage == nil || out.Usage.TotalTokens != 12 {
		t.Errorf("Usage = %+v", out.Usage)
	}
}

func TestSubmitMessageMultipartWithAudio(t *testing.T) {
	t.Parallel()
	blob := audio.EncodeWAV([]byte{1, 2, 3, 4}, 16000, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("text"); got != "local transcript" {
			t.Errorf("text field = %q", got)
		}
		if got := r.FormValue("defer_transcription"); got != "true" {
			t.Errorf("defer field = %q", got)
		}
		f, hdr, err := r.FormFile("audio")
		if err != nil {
			t.Fatalf("audio part: %v", err)
		}
		defer f.Close()
		if hdr.Filename != "audio.wav" {
			t.Errorf("audio filename = %q", hdr.Filename)
		}

		json.NewEncoder(w).Encode(map[string]any{"messages": []map[string]any{{"id": "m2"}}})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := c.SubmitMessage(context.Background(), "chat-1", Payload{
		Text:               "local transcript",
		Audio:              &blob,
		DeferTranscription: true,
	})
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	if len(out.Messages) != 1 {
		t.Errorf("Messages = %+v", out.Messages)
	}
}

func TestSubmitMessagePIIRejection(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"error":    "pii_detected",
			"entities": []string{"address", "phone"},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out, err := c.SubmitMessage(context.Background(), "chat-1", Payload{Text: "lives at 4 Elm Road"})
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	if !out.PIIRejected() {
		t.Fatal("rejection not surfaced as typed outcome")
	}
	if len(out.PIIEntities) != 2 || out.PIIEntities[0] != "address" {
		t.Errorf("PIIEntities = %v", out.PIIEntities)
	}
}

func TestSubmitMessageServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.SubmitMessage(context.Background(), "chat-1", Payload{Text: "note"}); err == nil {
		t.Fatal("HTTP 502 did not produce an error")
	}
}

func TestSubmitMessageValidation(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("New accepted an empty base URL")
	}

	c, err := New("http://localhost:1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.SubmitMessage(context.Background(), "  ", Payload{Text: "x"}); err == nil {
		t.Error("SubmitMessage accepted a blank chat id")
	}
}

func TestTranscribeAudio(t *testing.T) {
	t.Parallel()
	blob := audio.EncodeWAV([]byte{1, 2}, 16000, 1)

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/transcribe" {
				t.Errorf("path = %q", r.URL.Path)
			}
			if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
				t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
			}
			json.NewEncoder(w).Encode(map[string]string{"text": "patient reports improvement"})
		}))
		defer srv.Close()

		c, err := New(srv.URL)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if got := c.TranscribeAudio(context.Background(), blob); got != "patient reports improvement" {
			t.Errorf("TranscribeAudio = %q", got)
		}
	})

	t.Run("failure swallowed", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c, err := New(srv.URL)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if got := c.TranscribeAudio(context.Background(), blob); got != "" {
			t.Errorf("TranscribeAudio = %q, want empty on failure", got)
		}
	})

	t.Run("unreachable server swallowed", func(t *testing.T) {
		t.Parallel()
		c, err := New("http://127.0.0.1:1")
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if got := c.TranscribeAudio(context.Background(), blob); got != "" {
			t.Errorf("TranscribeAudio = %q, want empty on failure", got)
		}
	})
}

func TestDetectPII(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/pii/detect" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"entities": []string{"name"}})
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	entities, err := c.DetectPII(context.Background(), "seen by Dr Okafor")
	if err != nil {
		t.Fatalf("DetectPII: %v", err)
	}
	if len(entities) != 1 || entities[0] != "name" {
		t.Errorf("entities = %v", entities)
	}
}
