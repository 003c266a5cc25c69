package transcribe

import (
	"strings"
	"sync"
)

// Accumulator assembles the growing transcript of one recording session.
// Final results append in arrival order; interim results replace one another
// and are discarded once the next final arrives. Safe for concurrent use.
type Accumulator struct {
	mu      sync.Mutex
	finals  []string
	interim string
}

// AddFinal appends a final recognition result. Empty or whitespace-only
// results are dropped. Any pending interim is discarded: the final that
// supersedes it has arrived.
func (a *Accumulator) AddFinal(text string) {
	text = strings.TrimSpace(text)
	a.mu.Lock()
	defer a.mu.Unlock()
	if text != "" {
		a.finals = append(a.finals, text)
	}
	a.interim = ""
}

// SetInterim replaces the current interim hypothesis.
func (a *Accumulator) SetInterim(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interim = strings.TrimSpace(text)
}

// Text returns the accumulated final transcript, finals joined by a single
// space. Interim results are not included.
func (a *Accumulator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.finals, " ")
}

// Preview returns the transcript as it should be displayed while recording:
// the final text followed by the current interim hypothesis.
func (a *Accumulator) Preview() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.interim == "" {
		return strings.Join(a.finals, " ")
	}
	return strings.TrimSpace(strings.Join(a.finals, " ") + " " + a.interim)
}

// Reset clears all accumulated text for a fresh recording.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finals = nil
	a.interim = ""
}
