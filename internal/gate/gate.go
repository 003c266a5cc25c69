// Package gate implements the user disposition step between a PII scan and
// submission. When a scan detects identifying content, the gate opens and
// blocks sending until the user resolves it: accept the redacted transcript
// or discard the take and record again. Reviewing the original next to the
// redaction is always allowed and resolves nothing.
//
// A server verdict can reopen an already-resolved gate: the backend runs its
// own scan and its word is final.
package gate

import (
	"errors"
	"sync"

	"github.com/feldspar-health/murmur/internal/pii"
)

// ErrNothingPending is returned by resolving actions when no PII decision is
// open.
var ErrNothingPending = errors.New("gate: no pii decision pending")

// ErrNoScan is returned when an action needs a scan and none has been
// offered yet.
var ErrNoScan = errors.New("gate: no scan offered")

// Comparison is the side-by-side review of a scanned transcript.
type Comparison struct {
	// Original is the transcript as dictated.
	Original string

	// Highlighted is the original with every detected span wrapped in
	// <mark> tags.
	Highlighted string

	// Redacted is the transcript with placeholders substituted.
	Redacted string

	// Types lists the detected categories.
	Types []pii.EntityType
}

// ChangeFunc observes gate state: pending reports whether a decision is now
// required. Called synchronously; must not call back into the gate.
type ChangeFunc func(pending bool)

// Option is a functional option for configuring a [Gate].
type Option func(*Gate)

// WithChangeFunc registers a state observer.
func WithChangeFunc(fn ChangeFunc) Option {
	return func(g *Gate) {
		g.onChange = fn
	}
}

// Gate holds the pending PII decision for the current transcript. All
// methods are safe for concurrent use.
type Gate struct {
	scanner  *pii.Scanner
	onChange ChangeFunc

	mu          sync.Mutex
	offered     bool
	pending     bool
	scan        pii.Result
	serverTypes []pii.EntityType
}

// New creates a closed gate. scanner renders review highlights; it must be
// the same scanner that produced the offered results.
func New(scanner *pii.Scanner, opts ...Option) *Gate {
	g := &Gate{scanner: scanner}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Offer presents a fresh scan. The gate opens exactly when the scan
// detected something; a clean scan closes it. Each Offer replaces the
// previous scan and clears any server verdict.
func (g *Gate) Offer(scan pii.Result) {
	g.mu.Lock()
	g.offered = true
	g.scan = scan
	g.pending = scan.Detected
	g.serverTypes = nil
	pending := g.pending
	g.mu.Unlock()

	g.notify(pending)
}

// Pending reports whether a decision is required before sending. Query this
// immediately before every send attempt, not once at scan time: a server
// verdict may have reopened the gate since.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// AcceptRedacted resolves the pending decision in favour of the redacted
// transcript and returns it as the canonical text.
func (g *Gate) AcceptRedacted() (string, error) {
	g.mu.Lock()
	if !g.pending {
		g.mu.Unlock()
		return "", ErrNothingPending
	}
	g.pending = false
	text := g.scan.RedactedText
	g.mu.Unlock()

	g.notify(false)
	return text, nil
}

// DiscardAndRestart resolves the pending decision by throwing the take
// away. The gate forgets the scan entirely; the caller starts a new
// recording.
func (g *Gate) DiscardAndRestart() error {
	g.mu.Lock()
	if !g.pending {
		g.mu.Unlock()
		return ErrNothingPending
	}
	g.offered = false
	g.pending = false
	g.scan = pii.Result{}
	g.serverTypes = nil
	g.mu.Unlock()

	g.notify(false)
	return nil
}

// ReviewComparison returns the original-versus-redacted view of the offered
// scan. Non-resolving: callable any number of times, before or after the
// decision.
func (g *Gate) ReviewComparison() (Comparison, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.offered {
		return Comparison{}, ErrNoScan
	}
	types := append([]pii.EntityType(nil), g.scan.Types...)
	types = mergeTypes(types, g.serverTypes)
	return Comparison{
		Original:    g.scan.OriginalText,
		Highlighted: g.scanner.Highlight(g.scan.OriginalText, g.scan),
		Redacted:    g.scan.RedactedText,
		Types:       types,
	}, nil
}

// Reopen reinstates the pending decision on a server verdict. The reported
// entities are recorded alongside the local scan for review; the transcript
// under decision is unchanged.
func (g *Gate) Reopen(entities []pii.EntityType) {
	g.mu.Lock()
	g.offered = true
	g.pending = true
	g.serverTypes = mergeTypes(g.serverTypes, entities)
	g.mu.Unlock()

	g.notify(true)
}

// LastScan returns the currently offered scan.
func (g *Gate) LastScan() (pii.Result, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scan, g.offered
}

func (g *Gate) notify(pending bool) {
	if g.onChange != nil {
		g.onChange(pending)
	}
}

// mergeTypes appends the entries of extra not already present in base,
// preserving order.
func mergeTypes(base, extra []pii.EntityType) []pii.EntityType {
	seen := make(map[pii.EntityType]bool, len(base))
	for _, t := range base {
		seen[t] = true
	}
	for _, t := range extra {
		if !seen[t] {
			seen[t] = true
			base = append(base, t)
		}
	}
	return base
}
