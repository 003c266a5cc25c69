package gate

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/feldspar-health/murmur/internal/pii"
)

func newGate(t *testing.T, opts ...Option) (*Gate, *pii.Scanner) {
	t.Helper()
	scanner := pii.NewScanner()
	return New(scanner, opts...), scanner
}

func TestGateCleanScanStaysClosed(t *testing.T) {
	t.Parallel()
	g, scanner := newGate(t)

	g.Offer(scanner.Scan("No findings of note."))
	if g.Pending() {
		t.Error("gate opened on a clean scan")
	}
	if _, err := g.AcceptRedacted(); !errors.Is(err, ErrNothingPending) {
		t.Errorf("AcceptRedacted err = %v, want ErrNothingPending", err)
	}
	if err := g.DiscardAndRestart(); !errors.Is(err, ErrNothingPending) {
		t.Errorf("DiscardAndRestart err = %v, want ErrNothingPending", err)
	}
}

func TestGateAcceptRedacted(t *testing.T) {
	t.Parallel()
	g, scanner := newGate(t)

	g.Offer(scanner.Scan("NHS number is 943 476 5919."))
	if !g.Pending() {
		t.Fatal("gate closed despite detection")
	}

	text, err := g.AcceptRedacted()
	if err != nil {
		t.Fatalf("AcceptRedacted: %v", err)
	}
	if text != "NHS number is [NHS-NUMBER]." {
		t.Errorf("canonical text = %q", text)
	}
	if g.Pending() {
		t.Error("gate still pending after acceptance")
	}

	// The scan survives acceptance for later review.
	if _, err := g.ReviewComparison(); err != nil {
		t.Errorf("ReviewComparison after accept: %v", err)
	}
}

func TestGateDiscardAndRestart(t *testing.T) {
	t.Parallel()
	g, scanner := newGate(t)

	g.Offer(scanner.Scan("Call 0207 123 4567 please."))
	if err := g.DiscardAndRestart(); err != nil {
		t.Fatalf("DiscardAndRestart: %v", err)
	}
	if g.Pending() {
		t.Error("gate pending after discard")
	}
	if _, ok := g.LastScan(); ok {
		t.Error("discarded scan still offered")
	}
	if _, err := g.ReviewComparison(); !errors.Is(err, ErrNoScan) {
		t.Errorf("ReviewComparison err = %v, want ErrNoScan", err)
	}
}

func TestGateReviewComparison(t *testing.T) {
	t.Parallel()
	g, scanner := newGate(t)

	g.Offer(scanner.Scan("Call me at 0207 123 4567 or john@example.com"))

	for i := 0; i < 3; i++ {
		cmp, err := g.ReviewComparison()
		if err != nil {
			t.Fatalf("ReviewComparison: %v", err)
		}
		if cmp.Original != "Call me at 0207 123 4567 or john@example.com" {
			t.Errorf("Original = %q", cmp.Original)
		}
		if cmp.Redacted != "Call me at [PHONE] or [EMAIL]" {
			t.Errorf("Redacted = %q", cmp.Redacted)
		}
		if !strings.Contains(cmp.Highlighted, "<mark>0207 123 4567</mark>") {
			t.Errorf("Highlighted = %q", cmp.Highlighted)
		}
		if want := []pii.EntityType{pii.EntityEmail, pii.EntityPhone}; !reflect.DeepEqual(cmp.Types, want) {
			t.Errorf("Types = %v, want %v", cmp.Types, want)
		}
	}
	if !g.Pending() {
		t.Error("review resolved the gate")
	}
}

func TestGateReopenOnServerVerdict(t *testing.T) {
	t.Parallel()
	g, scanner := newGate(t)

	g.Offer(scanner.Scan("Reviewed by Dr Okafor."))
	if _, err := g.AcceptRedacted(); err != nil {
		t.Fatalf("AcceptRedacted: %v", err)
	}

	g.Reopen([]pii.EntityType{pii.EntityType("server-address")})
	if !g.Pending() {
		t.Fatal("gate closed after server verdict")
	}

	cmp, err := g.ReviewComparison()
	if err != nil {
		t.Fatalf("ReviewComparison: %v", err)
	}
	want := []pii.EntityType{pii.EntityName, pii.EntityType("server-address")}
	if !reflect.DeepEqual(cmp.Types, want) {
		t.Errorf("Types = %v, want %v", cmp.Types, want)
	}
}

func TestGateOfferReplacesPrevious(t *testing.T) {
	t.Parallel()
	g, scanner := newGate(t)

	g.Offer(scanner.Scan("NHS 943 476 5919"))
	g.Reopen([]pii.EntityType{pii.EntityType("server-address")})

	// A fresh take supersedes the old scan and the server verdict.
	g.Offer(scanner.Scan("No findings of note."))
	if g.Pending() {
		t.Error("stale detection kept the gate open")
	}
	cmp, err := g.ReviewComparison()
	if err != nil {
		t.Fatalf("ReviewComparison: %v", err)
	}
	if len(cmp.Types) != 0 {
		t.Errorf("Types = %v, want empty", cmp.Types)
	}
}

func TestGateChangeNotifications(t *testing.T) {
	t.Parallel()
	var events []bool
	scanner := pii.NewScanner()
	g := New(scanner, WithChangeFunc(func(pending bool) {
		events = append(events, pending)
	}))

	g.Offer(scanner.Scan("NHS 943 476 5919"))
	if _, err := g.AcceptRedacted(); err != nil {
		t.Fatalf("AcceptRedacted: %v", err)
	}
	g.Reopen(nil)

	want := []bool{true, false, true}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}
