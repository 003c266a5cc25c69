package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/feldspar-health/murmur/pkg/provider/stt"
	"github.com/feldspar-health/murmur/pkg/provider/stt/mock"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func streamConfig() stt.StreamConfig {
	return stt.StreamConfig{SampleRate: 16000, Channels: 1}
}

func final(text string) stt.Transcript {
	return stt.Transcript{Text: text, IsFinal: true}
}

func interim(text string) stt.Transcript {
	return stt.Transcript{Text: text, IsFinal: false}
}

func TestAccumulator(t *testing.T) {
	t.Parallel()

	t.Run("finals append with spaces", func(t *testing.T) {
		t.Parallel()
		var a Accumulator
		a.AddFinal("patient presents")
		a.AddFinal("  with chest pain  ")
		a.AddFinal("")
		if got := a.Text(); got != "patient presents with chest pain" {
			t.Errorf("Text = %q", got)
		}
	})

	t.Run("interims replace each other", func(t *testing.T) {
		t.Parallel()
		var a Accumulator
		a.SetInterim("pat")
		a.SetInterim("patient pres")
		if got := a.Preview(); got != "patient pres" {
			t.Errorf("Preview = %q", got)
		}
		if got := a.Text(); got != "" {
			t.Errorf("Text = %q, interim must not leak into finals", got)
		}
	})

	t.Run("final discards pending interim", func(t *testing.T) {
		t.Parallel()
		var a Accumulator
		a.SetInterim("patient pres")
		a.AddFinal("patient presents")
		if got := a.Preview(); got != "patient presents" {
			t.Errorf("Preview = %q", got)
		}
	})

	t.Run("reset clears everything", func(t *testing.T) {
		t.Parallel()
		var a Accumulator
		a.AddFinal("old note")
		a.SetInterim("stale")
		a.Reset()
		if a.Text() != "" || a.Preview() != "" {
			t.Errorf("Text = %q, Preview = %q after reset", a.Text(), a.Preview())
		}
	})
}

func TestTranscriberAccumulatesFinals(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{Scripts: [][]stt.Transcript{
		{final("patient presents"), final("with chest pain")},
	}}
	tr := New(provider, streamConfig())

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	waitFor(t, func() bool {
		return tr.Text() == "patient presents with chest pain"
	}, "finals to accumulate")
}

func TestTranscriberDoubleStart(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{Scripts: [][]stt.Transcript{{}, {}}}
	tr := New(provider, streamConfig())

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("second Start succeeded with a stream already active")
	}
	if got := provider.Started(); got != 1 {
		t.Errorf("Started = %d, want 1", got)
	}
}

func TestTranscriberRestartsOnStreamDeath(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{Scripts: [][]stt.Transcript{
		{final("first part")},
		{final("second part")},
	}}
	tr := New(provider, streamConfig())

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	waitFor(t, func() bool { return tr.Text() == "first part" }, "first final")

	provider.Sessions()[0].EndStream()

	waitFor(t, func() bool { return provider.Started() == 2 }, "replacement stream")
	waitFor(t, func() bool {
		return tr.Text() == "first part second part"
	}, "transcript to survive the restart")
}

// A stream death observed after Stop must not spawn a replacement stream.
func TestTranscriberStopPreventsRestart(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{Scripts: [][]stt.Transcript{
		{final("only part")},
		{final("should never appear")},
	}}
	tr := New(provider, streamConfig())

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return tr.Text() == "only part" }, "final")

	tr.Stop()

	if !provider.Sessions()[0].Closed() {
		t.Error("Stop did not close the stream handle")
	}

	time.Sleep(50 * time.Millisecond)
	if got := provider.Started(); got != 1 {
		t.Errorf("Started = %d after Stop, want 1", got)
	}
	if got := tr.Text(); got != "only part" {
		t.Errorf("Text = %q after Stop", got)
	}
}

func TestTranscriberRestartFailureKeepsTranscript(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{
		Scripts:  [][]stt.Transcript{{final("partial note")}},
		StartErr: errors.New("recognition service unavailable"),
	}
	tr := New(provider, streamConfig())

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	waitFor(t, func() bool { return tr.Text() == "partial note" }, "final")

	provider.Sessions()[0].EndStream()

	time.Sleep(50 * time.Millisecond)
	if got := tr.Text(); got != "partial note" {
		t.Errorf("Text = %q, accumulated transcript lost", got)
	}
	if got := tr.Finalize(); got != "partial note" {
		t.Errorf("Finalize = %q", got)
	}
}

func TestTranscriberSendAudio(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{Scripts: [][]stt.Transcript{{}}}
	tr := New(provider, streamConfig())

	if err := tr.SendAudio([]byte{1, 2}); err == nil {
		t.Error("SendAudio succeeded with no active stream")
	}

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	if err := tr.SendAudio([]byte{3, 4}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if got := provider.Sessions()[0].Audio(); len(got) != 1 {
		t.Errorf("forwarded %d chunks, want 1", len(got))
	}
}

func TestTranscriberUpdates(t *testing.T) {
	t.Parallel()
	provider := &mock.Provider{Scripts: [][]stt.Transcript{
		{interim("patient pres"), final("patient presents")},
	}}

	updates := make(chan string, 8)
	tr := New(provider, streamConfig(), WithUpdateFunc(func(_, preview string) {
		updates <- preview
	}))

	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer tr.Stop()

	var got []string
	deadline := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case p := <-updates:
			got = append(got, p)
		case <-deadline:
			t.Fatalf("received %d updates, want 2", len(got))
		}
	}
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	t.Run("empty resolves to sentinel", func(t *testing.T) {
		t.Parallel()
		tr := New(&mock.Provider{}, streamConfig())
		if got := tr.Finalize(); got != SentinelUnheard {
			t.Errorf("Finalize = %q, want sentinel", got)
		}
		if !IsSentinel(tr.Finalize()) {
			t.Error("IsSentinel rejected the sentinel")
		}
	})

	t.Run("real text passes through", func(t *testing.T) {
		t.Parallel()
		tr := New(&mock.Provider{}, streamConfig())
		tr.acc.AddFinal("chest pain resolved")
		if got := tr.Finalize(); got != "chest pain resolved" {
			t.Errorf("Finalize = %q", got)
		}
		if IsSentinel("chest pain resolved") {
			t.Error("IsSentinel fired on real text")
		}
	})
}
