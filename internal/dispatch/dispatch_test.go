package dispatch

import (
	"context"
	"errors"
	"testing"
)

func TestDispatchRoutesToHandler(t *testing.T) {
	t.Parallel()
	d := New(nil)

	var gotChat string
	err := d.Register(IntentRecordStart, func(_ context.Context, req Request) (any, error) {
		gotChat = req.ChatID
		return "started", nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	out, err := d.Dispatch(context.Background(), Request{Intent: IntentRecordStart, ChatID: "chat-1"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out != "started" || gotChat != "chat-1" {
		t.Errorf("out = %v, chat = %q", out, gotChat)
	}
}

func TestDispatchClosedSet(t *testing.T) {
	t.Parallel()
	d := New(nil)

	if err := d.Register(Intent("note.delete"), nil); !errors.Is(err, ErrUnknownIntent) {
		t.Errorf("Register err = %v, want ErrUnknownIntent", err)
	}
	if _, err := d.Dispatch(context.Background(), Request{Intent: Intent("note.delete")}); !errors.Is(err, ErrUnknownIntent) {
		t.Errorf("Dispatch err = %v, want ErrUnknownIntent", err)
	}
}

func TestDispatchUnregisteredIntent(t *testing.T) {
	t.Parallel()
	d := New(nil)

	if _, err := d.Dispatch(context.Background(), Request{Intent: IntentPIIAccept}); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("err = %v, want ErrNotRegistered", err)
	}
}

func TestDispatchHandlerError(t *testing.T) {
	t.Parallel()
	d := New(nil)
	boom := errors.New("device gone")

	if err := d.Register(IntentRecordStop, func(context.Context, Request) (any, error) {
		return nil, boom
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := d.Dispatch(context.Background(), Request{Intent: IntentRecordStop}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want handler error", err)
	}
}

func TestIntentsCoversClosedSet(t *testing.T) {
	t.Parallel()
	d := New(nil)

	for _, intent := range Intents() {
		if err := d.Register(intent, func(context.Context, Request) (any, error) {
			return nil, nil
		}); err != nil {
			t.Errorf("Register(%q): %v", intent, err)
		}
	}
	if got := len(Intents()); got != 6 {
		t.Errorf("intent set size = %d, want 6", got)
	}
}
