package panel

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherSendAndReceive(t *testing.T) {
	d := NewDispatcher()
	ctx := context.Background()

	ev := Event{Kind: EventDispatch, Momentary: Pressed}
	if err := d.Send(ctx, ev); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	select {
	case got := <-d.Events():
		if got.Kind != EventDispatch || got.Momentary != Pressed {
			t.Fatalf("got %+v, want %+v", got, ev)
		}
	default:
		t.Fatal("expected a queued event")
	}
}

func TestDispatcherSendRespectsContextCancel(t *testing.T) {
	d := &Dispatcher{ch: make(chan Event)} // unbuffered, no reader
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := d.Send(ctx, Event{Kind: EventStop})
	if err != context.DeadlineExceeded {
		t.Fatalf("Send() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestEventKindStringers(t *testing.T) {
	cases := map[EventKind]string{
		EventDispatch:          "Dispatch",
		EventReset:             "Reset",
		EventStop:              "Stop",
		EventEStop:             "EStop",
		EventMaintenanceSwitch: "MaintenanceSwitch",
		EventJogSwitch:         "JogSwitch",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("%v.String() = %q, want %q", kind, got, want)
		}
	}
}
