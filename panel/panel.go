// Package panel defines the contract a ride operator panel (hardware or
// simulated) implements to feed operator actions into the Ride Supervisor,
// and the bounded dispatch queue that carries them.
package panel

import "context"

// MomentaryState is the resting/active state of a momentary pushbutton
// (Dispatch, Reset, Stop, E-Stop).
type MomentaryState int

const (
	Released MomentaryState = iota
	Pressed
)

func (s MomentaryState) String() string {
	if s == Pressed {
		return "Pressed"
	}
	return "Released"
}

// SustainedState is the resting position of the maintenance mode rotary
// switch.
type SustainedState int

const (
	Off SustainedState = iota
	On
	Maintenance
)

func (s SustainedState) String() string {
	switch s {
	case On:
		return "On"
	case Maintenance:
		return "Maintenance"
	default:
		return "Off"
	}
}

// JogState is the position of the maintenance jog rotary switch.
type JogState int

const (
	Neutral JogState = iota
	Up
	Down
)

func (s JogState) String() string {
	switch s {
	case Up:
		return "Up"
	case Down:
		return "Down"
	default:
		return "Neutral"
	}
}

// EventKind discriminates which field of Event is populated.
type EventKind int

const (
	EventDispatch EventKind = iota
	EventReset
	EventStop
	EventEStop
	EventMaintenanceSwitch
	EventJogSwitch
)

func (k EventKind) String() string {
	switch k {
	case EventDispatch:
		return "Dispatch"
	case EventReset:
		return "Reset"
	case EventStop:
		return "Stop"
	case EventEStop:
		return "EStop"
	case EventMaintenanceSwitch:
		return "MaintenanceSwitch"
	case EventJogSwitch:
		return "JogSwitch"
	default:
		return "Unknown"
	}
}

// Event is a single operator action. Only the field matching Kind is
// meaningful; this is Go's idiomatic stand-in for a tagged union, replacing
// the original's queue of nullary closures with a queue of typed values a
// consumer can switch on.
type Event struct {
	Kind      EventKind
	Momentary MomentaryState
	Sustained SustainedState
	Jog       JogState
}

// EventSource is implemented by any ride operator panel, hardware or
// simulated. Run blocks until ctx is canceled, translating panel inputs
// into Events sent on the channel returned by Events.
type EventSource interface {
	Run(ctx context.Context) error
	Events() <-chan Event
}

// QueueDepth is the dispatch queue's fixed capacity. A panel producing
// events faster than the Supervisor drains them blocks on send rather than
// growing without bound.
const QueueDepth = 64

// Dispatcher is a bounded MPSC queue of panel Events: any number of panel
// implementations can share one Dispatcher's Send side, while the
// Supervisor is the queue's sole consumer.
type Dispatcher struct {
	ch chan Event
}

// NewDispatcher allocates a Dispatcher with the standard QueueDepth.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{ch: make(chan Event, QueueDepth)}
}

// Send enqueues ev, blocking if the queue is full. Returns ctx.Err() if ctx
// is canceled first.
func (d *Dispatcher) Send(ctx context.Context, ev Event) error {
	select {
	case d.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the receive side of the queue, suitable for a
// Supervisor's drain loop.
func (d *Dispatcher) Events() <-chan Event {
	return d.ch
}
