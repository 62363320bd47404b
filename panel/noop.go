package panel

import "context"

// NullSource is an EventSource that never produces events. It exists so
// the process can be wired and run end to end with no operator panel
// hardware attached — the panel itself is out of this repository's scope,
// modeled only by the EventSource contract.
type NullSource struct {
	dispatcher *Dispatcher
}

// NewNullSource returns an EventSource whose Events channel never
// receives anything.
func NewNullSource() *NullSource {
	return &NullSource{dispatcher: NewDispatcher()}
}

func (n *NullSource) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (n *NullSource) Events() <-chan Event {
	return n.dispatcher.Events()
}
