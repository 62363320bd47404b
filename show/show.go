// Package show defines the contract a show/theming controller implements
// so the Ride Supervisor can start and stop ride-synchronized effects
// without knowing what drives them.
package show

import "context"

// Controller is implemented by any show/theming system. StartShow is
// called when a ride sequence begins; StopShow is called on ride
// completion or on any safety-constraint violation — the Supervisor treats
// it as a best-effort notification, not a blocking safety interlock.
type Controller interface {
	StartShow(ctx context.Context) error
	StopShow(ctx context.Context) error
	Status(ctx context.Context) (string, error)
}

// Noop is a Controller that does nothing, used where no show system is
// wired (matches the original's pattern of a Mock implementation for
// standalone testing).
type Noop struct{}

func (Noop) StartShow(ctx context.Context) error { return nil }
func (Noop) StopShow(ctx context.Context) error  { return nil }
func (Noop) Status(ctx context.Context) (string, error) {
	return "idle", nil
}
