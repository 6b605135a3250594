// Package visibility owns the pointer visibility state machine.
//
// The controller consumes the classified activity stream and drives the
// sink that actually hides or reveals the on-screen cursor. It is the
// only component that touches visibility state, and it calls the sink
// only on real edge transitions, so a sink that is not idempotent at
// the protocol level is still safe.
package visibility

import (
	"fmt"

	"banishd/internal/activity"
)

// State is the pointer visibility state.
type State uint8

const (
	// Visible is the initial state: the pointer is on screen.
	Visible State = iota
	// Hidden means the pointer has been hidden by typing activity.
	Hidden
)

// String returns the state name for logging and status reporting.
func (s State) String() string {
	switch s {
	case Visible:
		return "visible"
	case Hidden:
		return "hidden"
	}
	return fmt.Sprintf("visibility.State(%d)", uint8(s))
}

// Sink is the capability that hides or reveals the on-screen cursor.
// The real implementation talks XFixes; tests substitute a fake.
// Neither call is assumed idempotent: the controller issues each only
// on an actual state transition.
type Sink interface {
	Hide() error
	Show() error
}

// Controller is the two-state visibility machine. It is owned by a
// single goroutine; no locking, per the daemon's event-loop model.
type Controller struct {
	state State
	sink  Sink
}

// NewController builds a controller in the Visible state.
func NewController(sink Sink) *Controller {
	return &Controller{state: Visible, sink: sink}
}

// State returns the current visibility state.
func (c *Controller) State() State { return c.state }

// Observe folds one activity event into the state, invoking the sink
// when the state actually changes.
//
// Only non-exempt key activity hides; only pointer-originated activity
// reveals. Typing while hidden deliberately does not re-show, so
// sustained typing cannot flicker the cursor.
//
// If the sink call fails, the transition is rolled back so in-memory
// state cannot diverge from the screen, and the error is returned for
// the caller's logging or retry policy. The controller never retries.
func (c *Controller) Observe(ev activity.Event) error {
	switch c.state {
	case Visible:
		if ev.Kind == activity.Typing {
			if err := c.sink.Hide(); err != nil {
				return fmt.Errorf("hide pointer: %w", err)
			}
			c.state = Hidden
		}
	case Hidden:
		if ev.Kind == activity.Moved || ev.Kind == activity.Clicked {
			if err := c.sink.Show(); err != nil {
				return fmt.Errorf("show pointer: %w", err)
			}
			c.state = Visible
		}
	}
	return nil
}

// Reveal forces the pointer visible regardless of activity, for
// shutdown, pause, and session-lock paths. A no-op when already
// visible; rolls back on sink failure like Observe.
func (c *Controller) Reveal() error {
	if c.state == Visible {
		return nil
	}
	if err := c.sink.Show(); err != nil {
		return fmt.Errorf("show pointer: %w", err)
	}
	c.state = Visible
	return nil
}
