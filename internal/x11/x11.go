// Package x11 implements the input event source and the pointer sink
// against a real X server, using the pure-Go X protocol bindings.
//
// The cursor is hidden and revealed with the XFixes extension on the
// root window. Input is observed session-wide by sampling the core
// protocol's QueryKeymap and QueryPointer state at a short interval
// and diffing successive samples: a keymap bit that clears is a key
// release, a button mask bit that sets is a click, a root coordinate
// change is motion. Keycode identity for releases is resolved through
// the server's modifier mapping, refreshed on MappingNotify.
//
// xgb connections are safe for concurrent use, so the sink calls made
// by the event loop may overlap the sampling done by Next.
package x11

import (
	"fmt"
	"sync/atomic"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"

	"banishd/internal/activity"
	"banishd/internal/logging"
)

// xfixes 4 is the first version with HideCursor/ShowCursor. The version
// negotiation is load-bearing: without it the server answers the cursor
// requests with errors.
const (
	xfixesMajor = 4
	xfixesMinor = 0
)

// Conn is a connection to the X server, serving as the pointer sink
// and, unless opened with ConnectSink, the raw input event source.
type Conn struct {
	x    *xgb.Conn
	root xproto.Window
	log  *logging.Logger

	// snooping is false for sink-only connections; Next refuses.
	snooping bool

	// remapPending is set by the event drain goroutine on
	// MappingNotify and consumed by the sampling loop.
	remapPending atomic.Bool

	// Sampling state, owned by the goroutine calling Next.
	modmap   modifierMap
	prevKeys []byte
	prevPtr  pointerSample
	pending  []activity.RawEvent
}

// Connect opens the display for input observation and cursor control.
// display may be empty to use $DISPLAY.
func Connect(display string, log *logging.Logger) (*Conn, error) {
	c, err := ConnectSink(display, log)
	if err != nil {
		return nil, err
	}
	if err := c.refreshModifierMap(); err != nil {
		c.Close()
		return nil, err
	}
	c.snooping = true
	return c, nil
}

// ConnectSink opens the display for cursor control only. Next returns
// an error; use it when another source delivers the input events.
func ConnectSink(display string, log *logging.Logger) (*Conn, error) {
	x, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("connect to X display: %w", err)
	}

	c := &Conn{x: x, log: log}
	setup := xproto.Setup(x)
	c.root = setup.DefaultScreen(x).Root

	if err := c.initExtensions(); err != nil {
		x.Close()
		return nil, err
	}

	// The server pushes events (MappingNotify in particular) at every
	// client; they must be consumed or xgb's event queue backs up and
	// eventually stalls reply delivery for the cursor requests.
	go c.drainEvents()
	return c, nil
}

func (c *Conn) initExtensions() error {
	if err := xfixes.Init(c.x); err != nil {
		return fmt.Errorf("xfixes extension: %w", err)
	}
	ver, err := xfixes.QueryVersion(c.x, xfixesMajor, xfixesMinor).Reply()
	if err != nil {
		return fmt.Errorf("xfixes version query: %w", err)
	}
	if ver.MajorVersion < xfixesMajor {
		return fmt.Errorf("xfixes %d.%d too old, need %d.%d",
			ver.MajorVersion, ver.MinorVersion, xfixesMajor, xfixesMinor)
	}
	return nil
}

// drainEvents consumes the connection's event stream until it closes,
// flagging modifier remaps for the sampling loop.
func (c *Conn) drainEvents() {
	for {
		ev, xerr := c.x.WaitForEvent()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			c.log.Debug("X protocol error", "err", xerr.Error())
			continue
		}
		if mn, ok := ev.(xproto.MappingNotifyEvent); ok && mn.Request == xproto.MappingModifier {
			c.remapPending.Store(true)
		}
	}
}

// Hide makes the cursor invisible. Part of the pointer sink; the
// visibility controller guarantees it is called only on an actual
// transition.
func (c *Conn) Hide() error {
	if err := xfixes.HideCursorChecked(c.x, c.root).Check(); err != nil {
		return fmt.Errorf("xfixes hide cursor: %w", err)
	}
	return nil
}

// Show makes the cursor visible again.
func (c *Conn) Show() error {
	if err := xfixes.ShowCursorChecked(c.x, c.root).Check(); err != nil {
		return fmt.Errorf("xfixes show cursor: %w", err)
	}
	return nil
}

// Close tears down the connection. Next returns an error afterwards.
func (c *Conn) Close() error {
	c.x.Close()
	return nil
}

// Root returns the root window the connection operates on.
func (c *Conn) Root() xproto.Window { return c.root }
