package x11

import (
	"fmt"
	"time"

	"github.com/BurntSushi/xgb/xproto"

	"banishd/internal/activity"
)

// pollInterval is how often keyboard and pointer state are sampled.
// Short enough that a keystroke's release lands in the next sample,
// long enough that two pipelined round trips per tick cost nothing.
const pollInterval = 25 * time.Millisecond

// keymapBytes is the size of the QueryKeymap bit vector: one bit per
// keycode, 256 keycodes.
const keymapBytes = 32

// pointerSample is one QueryPointer observation.
type pointerSample struct {
	x, y    int16
	buttons uint16
	valid   bool
}

// Next blocks until the next raw input event, sampling the server
// state between deliveries. An error means the display connection is
// gone.
func (c *Conn) Next() (activity.RawEvent, error) {
	if !c.snooping {
		return activity.RawEvent{}, fmt.Errorf("connection is sink-only")
	}
	for {
		if len(c.pending) > 0 {
			ev := c.pending[0]
			c.pending = c.pending[1:]
			return ev, nil
		}

		time.Sleep(pollInterval)

		if c.remapPending.Swap(false) {
			if err := c.refreshModifierMap(); err != nil {
				c.log.Warn("cannot refresh modifier mapping", "err", err)
			}
		}
		evs, err := c.sample()
		if err != nil {
			return activity.RawEvent{}, err
		}
		c.pending = evs
	}
}

// sample takes one keyboard+pointer observation and diffs it against
// the previous one. Both requests are pipelined before either reply is
// read, so a tick costs a single round trip.
func (c *Conn) sample() ([]activity.RawEvent, error) {
	ptrCookie := xproto.QueryPointer(c.x, c.root)
	keyCookie := xproto.QueryKeymap(c.x)

	ptr, err := ptrCookie.Reply()
	if err != nil {
		return nil, fmt.Errorf("query pointer: %w", err)
	}
	keys, err := keyCookie.Reply()
	if err != nil {
		return nil, fmt.Errorf("query keymap: %w", err)
	}

	cur := pointerSample{x: ptr.RootX, y: ptr.RootY, buttons: ptr.Mask, valid: true}

	var evs []activity.RawEvent
	for _, kc := range keyReleases(c.prevKeys, keys.Keys) {
		evs = append(evs, c.keyEvent(kc))
	}
	evs = append(evs, pointerEvents(c.prevPtr, cur)...)

	c.prevKeys = keys.Keys
	c.prevPtr = cur
	return evs, nil
}

// keyReleases returns the keycodes whose bit cleared between two
// keymap samples. Bit j of byte i is keycode 8*i+j. The first sample
// has no predecessor and yields nothing.
func keyReleases(prev, cur []byte) []byte {
	if len(prev) == 0 {
		return nil
	}
	var released []byte
	n := len(prev)
	if len(cur) < n {
		n = len(cur)
	}
	if n > keymapBytes {
		n = keymapBytes
	}
	for i := 0; i < n; i++ {
		gone := prev[i] &^ cur[i]
		for bit := 0; bit < 8; bit++ {
			if gone&(1<<bit) != 0 {
				released = append(released, byte(8*i+bit))
			}
		}
	}
	return released
}

// pointerEvents diffs two pointer samples into button and motion
// events. Buttons report on press; a change in root coordinates is
// motion with the measured delta.
func pointerEvents(prev, cur pointerSample) []activity.RawEvent {
	if !prev.valid {
		return nil
	}
	var evs []activity.RawEvent
	pressed := cur.buttons &^ prev.buttons
	for b := 0; b < 5; b++ {
		if pressed&uint16(xproto.ButtonMask1<<b) != 0 {
			evs = append(evs, activity.ButtonEvent(uint32(b+1)))
		}
	}
	if cur.x != prev.x || cur.y != prev.y {
		evs = append(evs, activity.MotionEvent(int32(cur.x-prev.x), int32(cur.y-prev.y)))
	}
	return evs
}
