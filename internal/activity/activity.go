// Package activity converts raw input events into the semantic events
// the visibility controller consumes.
//
// A raw event comes straight off the input source (X11 or evdev) and
// carries only what the classification needs: what kind of occurrence
// it was, and for key events whether the pressed key is itself a
// modifier. The classifier maps each raw event to exactly one semantic
// Kind; classification is total, so a malformed or unrecognized raw
// event still produces an answer (Typing, the hide-leaning default)
// rather than an error.
package activity

import (
	"fmt"

	"banishd/internal/modkey"
)

// RawKind discriminates RawEvent variants.
type RawKind uint8

const (
	// RawKey is a keyboard key event.
	RawKey RawKind = iota
	// RawMotion is pointer movement.
	RawMotion
	// RawButton is a pointer button event.
	RawButton
)

// RawEvent is a single occurrence delivered by an input source.
// Exactly one variant's fields are meaningful, selected by Kind.
type RawEvent struct {
	Kind RawKind

	// Key fields.
	Keycode  uint32
	Modifier *modkey.Category // nil for ordinary keys

	// Motion fields. Zero deltas are legitimate; occurrence matters,
	// not magnitude.
	DX, DY int32

	// Button fields.
	Button uint32
}

// KeyEvent builds a raw event for an ordinary (non-modifier) key.
func KeyEvent(keycode uint32) RawEvent {
	return RawEvent{Kind: RawKey, Keycode: keycode}
}

// ModifierKeyEvent builds a raw event for a key identified as a modifier.
func ModifierKeyEvent(keycode uint32, cat modkey.Category) RawEvent {
	return RawEvent{Kind: RawKey, Keycode: keycode, Modifier: &cat}
}

// MotionEvent builds a raw pointer-motion event.
func MotionEvent(dx, dy int32) RawEvent {
	return RawEvent{Kind: RawMotion, DX: dx, DY: dy}
}

// ButtonEvent builds a raw pointer-button event.
func ButtonEvent(button uint32) RawEvent {
	return RawEvent{Kind: RawButton, Button: button}
}

// Kind is the semantic classification of a raw event.
type Kind uint8

const (
	// Typing is key activity that should hide the pointer.
	Typing Kind = iota
	// ModifierOnly is a press of an exempt modifier key.
	ModifierOnly
	// Moved is pointer motion.
	Moved
	// Clicked is a pointer button.
	Clicked
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case Typing:
		return "typing"
	case ModifierOnly:
		return "modifier-only"
	case Moved:
		return "moved"
	case Clicked:
		return "clicked"
	}
	return fmt.Sprintf("activity.Kind(%d)", uint8(k))
}

// Event is the semantic event derived 1:1 from a RawEvent.
type Event struct {
	Kind Kind

	// Modifier is set for ModifierOnly events.
	Modifier modkey.Category
}

// Classifier maps raw events to semantic events under an ignore policy.
type Classifier struct {
	policy modkey.IgnoreSet
}

// NewClassifier builds a classifier over an immutable ignore set.
func NewClassifier(policy modkey.IgnoreSet) *Classifier {
	return &Classifier{policy: policy}
}

// Policy returns the ignore set the classifier was built with.
func (c *Classifier) Policy() modkey.IgnoreSet { return c.policy }

// Classify maps a raw event to its semantic event.
//
// Rules, in priority order:
//  1. Motion is Moved, regardless of delta magnitude.
//  2. Button is Clicked.
//  3. An exempt modifier key is ModifierOnly.
//  4. A non-exempt modifier key is Typing.
//  5. An ordinary key is Typing unconditionally. Held-modifier state is
//     irrelevant; only the identity of the pressed key matters, so the
//     ignore list never exempts ordinary keys.
//
// Unknown raw kinds classify as Typing: hiding the pointer spuriously
// is the safer failure than leaving it up while the user types.
func (c *Classifier) Classify(raw RawEvent) Event {
	switch raw.Kind {
	case RawMotion:
		return Event{Kind: Moved}
	case RawButton:
		return Event{Kind: Clicked}
	case RawKey:
		if raw.Modifier != nil && c.policy.Ignored(*raw.Modifier) {
			return Event{Kind: ModifierOnly, Modifier: *raw.Modifier}
		}
		return Event{Kind: Typing}
	}
	return Event{Kind: Typing}
}
