package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"

	"banishd/internal/activity"
	"banishd/internal/modkey"
)

// modifierMap maps X keycodes to the modifier category they are bound
// to, derived from the server's modifier mapping table.
type modifierMap map[xproto.Keycode]modkey.Category

// modifierRows is the fixed row order of the GetModifierMapping table.
// The eighth row is Mod5, which has no category of its own; keys bound
// there classify as ordinary keys, which errs toward hiding.
var modifierRows = []modkey.Category{
	modkey.Shift,
	modkey.CapsLock,
	modkey.Ctrl,
	modkey.Mod1,
	modkey.Mod2,
	modkey.Mod3,
	modkey.Mod4,
}

// buildModifierMap converts a raw modifier mapping table into a keycode
// lookup. keycodes holds perMod entries per modifier row, zero-padded.
func buildModifierMap(keycodes []xproto.Keycode, perMod byte) modifierMap {
	m := make(modifierMap)
	for row, cat := range modifierRows {
		for i := 0; i < int(perMod); i++ {
			idx := row*int(perMod) + i
			if idx >= len(keycodes) {
				return m
			}
			if kc := keycodes[idx]; kc != 0 {
				m[kc] = cat
			}
		}
	}
	return m
}

// refreshModifierMap reloads the keycode table from the server. Called
// at connect time and again on MappingNotify.
func (c *Conn) refreshModifierMap() error {
	reply, err := xproto.GetModifierMapping(c.x).Reply()
	if err != nil {
		return fmt.Errorf("get modifier mapping: %w", err)
	}
	c.modmap = buildModifierMap(reply.Keycodes, reply.KeycodesPerModifier)
	return nil
}

// keyEvent builds the raw activity event for a key release, consulting
// the modifier table for the identity of the key itself. Unknown
// keycodes are ordinary keys.
func (c *Conn) keyEvent(keycode byte) activity.RawEvent {
	if cat, ok := c.modmap[xproto.Keycode(keycode)]; ok {
		return activity.ModifierKeyEvent(uint32(keycode), cat)
	}
	return activity.KeyEvent(uint32(keycode))
}
