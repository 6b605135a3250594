//go:build linux

package evdev

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banishd/internal/activity"
	"banishd/internal/modkey"
)

func encodeEvent(t *testing.T, typ, code uint16, value int32) []byte {
	t.Helper()
	var buf bytes.Buffer
	ev := inputEvent{Type: typ, Code: code, Value: value}
	require.NoError(t, binary.Write(&buf, binary.NativeEndian, &ev))
	require.Equal(t, eventSize, buf.Len())
	return buf.Bytes()
}

func TestDecodeKeyRelease(t *testing.T) {
	raw, ok := decodeEvent(encodeEvent(t, evKey, 30 /* KEY_A */, keyRelease))
	require.True(t, ok)
	assert.Equal(t, activity.RawKey, raw.Kind)
	assert.Equal(t, uint32(30), raw.Keycode)
	assert.Nil(t, raw.Modifier)
}

func TestDecodeKeyPressIgnored(t *testing.T) {
	// Only releases count; with presses a tapped exempt modifier looks
	// like a chord.
	_, ok := decodeEvent(encodeEvent(t, evKey, 30, keyPress))
	assert.False(t, ok)

	// Autorepeat too.
	_, ok = decodeEvent(encodeEvent(t, evKey, 30, 2))
	assert.False(t, ok)
}

func TestDecodeModifierRelease(t *testing.T) {
	tests := []struct {
		code uint16
		want modkey.Category
	}{
		{keyLeftShift, modkey.Shift},
		{keyRightShift, modkey.Shift},
		{keyCapsLock, modkey.CapsLock},
		{keyLeftCtrl, modkey.Ctrl},
		{keyLeftAlt, modkey.Mod1},
		{keyNumLock, modkey.Mod2},
		{keyScrollLock, modkey.Mod3},
		{keyRightMeta, modkey.Mod4},
	}
	for _, tt := range tests {
		raw, ok := decodeEvent(encodeEvent(t, evKey, tt.code, keyRelease))
		require.True(t, ok, "code %d", tt.code)
		require.NotNil(t, raw.Modifier, "code %d", tt.code)
		assert.Equal(t, tt.want, *raw.Modifier, "code %d", tt.code)
	}
}

func TestDecodeButton(t *testing.T) {
	raw, ok := decodeEvent(encodeEvent(t, evKey, 0x110 /* BTN_LEFT */, keyPress))
	require.True(t, ok)
	assert.Equal(t, activity.RawButton, raw.Kind)
	assert.Equal(t, uint32(0x110), raw.Button)

	// Button releases carry no extra information.
	_, ok = decodeEvent(encodeEvent(t, evKey, 0x110, keyRelease))
	assert.False(t, ok)
}

func TestDecodeMotion(t *testing.T) {
	raw, ok := decodeEvent(encodeEvent(t, evRel, relX, -3))
	require.True(t, ok)
	assert.Equal(t, activity.RawMotion, raw.Kind)
	assert.Equal(t, int32(-3), raw.DX)
	assert.Zero(t, raw.DY)

	raw, ok = decodeEvent(encodeEvent(t, evRel, relY, 7))
	require.True(t, ok)
	assert.Equal(t, int32(7), raw.DY)

	// Wheel scroll is still pointer activity.
	raw, ok = decodeEvent(encodeEvent(t, evRel, 0x08 /* REL_WHEEL */, 1))
	require.True(t, ok)
	assert.Equal(t, activity.RawMotion, raw.Kind)
}

func TestDecodeIrrelevantTypes(t *testing.T) {
	_, ok := decodeEvent(encodeEvent(t, 0x00 /* EV_SYN */, 0, 0))
	assert.False(t, ok)
	_, ok = decodeEvent(encodeEvent(t, 0x03 /* EV_ABS */, 0, 10))
	assert.False(t, ok)
}

func TestParseDeviceList(t *testing.T) {
	procData := `I: Bus=0011 Vendor=0001 Product=0001 Version=ab41
N: Name="AT Translated Set 2 keyboard"
H: Handlers=sysrq kbd leds event3
B: KEY=402000000 3803078f800d001

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver"
H: Handlers=mouse0 event7
B: REL=1943

I: Bus=0019 Vendor=0000 Product=0005 Version=0000
N: Name="Lid Switch"
H: Handlers=event0
B: SW=1
`
	devices := parseDeviceList(strings.NewReader(procData))
	assert.Equal(t, []string{"/dev/input/event3", "/dev/input/event7"}, devices)
}

func TestParseDeviceListEmpty(t *testing.T) {
	assert.Empty(t, parseDeviceList(strings.NewReader("")))
}
