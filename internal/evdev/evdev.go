//go:build linux

// Package evdev implements a raw input event source over the Linux
// /dev/input/event* devices, for sessions where the X Input extension
// cannot be used but the XFixes cursor sink still works.
//
// Reading evdev requires membership in the input group (or root). The
// reader decodes kernel input_event records and reduces them to the
// same raw activity events the X11 source produces: key releases for
// keyboard activity, relative-axis motion and button presses for
// pointer activity. Modifier identity comes from the evdev keycode
// itself, since there is no server-side modifier mapping to consult.
package evdev

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"banishd/internal/activity"
	"banishd/internal/logging"
	"banishd/internal/modkey"
)

// Kernel input event type and code constants, from input-event-codes.h.
const (
	evKey = 0x01
	evRel = 0x02

	relX = 0x00
	relY = 0x01

	// Pointer buttons occupy the BTN_MISC..BTN_GEAR_UP code range.
	btnFirst = 0x100
	btnLast  = 0x151

	keyRelease = 0
	keyPress   = 1
)

// Modifier key codes from input-event-codes.h.
const (
	keyLeftCtrl   = 29
	keyLeftShift  = 42
	keyRightShift = 54
	keyLeftAlt    = 56
	keyCapsLock   = 58
	keyNumLock    = 69
	keyScrollLock = 70
	keyRightCtrl  = 97
	keyRightAlt   = 100
	keyLeftMeta   = 125
	keyRightMeta  = 126
)

// modifierKeycodes maps evdev key codes to modifier categories, using
// the conventional X bindings (Alt on Mod1, NumLock on Mod2, ScrollLock
// on Mod3, Super on Mod4).
var modifierKeycodes = map[uint16]modkey.Category{
	keyLeftShift:  modkey.Shift,
	keyRightShift: modkey.Shift,
	keyCapsLock:   modkey.CapsLock,
	keyLeftCtrl:   modkey.Ctrl,
	keyRightCtrl:  modkey.Ctrl,
	keyLeftAlt:    modkey.Mod1,
	keyRightAlt:   modkey.Mod1,
	keyNumLock:    modkey.Mod2,
	keyScrollLock: modkey.Mod3,
	keyLeftMeta:   modkey.Mod4,
	keyRightMeta:  modkey.Mod4,
}

// inputEvent mirrors the kernel's struct input_event.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

var eventSize = binary.Size(inputEvent{})

// Source merges the event streams of one or more input devices.
type Source struct {
	log   *logging.Logger
	files []*os.File

	events chan activity.RawEvent
	errs   chan error

	closeOnce sync.Once
	closed    chan struct{}
}

// Open opens the given device paths, or discovers keyboards and mice
// from /proc/bus/input/devices when paths is empty.
func Open(paths []string, log *logging.Logger) (*Source, error) {
	if len(paths) == 0 {
		var err error
		paths, err = discoverDevices()
		if err != nil {
			return nil, fmt.Errorf("discover input devices: %w", err)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no usable input devices found")
		}
	}

	s := &Source{
		log:    log,
		events: make(chan activity.RawEvent, 64),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}

	for _, path := range paths {
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			s.closeFiles()
			return nil, fmt.Errorf("open %s (are you in the input group?): %w", path, err)
		}
		s.files = append(s.files, f)
	}

	for _, f := range s.files {
		go s.readLoop(f)
	}
	return s, nil
}

// Next blocks until the next raw activity event. An error means every
// device stream is unusable.
func (s *Source) Next() (activity.RawEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case err := <-s.errs:
		return activity.RawEvent{}, err
	case <-s.closed:
		return activity.RawEvent{}, fmt.Errorf("evdev source closed")
	}
}

// Close stops the readers and closes all devices.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeFiles()
	})
	return nil
}

func (s *Source) closeFiles() {
	for _, f := range s.files {
		f.Close()
	}
}

func (s *Source) readLoop(f *os.File) {
	buf := make([]byte, eventSize)
	for {
		if _, err := io.ReadFull(f, buf); err != nil {
			select {
			case <-s.closed:
			case s.errs <- fmt.Errorf("read %s: %w", f.Name(), err):
			}
			return
		}

		raw, ok := decodeEvent(buf)
		if !ok {
			continue
		}
		select {
		case s.events <- raw:
		case <-s.closed:
			return
		}
	}
}

// decodeEvent parses one input_event record and maps it to a raw
// activity event. Records that carry no activity (sync reports, key
// presses and repeats, absolute axes) report ok=false.
func decodeEvent(buf []byte) (activity.RawEvent, bool) {
	var ev inputEvent
	if err := binary.Read(bytes.NewReader(buf), binary.NativeEndian, &ev); err != nil {
		return activity.RawEvent{}, false
	}

	switch ev.Type {
	case evKey:
		if ev.Code >= btnFirst && ev.Code <= btnLast {
			if ev.Value == keyPress {
				return activity.ButtonEvent(uint32(ev.Code)), true
			}
			return activity.RawEvent{}, false
		}
		// Key release, matching the X source: with press events,
		// tapping an exempt modifier would be indistinguishable from a
		// chord.
		if ev.Value != keyRelease {
			return activity.RawEvent{}, false
		}
		if cat, ok := modifierKeycodes[ev.Code]; ok {
			return activity.ModifierKeyEvent(uint32(ev.Code), cat), true
		}
		return activity.KeyEvent(uint32(ev.Code)), true

	case evRel:
		var dx, dy int32
		switch ev.Code {
		case relX:
			dx = ev.Value
		case relY:
			dy = ev.Value
		}
		// Wheel and other relative axes still prove pointer use.
		return activity.MotionEvent(dx, dy), true
	}
	return activity.RawEvent{}, false
}

// discoverDevices finds keyboard and mouse event devices by scanning
// /proc/bus/input/devices for their handler assignments.
func discoverDevices() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseDeviceList(f), nil
}

// parseDeviceList extracts /dev/input paths for devices whose handlers
// include kbd or mouse.
func parseDeviceList(r io.Reader) []string {
	var devices []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "H: Handlers=") {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, "H: Handlers="))

		wanted := false
		event := ""
		for _, fld := range fields {
			switch {
			case fld == "kbd" || strings.HasPrefix(fld, "mouse"):
				wanted = true
			case strings.HasPrefix(fld, "event"):
				event = fld
			}
		}
		if wanted && event != "" {
			devices = append(devices, "/dev/input/"+event)
		}
	}
	return devices
}
