// Package session pauses pointer hiding around desktop session state
// changes, via the logind D-Bus interface.
//
// A hidden pointer must not survive a lock screen or a suspend: the
// user returning to the machine expects to see the cursor. The watcher
// listens for logind's PrepareForSleep and per-session Lock/Unlock
// signals and pauses/resumes the engine accordingly; pausing also
// forces the pointer visible.
//
// The system bus is optional equipment. Sessions without logind (or
// without a system bus at all) just run without lock awareness.
package session

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"banishd/internal/logging"
)

// logind signal names.
const (
	sigPrepareForSleep = "org.freedesktop.login1.Manager.PrepareForSleep"
	sigSessionLock     = "org.freedesktop.login1.Session.Lock"
	sigSessionUnlock   = "org.freedesktop.login1.Session.Unlock"
)

// Controls is the engine surface the watcher drives.
type Controls interface {
	Pause() error
	Resume() error
}

// Watcher subscribes to logind session signals.
type Watcher struct {
	conn     *dbus.Conn
	controls Controls
	log      *logging.Logger
}

// NewWatcher connects to the system bus and subscribes to session
// signals.
func NewWatcher(controls Controls, log *logging.Logger) (*Watcher, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", err)
	}

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
			dbus.WithMatchMember("PrepareForSleep"),
		},
		{
			dbus.WithMatchInterface("org.freedesktop.login1.Session"),
			dbus.WithMatchMember("Lock"),
		},
		{
			dbus.WithMatchInterface("org.freedesktop.login1.Session"),
			dbus.WithMatchMember("Unlock"),
		},
	}
	for _, m := range matches {
		if err := conn.AddMatchSignal(m...); err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribe to logind signals: %w", err)
		}
	}

	return &Watcher{conn: conn, controls: controls, log: log}, nil
}

// Run dispatches session signals until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	signals := make(chan *dbus.Signal, 16)
	w.conn.Signal(signals)
	defer w.conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				w.log.Warn("system bus connection lost, session watching stopped")
				return
			}
			w.dispatch(sig)
		}
	}
}

// dispatch applies one logind signal to the engine.
func (w *Watcher) dispatch(sig *dbus.Signal) {
	pause, resume, ok := interpret(sig)
	switch {
	case !ok:
	case pause:
		w.log.Info("session inactive, pausing", "signal", sig.Name)
		if err := w.controls.Pause(); err != nil {
			w.log.Warn("pause failed", "err", err)
		}
	case resume:
		w.log.Info("session active, resuming", "signal", sig.Name)
		if err := w.controls.Resume(); err != nil {
			w.log.Warn("resume failed", "err", err)
		}
	}
}

// interpret maps a logind signal to a pause or resume action. ok is
// false for signals that need no action.
func interpret(sig *dbus.Signal) (pause, resume, ok bool) {
	switch sig.Name {
	case sigPrepareForSleep:
		if len(sig.Body) != 1 {
			return false, false, false
		}
		entering, good := sig.Body[0].(bool)
		if !good {
			return false, false, false
		}
		if entering {
			return true, false, true
		}
		return false, true, true
	case sigSessionLock:
		return true, false, true
	case sigSessionUnlock:
		return false, true, true
	}
	return false, false, false
}
