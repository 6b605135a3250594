// Package engine runs the daemon's event loop.
//
// The loop is the single owner of the visibility state machine: raw
// events are pulled from the input source, classified, and folded into
// the controller one at a time, each processed to completion before the
// next. A reader goroutine only transports raw events onto a FIFO
// channel; classification and every state mutation happen on the loop
// goroutine, so the controller needs no locking and the resulting state
// is a pure left-fold over the delivery order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"banishd/internal/activity"
	"banishd/internal/logging"
	"banishd/internal/metrics"
	"banishd/internal/visibility"
)

// Source is the capability that delivers raw input events for the whole
// session. Next blocks until an event arrives; blocking indefinitely
// while no input occurs is correct and expected. A Source error means
// the event stream is gone, which is fatal to the daemon.
type Source interface {
	Next() (activity.RawEvent, error)
	Close() error
}

// maxConsecutiveSinkErrors is the point at which a failing sink is
// treated as permanently broken rather than transient.
const maxConsecutiveSinkErrors = 8

// command is a control request applied between events on the loop
// goroutine.
type command uint8

const (
	cmdPause command = iota
	cmdResume
	cmdReveal
)

// ErrNotRunning is returned when a control command is sent to a stopped
// engine.
var ErrNotRunning = errors.New("engine not running")

// Engine wires source, classifier, and controller together and serves
// control commands from the IPC and session watchers.
type Engine struct {
	source     Source
	classifier *activity.Classifier
	controller *visibility.Controller
	log        *logging.Logger
	metrics    *metrics.Metrics

	commands chan command

	// sinkFailures counts consecutive failed sink calls; owned by the
	// loop goroutine.
	sinkFailures int

	// Cross-goroutine status mirrors; written only by the loop.
	running    atomic.Bool
	paused     atomic.Bool
	stateView  atomic.Int32
	startNanos atomic.Int64
}

// New creates an engine. The controller must have been built on the
// real pointer sink; the engine never talks to the sink directly.
func New(source Source, classifier *activity.Classifier, controller *visibility.Controller, log *logging.Logger, m *metrics.Metrics) *Engine {
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		source:     source,
		classifier: classifier,
		controller: controller,
		log:        log,
		metrics:    m,
		commands:   make(chan command, 8),
	}
}

// Run processes events until the context is cancelled or the source
// fails. On any exit path the pointer is revealed, best effort, so a
// dying daemon never strands the cursor hidden.
func (e *Engine) Run(ctx context.Context) error {
	e.running.Store(true)
	e.startNanos.Store(time.Now().UnixNano())
	defer e.running.Store(false)

	type delivery struct {
		raw activity.RawEvent
		err error
	}
	events := make(chan delivery, 64)

	// Reader: the only blocking call in the system is source.Next, and
	// it lives here so the loop can also react to commands and
	// cancellation.
	go func() {
		for {
			raw, err := e.source.Next()
			if err != nil {
				select {
				case events <- delivery{err: err}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case events <- delivery{raw: raw}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			e.revealOnExit()
			return nil

		case cmd := <-e.commands:
			e.apply(cmd)

		case d := <-events:
			if d.err != nil {
				e.revealOnExit()
				return fmt.Errorf("input source: %w", d.err)
			}
			if err := e.handle(d.raw); err != nil {
				e.revealOnExit()
				return err
			}
		}
	}
}

// handle processes one raw event to completion. EventSeen is recorded
// last so the counter doubles as a processed-events watermark.
func (e *Engine) handle(raw activity.RawEvent) error {
	defer e.metrics.EventSeen()

	ev := e.classifier.Classify(raw)
	e.count(ev)

	if e.paused.Load() {
		return nil
	}

	before := e.controller.State()
	if err := e.controller.Observe(ev); err != nil {
		e.metrics.SinkError()
		e.sinkFailures++
		e.log.Warn("sink call failed, state rolled back",
			"activity", ev.Kind.String(),
			"state", e.controller.State().String(),
			"consecutive", e.sinkFailures,
			"err", err)
		if e.sinkFailures >= maxConsecutiveSinkErrors {
			return fmt.Errorf("pointer sink failing persistently: %w", err)
		}
		return nil
	}
	e.sinkFailures = 0

	if after := e.controller.State(); after != before {
		e.noteTransition(after)
	}
	return nil
}

// apply executes a control command on the loop goroutine.
func (e *Engine) apply(cmd command) {
	switch cmd {
	case cmdPause:
		if e.paused.CompareAndSwap(false, true) {
			e.log.Info("hiding paused")
			if err := e.controller.Reveal(); err != nil {
				e.metrics.SinkError()
				e.log.Warn("reveal on pause failed", "err", err)
			}
			e.stateView.Store(int32(e.controller.State()))
		}
	case cmdResume:
		if e.paused.CompareAndSwap(true, false) {
			e.log.Info("hiding resumed")
		}
	case cmdReveal:
		if err := e.controller.Reveal(); err != nil {
			e.metrics.SinkError()
			e.log.Warn("forced reveal failed", "err", err)
			return
		}
		e.stateView.Store(int32(e.controller.State()))
	}
}

func (e *Engine) count(ev activity.Event) {
	switch ev.Kind {
	case activity.Typing:
		e.metrics.Typing()
	case activity.ModifierOnly:
		e.metrics.ModifierOnly()
	case activity.Moved, activity.Clicked:
		e.metrics.Pointer()
	}
}

func (e *Engine) noteTransition(after visibility.State) {
	e.stateView.Store(int32(after))
	switch after {
	case visibility.Hidden:
		e.metrics.Hide()
		e.log.Debug("pointer hidden")
	case visibility.Visible:
		e.metrics.Show()
		e.log.Debug("pointer shown")
	}
}

func (e *Engine) revealOnExit() {
	if err := e.controller.Reveal(); err != nil {
		e.log.Warn("could not reveal pointer on shutdown", "err", err)
	}
	e.stateView.Store(int32(e.controller.State()))
}

// send enqueues a command for the loop goroutine.
func (e *Engine) send(cmd command) error {
	if !e.running.Load() {
		return ErrNotRunning
	}
	select {
	case e.commands <- cmd:
		return nil
	default:
		return errors.New("engine command queue full")
	}
}

// Pause stops driving the controller and reveals the pointer. Events
// keep draining so resume picks up with fresh state.
func (e *Engine) Pause() error { return e.send(cmdPause) }

// Resume re-enables hiding after a Pause.
func (e *Engine) Resume() error { return e.send(cmdResume) }

// Reveal forces the pointer visible without pausing.
func (e *Engine) Reveal() error { return e.send(cmdReveal) }

// Status is a snapshot of the engine for the control socket.
type Status struct {
	State     string           `json:"state"`
	Paused    bool             `json:"paused"`
	Running   bool             `json:"running"`
	Uptime    time.Duration    `json:"uptime_ns"`
	IgnoreSet string           `json:"ignore_mods"`
	Counters  metrics.Snapshot `json:"counters"`
}

// Status reports the engine's current view. Safe to call from any
// goroutine.
func (e *Engine) Status() Status {
	st := Status{
		State:     visibility.State(e.stateView.Load()).String(),
		Paused:    e.paused.Load(),
		Running:   e.running.Load(),
		IgnoreSet: e.classifier.Policy().String(),
		Counters:  e.metrics.Snapshot(),
	}
	if ns := e.startNanos.Load(); ns != 0 {
		st.Uptime = time.Since(time.Unix(0, ns))
	}
	return st
}
