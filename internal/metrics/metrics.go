// Package metrics provides in-process counters for the daemon.
//
// banishd is not a network service, so there is no scrape endpoint;
// counters are exposed through the control socket's status reply.
// All operations are safe for concurrent use: the event loop writes,
// the IPC server reads.
package metrics

import "sync/atomic"

// Metrics holds the daemon's lifetime counters.
type Metrics struct {
	eventsSeen   atomic.Uint64
	typing       atomic.Uint64
	modifierOnly atomic.Uint64
	pointer      atomic.Uint64
	hides        atomic.Uint64
	shows        atomic.Uint64
	sinkErrors   atomic.Uint64
}

// New creates a zeroed metrics set.
func New() *Metrics {
	return &Metrics{}
}

// EventSeen records one raw event delivered by the source.
func (m *Metrics) EventSeen() { m.eventsSeen.Add(1) }

// Typing records a typing classification.
func (m *Metrics) Typing() { m.typing.Add(1) }

// ModifierOnly records an exempt-modifier classification.
func (m *Metrics) ModifierOnly() { m.modifierOnly.Add(1) }

// Pointer records a moved or clicked classification.
func (m *Metrics) Pointer() { m.pointer.Add(1) }

// Hide records a successful hide transition.
func (m *Metrics) Hide() { m.hides.Add(1) }

// Show records a successful show transition.
func (m *Metrics) Show() { m.shows.Add(1) }

// SinkError records a failed sink call.
func (m *Metrics) SinkError() { m.sinkErrors.Add(1) }

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	EventsSeen   uint64 `json:"events_seen"`
	Typing       uint64 `json:"typing"`
	ModifierOnly uint64 `json:"modifier_only"`
	Pointer      uint64 `json:"pointer"`
	Hides        uint64 `json:"hides"`
	Shows        uint64 `json:"shows"`
	SinkErrors   uint64 `json:"sink_errors"`
}

// Snapshot returns a copy of the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		EventsSeen:   m.eventsSeen.Load(),
		Typing:       m.typing.Load(),
		ModifierOnly: m.modifierOnly.Load(),
		Pointer:      m.pointer.Load(),
		Hides:        m.hides.Load(),
		Shows:        m.shows.Load(),
		SinkErrors:   m.sinkErrors.Load(),
	}
}
