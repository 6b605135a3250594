package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banishd/internal/activity"
	"banishd/internal/logging"
	"banishd/internal/metrics"
	"banishd/internal/modkey"
	"banishd/internal/visibility"
)

// fakeSource feeds scripted raw events to the engine.
type fakeSource struct {
	events chan activity.RawEvent
	errs   chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events: make(chan activity.RawEvent, 64),
		errs:   make(chan error, 1),
	}
}

func (s *fakeSource) Next() (activity.RawEvent, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case err := <-s.errs:
		return activity.RawEvent{}, err
	}
}

func (s *fakeSource) Close() error { return nil }

// fakeSink records hide/show calls.
type fakeSink struct {
	mu      sync.Mutex
	calls   []string
	hideErr error
}

func (s *fakeSink) Hide() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hideErr != nil {
		return s.hideErr
	}
	s.calls = append(s.calls, "hide")
	return nil
}

func (s *fakeSink) Show() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "show")
	return nil
}

func (s *fakeSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	l, err := logging.New(&logging.Config{Level: logging.LevelError, Output: "stderr"})
	require.NoError(t, err)
	return l
}

type harness struct {
	source *fakeSource
	sink   *fakeSink
	eng    *Engine
	done   chan struct{}
	runErr error
	cancel context.CancelFunc
}

func startEngine(t *testing.T, policy modkey.IgnoreSet) *harness {
	t.Helper()

	h := &harness{
		source: newFakeSource(),
		sink:   &fakeSink{},
		done:   make(chan struct{}),
	}
	h.eng = New(
		h.source,
		activity.NewClassifier(policy),
		visibility.NewController(h.sink),
		testLogger(t),
		metrics.New(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.runErr = h.eng.Run(ctx)
		close(h.done)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Error("engine did not stop")
		}
	})
	return h
}

// wait blocks until Run returns and reports its error.
func (h *harness) wait(t *testing.T) error {
	t.Helper()
	select {
	case <-h.done:
		return h.runErr
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
		return nil
	}
}

// waitSeen blocks until the engine has consumed n raw events.
func (h *harness) waitSeen(t *testing.T, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.eng.Status().Counters.EventsSeen >= n
	}, 2*time.Second, time.Millisecond)
}

func TestHideOnTypingShowOnMotion(t *testing.T) {
	h := startEngine(t, modkey.IgnoreSet{})

	h.source.events <- activity.KeyEvent(38)
	h.waitSeen(t, 1)
	assert.Equal(t, []string{"hide"}, h.sink.snapshot())
	assert.Equal(t, "hidden", h.eng.Status().State)

	h.source.events <- activity.MotionEvent(1, 0)
	h.waitSeen(t, 2)
	assert.Equal(t, []string{"hide", "show"}, h.sink.snapshot())
	assert.Equal(t, "visible", h.eng.Status().State)
}

func TestIgnoredModifierDoesNotReveal(t *testing.T) {
	h := startEngine(t, modkey.NewIgnoreSet(modkey.Shift))

	h.source.events <- activity.KeyEvent(38)
	h.source.events <- activity.ModifierKeyEvent(50, modkey.Shift)
	h.source.events <- activity.ModifierKeyEvent(50, modkey.Shift)
	h.waitSeen(t, 3)

	assert.Equal(t, []string{"hide"}, h.sink.snapshot())
	st := h.eng.Status()
	assert.Equal(t, "hidden", st.State)
	assert.Equal(t, uint64(2), st.Counters.ModifierOnly)
}

func TestNonIgnoredModifierHides(t *testing.T) {
	h := startEngine(t, modkey.NewIgnoreSet(modkey.Shift))

	h.source.events <- activity.ModifierKeyEvent(37, modkey.Ctrl)
	h.waitSeen(t, 1)

	assert.Equal(t, []string{"hide"}, h.sink.snapshot())
	assert.Equal(t, "hidden", h.eng.Status().State)
}

func TestSinkErrorRollsBackAndContinues(t *testing.T) {
	h := startEngine(t, modkey.IgnoreSet{})
	h.sink.mu.Lock()
	h.sink.hideErr = errors.New("xfixes request failed")
	h.sink.mu.Unlock()

	h.source.events <- activity.KeyEvent(38)
	h.waitSeen(t, 1)

	st := h.eng.Status()
	assert.Equal(t, "visible", st.State, "failed hide must leave state visible")
	require.Eventually(t, func() bool {
		return h.eng.Status().Counters.SinkErrors == 1
	}, 2*time.Second, time.Millisecond)

	// Sink recovers: next typing hides.
	h.sink.mu.Lock()
	h.sink.hideErr = nil
	h.sink.mu.Unlock()
	h.source.events <- activity.KeyEvent(38)
	h.waitSeen(t, 2)
	require.Eventually(t, func() bool {
		return h.eng.Status().State == "hidden"
	}, 2*time.Second, time.Millisecond)
}

func TestPersistentSinkFailureIsFatal(t *testing.T) {
	h := startEngine(t, modkey.IgnoreSet{})
	h.sink.mu.Lock()
	h.sink.hideErr = errors.New("connection lost")
	h.sink.mu.Unlock()

	for i := 0; i < maxConsecutiveSinkErrors; i++ {
		h.source.events <- activity.KeyEvent(38)
	}

	err := h.wait(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink failing persistently")
}

func TestSourceErrorIsFatal(t *testing.T) {
	h := startEngine(t, modkey.IgnoreSet{})

	h.source.errs <- errors.New("display connection closed")

	err := h.wait(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input source")
}

func TestPauseRevealsAndSuppressesHiding(t *testing.T) {
	h := startEngine(t, modkey.IgnoreSet{})

	h.source.events <- activity.KeyEvent(38)
	h.waitSeen(t, 1)
	require.Equal(t, "hidden", h.eng.Status().State)

	require.NoError(t, h.eng.Pause())
	require.Eventually(t, func() bool {
		st := h.eng.Status()
		return st.Paused && st.State == "visible"
	}, 2*time.Second, time.Millisecond)

	// Typing while paused is counted but does not hide.
	h.source.events <- activity.KeyEvent(38)
	h.waitSeen(t, 2)
	assert.Equal(t, "visible", h.eng.Status().State)

	require.NoError(t, h.eng.Resume())
	require.Eventually(t, func() bool {
		return !h.eng.Status().Paused
	}, 2*time.Second, time.Millisecond)

	h.source.events <- activity.KeyEvent(38)
	h.waitSeen(t, 3)
	require.Eventually(t, func() bool {
		return h.eng.Status().State == "hidden"
	}, 2*time.Second, time.Millisecond)
}

func TestRevealCommand(t *testing.T) {
	h := startEngine(t, modkey.IgnoreSet{})

	h.source.events <- activity.KeyEvent(38)
	h.waitSeen(t, 1)

	require.NoError(t, h.eng.Reveal())
	require.Eventually(t, func() bool {
		return h.eng.Status().State == "visible"
	}, 2*time.Second, time.Millisecond)
	assert.False(t, h.eng.Status().Paused)
}

func TestShutdownRevealsPointer(t *testing.T) {
	h := startEngine(t, modkey.IgnoreSet{})

	h.source.events <- activity.KeyEvent(38)
	h.waitSeen(t, 1)
	require.Equal(t, "hidden", h.eng.Status().State)

	h.cancel()
	require.NoError(t, h.wait(t))
	assert.Equal(t, []string{"hide", "show"}, h.sink.snapshot())
}

func TestCommandsOnStoppedEngine(t *testing.T) {
	eng := New(
		newFakeSource(),
		activity.NewClassifier(modkey.IgnoreSet{}),
		visibility.NewController(&fakeSink{}),
		testLogger(t),
		nil,
	)
	assert.ErrorIs(t, eng.Pause(), ErrNotRunning)
	assert.ErrorIs(t, eng.Resume(), ErrNotRunning)
	assert.ErrorIs(t, eng.Reveal(), ErrNotRunning)
}

func TestStatusCounters(t *testing.T) {
	h := startEngine(t, modkey.NewIgnoreSet(modkey.Shift))

	h.source.events <- activity.KeyEvent(38)                       // typing, hide
	h.source.events <- activity.ModifierKeyEvent(50, modkey.Shift) // modifier-only
	h.source.events <- activity.MotionEvent(0, 0)                  // pointer, show
	h.source.events <- activity.ButtonEvent(1)                     // pointer
	h.waitSeen(t, 4)

	st := h.eng.Status()
	assert.Equal(t, uint64(4), st.Counters.EventsSeen)
	assert.Equal(t, uint64(1), st.Counters.Typing)
	assert.Equal(t, uint64(1), st.Counters.ModifierOnly)
	assert.Equal(t, uint64(2), st.Counters.Pointer)
	assert.Equal(t, uint64(1), st.Counters.Hides)
	assert.Equal(t, uint64(1), st.Counters.Shows)
	assert.Equal(t, "shift", st.IgnoreSet)
	assert.True(t, st.Running)
}

func TestStatusConcurrentWithStartup(t *testing.T) {
	// The control socket serves Status from its own goroutines while
	// Run is still starting up; everything Status reads must be
	// synchronized. Meaningful under the race detector.
	eng := New(
		newFakeSource(),
		activity.NewClassifier(modkey.IgnoreSet{}),
		visibility.NewController(&fakeSink{}),
		testLogger(t),
		metrics.New(),
	)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				eng.Status()
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = eng.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		st := eng.Status()
		return st.Running && st.Uptime > 0
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
	close(stop)
	wg.Wait()
}
