package visibility

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banishd/internal/activity"
	"banishd/internal/modkey"
)

// recordingSink records sink calls and optionally fails them.
type recordingSink struct {
	calls   []string
	hideErr error
	showErr error
}

func (s *recordingSink) Hide() error {
	if s.hideErr != nil {
		return s.hideErr
	}
	s.calls = append(s.calls, "hide")
	return nil
}

func (s *recordingSink) Show() error {
	if s.showErr != nil {
		return s.showErr
	}
	s.calls = append(s.calls, "show")
	return nil
}

func typing() activity.Event  { return activity.Event{Kind: activity.Typing} }
func moved() activity.Event   { return activity.Event{Kind: activity.Moved} }
func clicked() activity.Event { return activity.Event{Kind: activity.Clicked} }
func modifier() activity.Event {
	return activity.Event{Kind: activity.ModifierOnly, Modifier: modkey.Shift}
}

func TestInitialState(t *testing.T) {
	c := NewController(&recordingSink{})
	assert.Equal(t, Visible, c.State())
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name      string
		start     State
		event     activity.Event
		want      State
		wantCalls []string
	}{
		{"visible+typing hides", Visible, typing(), Hidden, []string{"hide"}},
		{"visible+modifier stays", Visible, modifier(), Visible, nil},
		{"visible+moved stays", Visible, moved(), Visible, nil},
		{"visible+clicked stays", Visible, clicked(), Visible, nil},
		{"hidden+typing stays", Hidden, typing(), Hidden, nil},
		{"hidden+modifier stays", Hidden, modifier(), Hidden, nil},
		{"hidden+moved shows", Hidden, moved(), Visible, []string{"show"}},
		{"hidden+clicked shows", Hidden, clicked(), Visible, []string{"show"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			c := NewController(sink)
			if tt.start == Hidden {
				require.NoError(t, c.Observe(typing()))
				sink.calls = nil
			}

			require.NoError(t, c.Observe(tt.event))
			assert.Equal(t, tt.want, c.State())
			assert.Equal(t, tt.wantCalls, sink.calls)
		})
	}
}

func TestSinkCalledOncePerEdge(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(sink)

	// Sustained typing: one hide, no matter how many events.
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Observe(typing()))
	}
	assert.Equal(t, []string{"hide"}, sink.calls)

	// Sustained motion: one show.
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Observe(moved()))
	}
	assert.Equal(t, []string{"hide", "show"}, sink.calls)
}

func TestNoFlickerWhileHidden(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(sink)
	require.NoError(t, c.Observe(typing()))
	sink.calls = nil

	// Modifier taps and more typing while hidden must not re-show.
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Observe(modifier()))
		require.NoError(t, c.Observe(typing()))
	}
	assert.Equal(t, Hidden, c.State())
	assert.Empty(t, sink.calls)
}

func TestHideErrorRollsBack(t *testing.T) {
	sinkErr := errors.New("connection broken")
	sink := &recordingSink{hideErr: sinkErr}
	c := NewController(sink)

	err := c.Observe(typing())
	require.Error(t, err)
	assert.ErrorIs(t, err, sinkErr)
	assert.Equal(t, Visible, c.State(), "failed hide must not flip state")

	// Once the sink recovers, the next typing event hides normally.
	sink.hideErr = nil
	require.NoError(t, c.Observe(typing()))
	assert.Equal(t, Hidden, c.State())
}

func TestShowErrorRollsBack(t *testing.T) {
	sinkErr := errors.New("connection broken")
	sink := &recordingSink{}
	c := NewController(sink)
	require.NoError(t, c.Observe(typing()))

	sink.showErr = sinkErr
	err := c.Observe(moved())
	require.Error(t, err)
	assert.ErrorIs(t, err, sinkErr)
	assert.Equal(t, Hidden, c.State(), "failed show must not flip state")
}

func TestLeftFoldDeterminism(t *testing.T) {
	// The final state is fully determined by the event history.
	seq := []activity.Event{
		typing(), typing(), modifier(), moved(), clicked(),
		typing(), modifier(), typing(), moved(), typing(),
	}

	// Reference fold over the transition table.
	fold := func(events []activity.Event) State {
		s := Visible
		for _, ev := range events {
			switch s {
			case Visible:
				if ev.Kind == activity.Typing {
					s = Hidden
				}
			case Hidden:
				if ev.Kind == activity.Moved || ev.Kind == activity.Clicked {
					s = Visible
				}
			}
		}
		return s
	}

	for n := 0; n <= len(seq); n++ {
		sink := &recordingSink{}
		c := NewController(sink)
		for _, ev := range seq[:n] {
			require.NoError(t, c.Observe(ev))
		}
		assert.Equal(t, fold(seq[:n]), c.State(), "prefix length %d", n)
	}
}

func TestReveal(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(sink)

	// No-op while visible.
	require.NoError(t, c.Reveal())
	assert.Empty(t, sink.calls)

	require.NoError(t, c.Observe(typing()))
	require.NoError(t, c.Reveal())
	assert.Equal(t, Visible, c.State())
	assert.Equal(t, []string{"hide", "show"}, sink.calls)
}

func TestRevealErrorRollsBack(t *testing.T) {
	sink := &recordingSink{}
	c := NewController(sink)
	require.NoError(t, c.Observe(typing()))

	sink.showErr = errors.New("gone")
	assert.Error(t, c.Reveal())
	assert.Equal(t, Hidden, c.State())
}
