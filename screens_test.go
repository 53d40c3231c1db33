package quadrant

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestScreenSequencer(t *testing.T) {
	sequencer := NewScreenSequencer()

	assert.Equal(t, ScreenWelcome, sequencer.Current())
	assert.Equal(t, true, sequencer.AtStart())

	// clamped at the start
	assert.Equal(t, ScreenWelcome, sequencer.Handle(GesturePrevious))

	assert.Equal(t, ScreenMap, sequencer.Handle(GestureNext))
	assert.Equal(t, ScreenComment, sequencer.Handle(GestureNext))
	assert.Equal(t, ScreenResults, sequencer.Handle(GestureNext))
	assert.Equal(t, true, sequencer.AtEnd())

	// clamped at the end
	assert.Equal(t, ScreenResults, sequencer.Handle(GestureNext))

	assert.Equal(t, ScreenComment, sequencer.Handle(GesturePrevious))
}

func TestScreenSequencerJumpTo(t *testing.T) {
	sequencer := NewScreenSequencer()

	assert.Equal(t, true, sequencer.JumpTo(ScreenResults))
	assert.Equal(t, ScreenResults, sequencer.Current())

	assert.Equal(t, false, sequencer.JumpTo(Screen("lobby")))
	assert.Equal(t, ScreenResults, sequencer.Current())
}

func TestScreenSequencerCustomOrder(t *testing.T) {
	sequencer := NewScreenSequencerWithScreens([]Screen{ScreenMap, ScreenResults})

	assert.Equal(t, ScreenMap, sequencer.Current())
	assert.Equal(t, ScreenResults, sequencer.Handle(GestureNext))
	assert.Equal(t, ScreenResults, sequencer.Handle(GestureNext))
}
