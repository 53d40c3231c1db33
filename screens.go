package quadrant

type Screen string

const (
	ScreenWelcome Screen = "welcome"
	ScreenMap     Screen = "map"
	ScreenComment Screen = "comment"
	ScreenResults Screen = "results"
)

type Gesture string

const (
	GestureNext     Gesture = "next"
	GesturePrevious Gesture = "previous"
)

// maps discrete swipe/scroll gestures to an ordered set of screens.
// clamped at both ends. independent of data state.
type ScreenSequencer struct {
	screens []Screen
	index   int
}

func NewScreenSequencer() *ScreenSequencer {
	return NewScreenSequencerWithScreens([]Screen{
		ScreenWelcome,
		ScreenMap,
		ScreenComment,
		ScreenResults,
	})
}

func NewScreenSequencerWithScreens(screens []Screen) *ScreenSequencer {
	return &ScreenSequencer{
		screens: screens,
	}
}

func (self *ScreenSequencer) Current() Screen {
	return self.screens[self.index]
}

func (self *ScreenSequencer) Index() int {
	return self.index
}

func (self *ScreenSequencer) AtStart() bool {
	return self.index == 0
}

func (self *ScreenSequencer) AtEnd() bool {
	return self.index == len(self.screens)-1
}

// applies one gesture. returns the screen after the gesture.
func (self *ScreenSequencer) Handle(gesture Gesture) Screen {
	switch gesture {
	case GestureNext:
		if self.index < len(self.screens)-1 {
			self.index += 1
		}
	case GesturePrevious:
		if 0 < self.index {
			self.index -= 1
		}
	}
	return self.Current()
}

// jumps directly to a named screen, if it is in the sequence
func (self *ScreenSequencer) JumpTo(screen Screen) bool {
	for i, s := range self.screens {
		if s == screen {
			self.index = i
			return true
		}
	}
	return false
}
