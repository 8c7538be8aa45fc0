package watch

import (
	"strings"
	"time"
)

// Ticker rotates on every clock tick. A frozen ticker means the UI loop
// stalled.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"◐", "◓", "◑", "◒"}}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

const spinnerDots = 5

// Spinner lights up when a capture arrives and fades over the following
// ten seconds.
type Spinner struct {
	dots      int
	lastEvent time.Time
}

func NewSpinner() Spinner {
	return Spinner{}
}

func (s *Spinner) OnCapture(at time.Time) {
	s.dots = spinnerDots
	s.lastEvent = at
}

// Decay dims the spinner by one dot for every two seconds of silence.
func (s *Spinner) Decay(now time.Time) {
	if s.dots == 0 {
		return
	}
	lit := spinnerDots - int(now.Sub(s.lastEvent)/(2*time.Second))
	if lit < 0 {
		lit = 0
	}
	if lit < s.dots {
		s.dots = lit
	}
}

func (s Spinner) Render(theme Theme) string {
	var result strings.Builder
	for i := range spinnerDots {
		if i < s.dots {
			result.WriteString(theme.TickerActive.Render("●"))
		} else {
			result.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return result.String()
}

func (s Spinner) LastEvent() time.Time {
	return s.lastEvent
}
