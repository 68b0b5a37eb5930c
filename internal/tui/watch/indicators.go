package watch

import (
	"strings"
	"time"
)

// activityWindow is how long the activity meter takes to fade out.
const activityWindow = 10 * time.Second

// Activity is a five-dot meter that fills on each event and drains over
// activityWindow.
type Activity struct {
	last  time.Time
	count int
}

func (a *Activity) OnEvent(at time.Time) {
	a.last = at
	a.count++
}

// Dots returns how many dots are lit at now.
func (a Activity) Dots(now time.Time) int {
	if a.last.IsZero() {
		return 0
	}
	elapsed := now.Sub(a.last)
	if elapsed >= activityWindow {
		return 0
	}
	step := activityWindow / 5
	return 5 - int(elapsed/step)
}

func (a Activity) Render(theme Theme, now time.Time) string {
	lit := a.Dots(now)
	var b strings.Builder
	for i := range 5 {
		if i < lit {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func (a Activity) Last() time.Time { return a.last }

func (a Activity) Count() int { return a.count }
