package trader

import "time"

// Window describes when the market accepts orders. A start hour above the
// end hour wraps past midnight, e.g. 22..6.
type Window struct {
	StartHour int
	EndHour   int
	Weekdays  map[time.Weekday]struct{}
}

func NewWindow(startHour, endHour int, weekdays []int) Window {
	days := make(map[time.Weekday]struct{}, len(weekdays))
	for _, d := range weekdays {
		days[time.Weekday(d)] = struct{}{}
	}
	return Window{StartHour: startHour, EndHour: endHour, Weekdays: days}
}

// Contains reports whether t falls inside trading hours.
func (w Window) Contains(t time.Time) bool {
	if _, ok := w.Weekdays[t.Weekday()]; !ok {
		return false
	}
	h := t.Hour()
	if w.StartHour <= w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}
