package calendar

import (
	"time"

	"turnero/internal/models"
)

// Window is the effective working interval of a resource on one date.
type Window struct {
	Start  models.Clock
	End    models.Clock
	Closed bool

	// HalfDay is set when a half-day exception trimmed the window.
	HalfDay bool
	// HalfDayIgnored is set when the exception would leave an empty window
	// and the full window was kept instead.
	HalfDayIgnored bool
}

func (w Window) Minutes() int {
	if w.Closed {
		return 0
	}
	return int(w.End - w.Start)
}

func (w Window) Contains(start, end models.Clock) bool {
	return !w.Closed && start >= w.Start && end <= w.End
}

// ResolveWindow applies resource hours, merged days off and the half-day
// exception for the weekday of date.
func ResolveWindow(b *models.Business, r *models.Resource, date time.Time) Window {
	day := date.Weekday()
	if b.IsClosedOn(day) || r.IsOffOn(day) {
		return Window{Closed: true}
	}

	w := Window{Start: b.OpensAt, End: b.ClosesAt}
	if r.HasOwnHours() {
		w.Start, w.End = r.OpensAt, r.ClosesAt
	}
	if w.End <= w.Start {
		return Window{Closed: true}
	}

	if r.HalfDay == nil || r.HalfDay.Weekday != day {
		return w
	}

	half := models.Clock(w.Minutes() / 2)
	trimmed := w
	switch r.HalfDay.Half {
	case models.HalfMorning:
		trimmed.Start = w.End - half
	case models.HalfAfternoon:
		trimmed.End = w.Start + half
	default:
		return w
	}

	if trimmed.End <= trimmed.Start {
		w.HalfDayIgnored = true
		return w
	}
	trimmed.HalfDay = true
	return trimmed
}
