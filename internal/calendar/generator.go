package calendar

import (
	"time"

	"turnero/internal/models"
)

// Step returns the slot step in minutes for the window.
// In quota mode the window is divided into DailyQuota slots.
func Step(b *models.Business, w Window) int {
	if b.SlotMode == models.SlotModeQuota && b.DailyQuota > 0 {
		step := w.Minutes() / b.DailyQuota
		if step < 1 {
			step = 1
		}
		return step
	}
	if b.SlotMinutes > 0 {
		return b.SlotMinutes
	}
	return models.DefaultSlotMinutes
}

// GenerateSlots returns the ordered candidate slots of resource r on date.
// Slots starting before now are returned with Past set.
func GenerateSlots(b *models.Business, r *models.Resource, date time.Time, now time.Time) []models.Slot {
	w := ResolveWindow(b, r, date)
	if w.Closed {
		return nil
	}
	return slotsIn(w, Step(b, w), date, now)
}

func slotsIn(w Window, step int, date, now time.Time) []models.Slot {
	if step <= 0 {
		return nil
	}

	today := models.Day(now.In(date.Location()))
	day := models.Day(date)
	nowClock := models.ClockOf(now.In(date.Location()))

	slots := make([]models.Slot, 0, w.Minutes()/step)
	for cursor := w.Start; cursor.Add(step) <= w.End; cursor = cursor.Add(step) {
		past := day.Before(today) || (day.Equal(today) && cursor < nowClock)
		slots = append(slots, models.Slot{
			Start: cursor,
			End:   cursor.Add(step),
			Past:  past,
		})
	}
	return slots
}

// FindSlot returns the slot starting exactly at start.
func FindSlot(slots []models.Slot, start models.Clock) (models.Slot, bool) {
	for _, s := range slots {
		if s.Start == start {
			return s, true
		}
	}
	return models.Slot{}, false
}

// Dates lists every calendar day in [from, to].
func Dates(from, to time.Time) []time.Time {
	from, to = models.Day(from), models.Day(to)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
