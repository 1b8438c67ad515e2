package availability

import (
	"turnero/internal/models"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd models.Clock) bool {
	return aStart < bEnd && aEnd > bStart
}

// Resolve overlays existing appointments on the candidate slots.
// duration is the requested service length; zero or less uses each slot's own length.
// windowEnd bounds where a service may finish.
func Resolve(slots []models.Slot, existing []*models.Appointment, duration int, windowEnd models.Clock) []models.SlotStatus {
	out := make([]models.SlotStatus, 0, len(slots))
	for _, slot := range slots {
		end := slot.End
		if duration > 0 {
			end = slot.Start.Add(duration)
		}

		status := models.SlotStatus{Slot: slot, State: models.SlotFree}
		for _, appt := range existing {
			if appt == nil || !appt.IsActive() || !Overlaps(slot.Start, end, appt.Start, appt.End) {
				continue
			}
			if appt.Blocked {
				status.State = models.SlotBlocked
				status.Appointment = appt
				break
			}
			if status.State != models.SlotOccupied {
				status.State = models.SlotOccupied
				status.Appointment = appt
			}
		}

		if status.State == models.SlotFree {
			switch {
			case slot.Past:
				status.State = models.SlotPast
			case end > windowEnd:
				status.State = models.SlotNoFit
			}
		}
		out = append(out, status)
	}
	return out
}

// FindConflict returns the first active appointment overlapping candidate on
// the same resource and date, or nil.
func FindConflict(existing []*models.Appointment, candidate *models.Appointment) *models.Appointment {
	for _, appt := range existing {
		if appt == nil || !appt.IsActive() || appt.ID == candidate.ID {
			continue
		}
		if appt.ResourceID != candidate.ResourceID || !sameDay(appt, candidate) {
			continue
		}
		if Overlaps(candidate.Start, candidate.End, appt.Start, appt.End) {
			return appt
		}
	}
	return nil
}

// FreeCount returns the number of selectable statuses.
func FreeCount(statuses []models.SlotStatus) int {
	n := 0
	for _, s := range statuses {
		if s.Selectable() {
			n++
		}
	}
	return n
}

func sameDay(a, b *models.Appointment) bool {
	return a.Date.Format(models.DateLayout) == b.Date.Format(models.DateLayout)
}
