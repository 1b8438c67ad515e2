package calendar

import (
	"testing"
	"time"

	"turnero/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-06-02 is a Monday.
var (
	monday    = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	tuesday   = monday.AddDate(0, 0, 1)
	wednesday = monday.AddDate(0, 0, 2)
	farPast   = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
)

func barbershop() *models.Business {
	return &models.Business{
		ID:          1,
		OpensAt:     models.NewClock(9, 0),
		ClosesAt:    models.NewClock(18, 0),
		SlotMode:    models.SlotModeFixed,
		SlotMinutes: 30,
	}
}

func TestGenerateSlotsScenario(t *testing.T) {
	b := barbershop()
	r := &models.Resource{ID: 1, BusinessID: 1, DaysOff: []time.Weekday{time.Monday}}

	assert.Empty(t, GenerateSlots(b, r, monday, farPast))

	slots := GenerateSlots(b, r, tuesday, farPast)
	require.Len(t, slots, 18)
	assert.Equal(t, "09:00", slots[0].Start.String())
	assert.Equal(t, "17:30", slots[17].Start.String())
	assert.Equal(t, "18:00", slots[17].End.String())
	for _, s := range slots {
		assert.False(t, s.Past)
	}
}

func TestDaysOffExclusion(t *testing.T) {
	b := barbershop()
	b.ClosedDays = []time.Weekday{time.Sunday}
	r := &models.Resource{DaysOff: []time.Weekday{time.Thursday}}

	for i := 0; i < 28; i++ {
		date := monday.AddDate(0, 0, i)
		slots := GenerateSlots(b, r, date, farPast)
		switch date.Weekday() {
		case time.Sunday, time.Thursday:
			assert.Empty(t, slots, date.Format(models.DateLayout))
		default:
			assert.NotEmpty(t, slots, date.Format(models.DateLayout))
		}
	}
}

func TestHalfDayTrim(t *testing.T) {
	b := barbershop()
	b.OpensAt, b.ClosesAt = models.NewClock(8, 0), models.NewClock(20, 0)
	r := &models.Resource{
		OpensAt:  models.NewClock(8, 0),
		ClosesAt: models.NewClock(20, 0),
		DaysOff:  []time.Weekday{time.Tuesday},
		HalfDay:  &models.HalfDayException{Weekday: time.Wednesday, Half: models.HalfMorning},
	}

	w := ResolveWindow(b, r, wednesday)
	assert.True(t, w.HalfDay)
	assert.Equal(t, "14:00", w.Start.String())
	assert.Equal(t, "20:00", w.End.String())

	for i := 0; i < 7; i++ {
		date := monday.AddDate(0, 0, i)
		if date.Weekday() == time.Wednesday || date.Weekday() == time.Tuesday {
			continue
		}
		other := ResolveWindow(b, r, date)
		assert.False(t, other.HalfDay)
		assert.Equal(t, "08:00", other.Start.String())
		assert.Equal(t, "20:00", other.End.String())
	}

	r.HalfDay.Half = models.HalfAfternoon
	w = ResolveWindow(b, r, wednesday)
	assert.Equal(t, "08:00", w.Start.String())
	assert.Equal(t, "14:00", w.End.String())
}

func TestHalfDayOnBusinessClosedDay(t *testing.T) {
	b := barbershop()
	b.ClosedDays = []time.Weekday{time.Wednesday}
	r := &models.Resource{HalfDay: &models.HalfDayException{Weekday: time.Wednesday, Half: models.HalfMorning}}

	assert.True(t, ResolveWindow(b, r, wednesday).Closed)
	assert.Empty(t, GenerateSlots(b, r, wednesday, farPast))
}

func TestHalfDayEmptyTrimFallsBack(t *testing.T) {
	b := barbershop()
	r := &models.Resource{
		OpensAt:  models.NewClock(9, 0),
		ClosesAt: models.NewClock(9, 1),
		HalfDay:  &models.HalfDayException{Weekday: time.Wednesday, Half: models.HalfMorning},
	}

	w := ResolveWindow(b, r, wednesday)
	assert.False(t, w.Closed)
	assert.True(t, w.HalfDayIgnored)
	assert.Equal(t, models.NewClock(9, 0), w.Start)
	assert.Equal(t, models.NewClock(9, 1), w.End)
}

func TestWindowContainment(t *testing.T) {
	b := barbershop()
	b.SlotMinutes = 45
	r := &models.Resource{OpensAt: models.NewClock(10, 0), ClosesAt: models.NewClock(13, 10)}

	w := ResolveWindow(b, r, tuesday)
	slots := GenerateSlots(b, r, tuesday, farPast)
	require.Len(t, slots, 4)
	for _, s := range slots {
		assert.True(t, w.Contains(s.Start, s.End), s.Start.String())
	}
	assert.Equal(t, "12:15", slots[3].Start.String())
	assert.Equal(t, slots, GenerateSlots(b, r, tuesday, farPast))
}

func TestQuotaMode(t *testing.T) {
	b := barbershop()
	b.SlotMode = models.SlotModeQuota
	b.DailyQuota = 6
	r := &models.Resource{}

	slots := GenerateSlots(b, r, tuesday, farPast)
	require.Len(t, slots, 6)
	assert.Equal(t, 90, slots[0].Minutes())
	assert.Equal(t, "16:30", slots[5].Start.String())
}

func TestPastSlotsAreMarked(t *testing.T) {
	b := barbershop()
	r := &models.Resource{}
	now := time.Date(2025, 6, 3, 10, 10, 0, 0, time.UTC)

	slots := GenerateSlots(b, r, tuesday, now)
	require.Len(t, slots, 18)
	assert.True(t, slots[0].Past)
	assert.True(t, slots[2].Past, "10:00 started before 10:10")
	assert.False(t, slots[3].Past)

	for _, s := range GenerateSlots(b, r, monday, now) {
		assert.True(t, s.Past)
	}
	for _, s := range GenerateSlots(b, r, wednesday, now) {
		assert.False(t, s.Past)
	}
}

func TestFindSlotAndDates(t *testing.T) {
	slots := GenerateSlots(barbershop(), &models.Resource{}, tuesday, farPast)

	s, ok := FindSlot(slots, models.NewClock(10, 30))
	assert.True(t, ok)
	assert.Equal(t, models.NewClock(11, 0), s.End)

	_, ok = FindSlot(slots, models.NewClock(10, 15))
	assert.False(t, ok)

	assert.Len(t, Dates(monday, wednesday), 3)
	assert.Empty(t, Dates(wednesday, monday))
}
