package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var brt = time.FixedZone("BRT", -3*60*60)

func testHours() BusinessHours {
	return BusinessHours{
		Location:  brt,
		StartHour: 9,
		EndHour:   18,
		WorkDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func starts(slots []CandidateSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Start.In(brt).Format("Mon 15:04")
	}
	return out
}

func TestAvailableSlots_RoundsSearchStartUp(t *testing.T) {
	// Wednesday 15:22 -> search starts 16:22 rounded to 17:00
	now := time.Date(2025, 3, 12, 15, 22, 0, 0, brt)
	f := NewFinder(NewMemoryCalendar(), testHours(), WithClock(fixedClock(now)))

	slots, err := f.AvailableSlots(context.Background(), 5, 3, time.Hour)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, []string{"Wed 17:00", "Thu 09:00", "Thu 10:00"}, starts(slots))
	assert.Equal(t, "Hoje às 17:00", slots[0].Display)
	assert.Equal(t, "Amanhã às 09:00", slots[1].Display)
	assert.Equal(t, "Quinta-feira", slots[1].Weekday)
	assert.Equal(t, slots[0].Start.Add(time.Hour), slots[0].End)
}

func TestAvailableSlots_ExactHourIsKept(t *testing.T) {
	now := time.Date(2025, 3, 12, 15, 0, 0, 0, brt)
	f := NewFinder(NewMemoryCalendar(), testHours(), WithClock(fixedClock(now)))

	slots, err := f.AvailableSlots(context.Background(), 5, 1, time.Hour)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "Wed 16:00", starts(slots)[0])
}

func TestAvailableSlots_TomorrowAfterBusyMorning(t *testing.T) {
	now := time.Date(2025, 3, 12, 20, 0, 0, 0, brt)
	cal := NewMemoryCalendar()
	cal.Block(time.Date(2025, 3, 13, 9, 0, 0, 0, brt), time.Date(2025, 3, 13, 10, 0, 0, 0, brt))
	f := NewFinder(cal, testHours(), WithClock(fixedClock(now)))

	slots, err := f.AvailableSlots(context.Background(), 5, 3, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, slots)
	assert.Equal(t, "Amanhã às 10:00", slots[0].Display)
}

func TestAvailableSlots_NeverOverlapsBusyIntervals(t *testing.T) {
	now := time.Date(2025, 3, 12, 6, 0, 0, 0, brt)
	cal := NewMemoryCalendar()
	busy := []BusyInterval{
		{Start: time.Date(2025, 3, 12, 9, 30, 0, 0, brt), End: time.Date(2025, 3, 12, 10, 30, 0, 0, brt)},
		{Start: time.Date(2025, 3, 12, 11, 0, 0, 0, brt), End: time.Date(2025, 3, 12, 12, 0, 0, 0, brt)},
	}
	for _, b := range busy {
		cal.Block(b.Start, b.End)
	}
	f := NewFinder(cal, testHours(), WithClock(fixedClock(now)))

	slots, err := f.AvailableSlots(context.Background(), 5, 20, time.Hour)
	require.NoError(t, err)
	require.Len(t, slots, 20)
	for _, s := range slots {
		assert.False(t, overlapsAny(busy, s.Start, s.End), "slot %s overlaps a busy interval", s.Start)
		assert.Zero(t, s.Start.Minute())
		assert.True(t, testHours().Contains(s.Start, time.Hour))
	}
	// 12:00 touches the end of the 11:00 event and is free
	assert.Equal(t, []string{"Wed 12:00", "Wed 13:00"}, starts(slots[:2]))
}

func TestAvailableSlots_SkipsWeekendAndRespectsWorkEnd(t *testing.T) {
	// Friday 16:30 -> search start 18:00, which is past work end
	now := time.Date(2025, 3, 14, 16, 30, 0, 0, brt)
	f := NewFinder(NewMemoryCalendar(), testHours(), WithClock(fixedClock(now)))

	slots, err := f.AvailableSlots(context.Background(), 5, 2, 90*time.Minute)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "Segunda-feira às 09:00", slots[0].Display)
	assert.Equal(t, time.Monday, slots[0].Start.Weekday())

	late, err := f.AvailableSlots(context.Background(), 3, 50, 90*time.Minute)
	require.NoError(t, err)
	for _, s := range late {
		assert.LessOrEqual(t, s.End.In(brt).Hour()*60+s.End.In(brt).Minute(), 18*60)
	}
}

func TestAvailableSlots_CalendarFailure(t *testing.T) {
	cal := NewMemoryCalendar()
	cal.Err = errors.New("503 backend error")
	f := NewFinder(cal, testHours(), WithClock(fixedClock(time.Date(2025, 3, 12, 9, 0, 0, 0, brt))))

	_, err := f.AvailableSlots(context.Background(), 5, 3, time.Hour)
	assert.ErrorIs(t, err, ErrCalendarUnavailable)
}

func TestDisplayLabel(t *testing.T) {
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, brt) // Monday
	assert.Equal(t, "Hoje às 14:00", DisplayLabel(time.Date(2025, 3, 10, 14, 0, 0, 0, brt), now))
	assert.Equal(t, "Amanhã às 10:00", DisplayLabel(time.Date(2025, 3, 11, 10, 0, 0, 0, brt), now))
	assert.Equal(t, "Quinta-feira às 09:00", DisplayLabel(time.Date(2025, 3, 13, 9, 0, 0, 0, brt), now))
	assert.Equal(t, "Terça-feira (18/03) às 09:00", DisplayLabel(time.Date(2025, 3, 18, 9, 0, 0, 0, brt), now))
}

func TestNewBusinessHours(t *testing.T) {
	h, err := NewBusinessHours("UTC", 9, 18, []time.Weekday{time.Monday})
	require.NoError(t, err)
	assert.True(t, h.IsWorkDay(time.Monday))
	assert.False(t, h.IsWorkDay(time.Sunday))

	_, err = NewBusinessHours("Mars/Olympus", 9, 18, []time.Weekday{time.Monday})
	assert.Error(t, err)
	_, err = NewBusinessHours("UTC", 18, 9, []time.Weekday{time.Monday})
	assert.Error(t, err)
	_, err = NewBusinessHours("UTC", 9, 18, nil)
	assert.Error(t, err)
}
