package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

const (
	DefaultDaysAhead = 5
	DefaultSlotCount = 3
	DefaultDuration  = time.Hour
	slotStep         = time.Hour
)

var weekdayNames = map[time.Weekday]string{
	time.Sunday:    "Domingo",
	time.Monday:    "Segunda-feira",
	time.Tuesday:   "Terça-feira",
	time.Wednesday: "Quarta-feira",
	time.Thursday:  "Quinta-feira",
	time.Friday:    "Sexta-feira",
	time.Saturday:  "Sábado",
}

// WeekdayName returns the pt-BR name of d.
func WeekdayName(d time.Weekday) string {
	return weekdayNames[d]
}

// CandidateSlot is a free meeting time offered to a lead.
type CandidateSlot struct {
	Start   time.Time
	End     time.Time
	Display string
	Weekday string
}

// Finder computes free slots from the calendar and business hours.
type Finder struct {
	calendar Calendar
	hours    BusinessHours
	now      func() time.Time
	logger   *logging.Logger
}

// FinderOption customizes a Finder.
type FinderOption func(*Finder)

// WithClock overrides the time source.
func WithClock(now func() time.Time) FinderOption {
	return func(f *Finder) {
		if now != nil {
			f.now = now
		}
	}
}

// WithFinderLogger sets the logger.
func WithFinderLogger(logger *logging.Logger) FinderOption {
	return func(f *Finder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func NewFinder(calendar Calendar, hours BusinessHours, opts ...FinderOption) *Finder {
	if calendar == nil {
		panic("scheduling: calendar required")
	}
	f := &Finder{
		calendar: calendar,
		hours:    hours,
		now:      time.Now,
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Hours returns the business hours the finder walks.
func (f *Finder) Hours() BusinessHours {
	return f.hours
}

// AvailableSlots returns up to count free slots of the given duration,
// earliest first. The search starts one hour from now, rounded up to the
// next full hour, and spans daysAhead days.
func (f *Finder) AvailableSlots(ctx context.Context, daysAhead, count int, duration time.Duration) ([]CandidateSlot, error) {
	if daysAhead <= 0 {
		daysAhead = DefaultDaysAhead
	}
	if count <= 0 {
		count = DefaultSlotCount
	}
	if duration <= 0 {
		duration = DefaultDuration
	}

	loc := f.hours.location()
	now := f.now().In(loc)
	searchStart := roundUpToHour(now.Add(time.Hour), loc)
	searchEnd := searchStart.Add(time.Duration(daysAhead) * 24 * time.Hour)

	busy, err := f.calendar.ListEvents(ctx, searchStart, searchEnd)
	if err != nil {
		f.logger.Warn("calendar list failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCalendarUnavailable, err)
	}

	slots := make([]CandidateSlot, 0, count)
	for day := startOfDay(searchStart, loc); day.Before(searchEnd); day = day.AddDate(0, 0, 1) {
		if !f.hours.IsWorkDay(day.Weekday()) {
			continue
		}
		y, m, d := day.Date()
		workEnd := time.Date(y, m, d, f.hours.EndHour, 0, 0, 0, loc)
		for cs := time.Date(y, m, d, f.hours.StartHour, 0, 0, 0, loc); cs.Before(workEnd); cs = cs.Add(slotStep) {
			ce := cs.Add(duration)
			if ce.After(workEnd) {
				break
			}
			if cs.Before(searchStart) {
				continue
			}
			if !cs.Before(searchEnd) {
				return slots, nil
			}
			if overlapsAny(busy, cs, ce) {
				continue
			}
			slots = append(slots, NewCandidateSlot(cs, duration, now))
			if len(slots) == count {
				return slots, nil
			}
		}
	}
	return slots, nil
}

// NewCandidateSlot builds a slot with its pt-BR display label relative to now.
func NewCandidateSlot(start time.Time, duration time.Duration, now time.Time) CandidateSlot {
	loc := now.Location()
	local := start.In(loc)
	return CandidateSlot{
		Start:   local,
		End:     local.Add(duration),
		Display: DisplayLabel(local, now),
		Weekday: WeekdayName(local.Weekday()),
	}
}

// DisplayLabel renders start as "Hoje às 14:00", "Amanhã às 10:00" or
// "Quinta-feira às 09:00", in now's location.
func DisplayLabel(start, now time.Time) string {
	loc := now.Location()
	local := start.In(loc)
	days := int(startOfDay(local, loc).Sub(startOfDay(now, loc)).Hours()+12) / 24
	clock := local.Format("15:04")
	switch days {
	case 0:
		return "Hoje às " + clock
	case 1:
		return "Amanhã às " + clock
	}
	if days > 6 {
		return fmt.Sprintf("%s (%s) às %s", WeekdayName(local.Weekday()), local.Format("02/01"), clock)
	}
	return WeekdayName(local.Weekday()) + " às " + clock
}
