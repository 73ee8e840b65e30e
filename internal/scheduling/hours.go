package scheduling

import (
	"fmt"
	"time"
)

// BusinessHours bounds when meetings can happen, in the business location.
type BusinessHours struct {
	Location  *time.Location
	StartHour int
	EndHour   int
	WorkDays  []time.Weekday
}

// DefaultBusinessHours is Monday to Friday, 09:00 to 18:00 in São Paulo.
func DefaultBusinessHours() BusinessHours {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		loc = time.FixedZone("BRT", -3*60*60)
	}
	return BusinessHours{
		Location:  loc,
		StartHour: 9,
		EndHour:   18,
		WorkDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

// NewBusinessHours validates and builds business hours for the named IANA zone.
func NewBusinessHours(timezone string, startHour, endHour int, workDays []time.Weekday) (BusinessHours, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("scheduling: load timezone %q: %w", timezone, err)
	}
	if startHour < 0 || endHour > 24 || startHour >= endHour {
		return BusinessHours{}, fmt.Errorf("scheduling: invalid work hours %d-%d", startHour, endHour)
	}
	if len(workDays) == 0 {
		return BusinessHours{}, fmt.Errorf("scheduling: at least one work day required")
	}
	return BusinessHours{Location: loc, StartHour: startHour, EndHour: endHour, WorkDays: workDays}, nil
}

func (h BusinessHours) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

// IsWorkDay reports whether d is a configured work day.
func (h BusinessHours) IsWorkDay(d time.Weekday) bool {
	for _, wd := range h.WorkDays {
		if wd == d {
			return true
		}
	}
	return false
}

// Contains reports whether [start, start+duration) fits inside one work day.
func (h BusinessHours) Contains(start time.Time, duration time.Duration) bool {
	local := start.In(h.location())
	if !h.IsWorkDay(local.Weekday()) {
		return false
	}
	y, m, d := local.Date()
	open := time.Date(y, m, d, h.StartHour, 0, 0, 0, h.location())
	closing := time.Date(y, m, d, h.EndHour, 0, 0, 0, h.location())
	return !local.Before(open) && !local.Add(duration).After(closing)
}

// roundUpToHour returns t when it is already on the hour, otherwise the next
// full hour in loc.
func roundUpToHour(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	if local.Minute() == 0 && local.Second() == 0 && local.Nanosecond() == 0 {
		return local
	}
	y, m, d := local.Date()
	return time.Date(y, m, d, local.Hour(), 0, 0, 0, loc).Add(time.Hour)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
