package scheduling

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCalendarUnavailable is returned when the calendar backend cannot be reached.
	ErrCalendarUnavailable = errors.New("scheduling: calendar unavailable")

	// ErrEventNotFound is returned by DeleteEvent when the event no longer exists.
	ErrEventNotFound = errors.New("scheduling: calendar event not found")

	// ErrSlotTaken is returned by appointment repositories when another active
	// appointment already holds the slot.
	ErrSlotTaken = errors.New("scheduling: slot already taken")

	// ErrAppointmentNotFound is returned when an appointment id is unknown.
	ErrAppointmentNotFound = errors.New("scheduling: appointment not found")
)

// BusyInterval is a half-open [Start, End) range occupied on the calendar.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) intersects the interval.
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && end.After(b.Start)
}

// EventRequest describes a calendar event to create.
type EventRequest struct {
	Summary        string
	Description    string
	Start          time.Time
	End            time.Time
	AttendeeEmails []string
	CreateMeetLink bool
}

// CalendarEvent is the created event as reported by the backend.
type CalendarEvent struct {
	ID       string
	Start    time.Time
	End      time.Time
	HTMLLink string
	MeetLink string
}

// Calendar is the external calendar the agent books meetings on.
type Calendar interface {
	// ListEvents returns busy intervals intersecting [timeMin, timeMax).
	ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]BusyInterval, error)
	CreateEvent(ctx context.Context, req EventRequest) (CalendarEvent, error)
	// DeleteEvent returns ErrEventNotFound when the event is already gone.
	DeleteEvent(ctx context.Context, eventID string) error
}

func overlapsAny(busy []BusyInterval, start, end time.Time) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
