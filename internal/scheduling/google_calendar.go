package scheduling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleCalendar books meetings on a Google Calendar.
type GoogleCalendar struct {
	service    *calendar.Service
	calendarID string
}

// NewGoogleCalendar builds the calendar client. Pass option.WithCredentialsFile
// for a service account, or endpoint/client options in tests.
func NewGoogleCalendar(ctx context.Context, calendarID string, opts ...option.ClientOption) (*GoogleCalendar, error) {
	if calendarID == "" {
		calendarID = "primary"
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: create calendar service: %w", err)
	}
	return &GoogleCalendar{service: svc, calendarID: calendarID}, nil
}

func (g *GoogleCalendar) ListEvents(ctx context.Context, timeMin, timeMax time.Time) ([]BusyInterval, error) {
	var busy []BusyInterval
	call := g.service.Events.List(g.calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			if item.Status == "cancelled" || item.Transparency == "transparent" {
				continue
			}
			start, end, ok := eventBounds(item)
			if !ok {
				continue
			}
			busy = append(busy, BusyInterval{Start: start, End: end})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling: list calendar events: %w", err)
	}
	return busy, nil
}

// eventBounds reads timed and all-day events. All-day events block the whole
// day in the calendar's zone.
func eventBounds(item *calendar.Event) (time.Time, time.Time, bool) {
	if item.Start == nil || item.End == nil {
		return time.Time{}, time.Time{}, false
	}
	if item.Start.DateTime != "" && item.End.DateTime != "" {
		start, err1 := time.Parse(time.RFC3339, item.Start.DateTime)
		end, err2 := time.Parse(time.RFC3339, item.End.DateTime)
		if err1 != nil || err2 != nil {
			return time.Time{}, time.Time{}, false
		}
		return start, end, true
	}
	loc := time.UTC
	if item.Start.TimeZone != "" {
		if l, err := time.LoadLocation(item.Start.TimeZone); err == nil {
			loc = l
		}
	}
	start, err1 := time.ParseInLocation("2006-01-02", item.Start.Date, loc)
	end, err2 := time.ParseInLocation("2006-01-02", item.End.Date, loc)
	if err1 != nil || err2 != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, req EventRequest) (CalendarEvent, error) {
	event := &calendar.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start:       &calendar.EventDateTime{DateTime: req.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: req.End.Format(time.RFC3339)},
	}
	for _, email := range req.AttendeeEmails {
		if email != "" {
			event.Attendees = append(event.Attendees, &calendar.EventAttendee{Email: email})
		}
	}
	call := g.service.Events.Insert(g.calendarID, event)
	if req.CreateMeetLink {
		event.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             uuid.New().String(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
		call = call.ConferenceDataVersion(1)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return CalendarEvent{}, fmt.Errorf("scheduling: insert calendar event: %w", err)
	}
	out := CalendarEvent{
		ID:       created.Id,
		Start:    req.Start,
		End:      req.End,
		HTMLLink: created.HtmlLink,
		MeetLink: created.HangoutLink,
	}
	if out.MeetLink == "" && created.ConferenceData != nil {
		for _, ep := range created.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				out.MeetLink = ep.Uri
				break
			}
		}
	}
	return out, nil
}

func (g *GoogleCalendar) DeleteEvent(ctx context.Context, eventID string) error {
	err := g.service.Events.Delete(g.calendarID, eventID).Context(ctx).Do()
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return ErrEventNotFound
	}
	return fmt.Errorf("scheduling: delete calendar event: %w", err)
}
