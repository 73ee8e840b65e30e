package scheduling

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCalendar is an in-process Calendar for local mode and tests.
type MemoryCalendar struct {
	mu     sync.Mutex
	events map[string]CalendarEvent
	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryCalendar() *MemoryCalendar {
	return &MemoryCalendar{events: make(map[string]CalendarEvent)}
}

// Block adds a busy event without going through CreateEvent.
func (c *MemoryCalendar) Block(start, end time.Time) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.New().String()
	c.events[id] = CalendarEvent{ID: id, Start: start, End: end}
	return id
}

func (c *MemoryCalendar) ListEvents(_ context.Context, timeMin, timeMax time.Time) ([]BusyInterval, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	var busy []BusyInterval
	for _, ev := range c.events {
		if ev.Start.Before(timeMax) && ev.End.After(timeMin) {
			busy = append(busy, BusyInterval{Start: ev.Start, End: ev.End})
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

func (c *MemoryCalendar) CreateEvent(_ context.Context, req EventRequest) (CalendarEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return CalendarEvent{}, c.Err
	}
	if !req.End.After(req.Start) {
		return CalendarEvent{}, fmt.Errorf("scheduling: event end must be after start")
	}
	id := uuid.New().String()
	ev := CalendarEvent{
		ID:       id,
		Start:    req.Start,
		End:      req.End,
		HTMLLink: "https://calendar.local/event/" + id,
	}
	if req.CreateMeetLink {
		ev.MeetLink = "https://meet.local/" + id[:8]
	}
	c.events[id] = ev
	return ev, nil
}

func (c *MemoryCalendar) DeleteEvent(_ context.Context, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if _, ok := c.events[eventID]; !ok {
		return ErrEventNotFound
	}
	delete(c.events, eventID)
	return nil
}

// Len returns the number of stored events.
func (c *MemoryCalendar) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
