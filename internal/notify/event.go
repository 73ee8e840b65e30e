package notify

import (
	"context"
	"time"
)

// EventType names a lead lifecycle event.
type EventType string

const (
	EventLeadCreated        EventType = "lead_created"
	EventLeadQualified      EventType = "lead_qualified"
	EventLeadLost           EventType = "lead_lost"
	EventMeetingBooked      EventType = "meeting_booked"
	EventMeetingCancelled   EventType = "meeting_cancelled"
	EventExtractionFallback EventType = "extraction_fallback"
)

// Payload carries the facts about the lead at the time of the event.
type Payload struct {
	LeadID       string            `json:"lead_id"`
	Phone        string            `json:"phone"`
	Name         string            `json:"name,omitempty"`
	Company      string            `json:"company,omitempty"`
	Score        int               `json:"score,omitempty"`
	Temperature  string            `json:"temperature,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	MeetingStart time.Time         `json:"meeting_start,omitempty"`
	MeetLink     string            `json:"meet_link,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
}

// Sink receives lead events. Notify never blocks on delivery and never
// fails the caller.
type Sink interface {
	Notify(ctx context.Context, eventType EventType, payload Payload)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Notify(context.Context, EventType, Payload) {}
