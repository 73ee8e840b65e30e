package scheduling

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AppointmentStatus is the lifecycle state of a booked meeting.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentConfirmed AppointmentStatus = "CONFIRMED"
	AppointmentCancelled AppointmentStatus = "CANCELLED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentNoShow    AppointmentStatus = "NO_SHOW"
)

// ParseAppointmentStatus converts a stored status string.
func ParseAppointmentStatus(raw string) (AppointmentStatus, error) {
	switch s := AppointmentStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case AppointmentScheduled, AppointmentConfirmed, AppointmentCancelled, AppointmentCompleted, AppointmentNoShow:
		return s, nil
	}
	return "", fmt.Errorf("scheduling: invalid appointment status %q", raw)
}

// Active reports whether the appointment still holds its slot.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentScheduled || s == AppointmentConfirmed
}

// ReminderKind identifies which reminder was sent.
type ReminderKind string

const (
	Reminder24h ReminderKind = "24h"
	Reminder1h  ReminderKind = "1h"
)

// Appointment is a meeting booked with a lead.
type Appointment struct {
	ID              string
	LeadID          string
	LeadPhone       string
	LeadName        string
	Start           time.Time
	Duration        time.Duration
	CalendarEventID string
	HTMLLink        string
	MeetLink        string
	Status          AppointmentStatus
	Reminder24hSent bool
	Reminder1hSent  bool
	CreatedAt       time.Time
}

// End returns the end of the meeting.
func (a Appointment) End() time.Time {
	return a.Start.Add(a.Duration)
}

// AppointmentRepository persists appointments. Create must reject a second
// active appointment on an overlapping slot with ErrSlotTaken.
type AppointmentRepository interface {
	Create(ctx context.Context, appt *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, error)
	ListActiveOverlapping(ctx context.Context, start, end time.Time) ([]Appointment, error)
	ListUpcoming(ctx context.Context, from, to time.Time) ([]Appointment, error)
	UpdateStatus(ctx context.Context, id string, status AppointmentStatus) error
	MarkReminderSent(ctx context.Context, id string, kind ReminderKind) error
}

// MemoryAppointmentRepository keeps appointments in process memory.
type MemoryAppointmentRepository struct {
	mu    sync.Mutex
	items map[string]*Appointment
}

func NewMemoryAppointmentRepository() *MemoryAppointmentRepository {
	return &MemoryAppointmentRepository{items: make(map[string]*Appointment)}
}

func (r *MemoryAppointmentRepository) Create(_ context.Context, appt *Appointment) error {
	if appt == nil {
		return fmt.Errorf("scheduling: appointment required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.Status.Active() && existing.Start.Before(appt.End()) && existing.End().After(appt.Start) {
			return ErrSlotTaken
		}
	}
	if appt.ID == "" {
		appt.ID = uuid.New().String()
	}
	if appt.Status == "" {
		appt.Status = AppointmentScheduled
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	stored := *appt
	r.items[appt.ID] = &stored
	return nil
}

func (r *MemoryAppointmentRepository) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *appt
	return &out, nil
}

func (r *MemoryAppointmentRepository) ListActiveOverlapping(_ context.Context, start, end time.Time) ([]Appointment, error) {
	return r.filter(func(a *Appointment) bool {
		return a.Status.Active() && a.Start.Before(end) && a.End().After(start)
	}), nil
}

func (r *MemoryAppointmentRepository) ListUpcoming(_ context.Context, from, to time.Time) ([]Appointment, error) {
	return r.filter(func(a *Appointment) bool {
		return a.Status.Active() && !a.Start.Before(from) && a.Start.Before(to)
	}), nil
}

func (r *MemoryAppointmentRepository) filter(keep func(*Appointment) bool) []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.items {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (r *MemoryAppointmentRepository) UpdateStatus(_ context.Context, id string, status AppointmentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.items[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	appt.Status = status
	return nil
}

func (r *MemoryAppointmentRepository) MarkReminderSent(_ context.Context, id string, kind ReminderKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.items[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	switch kind {
	case Reminder24h:
		appt.Reminder24hSent = true
	case Reminder1h:
		appt.Reminder1hSent = true
	default:
		return fmt.Errorf("scheduling: unknown reminder kind %q", kind)
	}
	return nil
}
