package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

var schedulingTracer = otel.Tracer("sdr.internal.scheduling")

// Outcome is the result variant of a booking attempt.
type Outcome int

const (
	OutcomeBooked Outcome = iota
	// OutcomeConflict means the slot is no longer free; offer alternatives.
	OutcomeConflict
	// OutcomeServiceUnavailable means the calendar or storage failed.
	OutcomeServiceUnavailable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBooked:
		return "booked"
	case OutcomeConflict:
		return "conflict"
	case OutcomeServiceUnavailable:
		return "service_unavailable"
	default:
		return "unknown"
	}
}

// MeetingRequest asks for a meeting with a lead at Start.
type MeetingRequest struct {
	LeadID    string
	LeadPhone string
	LeadName  string
	LeadEmail string
	Company   string
	Start     time.Time
	Duration  time.Duration
	Notes     string
}

// BookingResult reports how a booking attempt ended. Err is set only for
// OutcomeServiceUnavailable.
type BookingResult struct {
	Outcome     Outcome
	Appointment *Appointment
	Reason      string
	Err         error
}

// BookingObserver receives booking outcomes.
type BookingObserver interface {
	ObserveBooking(outcome string)
}

// Booker creates and cancels meetings against the calendar and the
// appointment repository.
type Booker struct {
	calendar Calendar
	repo     AppointmentRepository
	hours    BusinessHours
	now      func() time.Time
	logger   *logging.Logger
	observer BookingObserver
	locks    *slotLocks
}

// BookerOption customizes a Booker.
type BookerOption func(*Booker)

func WithBookerClock(now func() time.Time) BookerOption {
	return func(b *Booker) {
		if now != nil {
			b.now = now
		}
	}
}

func WithBookerLogger(logger *logging.Logger) BookerOption {
	return func(b *Booker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func WithBookingObserver(observer BookingObserver) BookerOption {
	return func(b *Booker) {
		b.observer = observer
	}
}

func NewBooker(calendar Calendar, repo AppointmentRepository, hours BusinessHours, opts ...BookerOption) *Booker {
	if calendar == nil {
		panic("scheduling: calendar required")
	}
	if repo == nil {
		panic("scheduling: appointment repository required")
	}
	b := &Booker{
		calendar: calendar,
		repo:     repo,
		hours:    hours,
		now:      time.Now,
		logger:   logging.Default(),
		locks:    newSlotLocks(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// CreateMeeting books req.Start if it is still free. Conflicts are reported
// through the result, never as errors.
func (b *Booker) CreateMeeting(ctx context.Context, req MeetingRequest) BookingResult {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.create_meeting")
	defer span.End()
	span.SetAttributes(
		attribute.String("sdr.lead_id", req.LeadID),
		attribute.String("sdr.slot_start", req.Start.UTC().Format(time.RFC3339)),
	)

	result := b.createMeeting(ctx, req)
	if result.Err != nil {
		span.RecordError(result.Err)
	}
	span.SetAttributes(attribute.String("sdr.booking_outcome", result.Outcome.String()))
	if b.observer != nil {
		b.observer.ObserveBooking(result.Outcome.String())
	}
	return result
}

func (b *Booker) createMeeting(ctx context.Context, req MeetingRequest) BookingResult {
	duration := req.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	start := req.Start
	end := start.Add(duration)

	if !start.After(b.now()) {
		return BookingResult{Outcome: OutcomeConflict, Reason: "horário já passou"}
	}
	if !b.hours.Contains(start, duration) {
		return BookingResult{Outcome: OutcomeConflict, Reason: "fora do horário comercial"}
	}

	unlock := b.locks.lock(start.UTC().Format(time.RFC3339))
	defer unlock()

	busy, err := b.calendar.ListEvents(ctx, start, end)
	if err != nil {
		b.logger.Warn("booking: calendar check failed", "start", start, "error", err)
		return unavailable(fmt.Errorf("%w: %v", ErrCalendarUnavailable, err))
	}
	if overlapsAny(busy, start, end) {
		return BookingResult{Outcome: OutcomeConflict, Reason: "horário ocupado na agenda"}
	}

	existing, err := b.repo.ListActiveOverlapping(ctx, start, end)
	if err != nil {
		return unavailable(fmt.Errorf("scheduling: check appointments: %w", err))
	}
	if len(existing) > 0 {
		return BookingResult{Outcome: OutcomeConflict, Reason: "horário já reservado"}
	}

	event, err := b.calendar.CreateEvent(ctx, EventRequest{
		Summary:        meetingSummary(req),
		Description:    meetingDescription(req),
		Start:          start,
		End:            end,
		AttendeeEmails: []string{req.LeadEmail},
		CreateMeetLink: true,
	})
	if err != nil {
		b.logger.Warn("booking: create event failed", "start", start, "error", err)
		return unavailable(fmt.Errorf("%w: %v", ErrCalendarUnavailable, err))
	}

	appt := &Appointment{
		LeadID:          req.LeadID,
		LeadPhone:       req.LeadPhone,
		LeadName:        req.LeadName,
		Start:           start,
		Duration:        duration,
		CalendarEventID: event.ID,
		HTMLLink:        event.HTMLLink,
		MeetLink:        event.MeetLink,
		Status:          AppointmentScheduled,
	}
	if err := b.repo.Create(ctx, appt); err != nil {
		b.releaseEvent(ctx, event.ID)
		if errors.Is(err, ErrSlotTaken) {
			b.logger.Info("booking: lost slot race", "start", start, "lead_id", req.LeadID)
			return BookingResult{Outcome: OutcomeConflict, Reason: "horário já reservado"}
		}
		return unavailable(fmt.Errorf("scheduling: persist appointment: %w", err))
	}

	b.logger.Info("meeting booked",
		"appointment_id", appt.ID,
		"lead_id", req.LeadID,
		"start", start,
	)
	return BookingResult{Outcome: OutcomeBooked, Appointment: appt}
}

func (b *Booker) releaseEvent(ctx context.Context, eventID string) {
	if err := b.calendar.DeleteEvent(ctx, eventID); err != nil && !errors.Is(err, ErrEventNotFound) {
		b.logger.Error("booking: failed to delete orphan event", "event_id", eventID, "error", err)
	}
}

func unavailable(err error) BookingResult {
	return BookingResult{Outcome: OutcomeServiceUnavailable, Reason: "agenda indisponível", Err: err}
}

// CancelMeeting cancels an appointment and removes its calendar event.
// Cancelling twice is a no-op.
func (b *Booker) CancelMeeting(ctx context.Context, appointmentID string) error {
	ctx, span := schedulingTracer.Start(ctx, "scheduling.cancel_meeting")
	defer span.End()
	span.SetAttributes(attribute.String("sdr.appointment_id", appointmentID))

	appt, err := b.repo.Get(ctx, appointmentID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if appt.Status == AppointmentCancelled {
		return nil
	}
	if appt.CalendarEventID != "" {
		if err := b.calendar.DeleteEvent(ctx, appt.CalendarEventID); err != nil && !errors.Is(err, ErrEventNotFound) {
			span.RecordError(err)
			return fmt.Errorf("scheduling: cancel meeting: %w", err)
		}
	}
	if err := b.repo.UpdateStatus(ctx, appointmentID, AppointmentCancelled); err != nil {
		span.RecordError(err)
		return fmt.Errorf("scheduling: cancel meeting: %w", err)
	}
	b.logger.Info("meeting cancelled", "appointment_id", appointmentID, "lead_id", appt.LeadID)
	return nil
}

// Appointment loads an appointment by id.
func (b *Booker) Appointment(ctx context.Context, id string) (*Appointment, error) {
	return b.repo.Get(ctx, id)
}

func meetingSummary(req MeetingRequest) string {
	who := strings.TrimSpace(req.LeadName)
	if req.Company != "" {
		if who != "" {
			who += " - "
		}
		who += req.Company
	}
	if who == "" {
		who = req.LeadPhone
	}
	return "Reunião de apresentação: " + who
}

func meetingDescription(req MeetingRequest) string {
	lines := []string{"Telefone: " + req.LeadPhone}
	if req.LeadEmail != "" {
		lines = append(lines, "Email: "+req.LeadEmail)
	}
	if req.Notes != "" {
		lines = append(lines, "", req.Notes)
	}
	return strings.Join(lines, "\n")
}

// slotLocks serializes booking attempts per slot within the process.
type slotLocks struct {
	mu    sync.Mutex
	locks map[string]*slotLock
}

type slotLock struct {
	mu   sync.Mutex
	refs int
}

func newSlotLocks() *slotLocks {
	return &slotLocks{locks: make(map[string]*slotLock)}
}

func (s *slotLocks) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &slotLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
