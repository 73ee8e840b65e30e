package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bookingNow = time.Date(2025, 3, 12, 8, 0, 0, 0, brt)

func newTestBooker(cal Calendar, repo AppointmentRepository, opts ...BookerOption) *Booker {
	opts = append([]BookerOption{WithBookerClock(fixedClock(bookingNow))}, opts...)
	return NewBooker(cal, repo, testHours(), opts...)
}

type outcomeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomeCounter) ObserveBooking(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[outcome]++
}

func TestCreateMeeting_Books(t *testing.T) {
	cal := NewMemoryCalendar()
	repo := NewMemoryAppointmentRepository()
	obs := &outcomeCounter{}
	b := newTestBooker(cal, repo, WithBookingObserver(obs))

	start := time.Date(2025, 3, 13, 10, 0, 0, 0, brt)
	res := b.CreateMeeting(context.Background(), MeetingRequest{
		LeadID:    "lead-1",
		LeadPhone: "+5511999990000",
		LeadName:  "Ana",
		Company:   "Acme",
		Start:     start,
	})
	require.Equal(t, OutcomeBooked, res.Outcome, res.Reason)
	require.NotNil(t, res.Appointment)
	assert.NotEmpty(t, res.Appointment.CalendarEventID)
	assert.NotEmpty(t, res.Appointment.MeetLink)
	assert.Equal(t, time.Hour, res.Appointment.Duration)
	assert.Equal(t, 1, cal.Len())
	assert.Equal(t, 1, obs.counts["booked"])

	stored, err := repo.Get(context.Background(), res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, AppointmentScheduled, stored.Status)
}

func TestCreateMeeting_ConcurrentRequestsForSameSlot(t *testing.T) {
	cal := NewMemoryCalendar()
	repo := NewMemoryAppointmentRepository()
	b := newTestBooker(cal, repo)
	start := time.Date(2025, 3, 13, 14, 0, 0, 0, brt)

	const attempts = 8
	results := make([]BookingResult, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = b.CreateMeeting(context.Background(), MeetingRequest{LeadID: "lead", LeadPhone: "+55", Start: start})
		}(i)
	}
	wg.Wait()

	booked, conflicts := 0, 0
	for _, r := range results {
		switch r.Outcome {
		case OutcomeBooked:
			booked++
		case OutcomeConflict:
			conflicts++
			assert.NoError(t, r.Err)
		}
	}
	assert.Equal(t, 1, booked)
	assert.Equal(t, attempts-1, conflicts)
	assert.Equal(t, 1, cal.Len())
}

type takenRepo struct {
	*MemoryAppointmentRepository
}

func (takenRepo) Create(context.Context, *Appointment) error { return ErrSlotTaken }

func TestCreateMeeting_LosingDatabaseRaceReleasesEvent(t *testing.T) {
	cal := NewMemoryCalendar()
	b := newTestBooker(cal, takenRepo{NewMemoryAppointmentRepository()})

	res := b.CreateMeeting(context.Background(), MeetingRequest{LeadID: "lead", Start: time.Date(2025, 3, 13, 9, 0, 0, 0, brt)})
	assert.Equal(t, OutcomeConflict, res.Outcome)
	assert.Zero(t, cal.Len(), "event created for the lost slot is deleted")
}

func TestCreateMeeting_BusyAndInvalidSlots(t *testing.T) {
	cal := NewMemoryCalendar()
	cal.Block(time.Date(2025, 3, 13, 9, 30, 0, 0, brt), time.Date(2025, 3, 13, 10, 0, 0, 0, brt))
	b := newTestBooker(cal, NewMemoryAppointmentRepository())
	ctx := context.Background()

	busy := b.CreateMeeting(ctx, MeetingRequest{Start: time.Date(2025, 3, 13, 9, 0, 0, 0, brt)})
	assert.Equal(t, OutcomeConflict, busy.Outcome)

	past := b.CreateMeeting(ctx, MeetingRequest{Start: bookingNow.Add(-time.Hour)})
	assert.Equal(t, OutcomeConflict, past.Outcome)

	evening := b.CreateMeeting(ctx, MeetingRequest{Start: time.Date(2025, 3, 13, 17, 30, 0, 0, brt)})
	assert.Equal(t, OutcomeConflict, evening.Outcome)

	saturday := b.CreateMeeting(ctx, MeetingRequest{Start: time.Date(2025, 3, 15, 10, 0, 0, 0, brt)})
	assert.Equal(t, OutcomeConflict, saturday.Outcome)
}

func TestCreateMeeting_CalendarDown(t *testing.T) {
	cal := NewMemoryCalendar()
	cal.Err = errors.New("dial tcp: timeout")
	b := newTestBooker(cal, NewMemoryAppointmentRepository())

	res := b.CreateMeeting(context.Background(), MeetingRequest{Start: time.Date(2025, 3, 13, 9, 0, 0, 0, brt)})
	assert.Equal(t, OutcomeServiceUnavailable, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrCalendarUnavailable)
}

func TestCancelMeeting_Idempotent(t *testing.T) {
	cal := NewMemoryCalendar()
	repo := NewMemoryAppointmentRepository()
	b := newTestBooker(cal, repo)
	ctx := context.Background()

	res := b.CreateMeeting(ctx, MeetingRequest{LeadID: "lead", Start: time.Date(2025, 3, 13, 11, 0, 0, 0, brt)})
	require.Equal(t, OutcomeBooked, res.Outcome)

	require.NoError(t, b.CancelMeeting(ctx, res.Appointment.ID))
	require.NoError(t, b.CancelMeeting(ctx, res.Appointment.ID))
	assert.Zero(t, cal.Len())

	appt, err := b.Appointment(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, AppointmentCancelled, appt.Status)

	// the freed slot can be booked again
	again := b.CreateMeeting(ctx, MeetingRequest{LeadID: "other", Start: time.Date(2025, 3, 13, 11, 0, 0, 0, brt)})
	assert.Equal(t, OutcomeBooked, again.Outcome)

	assert.ErrorIs(t, b.CancelMeeting(ctx, "missing"), ErrAppointmentNotFound)
}

func TestCancelMeeting_EventAlreadyDeleted(t *testing.T) {
	cal := NewMemoryCalendar()
	b := newTestBooker(cal, NewMemoryAppointmentRepository())
	ctx := context.Background()

	res := b.CreateMeeting(ctx, MeetingRequest{Start: time.Date(2025, 3, 13, 15, 0, 0, 0, brt)})
	require.Equal(t, OutcomeBooked, res.Outcome)
	require.NoError(t, cal.DeleteEvent(ctx, res.Appointment.CalendarEventID))

	assert.NoError(t, b.CancelMeeting(ctx, res.Appointment.ID))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "booked", OutcomeBooked.String())
	assert.Equal(t, "conflict", OutcomeConflict.String())
	assert.Equal(t, "service_unavailable", OutcomeServiceUnavailable.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
