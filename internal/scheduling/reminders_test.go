package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[string][]string
	fail bool
}

func (s *recordingSender) SendText(_ context.Context, to, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return false
	}
	if s.sent == nil {
		s.sent = make(map[string][]string)
	}
	s.sent[to] = append(s.sent[to], text)
	return true
}

func TestReminderJob_RunOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAppointmentRepository()
	now := time.Date(2025, 3, 12, 9, 0, 0, 0, brt)

	soon := &Appointment{LeadPhone: "+5511000000001", LeadName: "Ana", Start: now.Add(45 * time.Minute), Duration: time.Hour, MeetLink: "https://meet.local/abc"}
	tomorrow := &Appointment{LeadPhone: "+5511000000002", Start: now.Add(20 * time.Hour), Duration: time.Hour}
	later := &Appointment{LeadPhone: "+5511000000003", Start: now.Add(48 * time.Hour), Duration: time.Hour}
	for _, a := range []*Appointment{soon, tomorrow, later} {
		require.NoError(t, repo.Create(ctx, a))
	}

	sender := &recordingSender{}
	job := NewReminderJob(repo, sender, brt, "", nil)
	job.now = fixedClock(now)

	sent, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, sender.sent["+5511000000001"], 1)
	assert.Contains(t, sender.sent["+5511000000001"][0], "Olá, Ana!")
	assert.Contains(t, sender.sent["+5511000000001"][0], "https://meet.local/abc")
	assert.Contains(t, sender.sent["+5511000000002"][0], "Amanhã às 05:00")
	assert.Empty(t, sender.sent["+5511000000003"])

	got, err := repo.Get(ctx, soon.ID)
	require.NoError(t, err)
	assert.True(t, got.Reminder1hSent)
	assert.True(t, got.Reminder24hSent)

	// a second sweep sends nothing new
	sent, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestReminderJob_UndeliveredIsRetried(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAppointmentRepository()
	now := time.Date(2025, 3, 12, 9, 0, 0, 0, brt)
	appt := &Appointment{LeadPhone: "+5511000000001", Start: now.Add(3 * time.Hour), Duration: time.Hour}
	require.NoError(t, repo.Create(ctx, appt))

	sender := &recordingSender{fail: true}
	job := NewReminderJob(repo, sender, brt, DefaultReminderSchedule, nil)
	job.now = fixedClock(now)

	sent, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	sender.fail = false
	sent, err = job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestReminderJob_StartRejectsBadSchedule(t *testing.T) {
	job := NewReminderJob(NewMemoryAppointmentRepository(), &recordingSender{}, brt, "not a cron", nil)
	assert.Error(t, job.Start(context.Background()))

	ok := NewReminderJob(NewMemoryAppointmentRepository(), &recordingSender{}, brt, "@every 1h", nil)
	require.NoError(t, ok.Start(context.Background()))
	ok.Stop()
}
