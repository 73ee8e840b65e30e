package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

// DefaultReminderSchedule runs the reminder sweep every five minutes.
const DefaultReminderSchedule = "*/5 * * * *"

// TextSender delivers a chat message. It reports delivery and never errors.
type TextSender interface {
	SendText(ctx context.Context, to, text string) bool
}

// ReminderJob sends WhatsApp reminders 24 hours and 1 hour before each
// active appointment.
type ReminderJob struct {
	repo     AppointmentRepository
	sender   TextSender
	loc      *time.Location
	now      func() time.Time
	logger   *logging.Logger
	schedule string
	cron     *cron.Cron
}

func NewReminderJob(repo AppointmentRepository, sender TextSender, loc *time.Location, schedule string, logger *logging.Logger) *ReminderJob {
	if repo == nil {
		panic("scheduling: appointment repository required")
	}
	if sender == nil {
		panic("scheduling: sender required")
	}
	if loc == nil {
		loc = time.UTC
	}
	if schedule == "" {
		schedule = DefaultReminderSchedule
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderJob{
		repo:     repo,
		sender:   sender,
		loc:      loc,
		now:      time.Now,
		logger:   logger,
		schedule: schedule,
	}
}

// Start registers the sweep on a cron scheduler and starts it.
func (j *ReminderJob) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(j.loc))
	if _, err := c.AddFunc(j.schedule, func() {
		sent, err := j.RunOnce(ctx)
		if err != nil {
			j.logger.Error("reminder sweep failed", "error", err)
			return
		}
		if sent > 0 {
			j.logger.Info("reminder sweep completed", "sent", sent)
		}
	}); err != nil {
		return fmt.Errorf("scheduling: add reminder job: %w", err)
	}
	c.Start()
	j.cron = c
	j.logger.Info("reminder job started", "schedule", j.schedule)
	return nil
}

// Stop halts the scheduler and waits for a running sweep.
func (j *ReminderJob) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// RunOnce sends due reminders and returns how many were delivered.
func (j *ReminderJob) RunOnce(ctx context.Context) (int, error) {
	now := j.now()
	upcoming, err := j.repo.ListUpcoming(ctx, now, now.Add(24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("scheduling: list upcoming appointments: %w", err)
	}

	sent := 0
	for _, appt := range upcoming {
		until := appt.Start.Sub(now)
		var kind ReminderKind
		switch {
		case until <= time.Hour && !appt.Reminder1hSent:
			kind = Reminder1h
		case until > time.Hour && !appt.Reminder24hSent:
			kind = Reminder24h
		default:
			continue
		}
		if appt.LeadPhone == "" {
			continue
		}
		if !j.sender.SendText(ctx, appt.LeadPhone, reminderText(appt, kind, now, j.loc)) {
			j.logger.Warn("reminder not delivered", "appointment_id", appt.ID, "kind", kind)
			continue
		}
		if err := j.repo.MarkReminderSent(ctx, appt.ID, kind); err != nil {
			j.logger.Error("mark reminder sent failed", "appointment_id", appt.ID, "error", err)
			continue
		}
		if kind == Reminder1h && !appt.Reminder24hSent {
			// a late booking skips straight to the 1h reminder
			_ = j.repo.MarkReminderSent(ctx, appt.ID, Reminder24h)
		}
		sent++
	}
	return sent, nil
}

func reminderText(appt Appointment, kind ReminderKind, now time.Time, loc *time.Location) string {
	greeting := "Olá!"
	if appt.LeadName != "" {
		greeting = fmt.Sprintf("Olá, %s!", appt.LeadName)
	}
	when := DisplayLabel(appt.Start, now.In(loc))
	var text string
	if kind == Reminder1h {
		text = fmt.Sprintf("%s Nossa reunião começa em breve (%s).", greeting, appt.Start.In(loc).Format("15:04"))
	} else {
		text = fmt.Sprintf("%s Passando para lembrar da nossa reunião: %s.", greeting, when)
	}
	if appt.MeetLink != "" {
		text += " Link: " + appt.MeetLink
	}
	return text
}
