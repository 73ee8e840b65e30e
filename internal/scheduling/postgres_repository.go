package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAppointmentRepository stores appointments in Postgres. The
// appointments_active_slot_idx unique index on start_time (active rows only)
// arbitrates races between processes.
type PostgresAppointmentRepository struct {
	pool pgQuerier
	now  func() time.Time
}

// NewPostgresAppointmentRepository creates a repository backed by pgx pool.
func NewPostgresAppointmentRepository(pool *pgxpool.Pool) *PostgresAppointmentRepository {
	if pool == nil {
		panic("scheduling: pgx pool required")
	}
	return newPostgresAppointmentRepositoryWithQuerier(pool)
}

func newPostgresAppointmentRepositoryWithQuerier(q pgQuerier) *PostgresAppointmentRepository {
	if q == nil {
		panic("scheduling: querier required")
	}
	return &PostgresAppointmentRepository{pool: q, now: func() time.Time { return time.Now().UTC() }}
}

const selectAppointmentColumns = `
	SELECT id, lead_id, lead_phone, lead_name, start_time, duration_minutes, calendar_event_id,
	       html_link, meet_link, status, reminder_24h_sent, reminder_1h_sent, created_at
	FROM appointments
`

func (r *PostgresAppointmentRepository) Create(ctx context.Context, appt *Appointment) error {
	if appt == nil {
		return fmt.Errorf("scheduling: appointment required")
	}
	id := uuid.New()
	if appt.ID != "" {
		parsed, err := uuid.Parse(appt.ID)
		if err != nil {
			return fmt.Errorf("scheduling: invalid appointment id: %w", err)
		}
		id = parsed
	}
	status := appt.Status
	if status == "" {
		status = AppointmentScheduled
	}
	createdAt := appt.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	query := `
		INSERT INTO appointments (id, lead_id, lead_phone, lead_name, start_time, duration_minutes,
			calendar_event_id, html_link, meet_link, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := r.pool.Exec(ctx, query,
		toPGUUID(id),
		appt.LeadID,
		appt.LeadPhone,
		appt.LeadName,
		toPGTime(appt.Start.UTC()),
		int(appt.Duration/time.Minute),
		appt.CalendarEventID,
		appt.HTMLLink,
		appt.MeetLink,
		string(status),
		toPGTime(createdAt),
	); err != nil {
		var pgErr *pgconn.PgError
		// 23505 unique_violation, 23P01 exclusion_violation
		if errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01") {
			return ErrSlotTaken
		}
		return fmt.Errorf("scheduling: insert appointment: %w", err)
	}
	appt.ID = id.String()
	appt.Status = status
	appt.CreatedAt = createdAt
	return nil
}

func (r *PostgresAppointmentRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	appt, err := scanAppointment(r.pool.QueryRow(ctx, selectAppointmentColumns+`WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("scheduling: load appointment: %w", err)
	}
	return appt, nil
}

func (r *PostgresAppointmentRepository) ListActiveOverlapping(ctx context.Context, start, end time.Time) ([]Appointment, error) {
	return r.list(ctx, selectAppointmentColumns+`
		WHERE status IN ('SCHEDULED', 'CONFIRMED')
		  AND start_time < $2
		  AND start_time + make_interval(mins => duration_minutes) > $1
		ORDER BY start_time
	`, toPGTime(start.UTC()), toPGTime(end.UTC()))
}

func (r *PostgresAppointmentRepository) ListUpcoming(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	return r.list(ctx, selectAppointmentColumns+`
		WHERE status IN ('SCHEDULED', 'CONFIRMED')
		  AND start_time >= $1
		  AND start_time < $2
		ORDER BY start_time
	`, toPGTime(from.UTC()), toPGTime(to.UTC()))
}

func (r *PostgresAppointmentRepository) list(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling: list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scheduling: scan appointment: %w", err)
		}
		out = append(out, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scheduling: iterate appointments: %w", err)
	}
	return out, nil
}

func (r *PostgresAppointmentRepository) UpdateStatus(ctx context.Context, id string, status AppointmentStatus) error {
	ct, err := r.pool.Exec(ctx, `UPDATE appointments SET status = $1, updated_at = now() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("scheduling: update appointment status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PostgresAppointmentRepository) MarkReminderSent(ctx context.Context, id string, kind ReminderKind) error {
	var column string
	switch kind {
	case Reminder24h:
		column = "reminder_24h_sent"
	case Reminder1h:
		column = "reminder_1h_sent"
	default:
		return fmt.Errorf("scheduling: unknown reminder kind %q", kind)
	}
	ct, err := r.pool.Exec(ctx, `UPDATE appointments SET `+column+` = true, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("scheduling: mark reminder: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt            Appointment
		start, created  time.Time
		durationMinutes int
		status          string
	)
	if err := row.Scan(
		&appt.ID,
		&appt.LeadID,
		&appt.LeadPhone,
		&appt.LeadName,
		&start,
		&durationMinutes,
		&appt.CalendarEventID,
		&appt.HTMLLink,
		&appt.MeetLink,
		&status,
		&appt.Reminder24hSent,
		&appt.Reminder1hSent,
		&created,
	); err != nil {
		return nil, err
	}
	parsed, err := ParseAppointmentStatus(status)
	if err != nil {
		return nil, err
	}
	appt.Status = parsed
	appt.Start = start
	appt.Duration = time.Duration(durationMinutes) * time.Minute
	appt.CreatedAt = created
	return &appt, nil
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{
		Bytes: [16]byte(id),
		Valid: true,
	}
}

func toPGTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{
		Time:  t,
		Valid: true,
	}
}
