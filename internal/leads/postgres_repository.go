package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/sdr-ai-platform/internal/qualification"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database. History rows
// live in lead_messages and are loaded with the lead.
type PostgresRepository struct {
	pool pgQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q pgQuerier) *PostgresRepository {
	if q == nil {
		panic("leads: querier required")
	}
	return &PostgresRepository{pool: q}
}

const selectLeadColumns = `
	SELECT id, phone, name, company, email, source, status, temperature, score, qualification, created_at, updated_at
	FROM leads
`

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, phone, name, source, status, temperature, score)
		VALUES ($1, $2, $3, $4, $5, $6, 0)
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	if err := r.pool.QueryRow(ctx, query,
		id,
		req.Phone,
		req.Name,
		req.Source,
		string(StatusNew),
		string(qualification.TemperatureCold),
	).Scan(&createdAt, &updatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrLeadExists
		}
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	return &Lead{
		ID:          id.String(),
		Phone:       req.Phone,
		Name:        req.Name,
		Source:      req.Source,
		Status:      StatusNew,
		Temperature: qualification.TemperatureCold,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	return r.getOne(ctx, selectLeadColumns+`WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*Lead, error) {
	return r.getOne(ctx, selectLeadColumns+`WHERE phone = $1`, phone)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*Lead, error) {
	lead, err := scanLead(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	history, err := r.loadHistory(ctx, lead.ID)
	if err != nil {
		return nil, err
	}
	lead.History = history
	return lead, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead        Lead
		status      string
		temperature string
		qualJSON    []byte
	)
	if err := row.Scan(
		&lead.ID,
		&lead.Phone,
		&lead.Name,
		&lead.Company,
		&lead.Email,
		&lead.Source,
		&status,
		&temperature,
		&lead.Score,
		&qualJSON,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("leads: lead %s: %w", lead.ID, err)
	}
	lead.Status = parsed
	lead.Temperature = qualification.ParseTemperature(temperature)
	if len(qualJSON) > 0 && string(qualJSON) != "null" {
		var data qualification.Data
		if err := json.Unmarshal(qualJSON, &data); err != nil {
			return nil, fmt.Errorf("leads: decode qualification: %w", err)
		}
		lead.Qualification = &data
	}
	return &lead, nil
}

func (r *PostgresRepository) loadHistory(ctx context.Context, leadID string) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role, content, created_at
		FROM lead_messages
		WHERE lead_id = $1
		ORDER BY created_at, id
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("leads: load history: %w", err)
	}
	defer rows.Close()

	var history []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("leads: scan history: %w", err)
		}
		history = append(history, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: iterate history: %w", err)
	}
	return history, nil
}

// Update writes only the fields set in update.
func (r *PostgresRepository) Update(ctx context.Context, id string, update Update) error {
	if update.IsEmpty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Name != nil {
		add("name", *update.Name)
	}
	if update.Company != nil {
		add("company", *update.Company)
	}
	if update.Email != nil {
		add("email", *update.Email)
	}
	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.Temperature != nil {
		add("temperature", string(*update.Temperature))
	}
	if update.Score != nil {
		add("score", *update.Score)
	}
	if update.Qualification != nil {
		data, err := json.Marshal(update.Qualification)
		if err != nil {
			return fmt.Errorf("leads: encode qualification: %w", err)
		}
		add("qualification", data)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE leads SET %s, updated_at = now() WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("leads: update failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func (r *PostgresRepository) AppendMessage(ctx context.Context, leadID, role, content string) error {
	query := `
		INSERT INTO lead_messages (lead_id, role, content)
		VALUES ($1, $2, $3)
	`
	if _, err := r.pool.Exec(ctx, query, leadID, role, content); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrLeadNotFound
		}
		return fmt.Errorf("leads: append message: %w", err)
	}
	return nil
}
