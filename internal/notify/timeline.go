package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TimelineEntry is one recorded lead event.
type TimelineEntry struct {
	ID        string
	LeadID    string
	Type      EventType
	Payload   Payload
	CreatedAt time.Time
}

// TimelineWriter appends events to the lead's timeline.
type TimelineWriter interface {
	Append(ctx context.Context, eventType EventType, payload Payload) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresTimeline writes lead_timeline rows.
type PostgresTimeline struct {
	db execer
}

func NewPostgresTimeline(pool *pgxpool.Pool) *PostgresTimeline {
	if pool == nil {
		panic("notify: pgx pool required")
	}
	return &PostgresTimeline{db: pool}
}

func newPostgresTimelineWithExec(db execer) *PostgresTimeline {
	return &PostgresTimeline{db: db}
}

func (t *PostgresTimeline) Append(ctx context.Context, eventType EventType, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: encode timeline payload: %w", err)
	}
	query := `
		INSERT INTO lead_timeline (id, lead_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := t.db.Exec(ctx, query, uuid.New(), payload.LeadID, string(eventType), data); err != nil {
		return fmt.Errorf("notify: insert timeline entry: %w", err)
	}
	return nil
}

// MemoryTimeline keeps entries in process memory.
type MemoryTimeline struct {
	mu      sync.Mutex
	entries []TimelineEntry
}

func NewMemoryTimeline() *MemoryTimeline {
	return &MemoryTimeline{}
}

func (t *MemoryTimeline) Append(_ context.Context, eventType EventType, payload Payload) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, TimelineEntry{
		ID:        uuid.New().String(),
		LeadID:    payload.LeadID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// Entries returns a copy of the recorded entries for leadID, or all entries
// when leadID is empty.
func (t *MemoryTimeline) Entries(leadID string) []TimelineEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []TimelineEntry
	for _, e := range t.entries {
		if leadID == "" || e.LeadID == leadID {
			out = append(out, e)
		}
	}
	return out
}
