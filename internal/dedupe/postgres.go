package dedupe

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore keeps processed message ids in the processed_messages table.
// Rows are pruned by Prune; the table is unbounded otherwise.
type PostgresStore struct {
	pool     execer
	provider string
}

func NewPostgresStore(pool *pgxpool.Pool, provider string) *PostgresStore {
	if pool == nil {
		panic("dedupe: pgx pool required")
	}
	return newPostgresStoreWithExec(pool, provider)
}

func newPostgresStoreWithExec(exec execer, provider string) *PostgresStore {
	if exec == nil {
		panic("dedupe: exec required")
	}
	if provider == "" {
		provider = "whatsapp"
	}
	return &PostgresStore{pool: exec, provider: provider}
}

func (s *PostgresStore) MarkSeen(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return false, ErrEmptyID
	}
	query := `
		INSERT INTO processed_messages (provider, message_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, s.provider, messageID)
	if err != nil {
		return false, fmt.Errorf("dedupe: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *PostgresStore) Forget(ctx context.Context, messageID string) error {
	if messageID == "" {
		return ErrEmptyID
	}
	query := `DELETE FROM processed_messages WHERE provider = $1 AND message_id = $2`
	if _, err := s.pool.Exec(ctx, query, s.provider, messageID); err != nil {
		return fmt.Errorf("dedupe: forget: %w", err)
	}
	return nil
}

// Prune deletes ids older than the given age and returns how many went.
func (s *PostgresStore) Prune(ctx context.Context, olderThan string) (int64, error) {
	query := `DELETE FROM processed_messages WHERE provider = $1 AND processed_at < now() - $2::interval`
	ct, err := s.pool.Exec(ctx, query, s.provider, olderThan)
	if err != nil {
		return 0, fmt.Errorf("dedupe: prune: %w", err)
	}
	return ct.RowsAffected(), nil
}
