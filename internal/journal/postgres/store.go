package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"queuehive/internal/journal"
	"queuehive/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS token_transitions (
	transition_id UUID PRIMARY KEY,
	token_id BIGINT NOT NULL,
	token_number INT NOT NULL,
	service_id BIGINT NOT NULL,
	from_status TEXT NOT NULL DEFAULT '',
	to_status TEXT NOT NULL,
	source TEXT NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS token_transitions_service_idx ON token_transitions (service_id, observed_at);
CREATE INDEX IF NOT EXISTS token_transitions_token_idx ON token_transitions (token_id, observed_at);
`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and makes sure the journal table exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal connect: %w", err)
	}
	store := NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("journal schema: %w", err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, t journal.Transition) error {
	observedAt := t.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO token_transitions (transition_id, token_id, token_number, service_id, from_status, to_status, source, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.New(), t.TokenID, t.TokenNumber, t.ServiceID, string(t.From), string(t.To), string(t.Source), observedAt.UTC())
	return err
}

func (s *Store) ListTransitions(ctx context.Context, tokenID int64) ([]journal.Transition, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_id, token_number, service_id, from_status, to_status, source, observed_at
		FROM token_transitions
		WHERE token_id = $1
		ORDER BY observed_at ASC
	`, tokenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []journal.Transition
	for rows.Next() {
		var (
			t             journal.Transition
			from, to, src string
		)
		if err := rows.Scan(&t.TokenID, &t.TokenNumber, &t.ServiceID, &from, &to, &src, &t.ObservedAt); err != nil {
			return nil, err
		}
		t.From, t.To, t.Source = models.Status(from), models.Status(to), journal.Source(src)
		transitions = append(transitions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transitions, nil
}

// Summaries aggregates per service the tokens observed since the given time.
// It computes the same figures as journal.Summarize.
func (s *Store) Summaries(ctx context.Context, since time.Time) ([]journal.ServiceSummary, error) {
	rows, err := s.pool.Query(ctx, `
		WITH per_token AS (
			SELECT
				service_id,
				token_id,
				MIN(observed_at) FILTER (WHERE to_status = 'PENDING') AS pending_at,
				MIN(observed_at) FILTER (WHERE to_status = 'CALLING') AS calling_at,
				BOOL_OR(to_status = 'SERVED') AS served,
				BOOL_OR(to_status = 'SKIPPED') AS skipped,
				BOOL_OR(to_status = 'CANCELLED') AS cancelled,
				MAX(observed_at) AS last_changed
			FROM token_transitions
			WHERE observed_at >= $1
			GROUP BY service_id, token_id
		)
		SELECT
			service_id,
			COUNT(*),
			COUNT(*) FILTER (WHERE served),
			COUNT(*) FILTER (WHERE skipped),
			COUNT(*) FILTER (WHERE cancelled),
			COALESCE(AVG(EXTRACT(EPOCH FROM (calling_at - pending_at)))::float8, 0),
			MAX(last_changed)
		FROM per_token
		GROUP BY service_id
		ORDER BY service_id ASC
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (journal.ServiceSummary, error) {
		var (
			summary                            journal.ServiceSummary
			tokens, served, skipped, cancelled int64
			avgWaitSeconds                     float64
		)
		if err := row.Scan(&summary.ServiceID, &tokens, &served, &skipped, &cancelled, &avgWaitSeconds, &summary.LastChanged); err != nil {
			return journal.ServiceSummary{}, err
		}
		summary.Tokens = int(tokens)
		summary.Served = int(served)
		summary.Skipped = int(skipped)
		summary.Cancelled = int(cancelled)
		summary.AvgWait = time.Duration(avgWaitSeconds * float64(time.Second))
		return summary, nil
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}
