package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"queuehive/internal/journal"
	"queuehive/internal/models"
)

func TestRecordAndSummaries(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t, ctx)

	base := time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC)
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }
	transitions := []journal.Transition{
		{TokenID: 1, TokenNumber: 1, ServiceID: 3, To: models.StatusPending, Source: journal.SourceSeed, ObservedAt: at(0)},
		{TokenID: 1, TokenNumber: 1, ServiceID: 3, From: models.StatusPending, To: models.StatusCalling, Source: journal.SourcePush, ObservedAt: at(10)},
		{TokenID: 1, TokenNumber: 1, ServiceID: 3, From: models.StatusCalling, To: models.StatusServed, Source: journal.SourcePoll, ObservedAt: at(15)},
		{TokenID: 2, TokenNumber: 2, ServiceID: 3, To: models.StatusPending, Source: journal.SourceSeed, ObservedAt: at(1)},
		{TokenID: 2, TokenNumber: 2, ServiceID: 3, From: models.StatusPending, To: models.StatusCalling, Source: journal.SourcePoll, ObservedAt: at(21)},
		{TokenID: 3, TokenNumber: 1, ServiceID: 4, To: models.StatusPending, Source: journal.SourceSeed, ObservedAt: at(2)},
		{TokenID: 3, TokenNumber: 1, ServiceID: 4, From: models.StatusPending, To: models.StatusCancelled, Source: journal.SourcePush, ObservedAt: at(3)},
	}
	for _, tr := range transitions {
		if err := st.Record(ctx, tr); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	history, err := st.ListTransitions(ctx, 1)
	if err != nil {
		t.Fatalf("list transitions: %v", err)
	}
	if len(history) != 3 || history[2].To != models.StatusServed || history[1].Source != journal.SourcePush {
		t.Fatalf("unexpected history: %+v", history)
	}

	got, err := st.Summaries(ctx, base)
	if err != nil {
		t.Fatalf("summaries: %v", err)
	}
	want := journal.Summarize(transitions, base)
	if len(got) != len(want) {
		t.Fatalf("expected %d summaries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ServiceID != want[i].ServiceID || got[i].Tokens != want[i].Tokens ||
			got[i].Served != want[i].Served || got[i].Cancelled != want[i].Cancelled ||
			got[i].AvgWait != want[i].AvgWait || !got[i].LastChanged.Equal(want[i].LastChanged) {
			t.Fatalf("summary %d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestEnsureSchemaIsRepeatable(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t, ctx)
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schemaName := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := execOnce(ctx, dsn, "CREATE SCHEMA "+schemaName); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schemaName
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	st := NewStore(pool)
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		_ = execOnce(context.Background(), dsn, "DROP SCHEMA "+schemaName+" CASCADE")
	})
	return st
}

func execOnce(ctx context.Context, dsn, statement string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, statement)
	return err
}
