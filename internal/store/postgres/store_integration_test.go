package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"pontiapp/attention-service/internal/models"
	"pontiapp/attention-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestRegisterTicketIdempotency(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	positionID := uuid.NewString()
	seedPosition(t, ctx, pool, positionID, true)

	requestID := uuid.NewString()
	first := registerTicket(t, ctx, st, positionID, requestID)
	second := registerTicket(t, ctx, st, positionID, requestID)

	if first.TicketID != second.TicketID {
		t.Fatalf("expected same ticket ID for duplicate request")
	}

	var count int
	row := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ticket_outbox WHERE type = 'ticket.pending'
	`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 ticket.pending event, got %d", count)
	}
}

func TestRegisterTicketConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	positionID := uuid.NewString()
	seedPosition(t, ctx, pool, positionID, true)

	requestID := uuid.NewString()
	type result struct {
		ticket  models.Ticket
		created bool
		err     error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, created, err := st.RegisterTicket(ctx, store.RegisterTicketInput{
				RequestID:   requestID,
				DisplayName: "Juan Perez",
				DocumentID:  "72654813",
				ServiceName: "Tramites academicos",
				PositionID:  positionID,
			})
			results <- result{ticket: ticket, created: created, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var created int
	ids := map[string]bool{}
	for res := range results {
		if res.err != nil {
			t.Fatalf("register ticket: %v", res.err)
		}
		if res.created {
			created++
		}
		ids[res.ticket.TicketID] = true
	}
	if created != 1 {
		t.Fatalf("expected exactly one creation, got %d", created)
	}
	if len(ids) != 1 {
		t.Fatalf("expected both registers to resolve to the same ticket, got %d ids", len(ids))
	}
}

func TestAttendTicketSinglePerPosition(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	positionID := uuid.NewString()
	seedPosition(t, ctx, pool, positionID, true)

	first := registerTicket(t, ctx, st, positionID, uuid.NewString())
	second := registerTicket(t, ctx, st, positionID, uuid.NewString())

	now := time.Now().UTC()
	for _, id := range []string{first.TicketID, second.TicketID} {
		if _, err := st.CallTicket(ctx, store.TicketActionInput{TicketID: id, PositionID: positionID, OccurredAt: now}); err != nil {
			t.Fatalf("call ticket: %v", err)
		}
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, id := range []string{first.TicketID, second.TicketID} {
		wg.Add(1)
		go func(ticketID string) {
			defer wg.Done()
			_, err := st.AttendTicket(ctx, store.TicketActionInput{TicketID: ticketID, PositionID: positionID, OccurredAt: time.Now().UTC()})
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	var attended, busy int
	for err := range results {
		switch {
		case err == nil:
			attended++
		case errors.Is(err, store.ErrPositionBusy):
			busy++
		default:
			t.Fatalf("attend ticket: %v", err)
		}
	}
	if attended != 1 || busy != 1 {
		t.Fatalf("expected exactly one attending ticket, got attended=%d busy=%d", attended, busy)
	}
}

func TestTransferMovesTicketToTargetQueue(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	sourceID := uuid.NewString()
	targetID := uuid.NewString()
	seedPosition(t, ctx, pool, sourceID, true)
	seedPosition(t, ctx, pool, targetID, true)

	ticket := registerTicket(t, ctx, st, sourceID, uuid.NewString())
	now := time.Now().UTC()
	if _, err := st.CallTicket(ctx, store.TicketActionInput{TicketID: ticket.TicketID, PositionID: sourceID, OccurredAt: now}); err != nil {
		t.Fatalf("call ticket: %v", err)
	}
	if _, err := st.AttendTicket(ctx, store.TicketActionInput{TicketID: ticket.TicketID, PositionID: sourceID, OccurredAt: now}); err != nil {
		t.Fatalf("attend ticket: %v", err)
	}

	moved, err := st.TransferTicket(ctx, store.TicketActionInput{
		TicketID:         ticket.TicketID,
		PositionID:       sourceID,
		TargetPositionID: targetID,
		Reason:           "sala llena",
		OccurredAt:       time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("transfer ticket: %v", err)
	}
	if moved.State != models.StateTransferred {
		t.Fatalf("expected transferred state, got %s", moved.State)
	}
	if moved.PositionID != targetID {
		t.Fatalf("expected position %s, got %s", targetID, moved.PositionID)
	}

	sourceSnapshot, err := st.SnapshotTickets(ctx, store.SnapshotFilter{
		PositionID:   sourceID,
		Date:         moved.CreatedDate,
		IncludeState: models.StatePending,
	})
	if err != nil {
		t.Fatalf("snapshot source: %v", err)
	}
	if len(sourceSnapshot) != 0 {
		t.Fatalf("expected empty source snapshot, got %d tickets", len(sourceSnapshot))
	}

	targetSnapshot, err := st.SnapshotTickets(ctx, store.SnapshotFilter{
		PositionID:   targetID,
		Date:         moved.CreatedDate,
		IncludeState: models.StatePending,
	})
	if err != nil {
		t.Fatalf("snapshot target: %v", err)
	}
	if len(targetSnapshot) != 1 || targetSnapshot[0].State != models.StateTransferred {
		t.Fatalf("expected transferred ticket in target snapshot")
	}

	var current *string
	row := pool.QueryRow(ctx, `SELECT current_ticket_id FROM attention_positions WHERE position_id = $1`, sourceID)
	if err := row.Scan(&current); err != nil {
		t.Fatalf("read source position: %v", err)
	}
	if current != nil {
		t.Fatalf("expected source position released, got %s", *current)
	}
}

func TestFinishReleasesPosition(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	positionID := uuid.NewString()
	seedPosition(t, ctx, pool, positionID, true)

	ticket := registerTicket(t, ctx, st, positionID, uuid.NewString())
	now := time.Now().UTC()
	if _, err := st.CallTicket(ctx, store.TicketActionInput{TicketID: ticket.TicketID, PositionID: positionID, OccurredAt: now}); err != nil {
		t.Fatalf("call ticket: %v", err)
	}
	if _, err := st.AttendTicket(ctx, store.TicketActionInput{TicketID: ticket.TicketID, PositionID: positionID, OccurredAt: now}); err != nil {
		t.Fatalf("attend ticket: %v", err)
	}

	done, err := st.FinishTicket(ctx, store.TicketActionInput{
		TicketID:    ticket.TicketID,
		PositionID:  positionID,
		Description: "consulta resuelta",
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("finish ticket: %v", err)
	}
	if done.State != models.StateCompleted || done.FinishDescription != "consulta resuelta" {
		t.Fatalf("unexpected finished ticket: %+v", done)
	}

	next := registerTicket(t, ctx, st, positionID, uuid.NewString())
	if _, err := st.CallTicket(ctx, store.TicketActionInput{TicketID: next.TicketID, PositionID: positionID, OccurredAt: time.Now().UTC()}); err != nil {
		t.Fatalf("call next ticket: %v", err)
	}
	if _, err := st.AttendTicket(ctx, store.TicketActionInput{TicketID: next.TicketID, PositionID: positionID, OccurredAt: time.Now().UTC()}); err != nil {
		t.Fatalf("attend next ticket after finish: %v", err)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	store := NewStore(pool)
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return store, pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func seedPosition(t *testing.T, ctx context.Context, pool *pgxpool.Pool, positionID string, available bool) {
	t.Helper()
	if _, err := pool.Exec(ctx, `
		INSERT INTO attention_positions (position_id, name, short_name, business_unit, available)
		VALUES ($1, 'Ventanilla', 'V1', 'alameda', $2)
	`, positionID, available); err != nil {
		t.Fatalf("insert position: %v", err)
	}
}

func registerTicket(t *testing.T, ctx context.Context, st *Store, positionID, requestID string) models.Ticket {
	t.Helper()
	ticket, _, err := st.RegisterTicket(ctx, store.RegisterTicketInput{
		RequestID:   requestID,
		DisplayName: "Juan Perez",
		DocumentID:  "72654813",
		ServiceName: "Tramites academicos",
		PositionID:  positionID,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("register ticket: %v", err)
	}
	return ticket
}
