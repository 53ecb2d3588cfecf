package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tryon/internal/domain"
	"tryon/internal/sqlinline"
)

type testRowsBase struct{}

func (testRowsBase) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (testRowsBase) Conn() *pgx.Conn { return nil }

func (testRowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (testRowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

func (testRowsBase) RawValues() [][]byte { return nil }

type attemptRows struct {
	testRowsBase
	items  []domain.Attempt
	idx    int
	closed bool
}

func (r *attemptRows) Next() bool {
	if r.idx >= len(r.items) {
		return false
	}
	r.idx++
	return true
}

func (r *attemptRows) Scan(dest ...any) error {
	a := r.items[r.idx-1]
	values := []any{a.ID, a.PanelID, a.JobID, a.Request.ModelImage, a.Request.GarmentImage,
		a.Request.Category, a.Phase, a.Result, a.Error}
	for i, v := range values {
		*(dest[i].(*string)) = v.(string)
	}
	*(dest[9].(*time.Time)) = a.StartedAt
	*(dest[10].(**time.Time)) = a.FinishedAt
	return nil
}

func (r *attemptRows) Err() error { return nil }

func (r *attemptRows) Close() { r.closed = true }

type stubExecutor struct {
	execQuery string
	execArgs  []any
	execErr   error
	rows      *attemptRows
	queryArgs []any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execQuery = query
	s.execArgs = args
	return pgconn.CommandTag{}, s.execErr
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return nil
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	s.queryArgs = args
	if s.rows == nil {
		return nil, errors.New("no rows configured")
	}
	return s.rows, nil
}

func TestRecordStoresDescribedImages(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewAttemptRepository(exec)
	finished := time.Date(2024, 5, 1, 10, 0, 5, 0, time.UTC)

	err := repo.Record(context.Background(), domain.Attempt{
		ID:      "6f1c2a0e-2b7d-4d8f-9a3e-5c1b7e9d2f40",
		PanelID: "panel-1",
		JobID:   "abc",
		Request: domain.JobRequest{
			ModelImage:   "data:image/png;base64,QUJDRA==",
			GarmentImage: "https://x/g.png",
			Category:     "tops",
		},
		Phase:      "succeeded",
		Result:     "https://x/result.png",
		StartedAt:  finished.Add(-5 * time.Second),
		FinishedAt: &finished,
	})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if exec.execQuery != sqlinline.QUpsertTryOnAttempt {
		t.Fatalf("unexpected query executed")
	}
	if len(exec.execArgs) != 11 {
		t.Fatalf("expected 11 args, got %d", len(exec.execArgs))
	}
	if got := exec.execArgs[3].(string); !strings.HasPrefix(got, "data:image/png;base64,(") {
		t.Fatalf("model image stored as %q, want description", got)
	}
	if got := exec.execArgs[4].(string); got != "https://x/g.png" {
		t.Fatalf("garment image stored as %q", got)
	}
}

func TestRecordRequiresID(t *testing.T) {
	repo := NewAttemptRepository(&stubExecutor{})
	if err := repo.Record(context.Background(), domain.Attempt{}); err == nil {
		t.Fatal("expected error without attempt id")
	}
}

func TestRecordWrapsExecError(t *testing.T) {
	cause := errors.New("connection refused")
	repo := NewAttemptRepository(&stubExecutor{execErr: cause})
	err := repo.Record(context.Background(), domain.Attempt{ID: "a"})
	if !errors.Is(err, cause) {
		t.Fatalf("Record error = %v, want wrapped cause", err)
	}
}

func TestListByPanel(t *testing.T) {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := &attemptRows{items: []domain.Attempt{
		{ID: "a2", PanelID: "p", Phase: "processing", StartedAt: started.Add(time.Minute)},
		{ID: "a1", PanelID: "p", Phase: "failed", Error: "invalid image", StartedAt: started, FinishedAt: &started},
	}}
	exec := &stubExecutor{rows: rows}
	repo := NewAttemptRepository(exec)

	attempts, err := repo.ListByPanel(context.Background(), "p", 0)
	if err != nil {
		t.Fatalf("ListByPanel error: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Settled() {
		t.Fatal("first attempt should be unsettled")
	}
	if !attempts[1].Settled() || attempts[1].Error != "invalid image" {
		t.Fatalf("second attempt = %+v", attempts[1])
	}
	if limit := exec.queryArgs[1].(int); limit != defaultAttemptLimit {
		t.Fatalf("limit = %d, want default %d", limit, defaultAttemptLimit)
	}
	if !rows.closed {
		t.Fatal("rows should be closed")
	}
}
