package infra

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type recordingQuerier struct {
	lastSQL string
}

func (q *recordingQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	q.lastSQL = sql
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (q *recordingQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	q.lastSQL = sql
	return errorRow{err: pgx.ErrNoRows}
}

func (q *recordingQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.lastSQL = sql
	return nil, nil
}

func TestExtractMarker(t *testing.T) {
	marker, body, err := extractMarker("\n--sql 0b0f7f0e-7d1c-4a59-9a43-3f3a8a1f5f10\nselect 1;\n")
	if err != nil {
		t.Fatalf("extractMarker error: %v", err)
	}
	if marker != "0b0f7f0e-7d1c-4a59-9a43-3f3a8a1f5f10" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "select 1;" {
		t.Fatalf("body = %q", body)
	}

	for _, q := range []string{"select 1;", "--sql not-a-uuid\nselect 1;", ""} {
		if _, _, err := extractMarker(q); err == nil {
			t.Fatalf("expected error for %q", q)
		}
	}
}

func TestSQLRunnerStripsMarker(t *testing.T) {
	q := &recordingQuerier{}
	runner := &SQLRunner{Logger: zerolog.Nop(), q: q}

	tag, err := runner.Exec(context.Background(), "--sql 0b0f7f0e-7d1c-4a59-9a43-3f3a8a1f5f10\nupdate t set x = 1;")
	if err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if tag.RowsAffected() != 1 {
		t.Fatalf("RowsAffected = %d", tag.RowsAffected())
	}
	if q.lastSQL != "update t set x = 1;" {
		t.Fatalf("forwarded sql = %q", q.lastSQL)
	}

	if _, err := runner.Exec(context.Background(), "update t set x = 1;"); err == nil {
		t.Fatal("expected missing marker error")
	}
	if err := runner.QueryRow(context.Background(), "select 1").Scan(); err == nil || IsNoRows(err) {
		t.Fatalf("expected marker error from QueryRow, got %v", err)
	}
}

func TestInTxRequiresPool(t *testing.T) {
	runner := &SQLRunner{Logger: zerolog.Nop()}
	err := runner.InTx(context.Background(), func(SQLExecutor) error { return nil })
	if err == nil {
		t.Fatal("expected error without pool")
	}
}
