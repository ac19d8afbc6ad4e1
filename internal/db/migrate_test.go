package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type stubExecutor struct {
	query string
	err   error
}

func (s *stubExecutor) Exec(_ context.Context, query string, _ ...any) (pgconn.CommandTag, error) {
	s.query = query
	return pgconn.CommandTag{}, s.err
}

func (s *stubExecutor) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (s *stubExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func TestSchemaCarriesMarkerAndChannel(t *testing.T) {
	schema := Schema()
	if !strings.HasPrefix(schema, "--sql ") {
		t.Fatalf("schema must start with an audit marker, got %q", schema[:20])
	}
	if !strings.Contains(schema, "pg_notify('"+NotifyChannel+"'") {
		t.Fatal("schema trigger does not notify on the expected channel")
	}
	for _, table := range []string{"requests", "donations"} {
		if !strings.Contains(schema, "create table if not exists "+table) {
			t.Fatalf("schema missing table %s", table)
		}
	}
}

func TestMigrate(t *testing.T) {
	exec := &stubExecutor{}
	if err := Migrate(context.Background(), exec); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if exec.query != Schema() {
		t.Fatal("Migrate did not execute the embedded schema")
	}

	exec = &stubExecutor{err: errors.New("permission denied")}
	if err := Migrate(context.Background(), exec); err == nil {
		t.Fatal("expected error")
	}
}
