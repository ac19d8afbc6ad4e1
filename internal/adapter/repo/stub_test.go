package repo

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pulsethread/internal/infra"
)

type call struct {
	query string
	args  []any
}

// stubSQL answers queries from per-query scripts and records every call.
type stubSQL struct {
	rows   map[string][][]any
	row    map[string][]any
	rowErr map[string]error
	tags   map[string]string
	calls  []call
	inTx   int
}

func newStubSQL() *stubSQL {
	return &stubSQL{
		rows:   map[string][][]any{},
		row:    map[string][]any{},
		rowErr: map[string]error{},
		tags:   map[string]string{},
	}
}

func (s *stubSQL) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.calls = append(s.calls, call{query: query, args: args})
	tag, ok := s.tags[query]
	if !ok {
		return pgconn.CommandTag{}, fmt.Errorf("unexpected exec: %s", query)
	}
	return pgconn.NewCommandTag(tag), nil
}

func (s *stubSQL) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.calls = append(s.calls, call{query: query, args: args})
	if err, ok := s.rowErr[query]; ok {
		return stubRow{err: err}
	}
	vals, ok := s.row[query]
	if !ok {
		return stubRow{err: pgx.ErrNoRows}
	}
	return stubRow{vals: vals}
}

func (s *stubSQL) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	s.calls = append(s.calls, call{query: query, args: args})
	return &stubRows{data: s.rows[query]}, nil
}

func (s *stubSQL) InTx(_ context.Context, fn func(infra.SQLExecutor) error) error {
	s.inTx++
	return fn(s)
}

func (s *stubSQL) called(query string) bool {
	for _, c := range s.calls {
		if c.query == query {
			return true
		}
	}
	return false
}

type stubRow struct {
	vals []any
	err  error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

type stubRows struct {
	data [][]any
	idx  int
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}
func (r *stubRows) RawValues() [][]byte { return nil }
func (r *stubRows) Conn() *pgx.Conn     { return nil }

func (r *stubRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.data) {
		return pgx.ErrNoRows
	}
	return assign(dest, r.data[r.idx-1])
}

func assign(dest []any, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(vals))
	}
	for i, v := range vals {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(v))
	}
	return nil
}
