package db

import (
	"context"
	_ "embed"
	"fmt"

	"pulsethread/internal/infra"
)

// NotifyChannel is the LISTEN channel the change triggers publish on.
const NotifyChannel = "pulse_changes"

//go:embed schema.sql
var schemaSQL string

// Schema returns the embedded DDL, marker line included.
func Schema() string {
	return schemaSQL
}

// Migrate applies the schema. Every statement is idempotent so it is safe on every deploy.
func Migrate(ctx context.Context, exec infra.SQLExecutor) error {
	if _, err := exec.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
