package db

import (
	"context"
	_ "embed"
	"strings"

	"github.com/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

// Migrate applies the schema. Every statement is idempotent, so this is
// safe to run on each start.
func Migrate(ctx context.Context, e Executor) error {
	for i, stmt := range Statements(schemaSQL) {
		if _, err := e.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "apply schema statement %d", i+1)
		}
	}
	return nil
}

// Statements splits a schema file into single statements.
func Statements(schema string) []string {
	parts := strings.Split(schema, ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
