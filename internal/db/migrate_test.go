package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecutor struct {
	statements []string
	failOn     int
}

func (r *recordingExecutor) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.statements = append(r.statements, sql)
	if r.failOn > 0 && len(r.statements) == r.failOn {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.CommandTag{}, nil
}

func (r *recordingExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (r *recordingExecutor) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

func TestStatements(t *testing.T) {
	stmts := Statements("CREATE TABLE a (id INT);\n\n  CREATE INDEX b ON a (id) ;\n")
	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE INDEX b ON a (id)"}, stmts)
}

func TestMigrate(t *testing.T) {
	e := &recordingExecutor{}
	require.NoError(t, Migrate(context.Background(), e))

	require.NotEmpty(t, e.statements)
	for _, table := range []string{"teams", "users", "queues", "conflicts", "timers", "notifications"} {
		found := false
		for _, s := range e.statements {
			if strings.Contains(s, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				found = true
			}
		}
		assert.True(t, found, "schema must create %s", table)
	}
}

func TestMigrate_StopsOnError(t *testing.T) {
	e := &recordingExecutor{failOn: 2}
	err := Migrate(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 2")
	assert.Len(t, e.statements, 2)
}
