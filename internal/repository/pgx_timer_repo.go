package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"

	"github.com/DurbeKK/maid-tg-bot/internal/db"
	"github.com/DurbeKK/maid-tg-bot/internal/model"
)

// TimerRepository persists deferred fallbacks, one row per (team, queue).
type TimerRepository interface {
	// Save stores t, replacing any timer armed on the same key.
	Save(ctx context.Context, t *model.Timer) (replaced bool, err error)
	Get(ctx context.Context, key model.TimerKey) (*model.Timer, error)
	// Delete removes the timer only if the key is still armed with id.
	Delete(ctx context.Context, key model.TimerKey, id string) error
	ListPending(ctx context.Context) ([]*model.Timer, error)
	ListDue(ctx context.Context, now time.Time) ([]*model.Timer, error)
	RecordFailure(ctx context.Context, key model.TimerKey, id string, msg string) error
}

type pgxTimerRepository struct {
	pool *pgxpool.Pool
}

func NewPgxTimerRepository(pool *pgxpool.Pool) TimerRepository {
	return &pgxTimerRepository{pool: pool}
}

var timerColumns = []any{"id", "team_id", "queue_name", "deadline", "payload", "attempts", "last_error"}

func timerKey(key model.TimerKey) psql.Expression {
	return psql.Quote("team_id").EQ(psql.Arg(key.TeamID)).And(psql.Quote("queue_name").EQ(psql.Arg(key.QueueName)))
}

func (p *pgxTimerRepository) Save(ctx context.Context, t *model.Timer) (bool, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return false, errors.Wrap(err, "encode timer payload")
	}

	existing := psql.Select(
		sm.Columns("id"),
		sm.From("timers"),
		sm.Where(timerKey(t.Key)),
		sm.ForUpdate("timers"),
	)
	sql, args, err := existing.Build(ctx)
	if err != nil {
		return false, err
	}

	var previousID string
	replaced := true
	if err = e.QueryRow(ctx, sql, args...).Scan(&previousID); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, err
		}
		replaced = false
	}

	q := psql.Insert(
		im.Into("timers", "team_id", "queue_name", "id", "deadline", "payload", "attempts", "last_error"),
		im.Values(
			psql.Arg(t.Key.TeamID),
			psql.Arg(t.Key.QueueName),
			psql.Arg(t.ID),
			psql.Arg(t.Deadline.UTC()),
			psql.Arg(payload),
			psql.Arg(0),
			psql.Arg(""),
		),
		im.OnConflict(psql.Quote("team_id"), psql.Quote("queue_name")).DoUpdate(
			im.SetCol("id").ToArg(t.ID),
			im.SetCol("deadline").ToArg(t.Deadline.UTC()),
			im.SetCol("payload").ToArg(payload),
			im.SetCol("attempts").ToArg(0),
			im.SetCol("last_error").ToArg(""),
		),
	)

	sql, args, err = q.Build(ctx)
	if err != nil {
		return false, err
	}

	if _, err = e.Exec(ctx, sql, args...); err != nil {
		return false, err
	}
	return replaced, nil
}

func (p *pgxTimerRepository) Get(ctx context.Context, key model.TimerKey) (*model.Timer, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns(timerColumns...),
		sm.From("timers"),
		sm.Where(timerKey(key)),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	t, err := scanTimer(e.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (p *pgxTimerRepository) Delete(ctx context.Context, key model.TimerKey, id string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("timers"),
		dm.Where(timerKey(key).And(psql.Quote("id").EQ(psql.Arg(id)))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *pgxTimerRepository) ListPending(ctx context.Context) ([]*model.Timer, error) {
	q := psql.Select(
		sm.Columns(timerColumns...),
		sm.From("timers"),
		sm.OrderBy("deadline"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}
	return p.list(ctx, sql, args)
}

func (p *pgxTimerRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Timer, error) {
	q := psql.Select(
		sm.Columns(timerColumns...),
		sm.From("timers"),
		sm.Where(psql.Quote("deadline").LTE(psql.Arg(now.UTC()))),
		sm.OrderBy("deadline"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}
	return p.list(ctx, sql, args)
}

func (p *pgxTimerRepository) list(ctx context.Context, sql string, args []any) ([]*model.Timer, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Timer, error) {
		return scanTimer(row)
	})
}

func (p *pgxTimerRepository) RecordFailure(ctx context.Context, key model.TimerKey, id string, msg string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("timers"),
		um.SetCol("attempts").To(psql.Raw("attempts + 1")),
		um.SetCol("last_error").ToArg(msg),
		um.Where(timerKey(key).And(psql.Quote("id").EQ(psql.Arg(id)))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	tag, err := e.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTimer(row pgx.Row) (*model.Timer, error) {
	t := &model.Timer{}
	var payload []byte
	if err := row.Scan(
		&t.ID,
		&t.Key.TeamID,
		&t.Key.QueueName,
		&t.Deadline,
		&payload,
		&t.Attempts,
		&t.LastError,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payload, &t.Payload); err != nil {
		return nil, errors.Wrap(err, "decode timer payload")
	}
	return t, nil
}
