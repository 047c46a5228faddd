package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dm"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"

	"github.com/DurbeKK/maid-tg-bot/internal/db"
	"github.com/DurbeKK/maid-tg-bot/internal/model"
)

// ConflictRepository keeps at most one conflict record per queue.
type ConflictRepository interface {
	Get(ctx context.Context, teamID, queueName string) (*model.Conflict, error)
	Upsert(ctx context.Context, conflict *model.Conflict) error
	Delete(ctx context.Context, teamID, queueName string) error
}

type pgxConflictRepository struct {
	pool *pgxpool.Pool
}

func NewPgxConflictRepository(pool *pgxpool.Pool) ConflictRepository {
	return &pgxConflictRepository{pool: pool}
}

func conflictKey(teamID, queueName string) psql.Expression {
	return psql.Quote("team_id").EQ(psql.Arg(teamID)).And(psql.Quote("queue_name").EQ(psql.Arg(queueName)))
}

func (p *pgxConflictRepository) Get(ctx context.Context, teamID, queueName string) (*model.Conflict, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("team_id", "queue_name", "initiator_id", "reason", "state", "deadline", "timer_id", "created_at"),
		sm.From("conflicts"),
		sm.Where(conflictKey(teamID, queueName)),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	c := &model.Conflict{}
	var timerID *string
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&c.TeamID,
		&c.QueueName,
		&c.InitiatorID,
		&c.Reason,
		&c.State,
		&c.Deadline,
		&timerID,
		&c.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if timerID != nil {
		c.TimerID = *timerID
	}
	return c, nil
}

func (p *pgxConflictRepository) Upsert(ctx context.Context, c *model.Conflict) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	var timerID *string
	if c.TimerID != "" {
		timerID = &c.TimerID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	q := psql.Insert(
		im.Into("conflicts", "team_id", "queue_name", "initiator_id", "reason", "state", "deadline", "timer_id", "created_at"),
		im.Values(
			psql.Arg(c.TeamID),
			psql.Arg(c.QueueName),
			psql.Arg(c.InitiatorID),
			psql.Arg(c.Reason),
			psql.Arg(string(c.State)),
			psql.Arg(c.Deadline),
			psql.Arg(timerID),
			psql.Arg(c.CreatedAt),
		),
		im.OnConflict(psql.Quote("team_id"), psql.Quote("queue_name")).DoUpdate(
			im.SetCol("initiator_id").ToArg(c.InitiatorID),
			im.SetCol("reason").ToArg(c.Reason),
			im.SetCol("state").ToArg(string(c.State)),
			im.SetCol("deadline").ToArg(c.Deadline),
			im.SetCol("timer_id").ToArg(timerID),
		),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return err
}

func (p *pgxConflictRepository) Delete(ctx context.Context, teamID, queueName string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("conflicts"),
		dm.Where(conflictKey(teamID, queueName)),
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
