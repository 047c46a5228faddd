package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// QueueRepository is the rotation store. Writes replace the whole member
// list and are compare-and-swap on Version.
type QueueRepository interface {
	Create(ctx context.Context, queue *model.Queue) error
	Get(ctx context.Context, teamID, name string) (*model.Queue, error)
	// GetForUpdate locks the queue row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, teamID, name string) (*model.Queue, error)
	// Put commits queue if its Version still matches the stored one and
	// bumps queue.Version on success.
	Put(ctx context.Context, queue *model.Queue) error
	List(ctx context.Context, teamID string) ([]string, error)
	Delete(ctx context.Context, teamID, name string) error
}

type pgxQueueRepository struct {
	pool *pgxpool.Pool
}

func NewPgxQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &pgxQueueRepository{pool: pool}
}

func queueKey(teamID, name string) psql.Expression {
	return psql.Quote("team_id").EQ(psql.Arg(teamID)).And(psql.Quote("name").EQ(psql.Arg(name)))
}

func (p *pgxQueueRepository) Create(ctx context.Context, queue *model.Queue) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	members, err := encodeMembers(queue.Members)
	if err != nil {
		return err
	}

	q := psql.Insert(
		im.Into("queues", "team_id", "name", "members", "version"),
		im.Values(psql.Arg(queue.TeamID), psql.Arg(queue.Name), psql.Arg(members), psql.Arg(queue.Version)),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrAlreadyExists
		case pgForeignKeyViolation: // team does not exist
			return ErrNotFound
		}
	}
	return err
}

func (p *pgxQueueRepository) Get(ctx context.Context, teamID, name string) (*model.Queue, error) {
	return p.get(ctx, teamID, name, false)
}

func (p *pgxQueueRepository) GetForUpdate(ctx context.Context, teamID, name string) (*model.Queue, error) {
	return p.get(ctx, teamID, name, true)
}

func (p *pgxQueueRepository) get(ctx context.Context, teamID, name string, lock bool) (*model.Queue, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("team_id", "name", "members", "version"),
		sm.From("queues"),
		sm.Where(queueKey(teamID, name)),
	)
	if lock {
		q.Apply(sm.ForUpdate("queues"))
	}

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	queue := &model.Queue{}
	var members []byte
	if err = e.QueryRow(ctx, sql, args...).Scan(&queue.TeamID, &queue.Name, &members, &queue.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if queue.Members, err = decodeMembers(members); err != nil {
		return nil, err
	}
	return queue, nil
}

func (p *pgxQueueRepository) Put(ctx context.Context, queue *model.Queue) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	members, err := encodeMembers(queue.Members)
	if err != nil {
		return err
	}

	q := psql.Update(
		um.Table("queues"),
		um.SetCol("members").ToArg(members),
		um.SetCol("version").ToArg(queue.Version+1),
		um.SetCol("updated_at").ToArg(time.Now().UTC()),
		um.Where(queueKey(queue.TeamID, queue.Name)),
		um.Where(psql.Quote("version").EQ(psql.Arg(queue.Version))),
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
		if _, err = p.Get(ctx, queue.TeamID, queue.Name); err != nil {
			return err
		}
		return ErrVersionConflict
	}

	queue.Version++
	return nil
}

func (p *pgxQueueRepository) List(ctx context.Context, teamID string) ([]string, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("name"),
		sm.From("queues"),
		sm.Where(psql.Quote("team_id").EQ(psql.Arg(teamID))),
		sm.OrderBy("name"),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := e.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *pgxQueueRepository) Delete(ctx context.Context, teamID, name string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Delete(
		dm.From("queues"),
		dm.Where(queueKey(teamID, name)),
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

func encodeMembers(members []*model.Member) ([]byte, error) {
	if members == nil {
		members = []*model.Member{}
	}
	b, err := json.Marshal(members)
	return b, errors.Wrap(err, "encode queue members")
}

func decodeMembers(raw []byte) ([]*model.Member, error) {
	members := make([]*model.Member, 0)
	if len(raw) == 0 {
		return members, nil
	}
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, errors.Wrap(err, "decode queue members")
	}
	return members, nil
}
