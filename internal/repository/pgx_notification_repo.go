package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"

	"github.com/DurbeKK/maid-tg-bot/internal/db"
	"github.com/DurbeKK/maid-tg-bot/internal/model"
)

// NotificationRepository is the outbox read by whatever delivers messages
// to chats.
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	List(ctx context.Context, channelID string, limit int) ([]*model.Notification, error)
}

type pgxNotificationRepository struct {
	pool *pgxpool.Pool
}

func NewPgxNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &pgxNotificationRepository{pool: pool}
}

func (p *pgxNotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	var action []byte
	if n.Action != nil {
		var err error
		if action, err = json.Marshal(n.Action); err != nil {
			return errors.Wrap(err, "encode call to action")
		}
	}

	q := psql.Insert(
		im.Into("notifications", "id", "channel_id", "text", "action", "created_at"),
		im.Values(psql.Arg(n.ID), psql.Arg(n.ChannelID), psql.Arg(n.Text), psql.Arg(action), psql.Arg(n.CreatedAt)),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)
	return err
}

func (p *pgxNotificationRepository) List(ctx context.Context, channelID string, limit int) ([]*model.Notification, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "channel_id", "text", "action", "created_at"),
		sm.From("notifications"),
		sm.Where(psql.Quote("channel_id").EQ(psql.Arg(channelID))),
		sm.OrderBy("created_at").Desc(),
		sm.Limit(limit),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*model.Notification, error) {
		n := &model.Notification{}
		var action []byte
		if err := row.Scan(&n.ID, &n.ChannelID, &n.Text, &action, &n.CreatedAt); err != nil {
			return nil, err
		}
		if len(action) > 0 {
			n.Action = &model.CallToAction{}
			if err := json.Unmarshal(action, n.Action); err != nil {
				return nil, errors.Wrap(err, "decode call to action")
			}
		}
		return n, nil
	})
}
