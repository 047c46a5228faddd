package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"
	"github.com/stephenafamo/bob/dialect/psql/um"

	"github.com/DurbeKK/maid-tg-bot/internal/db"
)

type Team struct {
	ID                  string  `db:"id"`
	Name                string  `db:"name"`
	OwnerID             string  `db:"owner_id"`
	NotificationChannel *string `db:"notification_channel"`
}

type TeamRepository interface {
	Create(ctx context.Context, team *Team) error
	Get(ctx context.Context, id string) (*Team, error)
	SetChannel(ctx context.Context, id string, channel *string) error
	GetTeamMembers(ctx context.Context, id string) ([]*User, error)
}

type pgxTeamRepository struct {
	pool *pgxpool.Pool
}

func NewPgxTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &pgxTeamRepository{pool: pool}
}

func (p *pgxTeamRepository) Create(ctx context.Context, team *Team) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("teams", "id", "name", "owner_id", "notification_channel"),
		im.Values(psql.Arg(team.ID), psql.Arg(team.Name), psql.Arg(team.OwnerID), psql.Arg(team.NotificationChannel)),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrAlreadyExists
	}

	return err
}

func (p *pgxTeamRepository) Get(ctx context.Context, id string) (*Team, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "name", "owner_id", "notification_channel"),
		sm.From("teams"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(id))),
	)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	team := &Team{}
	if err = e.QueryRow(ctx, sql, args...).Scan(&team.ID, &team.Name, &team.OwnerID, &team.NotificationChannel); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return team, nil
}

func (p *pgxTeamRepository) SetChannel(ctx context.Context, id string, channel *string) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Update(
		um.Table("teams"),
		um.SetCol("notification_channel").ToArg(channel),
		um.Where(psql.Quote("id").EQ(psql.Arg(id))),
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

func (p *pgxTeamRepository) GetTeamMembers(ctx context.Context, id string) ([]*User, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "display_name", "team_id"),
		sm.From("users"),
		sm.Where(psql.Quote("team_id").EQ(psql.Arg(id))),
		sm.OrderBy("display_name"),
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

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*User, error) {
		user := &User{}
		if err := row.Scan(&user.ID, &user.DisplayName, &user.TeamID); err != nil {
			return nil, err
		}
		return user, nil
	})
}
