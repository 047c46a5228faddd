package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/im"
	"github.com/stephenafamo/bob/dialect/psql/sm"

	"github.com/DurbeKK/maid-tg-bot/internal/db"
)

type User struct {
	ID          string  `db:"id"`
	DisplayName string  `db:"display_name"`
	TeamID      *string `db:"team_id"`
}

// UserRepository also serves as the identity/membership provider.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*User, error)
	Upsert(ctx context.Context, user *User) error
	ResolveTeam(ctx context.Context, userID string) (string, error)
	IsMember(ctx context.Context, teamID, userID string) (bool, error)
}

type pgxUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgxUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgxUserRepository{pool: pool}
}

func (p *pgxUserRepository) Get(ctx context.Context, userID string) (*User, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Select(
		sm.Columns("id", "display_name", "team_id"),
		sm.From("users"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(userID))),
	)
	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	u := &User{}
	if err = e.QueryRow(ctx, sql, args...).Scan(&u.ID, &u.DisplayName, &u.TeamID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return u, nil
}

func (p *pgxUserRepository) Upsert(ctx context.Context, user *User) error {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	q := psql.Insert(
		im.Into("users", "id", "display_name", "team_id"),
		im.Values(psql.Arg(user.ID), psql.Arg(user.DisplayName), psql.Arg(user.TeamID)),
		im.OnConflict(psql.Quote("id")).DoUpdate(
			im.SetCol("display_name").ToArg(user.DisplayName),
			im.SetCol("team_id").ToArg(user.TeamID),
		),
	)
	sql, args, err := q.Build(ctx)
	if err != nil {
		return err
	}

	_, err = e.Exec(ctx, sql, args...)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return ErrNotFound
	}
	return err
}

// ResolveTeam returns the team a user belongs to, or ErrNotFound.
func (p *pgxUserRepository) ResolveTeam(ctx context.Context, userID string) (string, error) {
	u, err := p.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.TeamID == nil {
		return "", ErrNotFound
	}
	return *u.TeamID, nil
}

func (p *pgxUserRepository) IsMember(ctx context.Context, teamID, userID string) (bool, error) {
	teamOf, err := p.ResolveTeam(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return teamOf == teamID, nil
}
