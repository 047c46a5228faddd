package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/DurbeKK/maid-tg-bot/internal/db"
	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/internal/repository"
	"github.com/DurbeKK/maid-tg-bot/pkg/logger"
)

type TeamService struct {
	tx db.Transactor

	users repository.UserRepository
	teams repository.TeamRepository
}

func NewTeamService(tx db.Transactor) *TeamService {
	return &TeamService{
		tx: tx,
	}
}

// CreateTeam creates a team owned by the caller and makes the caller its
// first member.
func (t *TeamService) CreateTeam(ctx context.Context, owner *model.User, name string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Info("creating team", zap.String("team_name", name), zap.String("owner_id", owner.ID))

	team := &repository.Team{
		ID:      uuid.NewString(),
		Name:    name,
		OwnerID: owner.ID,
	}

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		u, err := t.users.Get(txCtx, owner.ID)
		if err == nil && u.TeamID != nil {
			l.Warn("user already in a team", zap.String("user_id", owner.ID), zap.String("team_id", *u.TeamID))
			return NewError(ErrorCodeTeamExists, "you are already a member of a team")
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			l.Error("failed to get user", zap.String("user_id", owner.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get user")
		}

		err = t.teams.Create(txCtx, team)
		if errors.Is(err, repository.ErrAlreadyExists) {
			return NewError(ErrorCodeTeamExists, "team already exists")
		}
		if err != nil {
			l.Error("failed to create team", zap.String("team_name", name), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to create team")
		}

		if err = t.users.Upsert(txCtx, &repository.User{
			ID:          owner.ID,
			DisplayName: owner.DisplayName,
			TeamID:      &team.ID,
		}); err != nil {
			l.Error("failed to add owner to team", zap.String("team_id", team.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to add owner to team")
		}

		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to create team")
	}

	l.Debug("team created", zap.String("team_id", team.ID))

	return &model.Team{
		ID:      team.ID,
		Name:    team.Name,
		OwnerID: team.OwnerID,
		Members: []*model.User{{ID: owner.ID, DisplayName: owner.DisplayName, TeamID: team.ID}},
	}, nil
}

func (t *TeamService) JoinTeam(ctx context.Context, user *model.User, teamID string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)

	err := t.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		if _, err := t.teams.Get(txCtx, teamID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return NewError(ErrorCodeNotFound, "team not found")
			}
			l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to get team")
		}

		err := t.users.Upsert(txCtx, &repository.User{
			ID:          user.ID,
			DisplayName: user.DisplayName,
			TeamID:      &teamID,
		})
		if err != nil {
			l.Error("failed to join team", zap.String("team_id", teamID), zap.String("user_id", user.ID), zap.Error(err))
			return NewError(ErrorCodeUnspecified, "failed to join team")
		}
		return nil
	})
	if err != nil {
		return nil, asError(err, "failed to join team")
	}

	l.Info("user joined team", zap.String("team_id", teamID), zap.String("user_id", user.ID))

	return t.GetTeam(ctx, teamID)
}

// SetChannel connects the team's group chat. Passing an empty channel
// disconnects it.
func (t *TeamService) SetChannel(ctx context.Context, teamID, channel string) *Error {
	l := logger.FromContext(ctx)

	var ch *string
	if channel != "" {
		ch = &channel
	}

	err := t.teams.SetChannel(ctx, teamID, ch)
	if errors.Is(err, repository.ErrNotFound) {
		return NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to set channel", zap.String("team_id", teamID), zap.Error(err))
		return NewError(ErrorCodeUnspecified, "failed to set channel")
	}

	l.Info("team channel updated", zap.String("team_id", teamID), zap.Bool("connected", ch != nil))
	return nil
}

func (t *TeamService) GetTeam(ctx context.Context, teamID string) (*model.Team, *Error) {
	l := logger.FromContext(ctx)
	l.Debug("getting team", zap.String("team_id", teamID))

	teamRepo, err := t.teams.Get(ctx, teamID)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("team not found", zap.String("team_id", teamID))
		return nil, NewError(ErrorCodeNotFound, "team not found")
	}
	if err != nil {
		l.Error("failed to get team", zap.String("team_id", teamID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get team")
	}

	membersRepo, err := t.teams.GetTeamMembers(ctx, teamID)
	if err != nil {
		l.Error("failed to get team members", zap.String("team_id", teamID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get team members")
	}

	members := make([]*model.User, 0, len(membersRepo))
	for _, member := range membersRepo {
		members = append(members, &model.User{
			ID:          member.ID,
			DisplayName: member.DisplayName,
			TeamID:      teamID,
		})
	}

	return &model.Team{
		ID:                  teamRepo.ID,
		Name:                teamRepo.Name,
		OwnerID:             teamRepo.OwnerID,
		NotificationChannel: teamRepo.NotificationChannel,
		Members:             members,
	}, nil
}

func (t *TeamService) WithUserRepo(r repository.UserRepository) *TeamService {
	t.users = r
	return t
}

func (t *TeamService) WithTeamRepo(r repository.TeamRepository) *TeamService {
	t.teams = r
	return t
}
