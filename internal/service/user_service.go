package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/DurbeKK/maid-tg-bot/internal/model"
	"github.com/DurbeKK/maid-tg-bot/internal/repository"
)

// UserService answers identity and membership questions.
type UserService struct {
	users repository.UserRepository
}

func NewUserService() *UserService {
	return &UserService{}
}

func (u *UserService) GetUser(ctx context.Context, userID string) (*model.User, *Error) {
	user, err := u.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "user not found")
	}
	if err != nil {
		return nil, NewError(ErrorCodeUnspecified, "failed to get user")
	}

	res := &model.User{
		ID:          user.ID,
		DisplayName: user.DisplayName,
	}
	if user.TeamID != nil {
		res.TeamID = *user.TeamID
	}
	return res, nil
}

// ResolveTeam returns the team of userID. Users outside any team get NOT_FOUND.
func (u *UserService) ResolveTeam(ctx context.Context, userID string) (string, *Error) {
	teamID, err := u.users.ResolveTeam(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", NewError(ErrorCodeNotFound, "you are not a member of any team yet")
	}
	if err != nil {
		return "", NewError(ErrorCodeUnspecified, "failed to resolve team")
	}
	return teamID, nil
}

func (u *UserService) WithUserRepo(userRepo repository.UserRepository) *UserService {
	u.users = userRepo
	return u
}
