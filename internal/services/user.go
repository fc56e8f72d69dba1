package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/normalization"
	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

type UserService interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*types.User, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, firstName, lastName string) (*types.User, error)
}

type userService struct {
	db       *gorm.DB
	log      *logger.Logger
	userRepo repos.UserRepo
}

func NewUserService(db *gorm.DB, baseLog *logger.Logger, userRepo repos.UserRepo) UserService {
	return &userService{
		db:       db,
		log:      baseLog.With("service", "UserService"),
		userRepo: userRepo,
	}
}

func (us *userService) GetUser(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	users, err := us.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if len(users) == 0 || users[0] == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return users[0], nil
}

func (us *userService) UpdateUser(ctx context.Context, userID uuid.UUID, firstName, lastName string) (*types.User, error) {
	firstName = normalization.ParseInputString(firstName)
	lastName = normalization.ParseInputString(lastName)

	updates := map[string]interface{}{}
	if firstName != "" {
		updates["first_name"] = firstName
	}
	if lastName != "" {
		updates["last_name"] = lastName
	}
	if len(updates) > 0 {
		if err := us.userRepo.UpdateFields(ctx, nil, userID, updates); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}
	return us.GetUser(ctx, userID)
}
