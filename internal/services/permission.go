package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

// PermissionService answers "may this user act on this project at this
// level". Explicit grants win; public projects grant viewer to everyone.
type PermissionService interface {
	HasPermission(ctx context.Context, userID, projectID uuid.UUID, required types.PermissionLevel) (bool, error)
}

type permissionService struct {
	db       *gorm.DB
	log      *logger.Logger
	permRepo repos.ProjectPermissionRepo
	projRepo repos.ProjectRepo
}

func NewPermissionService(db *gorm.DB, baseLog *logger.Logger, permRepo repos.ProjectPermissionRepo, projRepo repos.ProjectRepo) PermissionService {
	return &permissionService{
		db:       db,
		log:      baseLog.With("service", "PermissionService"),
		permRepo: permRepo,
		projRepo: projRepo,
	}
}

func (ps *permissionService) HasPermission(ctx context.Context, userID, projectID uuid.UUID, required types.PermissionLevel) (bool, error) {
	if !required.Valid() {
		return false, fmt.Errorf("invalid permission level %q", required)
	}
	if userID == uuid.Nil || projectID == uuid.Nil {
		return false, nil
	}

	perm, err := ps.permRepo.Get(ctx, nil, userID, projectID)
	if err != nil {
		return false, fmt.Errorf("load permission: %w", err)
	}
	if perm != nil {
		return perm.Level.Covers(required), nil
	}

	projects, err := ps.projRepo.GetByIDs(ctx, nil, []uuid.UUID{projectID})
	if err != nil {
		return false, fmt.Errorf("load project: %w", err)
	}
	if len(projects) == 0 || projects[0] == nil {
		return false, nil
	}
	if projects[0].IsPublic {
		return types.PermissionViewer.Covers(required), nil
	}
	return false, nil
}
