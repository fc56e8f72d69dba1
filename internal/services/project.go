package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/normalization"
	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

// ProjectService covers project CRUD and collaborator grants. Creating a
// project writes an admin permission row for the owner in the same
// transaction, so ownership and permissions read through one path.
type ProjectService interface {
	CreateProject(ctx context.Context, ownerID uuid.UUID, name, description string, isPublic bool) (*types.Project, error)
	GetProject(ctx context.Context, userID, projectID uuid.UUID) (*types.Project, error)
	ListProjects(ctx context.Context, userID uuid.UUID) ([]*types.Project, error)
	UpdateProject(ctx context.Context, userID, projectID uuid.UUID, name, description *string, isPublic *bool) (*types.Project, error)
	DeleteProject(ctx context.Context, userID, projectID uuid.UUID) error

	GrantPermission(ctx context.Context, actorID, projectID, targetUserID uuid.UUID, level types.PermissionLevel) (*types.ProjectPermission, error)
	RevokePermission(ctx context.Context, actorID, projectID, targetUserID uuid.UUID) error
	ListPermissions(ctx context.Context, actorID, projectID uuid.UUID) ([]*types.ProjectPermission, error)
}

type projectService struct {
	db          *gorm.DB
	log         *logger.Logger
	projRepo    repos.ProjectRepo
	permRepo    repos.ProjectPermissionRepo
	userRepo    repos.UserRepo
	permissions PermissionService
}

func NewProjectService(
	db *gorm.DB,
	baseLog *logger.Logger,
	projRepo repos.ProjectRepo,
	permRepo repos.ProjectPermissionRepo,
	userRepo repos.UserRepo,
	permissions PermissionService,
) ProjectService {
	return &projectService{
		db:          db,
		log:         baseLog.With("service", "ProjectService"),
		projRepo:    projRepo,
		permRepo:    permRepo,
		userRepo:    userRepo,
		permissions: permissions,
	}
}

func (ps *projectService) CreateProject(ctx context.Context, ownerID uuid.UUID, name, description string, isPublic bool) (*types.Project, error) {
	name = normalization.TrimInputString(name)
	if name == "" {
		return nil, fmt.Errorf("%w: project name is required", ErrInvalidReference)
	}

	project := &types.Project{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Name:        name,
		Description: normalization.TrimInputString(description),
		IsPublic:    isPublic,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, cErr := ps.projRepo.Create(ctx, tx, []*types.Project{project}); cErr != nil {
			return fmt.Errorf("create project: %w", cErr)
		}
		ownerPerm := &types.ProjectPermission{
			UserID:    ownerID,
			ProjectID: project.ID,
			Level:     types.PermissionAdmin,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if _, pErr := ps.permRepo.Create(ctx, tx, []*types.ProjectPermission{ownerPerm}); pErr != nil {
			return fmt.Errorf("create owner permission: %w", pErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ps.log.Info("Created project", "project_id", project.ID, "owner_id", ownerID, "is_public", isPublic)
	return project, nil
}

func (ps *projectService) GetProject(ctx context.Context, userID, projectID uuid.UUID) (*types.Project, error) {
	allowed, err := ps.permissions.HasPermission(ctx, userID, projectID, types.PermissionViewer)
	if err != nil {
		return nil, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: user cannot view project", ErrForbidden)
	}
	projects, err := ps.projRepo.GetByIDs(ctx, nil, []uuid.UUID{projectID})
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if len(projects) == 0 || projects[0] == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	return projects[0], nil
}

func (ps *projectService) ListProjects(ctx context.Context, userID uuid.UUID) ([]*types.Project, error) {
	return ps.projRepo.ListVisibleToUser(ctx, nil, userID)
}

func (ps *projectService) UpdateProject(ctx context.Context, userID, projectID uuid.UUID, name, description *string, isPublic *bool) (*types.Project, error) {
	allowed, err := ps.permissions.HasPermission(ctx, userID, projectID, types.PermissionAdmin)
	if err != nil {
		return nil, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: admin level required", ErrForbidden)
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if name != nil {
		parsed := normalization.TrimInputString(*name)
		if parsed == "" {
			return nil, fmt.Errorf("%w: project name cannot be empty", ErrInvalidReference)
		}
		updates["name"] = parsed
	}
	if description != nil {
		updates["description"] = normalization.TrimInputString(*description)
	}
	if isPublic != nil {
		updates["is_public"] = *isPublic
	}
	if err := ps.projRepo.UpdateFields(ctx, nil, projectID, updates); err != nil {
		return nil, fmt.Errorf("update project: %w", err)
	}

	projects, err := ps.projRepo.GetByIDs(ctx, nil, []uuid.UUID{projectID})
	if err != nil || len(projects) == 0 {
		return nil, fmt.Errorf("reload project: %w", err)
	}
	return projects[0], nil
}

func (ps *projectService) DeleteProject(ctx context.Context, userID, projectID uuid.UUID) error {
	projects, err := ps.projRepo.GetByIDs(ctx, nil, []uuid.UUID{projectID})
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if len(projects) == 0 || projects[0] == nil {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	// Only the owner may delete, admins may not.
	if projects[0].OwnerID != userID {
		return fmt.Errorf("%w: only the project owner can delete it", ErrForbidden)
	}
	if err := ps.projRepo.Delete(ctx, nil, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	ps.log.Info("Deleted project", "project_id", projectID, "owner_id", userID)
	return nil
}

func (ps *projectService) GrantPermission(ctx context.Context, actorID, projectID, targetUserID uuid.UUID, level types.PermissionLevel) (*types.ProjectPermission, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: unknown permission level %q", ErrInvalidReference, level)
	}
	allowed, err := ps.permissions.HasPermission(ctx, actorID, projectID, types.PermissionAdmin)
	if err != nil {
		return nil, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: admin level required to grant permissions", ErrForbidden)
	}

	targets, err := ps.userRepo.GetByIDs(ctx, nil, []uuid.UUID{targetUserID})
	if err != nil {
		return nil, fmt.Errorf("load target user: %w", err)
	}
	if len(targets) == 0 || targets[0] == nil {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, targetUserID)
	}

	existing, err := ps.permRepo.Get(ctx, nil, targetUserID, projectID)
	if err != nil {
		return nil, fmt.Errorf("load existing permission: %w", err)
	}
	if existing != nil {
		if err := ps.permRepo.UpdateLevel(ctx, nil, targetUserID, projectID, level); err != nil {
			return nil, fmt.Errorf("update permission level: %w", err)
		}
		existing.Level = level
		return existing, nil
	}

	perm := &types.ProjectPermission{
		UserID:    targetUserID,
		ProjectID: projectID,
		Level:     level,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if _, err := ps.permRepo.Create(ctx, nil, []*types.ProjectPermission{perm}); err != nil {
		return nil, fmt.Errorf("create permission: %w", err)
	}
	ps.log.Info("Granted permission", "project_id", projectID, "target_user_id", targetUserID, "level", level)
	return perm, nil
}

func (ps *projectService) RevokePermission(ctx context.Context, actorID, projectID, targetUserID uuid.UUID) error {
	allowed, err := ps.permissions.HasPermission(ctx, actorID, projectID, types.PermissionAdmin)
	if err != nil {
		return fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: admin level required to revoke permissions", ErrForbidden)
	}
	projects, err := ps.projRepo.GetByIDs(ctx, nil, []uuid.UUID{projectID})
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if len(projects) == 0 || projects[0] == nil {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	// The owner's admin grant is not revocable.
	if projects[0].OwnerID == targetUserID {
		return fmt.Errorf("%w: cannot revoke the owner's permission", ErrInvalidReference)
	}
	if err := ps.permRepo.Delete(ctx, nil, targetUserID, projectID); err != nil {
		return fmt.Errorf("delete permission: %w", err)
	}
	return nil
}

func (ps *projectService) ListPermissions(ctx context.Context, actorID, projectID uuid.UUID) ([]*types.ProjectPermission, error) {
	allowed, err := ps.permissions.HasPermission(ctx, actorID, projectID, types.PermissionViewer)
	if err != nil {
		return nil, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: user cannot view project", ErrForbidden)
	}
	return ps.permRepo.ListByProjectID(ctx, nil, projectID)
}
