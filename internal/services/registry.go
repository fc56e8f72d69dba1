package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

// ModelRegistryService owns ModelVersion rows and the active/superseded
// transitions. Everything else reads model state through it.
type ModelRegistryService interface {
	// ResolveActiveModel never fails for a valid owner: users with no personal
	// model fall back to the shared base model (version 0).
	ResolveActiveModel(ctx context.Context, ownerID uuid.UUID) (storageRef string, versionNumber int, err error)

	// Publish validates the artifact, then atomically activates the new version
	// and supersedes the prior one. On ErrArtifactInvalid nothing changes.
	Publish(ctx context.Context, ownerID uuid.UUID, storageRef string, trainedCheckpoint int64) (*types.ModelVersion, error)

	History(ctx context.Context, ownerID uuid.UUID) ([]*types.ModelVersion, error)
}

type modelRegistryService struct {
	db           *gorm.DB
	log          *logger.Logger
	versionRepo  repos.ModelVersionRepo
	bucket       BucketService
	rdb          *goredis.Client
	baseModelRef string
	cacheTTL     time.Duration
}

func NewModelRegistryService(
	db *gorm.DB,
	baseLog *logger.Logger,
	versionRepo repos.ModelVersionRepo,
	bucket BucketService,
	rdb *goredis.Client,
	baseModelRef string,
) ModelRegistryService {
	return &modelRegistryService{
		db:           db,
		log:          baseLog.With("service", "ModelRegistryService"),
		versionRepo:  versionRepo,
		bucket:       bucket,
		rdb:          rdb,
		baseModelRef: baseModelRef,
		cacheTTL:     10 * time.Minute,
	}
}

func activeModelCacheKey(ownerID uuid.UUID) string {
	return "active_model:" + ownerID.String()
}

func (mrs *modelRegistryService) ResolveActiveModel(ctx context.Context, ownerID uuid.UUID) (string, int, error) {
	if mrs.rdb != nil {
		if val, err := mrs.rdb.Get(ctx, activeModelCacheKey(ownerID)).Result(); err == nil {
			if ref, version, ok := parseActiveModelCache(val); ok {
				return ref, version, nil
			}
		}
	}

	mv, err := mrs.versionRepo.GetActiveByOwner(ctx, nil, ownerID)
	if err != nil {
		return "", 0, fmt.Errorf("load active model: %w", err)
	}

	ref := mrs.baseModelRef
	version := 0
	if mv != nil {
		ref = mv.StorageRef
		version = mv.VersionNumber
	}

	if mrs.rdb != nil {
		val := strconv.Itoa(version) + "|" + ref
		if err := mrs.rdb.Set(ctx, activeModelCacheKey(ownerID), val, mrs.cacheTTL).Err(); err != nil {
			mrs.log.Warn("Failed to cache active model (ignored)", "owner_id", ownerID, "error", err)
		}
	}
	return ref, version, nil
}

func parseActiveModelCache(val string) (string, int, bool) {
	parts := strings.SplitN(val, "|", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	version, err := strconv.Atoi(parts[0])
	if err != nil || parts[1] == "" {
		return "", 0, false
	}
	return parts[1], version, true
}

func (mrs *modelRegistryService) Publish(ctx context.Context, ownerID uuid.UUID, storageRef string, trainedCheckpoint int64) (*types.ModelVersion, error) {
	if ownerID == uuid.Nil || strings.TrimSpace(storageRef) == "" {
		return nil, fmt.Errorf("%w: missing owner or storage ref", ErrArtifactInvalid)
	}

	ok, err := mrs.bucket.Validate(ctx, storageRef)
	if err != nil {
		return nil, fmt.Errorf("validate artifact %q: %w", storageRef, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: artifact %q missing or empty", ErrArtifactInvalid, storageRef)
	}

	mv, err := mrs.versionRepo.PublishNewVersion(ctx, nil, ownerID, storageRef, trainedCheckpoint)
	if err != nil {
		return nil, fmt.Errorf("publish model version: %w", err)
	}

	if mrs.rdb != nil {
		if err := mrs.rdb.Del(ctx, activeModelCacheKey(ownerID)).Err(); err != nil {
			mrs.log.Warn("Failed to invalidate active model cache (ignored)", "owner_id", ownerID, "error", err)
		}
	}

	mrs.log.Info("Published model version", "owner_id", ownerID, "version", mv.VersionNumber, "checkpoint", trainedCheckpoint)
	return mv, nil
}

func (mrs *modelRegistryService) History(ctx context.Context, ownerID uuid.UUID) ([]*types.ModelVersion, error) {
	versions, err := mrs.versionRepo.ListByOwner(ctx, nil, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load model history: %w", err)
	}
	return versions, nil
}
