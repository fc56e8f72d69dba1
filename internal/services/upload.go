package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

var allowedImageMimeTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/tiff": ".tiff",
}

// UploadService validates and stores handwriting page uploads.
type UploadService interface {
	UploadPageImage(ctx context.Context, userID, projectID uuid.UUID, originalName, mimeType string, data []byte) (*types.PageImage, error)
	ListPageImages(ctx context.Context, userID, projectID uuid.UUID) ([]*types.PageImage, error)
	DeletePageImage(ctx context.Context, userID, projectID, pageImageID uuid.UUID) error
}

type uploadService struct {
	db          *gorm.DB
	log         *logger.Logger
	pageRepo    repos.PageImageRepo
	permissions PermissionService
	bucket      BucketService
	maxBytes    int64
}

func NewUploadService(
	db *gorm.DB,
	baseLog *logger.Logger,
	pageRepo repos.PageImageRepo,
	permissions PermissionService,
	bucket BucketService,
	maxImageSizeMB int,
) UploadService {
	if maxImageSizeMB <= 0 {
		maxImageSizeMB = 10
	}
	return &uploadService{
		db:          db,
		log:         baseLog.With("service", "UploadService"),
		pageRepo:    pageRepo,
		permissions: permissions,
		bucket:      bucket,
		maxBytes:    int64(maxImageSizeMB) * 1024 * 1024,
	}
}

func (us *uploadService) UploadPageImage(ctx context.Context, userID, projectID uuid.UUID, originalName, mimeType string, data []byte) (*types.PageImage, error) {
	allowed, err := us.permissions.HasPermission(ctx, userID, projectID, types.PermissionModelEditor)
	if err != nil {
		return nil, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: model_editor level required to upload pages", ErrForbidden)
	}

	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	ext, ok := allowedImageMimeTypes[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported mime type %q", ErrImageInvalid, mimeType)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrImageInvalid)
	}
	if int64(len(data)) > us.maxBytes {
		return nil, fmt.Errorf("%w: upload exceeds %d bytes", ErrImageInvalid, us.maxBytes)
	}

	pageID := uuid.New()
	if nameExt := strings.ToLower(path.Ext(originalName)); nameExt != "" {
		ext = nameExt
	}
	storageKey := fmt.Sprintf("projects/%s/pages/%s%s", projectID.String(), pageID.String(), ext)

	if err := us.bucket.UploadFile(ctx, storageKey, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("upload page image: %w", err)
	}

	page := &types.PageImage{
		ID:           pageID,
		ProjectID:    projectID,
		UploaderID:   userID,
		OriginalName: strings.TrimSpace(originalName),
		MimeType:     mimeType,
		SizeBytes:    int64(len(data)),
		StorageKey:   storageKey,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if _, err := us.pageRepo.Create(ctx, nil, []*types.PageImage{page}); err != nil {
		// Keep the bucket consistent with the DB on failure.
		if delErr := us.bucket.DeleteFile(ctx, storageKey); delErr != nil {
			us.log.Warn("Failed to clean up orphaned upload (ignored)", "storage_key", storageKey, "error", delErr)
		}
		return nil, fmt.Errorf("persist page image: %w", err)
	}

	us.log.Info("Uploaded page image",
		"page_image_id", page.ID,
		"project_id", projectID,
		"uploader_id", userID,
		"size_bytes", page.SizeBytes)
	return page, nil
}

func (us *uploadService) ListPageImages(ctx context.Context, userID, projectID uuid.UUID) ([]*types.PageImage, error) {
	allowed, err := us.permissions.HasPermission(ctx, userID, projectID, types.PermissionViewer)
	if err != nil {
		return nil, fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: user cannot view project", ErrForbidden)
	}
	return us.pageRepo.ListByProjectID(ctx, nil, projectID)
}

func (us *uploadService) DeletePageImage(ctx context.Context, userID, projectID, pageImageID uuid.UUID) error {
	allowed, err := us.permissions.HasPermission(ctx, userID, projectID, types.PermissionModelEditor)
	if err != nil {
		return fmt.Errorf("check permission: %w", err)
	}
	if !allowed {
		return fmt.Errorf("%w: model_editor level required to delete pages", ErrForbidden)
	}

	pages, err := us.pageRepo.GetByIDs(ctx, nil, []uuid.UUID{pageImageID})
	if err != nil {
		return fmt.Errorf("load page image: %w", err)
	}
	if len(pages) == 0 || pages[0] == nil {
		return fmt.Errorf("%w: page image %s", ErrNotFound, pageImageID)
	}
	page := pages[0]
	if page.ProjectID != projectID {
		return fmt.Errorf("%w: page image belongs to another project", ErrInvalidReference)
	}

	if err := us.pageRepo.Delete(ctx, nil, pageImageID); err != nil {
		return fmt.Errorf("delete page image: %w", err)
	}
	if err := us.bucket.DeleteFile(ctx, page.StorageKey); err != nil {
		us.log.Warn("Failed to delete page object (ignored)", "storage_key", page.StorageKey, "error", err)
	}
	return nil
}
