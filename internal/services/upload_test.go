package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

func newUploadFixture(t *testing.T, maxMB int) (UploadService, *gorm.DB, *fakeBucket) {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)
	pageRepo := repos.NewPageImageRepo(db, log)
	permRepo := repos.NewProjectPermissionRepo(db, log)
	projRepo := repos.NewProjectRepo(db, log)
	permissions := NewPermissionService(db, log, permRepo, projRepo)
	bucket := newFakeBucket()
	svc := NewUploadService(db, log, pageRepo, permissions, bucket, maxMB)
	return svc, db, bucket
}

func TestUploadPageImage_Validation(t *testing.T) {
	svc, db, _ := newUploadFixture(t, 1)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@test.dev")
	project := seedProject(t, db, owner, false)

	cases := []struct {
		name     string
		mimeType string
		data     []byte
		wantErr  error
	}{
		{"png ok", "image/png", []byte("png-bytes"), nil},
		{"jpeg ok", "image/jpeg", []byte("jpeg-bytes"), nil},
		{"gif ok", "image/gif", []byte("gif-bytes"), nil},
		{"tiff ok", "image/tiff", []byte("tiff-bytes"), nil},
		{"pdf rejected", "application/pdf", []byte("%PDF"), ErrImageInvalid},
		{"svg rejected", "image/svg+xml", []byte("<svg/>"), ErrImageInvalid},
		{"empty rejected", "image/png", nil, ErrImageInvalid},
		{"oversize rejected", "image/png", []byte(strings.Repeat("x", 2*1024*1024)), ErrImageInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UploadPageImage(ctx, owner.ID, project.ID, "scan.bin", tc.mimeType, tc.data)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestUploadPageImage_StoresObjectAndRow(t *testing.T) {
	svc, db, bucket := newUploadFixture(t, 10)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@test.dev")
	project := seedProject(t, db, owner, false)

	page, err := svc.UploadPageImage(ctx, owner.ID, project.ID, "notes.png", "image/png", []byte("img"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(page.StorageKey, "projects/"+project.ID.String()+"/pages/") {
		t.Fatalf("unexpected storage key %q", page.StorageKey)
	}
	ok, err := bucket.Validate(ctx, page.StorageKey)
	if err != nil || !ok {
		t.Fatalf("object missing from bucket: ok=%v err=%v", ok, err)
	}

	pages, err := svc.ListPageImages(ctx, owner.ID, project.ID)
	if err != nil || len(pages) != 1 {
		t.Fatalf("list: %v (%d)", err, len(pages))
	}
}

func TestUploadPageImage_RequiresModelEditor(t *testing.T) {
	svc, db, _ := newUploadFixture(t, 10)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@test.dev")
	viewer := seedUser(t, db, "viewer@test.dev")
	project := seedProject(t, db, owner, false)
	seedPermission(t, db, viewer, project, types.PermissionViewer)

	if _, err := svc.UploadPageImage(ctx, viewer.ID, project.ID, "x.png", "image/png", []byte("img")); !errors.Is(err, ErrForbidden) {
		t.Fatalf("viewer upload: expected ErrForbidden, got %v", err)
	}
}

func TestDeletePageImage_RemovesObject(t *testing.T) {
	svc, db, bucket := newUploadFixture(t, 10)
	ctx := context.Background()
	owner := seedUser(t, db, "owner@test.dev")
	project := seedProject(t, db, owner, false)

	page, err := svc.UploadPageImage(ctx, owner.ID, project.ID, "notes.png", "image/png", []byte("img"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := svc.DeletePageImage(ctx, owner.ID, project.ID, page.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, _ := bucket.Validate(ctx, page.StorageKey)
	if ok {
		t.Fatalf("object should be gone after delete")
	}
}
