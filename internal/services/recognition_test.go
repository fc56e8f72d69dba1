package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

type recognitionFixture struct {
	db       *gorm.DB
	bucket   *fakeBucket
	engine   *fakeRecognitionEngine
	registry ModelRegistryService
	svc      RecognitionService
}

func newRecognitionFixture(t *testing.T) *recognitionFixture {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)

	recogRepo := repos.NewRecognitionRepo(db, log)
	pageRepo := repos.NewPageImageRepo(db, log)
	versionRepo := repos.NewModelVersionRepo(db, log)
	permRepo := repos.NewProjectPermissionRepo(db, log)
	projRepo := repos.NewProjectRepo(db, log)

	bucket := newFakeBucket()
	engine := &fakeRecognitionEngine{text: "the quick brown fox", confidence: 0.91}
	permissions := NewPermissionService(db, log, permRepo, projRepo)
	registry := NewModelRegistryService(db, log, versionRepo, bucket, nil, testBaseRef)
	svc := NewRecognitionService(db, log, recogRepo, pageRepo, permissions, registry, bucket, engine)

	return &recognitionFixture{db: db, bucket: bucket, engine: engine, registry: registry, svc: svc}
}

func TestRecognize_PersistsModelSnapshot(t *testing.T) {
	f := newRecognitionFixture(t)
	ctx := context.Background()

	owner := seedUser(t, f.db, "owner@test.dev")
	project := seedProject(t, f.db, owner, false)
	page := seedPageImage(t, f.db, project, owner, f.bucket)

	result, err := f.svc.Recognize(ctx, owner.ID, project.ID, page.ID)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if result.Text != "the quick brown fox" || result.Confidence != 0.91 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.ModelVersionUsed != 0 || result.StorageRefUsed != testBaseRef {
		t.Fatalf("expected base model snapshot, got v%d ref=%q", result.ModelVersionUsed, result.StorageRefUsed)
	}

	// After a personal model publishes, new results snapshot the new version
	// while the old result stays untouched.
	f.bucket.put("models/v1", []byte("w"))
	if _, err := f.registry.Publish(ctx, owner.ID, "models/v1", 1); err != nil {
		t.Fatalf("publish: %v", err)
	}
	second, err := f.svc.Recognize(ctx, owner.ID, project.ID, page.ID)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if second.ModelVersionUsed != 1 || second.StorageRefUsed != "models/v1" {
		t.Fatalf("expected v1 snapshot, got v%d ref=%q", second.ModelVersionUsed, second.StorageRefUsed)
	}
	if f.engine.lastModelRef != "models/v1" {
		t.Fatalf("engine must be handed the active ref, got %q", f.engine.lastModelRef)
	}

	var first types.RecognitionResult
	if err := f.db.Where("id = ?", result.ID).First(&first).Error; err != nil {
		t.Fatalf("reload first result: %v", err)
	}
	if first.ModelVersionUsed != 0 {
		t.Fatalf("old result snapshot changed to v%d", first.ModelVersionUsed)
	}
}

func TestRecognize_UsesRequestersModel(t *testing.T) {
	f := newRecognitionFixture(t)
	ctx := context.Background()

	owner := seedUser(t, f.db, "owner@test.dev")
	collaborator := seedUser(t, f.db, "collab@test.dev")
	project := seedProject(t, f.db, owner, false)
	seedPermission(t, f.db, collaborator, project, types.PermissionViewer)
	page := seedPageImage(t, f.db, project, owner, f.bucket)

	f.bucket.put("models/owner-v1", []byte("w"))
	if _, err := f.registry.Publish(ctx, owner.ID, "models/owner-v1", 1); err != nil {
		t.Fatalf("publish: %v", err)
	}

	result, err := f.svc.Recognize(ctx, collaborator.ID, project.ID, page.ID)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if result.OwnerID != collaborator.ID {
		t.Fatalf("result owner must be the requester")
	}
	if result.ModelVersionUsed != 0 || result.StorageRefUsed != testBaseRef {
		t.Fatalf("collaborator has no personal model and must get the base, got v%d ref=%q", result.ModelVersionUsed, result.StorageRefUsed)
	}
}

func TestRecognize_PermissionChecks(t *testing.T) {
	f := newRecognitionFixture(t)
	ctx := context.Background()

	owner := seedUser(t, f.db, "owner@test.dev")
	stranger := seedUser(t, f.db, "stranger@test.dev")
	private := seedProject(t, f.db, owner, false)
	page := seedPageImage(t, f.db, private, owner, f.bucket)

	if _, err := f.svc.Recognize(ctx, stranger.ID, private.ID, page.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger on private project: expected ErrForbidden, got %v", err)
	}

	public := seedProject(t, f.db, owner, true)
	publicPage := seedPageImage(t, f.db, public, owner, f.bucket)
	if _, err := f.svc.Recognize(ctx, stranger.ID, public.ID, publicPage.ID); err != nil {
		t.Fatalf("stranger on public project must be allowed, got %v", err)
	}
}

func TestRecognize_RejectsCrossProjectPage(t *testing.T) {
	f := newRecognitionFixture(t)
	ctx := context.Background()

	owner := seedUser(t, f.db, "owner@test.dev")
	projectA := seedProject(t, f.db, owner, false)
	projectB := seedProject(t, f.db, owner, false)
	pageB := seedPageImage(t, f.db, projectB, owner, f.bucket)

	if _, err := f.svc.Recognize(ctx, owner.ID, projectA.ID, pageB.ID); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestRecognize_EnginePassthroughErrors(t *testing.T) {
	f := newRecognitionFixture(t)
	ctx := context.Background()

	owner := seedUser(t, f.db, "owner@test.dev")
	project := seedProject(t, f.db, owner, false)
	page := seedPageImage(t, f.db, project, owner, f.bucket)

	f.engine.err = ErrEngineUnavailable
	if _, err := f.svc.Recognize(ctx, owner.ID, project.ID, page.ID); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}

	var count int64
	if err := f.db.Model(&types.RecognitionResult{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed recognition must not persist a result")
	}
}
