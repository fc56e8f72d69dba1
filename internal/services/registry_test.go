package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/manuscript-backend/internal/repos"
)

const testBaseRef = "models/base/latest"

func newRegistryFixture(t *testing.T) (ModelRegistryService, *fakeBucket, repos.ModelVersionRepo) {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)
	versionRepo := repos.NewModelVersionRepo(db, log)
	bucket := newFakeBucket()
	registry := NewModelRegistryService(db, log, versionRepo, bucket, nil, testBaseRef)
	return registry, bucket, versionRepo
}

func TestResolveActiveModel_FallsBackToBase(t *testing.T) {
	registry, _, _ := newRegistryFixture(t)
	ctx := context.Background()

	ref, version, err := registry.ResolveActiveModel(ctx, uuid.New())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ref != testBaseRef || version != 0 {
		t.Fatalf("expected base model (v0), got ref=%q version=%d", ref, version)
	}
}

func TestPublish_RejectsMissingArtifact(t *testing.T) {
	registry, _, versionRepo := newRegistryFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	_, err := registry.Publish(ctx, owner, "models/nowhere", 3)
	if !errors.Is(err, ErrArtifactInvalid) {
		t.Fatalf("expected ErrArtifactInvalid, got %v", err)
	}

	active, err := versionRepo.GetActiveByOwner(ctx, nil, owner)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active != nil {
		t.Fatalf("rejected publish must not leave a version behind, got %+v", active)
	}
}

func TestPublish_RejectsEmptyArtifact(t *testing.T) {
	registry, bucket, _ := newRegistryFixture(t)
	ctx := context.Background()

	bucket.put("models/empty", nil)
	_, err := registry.Publish(ctx, uuid.New(), "models/empty", 1)
	if !errors.Is(err, ErrArtifactInvalid) {
		t.Fatalf("expected ErrArtifactInvalid for empty object, got %v", err)
	}
}

func TestPublish_SwapsActiveVersion(t *testing.T) {
	registry, bucket, versionRepo := newRegistryFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	bucket.put("models/v1", []byte("w1"))
	bucket.put("models/v2", []byte("w2"))

	first, err := registry.Publish(ctx, owner, "models/v1", 5)
	if err != nil {
		t.Fatalf("publish v1: %v", err)
	}
	if first.VersionNumber != 1 {
		t.Fatalf("expected version 1, got %d", first.VersionNumber)
	}

	second, err := registry.Publish(ctx, owner, "models/v2", 9)
	if err != nil {
		t.Fatalf("publish v2: %v", err)
	}
	if second.VersionNumber != 2 {
		t.Fatalf("expected version 2, got %d", second.VersionNumber)
	}

	ref, version, err := registry.ResolveActiveModel(ctx, owner)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ref != "models/v2" || version != 2 {
		t.Fatalf("expected v2 active, got ref=%q version=%d", ref, version)
	}

	history, err := registry.History(ctx, owner)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(history))
	}
	if history[0].VersionNumber != 2 || history[1].VersionNumber != 1 {
		t.Fatalf("history not newest-first: %d, %d", history[0].VersionNumber, history[1].VersionNumber)
	}

	active, err := versionRepo.GetActiveByOwner(ctx, nil, owner)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active == nil || active.VersionNumber != 2 || active.TrainedCheckpoint != 9 {
		t.Fatalf("unexpected active row: %+v", active)
	}
}

func TestPublish_OwnersAreIndependent(t *testing.T) {
	registry, bucket, _ := newRegistryFixture(t)
	ctx := context.Background()
	ownerA := uuid.New()
	ownerB := uuid.New()

	bucket.put("models/a1", []byte("a"))
	if _, err := registry.Publish(ctx, ownerA, "models/a1", 1); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ref, version, err := registry.ResolveActiveModel(ctx, ownerB)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ref != testBaseRef || version != 0 {
		t.Fatalf("owner B must still see the base model, got ref=%q version=%d", ref, version)
	}
}
