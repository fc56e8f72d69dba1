package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

func newCorpusFixture(t *testing.T) (FeedbackCorpusService, *gorm.DB, *logger.Logger) {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)
	feedbackRepo := repos.NewFeedbackRepo(db, log)
	recogRepo := repos.NewRecognitionRepo(db, log)
	permRepo := repos.NewProjectPermissionRepo(db, log)
	projRepo := repos.NewProjectRepo(db, log)
	permissions := NewPermissionService(db, log, permRepo, projRepo)
	corpus := NewFeedbackCorpusService(db, log, feedbackRepo, recogRepo, permissions)
	return corpus, db, log
}

func TestRecord_AssignsMonotonicSeq(t *testing.T) {
	corpus, db, _ := newCorpusFixture(t)
	ctx := context.Background()

	owner := seedUser(t, db, "owner@test.dev")
	project := seedProject(t, db, owner, false)
	page := seedPageImage(t, db, project, owner, nil)
	source := seedRecognition(t, db, owner, project, page)

	first, err := corpus.Record(ctx, owner.ID, project.ID, page.ID, source.ID, "first correction")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	second, err := corpus.Record(ctx, owner.ID, project.ID, page.ID, source.ID, "second correction")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected seq 1,2 got %d,%d", first.Seq, second.Seq)
	}

	checkpoint, err := corpus.CurrentCheckpoint(ctx, owner.ID)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if checkpoint != 2 {
		t.Fatalf("expected checkpoint 2, got %d", checkpoint)
	}
}

func TestRecord_SeqIsPerOwner(t *testing.T) {
	corpus, db, _ := newCorpusFixture(t)
	ctx := context.Background()

	ownerA := seedUser(t, db, "a@test.dev")
	ownerB := seedUser(t, db, "b@test.dev")
	project := seedProject(t, db, ownerA, false)
	seedPermission(t, db, ownerB, project, types.PermissionModelEditor)
	page := seedPageImage(t, db, project, ownerA, nil)
	sourceA := seedRecognition(t, db, ownerA, project, page)
	sourceB := seedRecognition(t, db, ownerB, project, page)

	recA, err := corpus.Record(ctx, ownerA.ID, project.ID, page.ID, sourceA.ID, "a1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	recB, err := corpus.Record(ctx, ownerB.ID, project.ID, page.ID, sourceB.ID, "b1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if recA.Seq != 1 || recB.Seq != 1 {
		t.Fatalf("sequences must be independent per owner, got %d and %d", recA.Seq, recB.Seq)
	}
}

func TestRecord_RejectsMismatchedSource(t *testing.T) {
	corpus, db, _ := newCorpusFixture(t)
	ctx := context.Background()

	owner := seedUser(t, db, "owner@test.dev")
	project := seedProject(t, db, owner, false)
	page := seedPageImage(t, db, project, owner, nil)
	otherPage := seedPageImage(t, db, project, owner, nil)
	source := seedRecognition(t, db, owner, project, page)

	_, err := corpus.Record(ctx, owner.ID, project.ID, otherPage.ID, source.ID, "text")
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference for mismatched page, got %v", err)
	}

	_, err = corpus.Record(ctx, owner.ID, project.ID, page.ID, uuid.New(), "text")
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference for unknown source, got %v", err)
	}

	_, err = corpus.Record(ctx, owner.ID, project.ID, page.ID, source.ID, "   ")
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference for empty text, got %v", err)
	}
}

func TestRecord_RequiresModelEditor(t *testing.T) {
	corpus, db, _ := newCorpusFixture(t)
	ctx := context.Background()

	owner := seedUser(t, db, "owner@test.dev")
	viewer := seedUser(t, db, "viewer@test.dev")
	project := seedProject(t, db, owner, false)
	seedPermission(t, db, viewer, project, types.PermissionViewer)
	page := seedPageImage(t, db, project, owner, nil)
	source := seedRecognition(t, db, viewer, project, page)

	_, err := corpus.Record(ctx, viewer.ID, project.ID, page.ID, source.ID, "text")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("viewer must not record feedback, got %v", err)
	}
}

func TestMaterialize_RangeIsStable(t *testing.T) {
	corpus, db, log := newCorpusFixture(t)
	ctx := context.Background()

	owner := seedUser(t, db, "owner@test.dev")
	project := seedProject(t, db, owner, false)
	page := seedPageImage(t, db, project, owner, nil)
	source := seedRecognition(t, db, owner, project, page)
	seedFeedback(t, db, log, owner, project, page, source, 3)

	window, err := corpus.Materialize(ctx, owner.ID, 0, 2)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(window) != 2 || window[0].Seq != 1 || window[1].Seq != 2 {
		t.Fatalf("unexpected window: %#v", window)
	}

	// Appending more feedback must not change an already-materialized range.
	seedFeedback(t, db, log, owner, project, page, source, 2)
	again, err := corpus.Materialize(ctx, owner.ID, 0, 2)
	if err != nil {
		t.Fatalf("materialize again: %v", err)
	}
	if len(again) != 2 || again[0].ID != window[0].ID || again[1].ID != window[1].ID {
		t.Fatalf("materialized range changed between reads")
	}

	count, err := corpus.CountSince(ctx, owner.ID, 2)
	if err != nil {
		t.Fatalf("count since: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 records past checkpoint 2, got %d", count)
	}
}
