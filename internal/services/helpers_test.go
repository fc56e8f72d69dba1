package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

var testDBCounter int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_test_%d?mode=memory&cache=shared", atomic.AddInt64(&testDBCounter, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.Project{},
		&types.ProjectPermission{},
		&types.PageImage{},
		&types.ModelVersion{},
		&types.FeedbackRecord{},
		&types.TrainingJob{},
		&types.RecognitionResult{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// fakeBucket is an in-memory BucketService.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func (fb *fakeBucket) UploadFile(ctx context.Context, key string, file io.Reader) error {
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.objects[key] = data
	return nil
}

func (fb *fakeBucket) DownloadFile(ctx context.Context, key string) ([]byte, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	data, ok := fb.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return data, nil
}

func (fb *fakeBucket) DeleteFile(ctx context.Context, key string) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	delete(fb.objects, key)
	return nil
}

func (fb *fakeBucket) Validate(ctx context.Context, key string) (bool, error) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	data, ok := fb.objects[key]
	return ok && len(data) > 0, nil
}

func (fb *fakeBucket) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

func (fb *fakeBucket) put(key string, data []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.objects[key] = data
}

// fakeRecognitionEngine returns canned text and records what it was asked.
type fakeRecognitionEngine struct {
	text       string
	confidence float64
	err        error

	mu           sync.Mutex
	lastModelRef string
	calls        int
}

func (fe *fakeRecognitionEngine) Transcribe(ctx context.Context, image []byte, mimeType string, modelRef string) (string, float64, error) {
	fe.mu.Lock()
	fe.lastModelRef = modelRef
	fe.calls++
	fe.mu.Unlock()
	if fe.err != nil {
		return "", 0, fe.err
	}
	return fe.text, fe.confidence, nil
}

// fakeTrainingEngine produces a new artifact ref and optionally writes it into
// a bucket so registry validation passes.
type fakeTrainingEngine struct {
	bucket *fakeBucket
	err    error

	mu          sync.Mutex
	calls       int
	lastBase    string
	lastSamples []TrainingSample
}

func (fe *fakeTrainingEngine) FineTune(ctx context.Context, baseModelRef string, samples []TrainingSample) (string, error) {
	fe.mu.Lock()
	fe.calls++
	fe.lastBase = baseModelRef
	fe.lastSamples = append([]TrainingSample(nil), samples...)
	call := fe.calls
	fe.mu.Unlock()
	if fe.err != nil {
		return "", fmt.Errorf("%w: %v", ErrTrainingFailed, fe.err)
	}
	ref := fmt.Sprintf("models/test/tuned-%d", call)
	if fe.bucket != nil {
		fe.bucket.put(ref, []byte("weights"))
	}
	return ref, nil
}

func seedUser(t *testing.T, db *gorm.DB, email string) *types.User {
	t.Helper()
	user := &types.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  "hashed",
		FirstName: "Test",
		LastName:  "User",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedProject(t *testing.T, db *gorm.DB, owner *types.User, isPublic bool) *types.Project {
	t.Helper()
	project := &types.Project{
		ID:        uuid.New(),
		OwnerID:   owner.ID,
		Name:      "Field Notes",
		IsPublic:  isPublic,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(project).Error; err != nil {
		t.Fatalf("seed project: %v", err)
	}
	perm := &types.ProjectPermission{
		UserID:    owner.ID,
		ProjectID: project.ID,
		Level:     types.PermissionAdmin,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(perm).Error; err != nil {
		t.Fatalf("seed owner permission: %v", err)
	}
	return project
}

func seedPermission(t *testing.T, db *gorm.DB, user *types.User, project *types.Project, level types.PermissionLevel) {
	t.Helper()
	perm := &types.ProjectPermission{
		UserID:    user.ID,
		ProjectID: project.ID,
		Level:     level,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := db.Create(perm).Error; err != nil {
		t.Fatalf("seed permission: %v", err)
	}
}

func seedPageImage(t *testing.T, db *gorm.DB, project *types.Project, uploader *types.User, bucket *fakeBucket) *types.PageImage {
	t.Helper()
	page := &types.PageImage{
		ID:           uuid.New(),
		ProjectID:    project.ID,
		UploaderID:   uploader.ID,
		OriginalName: "page.png",
		MimeType:     "image/png",
		SizeBytes:    4,
		StorageKey:   fmt.Sprintf("projects/%s/pages/%s.png", project.ID, uuid.New()),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := db.Create(page).Error; err != nil {
		t.Fatalf("seed page image: %v", err)
	}
	if bucket != nil {
		bucket.put(page.StorageKey, []byte("page"))
	}
	return page
}

func seedRecognition(t *testing.T, db *gorm.DB, owner *types.User, project *types.Project, page *types.PageImage) *types.RecognitionResult {
	t.Helper()
	rr := &types.RecognitionResult{
		ID:               uuid.New(),
		OwnerID:          owner.ID,
		ProjectID:        project.ID,
		PageImageID:      page.ID,
		ModelVersionUsed: 0,
		StorageRefUsed:   "models/base/latest",
		Text:             "guessed text",
		Confidence:       0.5,
		CreatedAt:        time.Now(),
	}
	if err := db.Create(rr).Error; err != nil {
		t.Fatalf("seed recognition: %v", err)
	}
	return rr
}

func seedFeedback(t *testing.T, db *gorm.DB, log *logger.Logger, owner *types.User, project *types.Project, page *types.PageImage, source *types.RecognitionResult, n int) {
	t.Helper()
	feedbackRepo := repos.NewFeedbackRepo(db, log)
	for i := 0; i < n; i++ {
		rec := &types.FeedbackRecord{
			ID:                  uuid.New(),
			OwnerID:             owner.ID,
			ProjectID:           project.ID,
			PageImageID:         page.ID,
			SourceRecognitionID: source.ID,
			CorrectedText:       fmt.Sprintf("corrected %d", i+1),
		}
		if _, err := feedbackRepo.CreateWithNextSeq(context.Background(), nil, rec); err != nil {
			t.Fatalf("seed feedback: %v", err)
		}
	}
}
