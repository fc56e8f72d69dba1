package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/manuscript-backend/internal/logger"
	"github.com/yungbote/manuscript-backend/internal/repos"
	"github.com/yungbote/manuscript-backend/internal/types"
)

// ErrNoNewFeedback is returned for an explicit training request when the
// owner's corpus has not advanced past the last successful checkpoint.
var ErrNoNewFeedback = errors.New("no new feedback since last trained model")

// TrainingService runs the asynchronous fine-tune pipeline. Requests append a
// queued TrainingJob; background workers claim jobs one at a time, fine-tune
// against the feedback window [CheckpointAtStart, CheckpointTarget], and
// publish the resulting model version. At most one job per owner is in flight.
type TrainingService interface {
	// RequestTraining enqueues a job for the owner. When a job is already
	// queued or running it returns that job with alreadyInFlight=true instead
	// of creating a second one. Auto requests (explicit=false) below the
	// feedback threshold return (nil, false, nil).
	RequestTraining(ctx context.Context, ownerID uuid.UUID, explicit bool) (job *types.TrainingJob, alreadyInFlight bool, err error)

	// CancelJob cancels a queued job. Jobs already running or terminal are not
	// cancelable and return ErrInvalidReference.
	CancelJob(ctx context.Context, ownerID, jobID uuid.UUID) (*types.TrainingJob, error)

	GetJob(ctx context.Context, ownerID, jobID uuid.UUID) (*types.TrainingJob, error)
	ListJobs(ctx context.Context, ownerID uuid.UUID) ([]*types.TrainingJob, error)

	StartWorkers(ctx context.Context, workerCount int)
	Shutdown(ctx context.Context) error
}

type TrainingServiceOptions struct {
	MinFeedback  int
	JobTimeout   time.Duration
	PollInterval time.Duration
}

type trainingService struct {
	db            *gorm.DB
	log           *logger.Logger
	jobRepo       repos.TrainingJobRepo
	pageImageRepo repos.PageImageRepo
	corpus        FeedbackCorpusService
	registry      ModelRegistryService
	engine        TrainingEngine

	minFeedback  int
	jobTimeout   time.Duration
	pollInterval time.Duration

	mu      sync.Mutex
	group   *errgroup.Group
	cancel  context.CancelFunc
	started bool
}

func NewTrainingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	jobRepo repos.TrainingJobRepo,
	pageImageRepo repos.PageImageRepo,
	corpus FeedbackCorpusService,
	registry ModelRegistryService,
	engine TrainingEngine,
	opts TrainingServiceOptions,
) TrainingService {
	if opts.MinFeedback <= 0 {
		opts.MinFeedback = 5
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &trainingService{
		db:            db,
		log:           baseLog.With("service", "TrainingService"),
		jobRepo:       jobRepo,
		pageImageRepo: pageImageRepo,
		corpus:        corpus,
		registry:      registry,
		engine:        engine,
		minFeedback:   opts.MinFeedback,
		jobTimeout:    opts.JobTimeout,
		pollInterval:  opts.PollInterval,
	}
}

func (ts *trainingService) RequestTraining(ctx context.Context, ownerID uuid.UUID, explicit bool) (*types.TrainingJob, bool, error) {
	if ownerID == uuid.Nil {
		return nil, false, fmt.Errorf("%w: missing owner", ErrInvalidReference)
	}

	inflight, err := ts.jobRepo.GetInFlightForOwner(ctx, nil, ownerID)
	if err != nil {
		return nil, false, fmt.Errorf("check in-flight job: %w", err)
	}
	if inflight != nil {
		return inflight, true, nil
	}

	base, err := ts.jobRepo.LastSucceededCheckpoint(ctx, nil, ownerID)
	if err != nil {
		return nil, false, fmt.Errorf("load last checkpoint: %w", err)
	}
	target, err := ts.corpus.CurrentCheckpoint(ctx, ownerID)
	if err != nil {
		return nil, false, fmt.Errorf("load corpus checkpoint: %w", err)
	}

	pending := target - base
	if pending <= 0 {
		if !explicit {
			return nil, false, nil
		}
		return nil, false, ErrNoNewFeedback
	}
	if !explicit && pending < int64(ts.minFeedback) {
		return nil, false, nil
	}

	job := &types.TrainingJob{
		ID:                uuid.New(),
		OwnerID:           ownerID,
		Status:            types.JobStatusQueued,
		CheckpointAtStart: base,
		CheckpointTarget:  target,
		CreatedAt:         time.Now(),
	}
	if _, err := ts.jobRepo.Create(ctx, nil, []*types.TrainingJob{job}); err != nil {
		// The partial unique index rejects a second in-flight job per owner. A
		// concurrent request may have won the race; surface that job instead.
		existing, lookupErr := ts.jobRepo.GetInFlightForOwner(ctx, nil, ownerID)
		if lookupErr == nil && existing != nil {
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("create training job: %w", err)
	}

	ts.log.Info("Queued training job",
		"job_id", job.ID,
		"owner_id", ownerID,
		"checkpoint_at_start", base,
		"checkpoint_target", target,
		"explicit", explicit)
	return job, false, nil
}

func (ts *trainingService) CancelJob(ctx context.Context, ownerID, jobID uuid.UUID) (*types.TrainingJob, error) {
	job, err := ts.getOwnedJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusQueued {
		return nil, fmt.Errorf("%w: job %s is %s, only queued jobs can be canceled", ErrInvalidReference, jobID, job.Status)
	}

	canceled, err := ts.jobRepo.CancelQueued(ctx, nil, jobID)
	if err != nil {
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	if !canceled {
		// A worker claimed the job between our read and the cancel.
		return nil, fmt.Errorf("%w: job %s already started", ErrInvalidReference, jobID)
	}

	jobs, err := ts.jobRepo.GetByIDs(ctx, nil, []uuid.UUID{jobID})
	if err != nil || len(jobs) == 0 {
		return nil, fmt.Errorf("reload canceled job: %w", err)
	}
	ts.log.Info("Canceled training job", "job_id", jobID, "owner_id", ownerID)
	return jobs[0], nil
}

func (ts *trainingService) GetJob(ctx context.Context, ownerID, jobID uuid.UUID) (*types.TrainingJob, error) {
	return ts.getOwnedJob(ctx, ownerID, jobID)
}

func (ts *trainingService) ListJobs(ctx context.Context, ownerID uuid.UUID) ([]*types.TrainingJob, error) {
	return ts.jobRepo.ListByOwner(ctx, nil, ownerID)
}

func (ts *trainingService) getOwnedJob(ctx context.Context, ownerID, jobID uuid.UUID) (*types.TrainingJob, error) {
	jobs, err := ts.jobRepo.GetByIDs(ctx, nil, []uuid.UUID{jobID})
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if len(jobs) == 0 || jobs[0] == nil {
		return nil, fmt.Errorf("%w: training job %s", ErrNotFound, jobID)
	}
	if jobs[0].OwnerID != ownerID {
		return nil, fmt.Errorf("%w: job belongs to another user", ErrForbidden)
	}
	return jobs[0], nil
}

func (ts *trainingService) StartWorkers(ctx context.Context, workerCount int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.started {
		return
	}
	if workerCount <= 0 {
		workerCount = 1
	}

	workerCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(workerCtx)
	ts.group = group
	ts.cancel = cancel
	ts.started = true

	for i := 0; i < workerCount; i++ {
		workerID := i
		group.Go(func() error {
			ts.workerLoop(groupCtx, workerID)
			return nil
		})
	}
	group.Go(func() error {
		ts.reaperLoop(groupCtx)
		return nil
	})

	ts.log.Info("Training workers started", "worker_count", workerCount, "poll_interval", ts.pollInterval.String())
}

// Shutdown stops claiming new jobs and waits for in-progress work to settle.
// Jobs mid fine-tune are marked failed by the reaper on the next boot if the
// process dies before they finish.
func (ts *trainingService) Shutdown(ctx context.Context) error {
	ts.mu.Lock()
	cancel := ts.cancel
	group := ts.group
	ts.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ts *trainingService) workerLoop(ctx context.Context, workerID int) {
	log := ts.log.With("worker_id", workerID)
	ticker := time.NewTicker(ts.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Training worker stopping")
			return
		case <-ticker.C:
			for {
				job, err := ts.jobRepo.ClaimNextQueued(ctx, nil)
				if err != nil {
					log.Error("Failed to claim training job", "error", err)
					break
				}
				if job == nil {
					break
				}
				ts.processJob(ctx, log, job)
			}
		}
	}
}

func (ts *trainingService) reaperLoop(ctx context.Context) {
	interval := ts.jobTimeout / 4
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-ts.jobTimeout)
			reaped, err := ts.jobRepo.FailStaleRunning(ctx, nil, cutoff)
			if err != nil {
				ts.log.Error("Stale job sweep failed", "error", err)
				continue
			}
			if reaped > 0 {
				ts.log.Warn("Marked stale running jobs as timed out", "count", reaped, "cutoff", cutoff)
			}
		}
	}
}

func (ts *trainingService) processJob(ctx context.Context, log *logger.Logger, job *types.TrainingJob) {
	log = log.With("job_id", job.ID, "owner_id", job.OwnerID)
	log.Info("Processing training job", "checkpoint_at_start", job.CheckpointAtStart, "checkpoint_target", job.CheckpointTarget)

	samples, err := ts.materializeSamples(ctx, job)
	if err != nil {
		ts.failJob(ctx, log, job.ID, fmt.Sprintf("materialize corpus: %v", err))
		return
	}
	if len(samples) == 0 {
		ts.failJob(ctx, log, job.ID, "empty training window")
		return
	}

	baseRef, baseVersion, err := ts.registry.ResolveActiveModel(ctx, job.OwnerID)
	if err != nil {
		ts.failJob(ctx, log, job.ID, fmt.Sprintf("resolve base model: %v", err))
		return
	}
	log.Info("Fine-tuning", "base_model_ref", baseRef, "base_version", baseVersion, "sample_count", len(samples))

	stopHeartbeat := ts.heartbeatWhile(ctx, job.ID)
	newRef, tuneErr := ts.engine.FineTune(ctx, baseRef, samples)
	stopHeartbeat()
	if tuneErr != nil {
		ts.failJob(ctx, log, job.ID, fmt.Sprintf("fine-tune: %v", tuneErr))
		return
	}

	// Re-read before publishing. The reaper may have timed this job out while
	// the engine was working; a timed-out job must not publish.
	fresh, err := ts.jobRepo.GetByIDs(ctx, nil, []uuid.UUID{job.ID})
	if err != nil || len(fresh) == 0 {
		log.Error("Failed to reload job before publish", "error", err)
		return
	}
	if fresh[0].Status != types.JobStatusRunning {
		log.Warn("Job no longer running, discarding trained artifact", "status", fresh[0].Status, "model_ref", newRef)
		return
	}

	mv, err := ts.registry.Publish(ctx, job.OwnerID, newRef, job.CheckpointTarget)
	if err != nil {
		ts.failJob(ctx, log, job.ID, fmt.Sprintf("publish: %v", err))
		return
	}

	ok, err := ts.jobRepo.MarkSucceeded(ctx, nil, job.ID, mv.VersionNumber)
	if err != nil {
		log.Error("Failed to mark job succeeded", "error", err)
		return
	}
	if !ok {
		log.Warn("Job left running state during publish, model version stands", "version", mv.VersionNumber)
		return
	}
	log.Info("Training job succeeded", "version", mv.VersionNumber, "model_ref", newRef)
}

func (ts *trainingService) materializeSamples(ctx context.Context, job *types.TrainingJob) ([]TrainingSample, error) {
	records, err := ts.corpus.Materialize(ctx, job.OwnerID, job.CheckpointAtStart, job.CheckpointTarget)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	imageIDs := make([]uuid.UUID, 0, len(records))
	seen := make(map[uuid.UUID]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.PageImageID]; dup {
			continue
		}
		seen[rec.PageImageID] = struct{}{}
		imageIDs = append(imageIDs, rec.PageImageID)
	}
	images, err := ts.pageImageRepo.GetByIDs(ctx, nil, imageIDs)
	if err != nil {
		return nil, fmt.Errorf("load page images: %w", err)
	}
	keyByID := make(map[uuid.UUID]string, len(images))
	for _, img := range images {
		keyByID[img.ID] = img.StorageKey
	}

	samples := make([]TrainingSample, 0, len(records))
	for _, rec := range records {
		key, found := keyByID[rec.PageImageID]
		if !found || strings.TrimSpace(key) == "" {
			// Page deleted after the feedback was recorded. Skip the sample rather
			// than failing the whole window.
			ts.log.Warn("Feedback references missing page image, skipping sample", "feedback_id", rec.ID, "page_image_id", rec.PageImageID)
			continue
		}
		samples = append(samples, TrainingSample{ImageStorageKey: key, Text: rec.CorrectedText})
	}
	return samples, nil
}

func (ts *trainingService) heartbeatWhile(ctx context.Context, jobID uuid.UUID) func() {
	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := ts.jobRepo.Heartbeat(hbCtx, nil, jobID); err != nil {
					ts.log.Warn("Job heartbeat failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (ts *trainingService) failJob(ctx context.Context, log *logger.Logger, jobID uuid.UUID, reason string) {
	ok, err := ts.jobRepo.MarkFailed(ctx, nil, jobID, reason)
	if err != nil {
		log.Error("Failed to mark job failed", "reason", reason, "error", err)
		return
	}
	if !ok {
		log.Warn("Job already left running state", "reason", reason)
		return
	}
	log.Warn("Training job failed", "reason", reason)
}
