package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"site-analytics-api/models"
	"site-analytics-api/utils"

	"github.com/google/uuid"
)

const (
	// DefaultBatchSize is the number of rows fetched and committed per batch.
	DefaultBatchSize = 1000
	// DefaultMaxRetries bounds manual retries of a failed job.
	DefaultMaxRetries = 3
)

// CreateJobInput carries the parameters for a new import job.
type CreateJobInput struct {
	SiteID        uint64
	PropertyID    string
	StartDate     string
	EndDate       string
	Format        string
	EstimatedRows int64
	BatchSize     int64
	MaxRetries    int
}

// ImportJobService owns the import job lifecycle: creation, progress,
// checkpoints, cancellation, recovery and cleanup. It performs no I/O other
// than through its store and is safe to call from request handlers and
// worker goroutines alike. All entry points that create or reactivate a job
// re-check the single-active-job-per-site invariant inside the site lock.
type ImportJobService struct {
	store ImportJobStore
}

// NewImportJobService constructs an ImportJobService on the given store.
func NewImportJobService(store ImportJobStore) *ImportJobService {
	return &ImportJobService{store: store}
}

// CreateJob registers a new pending import job for a site. It fails with
// ConflictError when the site already has a pending or in_progress job.
func (s *ImportJobService) CreateJob(ctx context.Context, input *CreateJobInput) (*models.ImportJob, error) {
	if input == nil {
		return nil, &ValidationError{Msg: "input is nil"}
	}
	if input.SiteID == 0 {
		return nil, &ValidationError{Msg: "site id is required"}
	}
	if strings.TrimSpace(input.PropertyID) == "" {
		return nil, &ValidationError{Msg: "property id is required"}
	}
	if strings.TrimSpace(input.StartDate) == "" || strings.TrimSpace(input.EndDate) == "" {
		return nil, &ValidationError{Msg: "date range is required"}
	}
	if msg := utils.ValidateDateRange(input.StartDate, input.EndDate); msg != "" {
		return nil, &ValidationError{Msg: msg}
	}
	if input.Format != "" && !utils.ValidateImportFormat(input.Format) {
		return nil, &ValidationError{Msg: fmt.Sprintf("unsupported format %q, expected json or csv", input.Format)}
	}
	if input.EstimatedRows < 0 {
		return nil, &ValidationError{Msg: "estimated rows must not be negative"}
	}

	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	maxRetries := input.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	format := strings.ToLower(strings.TrimSpace(input.Format))
	if format == "" {
		format = "json"
	}

	job := &models.ImportJob{
		ID:           uuid.New().String(),
		SiteID:       input.SiteID,
		PropertyID:   strings.TrimSpace(input.PropertyID),
		Format:       format,
		Status:       models.ImportStatusPending,
		StartDate:    input.StartDate,
		EndDate:      input.EndDate,
		TotalRows:    input.EstimatedRows,
		BatchSize:    batchSize,
		TotalBatches: totalBatches(input.EstimatedRows, batchSize),
		MaxRetries:   maxRetries,
		StartedAt:    time.Now(),
	}

	err := s.store.WithSiteLock(ctx, input.SiteID, func() error {
		active, err := s.store.FindActiveBySite(ctx, input.SiteID)
		if err != nil {
			return err
		}
		if active != nil {
			return &ConflictError{Msg: fmt.Sprintf("site %d already has an active import job %s", input.SiteID, active.ID)}
		}
		return s.store.Create(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetJob returns the job or (nil, nil) when it does not exist.
func (s *ImportJobService) GetJob(ctx context.Context, jobID string) (*models.ImportJob, error) {
	return s.store.Get(ctx, jobID)
}

// UpdateProgress records the rows imported so far and the batch just
// finished. Reaching the known row total completes the job. Updates for a
// job that is no longer active are dropped: a batch that was in flight when
// the job was cancelled must not resurrect it.
func (s *ImportJobService) UpdateProgress(ctx context.Context, jobID string, importedRows int64, currentBatch int) (*models.ImportJob, error) {
	return s.mutateJob(ctx, jobID, func(job *models.ImportJob) error {
		if job.Status.IsTerminal() {
			return nil
		}

		if job.TotalRows > 0 && importedRows > job.TotalRows {
			importedRows = job.TotalRows
		}
		job.ImportedRows = importedRows
		job.CurrentBatch = currentBatch
		job.Progress = progressPercent(importedRows, job.TotalRows)

		if job.TotalRows > 0 && importedRows >= job.TotalRows {
			if job.Status == models.ImportStatusPending {
				job.Status = models.ImportStatusInProgress
			}
			job.Progress = 100
			return s.applyStatus(job, models.ImportStatusCompleted, "")
		}
		if job.Status == models.ImportStatusPending {
			return s.applyStatus(job, models.ImportStatusInProgress, "")
		}
		return nil
	})
}

// UpdateStatus performs a direct status transition, setting the matching
// terminal timestamp and, for failed, the error message.
func (s *ImportJobService) UpdateStatus(ctx context.Context, jobID string, status models.ImportStatus, errMsg string) (*models.ImportJob, error) {
	return s.mutateJob(ctx, jobID, func(job *models.ImportJob) error {
		return s.applyStatus(job, status, errMsg)
	})
}

// CancelJob cancels a job that has not finished. Progress counters are left
// as last recorded; there is no partial-batch rollback.
func (s *ImportJobService) CancelJob(ctx context.Context, jobID string) (*models.ImportJob, error) {
	return s.mutateJob(ctx, jobID, func(job *models.ImportJob) error {
		if job.Status == models.ImportStatusCompleted || job.Status == models.ImportStatusCancelled {
			return &InvalidStateError{Op: "cancel", Status: job.Status.String()}
		}
		return s.applyStatus(job, models.ImportStatusCancelled, "")
	})
}

// ResumeJob moves a failed or cancelled job back to in_progress, preserving
// its progress counters. It fails with ConflictError when another job has
// become active for the same site in the meantime.
func (s *ImportJobService) ResumeJob(ctx context.Context, jobID string) (*models.ImportJob, error) {
	return s.mutateJob(ctx, jobID, func(job *models.ImportJob) error {
		if job.Status != models.ImportStatusFailed && job.Status != models.ImportStatusCancelled {
			return &InvalidStateError{Op: "resume", Status: job.Status.String()}
		}
		if err := s.checkNoOtherActive(ctx, job); err != nil {
			return err
		}
		return s.applyStatus(job, models.ImportStatusInProgress, "")
	})
}

// RetryFailedJob re-runs a failed job, consuming one retry. Once the retry
// budget is used up it fails with ErrMaxRetriesExceeded.
func (s *ImportJobService) RetryFailedJob(ctx context.Context, jobID string) (*models.ImportJob, error) {
	return s.mutateJob(ctx, jobID, func(job *models.ImportJob) error {
		if job.Status != models.ImportStatusFailed {
			return &InvalidStateError{Op: "retry", Status: job.Status.String()}
		}
		if job.RetryCount >= job.MaxRetries {
			return ErrMaxRetriesExceeded
		}
		if err := s.checkNoOtherActive(ctx, job); err != nil {
			return err
		}
		job.RetryCount++
		return s.applyStatus(job, models.ImportStatusInProgress, "")
	})
}

// AdvanceCursor persists the fetch position after a batch so a retried or
// resumed job picks up the pull where the previous run stopped. Updates for
// a job that has gone terminal are dropped, mirroring UpdateProgress.
func (s *ImportJobService) AdvanceCursor(ctx context.Context, jobID string, reportIndex int, offset int64) error {
	_, err := s.mutateJob(ctx, jobID, func(job *models.ImportJob) error {
		if job.Status.IsTerminal() {
			return nil
		}
		job.CursorReport = reportIndex
		job.CursorOffset = offset
		return nil
	})
	return err
}

// CreateCheckpoint snapshots the job's current batch and row count so a
// later resume can skip work already done.
func (s *ImportJobService) CreateCheckpoint(ctx context.Context, jobID string) error {
	_, err := s.mutateJob(ctx, jobID, func(job *models.ImportJob) error {
		now := time.Now()
		batch := job.CurrentBatch
		rows := job.ImportedRows
		job.CheckpointBatch = &batch
		job.CheckpointRows = &rows
		job.CheckpointAt = &now
		return nil
	})
	return err
}

// HasActiveImport reports whether the site has a pending or in_progress job.
func (s *ImportJobService) HasActiveImport(ctx context.Context, siteID uint64) (bool, error) {
	job, err := s.store.FindActiveBySite(ctx, siteID)
	if err != nil {
		return false, err
	}
	return job != nil, nil
}

// GetActiveJobForSite returns the site's active job or (nil, nil).
func (s *ImportJobService) GetActiveJobForSite(ctx context.Context, siteID uint64) (*models.ImportJob, error) {
	return s.store.FindActiveBySite(ctx, siteID)
}

// ListJobsForSite returns the site's import history, newest first.
func (s *ImportJobService) ListJobsForSite(ctx context.Context, siteID uint64) ([]models.ImportJob, error) {
	return s.store.ListBySite(ctx, siteID)
}

// DeleteJob removes a job record outright. Used by the dashboard's delete
// endpoint after the job has been cancelled.
func (s *ImportJobService) DeleteJob(ctx context.Context, jobID string) error {
	return s.store.Delete(ctx, jobID)
}

// CleanupOldJobs deletes terminal jobs whose terminal timestamp is older
// than daysOld days and returns the number deleted.
func (s *ImportJobService) CleanupOldJobs(ctx context.Context, daysOld int) (int64, error) {
	if daysOld < 0 {
		return 0, &ValidationError{Msg: "daysOld must not be negative"}
	}
	cutoff := time.Now().AddDate(0, 0, -daysOld)
	return s.store.DeleteTerminalBefore(ctx, cutoff)
}

// mutateJob loads the job inside its site lock, applies fn and persists the
// result. Running the whole read-modify-write under the lock serializes
// progress updates per job.
func (s *ImportJobService) mutateJob(ctx context.Context, jobID string, fn func(job *models.ImportJob) error) (*models.ImportJob, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, &NotFoundError{Kind: "import job", ID: jobID}
	}

	var updated *models.ImportJob
	err = s.store.WithSiteLock(ctx, job.SiteID, func() error {
		current, err := s.store.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if current == nil {
			return &NotFoundError{Kind: "import job", ID: jobID}
		}
		if err := fn(current); err != nil {
			return err
		}
		if err := s.store.Update(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// checkNoOtherActive enforces the invariant before reactivating a job.
func (s *ImportJobService) checkNoOtherActive(ctx context.Context, job *models.ImportJob) error {
	active, err := s.store.FindActiveBySite(ctx, job.SiteID)
	if err != nil {
		return err
	}
	if active != nil && active.ID != job.ID {
		return &ConflictError{Msg: fmt.Sprintf("site %d already has an active import job %s", job.SiteID, active.ID)}
	}
	return nil
}

// applyStatus validates and performs a transition, maintaining the terminal
// timestamp and error message so they always match the status.
func (s *ImportJobService) applyStatus(job *models.ImportJob, status models.ImportStatus, errMsg string) error {
	if err := job.Status.ValidateTransition(status); err != nil {
		return &InvalidStateError{Op: "transition to " + status.String(), Status: job.Status.String()}
	}

	job.Status = status
	job.CompletedAt = nil
	job.FailedAt = nil
	job.CancelledAt = nil
	job.ErrorMessage = nil

	now := time.Now()
	switch status {
	case models.ImportStatusCompleted:
		job.CompletedAt = &now
	case models.ImportStatusFailed:
		job.FailedAt = &now
		if errMsg != "" {
			job.ErrorMessage = &errMsg
		}
	case models.ImportStatusCancelled:
		job.CancelledAt = &now
	}
	return nil
}

func totalBatches(totalRows, batchSize int64) int {
	if totalRows <= 0 || batchSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(totalRows) / float64(batchSize)))
}

func progressPercent(importedRows, totalRows int64) int {
	if totalRows <= 0 {
		return 0
	}
	return int(math.Round(float64(importedRows) / float64(totalRows) * 100))
}
