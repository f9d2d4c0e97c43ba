package services

import (
	"context"
	"log"

	"site-analytics-api/models"
)

// defaultCheckpointInterval is how many batches pass between checkpoint
// snapshots.
const defaultCheckpointInterval = 5

// BatchFetcher fetches and stores one batch of rows for a job. It returns
// the number of rows stored and whether the data source is exhausted. The
// runner supplies the batch number, starting after the job's current batch
// so resumed jobs skip work already done.
type BatchFetcher func(ctx context.Context, job *models.ImportJob, batch int) (rows int64, done bool, err error)

// ImportRunner drives one import job from its current position to a
// terminal status. It owns no I/O of its own: batches are fetched through
// the supplied callback, so the loop is testable without the network.
type ImportRunner struct {
	jobs            *ImportJobService
	fetch           BatchFetcher
	checkpointEvery int
}

// NewImportRunner constructs a runner around a job service and a fetcher.
func NewImportRunner(jobs *ImportJobService, fetch BatchFetcher, checkpointEvery int) *ImportRunner {
	if checkpointEvery <= 0 {
		checkpointEvery = defaultCheckpointInterval
	}
	return &ImportRunner{jobs: jobs, fetch: fetch, checkpointEvery: checkpointEvery}
}

// Run executes the batch loop for a job. Cancellation is cooperative: the
// job's status is re-checked before every batch and the loop stops quietly
// once the job is no longer active. A batch that was already in flight when
// the job was cancelled completes and keeps its rows; there is no rollback.
// Batch failures move the job to failed instead of escaping the loop.
func (r *ImportRunner) Run(ctx context.Context, jobID string) error {
	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return &NotFoundError{Kind: "import job", ID: jobID}
	}
	if !job.Status.IsActive() {
		return &InvalidStateError{Op: "run", Status: job.Status.String()}
	}

	imported := job.ImportedRows
	batch := job.CurrentBatch

	for {
		current, err := r.jobs.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		if current == nil {
			return &NotFoundError{Kind: "import job", ID: jobID}
		}
		if !current.Status.IsActive() {
			log.Printf("import job %s is %s, stopping worker", jobID, current.Status)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		batch++
		rows, done, err := r.fetch(ctx, current, batch)
		if err != nil {
			if _, statusErr := r.jobs.UpdateStatus(ctx, jobID, models.ImportStatusFailed, err.Error()); statusErr != nil {
				log.Printf("failed to mark import job %s failed: %v", jobID, statusErr)
			}
			return err
		}

		imported += rows
		updated, err := r.jobs.UpdateProgress(ctx, jobID, imported, batch)
		if err != nil {
			return err
		}
		if updated.Status == models.ImportStatusCompleted {
			return nil
		}

		if batch%r.checkpointEvery == 0 {
			if err := r.jobs.CreateCheckpoint(ctx, jobID); err != nil {
				log.Printf("failed to checkpoint import job %s: %v", jobID, err)
			}
		}

		if done {
			// Row estimates can run high; the source deciding it is
			// exhausted completes the job regardless. A job cancelled while
			// this final batch was in flight stays cancelled.
			if updated.Status.IsActive() {
				if _, err := r.jobs.UpdateStatus(ctx, jobID, models.ImportStatusCompleted, ""); err != nil {
					return err
				}
			}
			return nil
		}
	}
}
