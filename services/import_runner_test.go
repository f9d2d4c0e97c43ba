package services

import (
	"context"
	"errors"
	"testing"

	"site-analytics-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerCompletesJob(t *testing.T) {
	svc, _ := newTestJobService()
	ctx := context.Background()

	job := createTestJob(t, svc, 1, 2500)

	var batches []int
	fetch := func(ctx context.Context, job *models.ImportJob, batch int) (int64, bool, error) {
		batches = append(batches, batch)
		switch batch {
		case 1, 2:
			return 1000, false, nil
		default:
			return 500, true, nil
		}
	}

	runner := NewImportRunner(svc, fetch, 5)
	require.NoError(t, runner.Run(ctx, job.ID))

	assert.Equal(t, []int{1, 2, 3}, batches)

	final, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusCompleted, final.Status)
	assert.Equal(t, int64(2500), final.ImportedRows)
	assert.Equal(t, 100, final.Progress)
	require.NotNil(t, final.CompletedAt)
}

func TestRunnerCompletesWhenSourceExhaustsEarly(t *testing.T) {
	svc, _ := newTestJobService()
	ctx := context.Background()

	// The estimate ran high; the source dries up after one short batch.
	job := createTestJob(t, svc, 1, 50000)

	fetch := func(ctx context.Context, job *models.ImportJob, batch int) (int64, bool, error) {
		return 120, true, nil
	}

	runner := NewImportRunner(svc, fetch, 5)
	require.NoError(t, runner.Run(ctx, job.ID))

	final, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusCompleted, final.Status)
	assert.Equal(t, int64(120), final.ImportedRows)
}

func TestRunnerMarksJobFailed(t *testing.T) {
	svc, _ := newTestJobService()
	ctx := context.Background()

	job := createTestJob(t, svc, 1, 5000)

	fetchErr := errors.New("report api returned 500")
	fetch := func(ctx context.Context, job *models.ImportJob, batch int) (int64, bool, error) {
		if batch == 1 {
			return 1000, false, nil
		}
		return 0, false, fetchErr
	}

	runner := NewImportRunner(svc, fetch, 5)
	err := runner.Run(ctx, job.ID)
	require.ErrorIs(t, err, fetchErr)

	final, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Equal(t, "report api returned 500", *final.ErrorMessage)
	assert.Equal(t, int64(1000), final.ImportedRows)
}

func TestRunnerStopsWhenJobCancelled(t *testing.T) {
	svc, _ := newTestJobService()
	ctx := context.Background()

	job := createTestJob(t, svc, 1, 100000)

	fetch := func(ctx context.Context, job *models.ImportJob, batch int) (int64, bool, error) {
		if batch == 2 {
			// Cancellation lands while this batch is in flight.
			_, err := svc.CancelJob(ctx, job.ID)
			require.NoError(t, err)
		}
		return 1000, false, nil
	}

	runner := NewImportRunner(svc, fetch, 5)
	require.NoError(t, runner.Run(ctx, job.ID))

	final, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusCancelled, final.Status)
	// The in-flight batch finished but its progress update was dropped.
	assert.Equal(t, int64(1000), final.ImportedRows)
}

func TestRunnerKeepsCancellationOnFinalBatch(t *testing.T) {
	svc, _ := newTestJobService()
	ctx := context.Background()

	// High estimate so the progress update alone cannot complete the job.
	job := createTestJob(t, svc, 1, 100000)

	fetch := func(ctx context.Context, job *models.ImportJob, batch int) (int64, bool, error) {
		// Cancellation lands while the source's last batch is in flight.
		_, err := svc.CancelJob(ctx, job.ID)
		require.NoError(t, err)
		return 500, true, nil
	}

	runner := NewImportRunner(svc, fetch, 5)
	require.NoError(t, runner.Run(ctx, job.ID))

	final, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusCancelled, final.Status)
	require.NotNil(t, final.CancelledAt)
	assert.Nil(t, final.CompletedAt)
}

func TestRunnerCheckpointsEveryNBatches(t *testing.T) {
	svc, _ := newTestJobService()
	ctx := context.Background()

	job := createTestJob(t, svc, 1, 7000)

	fetch := func(ctx context.Context, job *models.ImportJob, batch int) (int64, bool, error) {
		return 1000, batch == 7, nil
	}

	runner := NewImportRunner(svc, fetch, 3)
	require.NoError(t, runner.Run(ctx, job.ID))

	final, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, final.CheckpointBatch)
	require.NotNil(t, final.CheckpointRows)
	// Last checkpoint at batch 6.
	assert.Equal(t, 6, *final.CheckpointBatch)
	assert.Equal(t, int64(6000), *final.CheckpointRows)
}

func TestRunnerResumesFromCurrentBatch(t *testing.T) {
	svc, _ := newTestJobService()
	ctx := context.Background()

	job := createTestJob(t, svc, 1, 5000)
	_, err := svc.UpdateProgress(ctx, job.ID, 2000, 2)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, job.ID, models.ImportStatusFailed, "boom")
	require.NoError(t, err)
	_, err = svc.ResumeJob(ctx, job.ID)
	require.NoError(t, err)

	var batches []int
	fetch := func(ctx context.Context, job *models.ImportJob, batch int) (int64, bool, error) {
		batches = append(batches, batch)
		return 1000, false, nil
	}

	runner := NewImportRunner(svc, fetch, 5)
	require.NoError(t, runner.Run(ctx, job.ID))

	// Picks up after batch 2 instead of starting over.
	assert.Equal(t, []int{3, 4, 5}, batches)

	final, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusCompleted, final.Status)
	assert.Equal(t, int64(5000), final.ImportedRows)
}

func TestRunnerRejectsTerminalJob(t *testing.T) {
	svc, _ := newTestJobService()
	ctx := context.Background()

	job := createTestJob(t, svc, 1, 1000)
	_, err := svc.CancelJob(ctx, job.ID)
	require.NoError(t, err)

	runner := NewImportRunner(svc, func(ctx context.Context, job *models.ImportJob, batch int) (int64, bool, error) {
		t.Fatal("fetch must not be called")
		return 0, false, nil
	}, 5)

	err = runner.Run(ctx, job.ID)
	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestRunnerUnknownJob(t *testing.T) {
	svc, _ := newTestJobService()

	runner := NewImportRunner(svc, func(ctx context.Context, job *models.ImportJob, batch int) (int64, bool, error) {
		return 0, true, nil
	}, 5)

	err := runner.Run(context.Background(), "missing")
	var notFoundErr *NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestRunnerContextCancellation(t *testing.T) {
	svc, _ := newTestJobService()

	job := createTestJob(t, svc, 1, 100000)

	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(ctx context.Context, job *models.ImportJob, batch int) (int64, bool, error) {
		if batch == 3 {
			cancel()
		}
		return 1000, false, nil
	}

	runner := NewImportRunner(svc, fetch, 5)
	err := runner.Run(ctx, job.ID)
	require.ErrorIs(t, err, context.Canceled)
}
