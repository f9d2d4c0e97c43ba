package models

import (
	"fmt"
	"time"
)

// ImportStatus tracks an import job through its lifecycle.
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusInProgress ImportStatus = "in_progress"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
	ImportStatusCancelled  ImportStatus = "cancelled"
)

func (s ImportStatus) String() string { return string(s) }

// IsActive reports whether a job in this status still holds its site's
// import slot.
func (s ImportStatus) IsActive() bool {
	return s == ImportStatusPending || s == ImportStatusInProgress
}

// IsTerminal reports whether the status is final (subject to manual
// retry/resume for failed and cancelled).
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed || s == ImportStatusCancelled
}

// ValidateTransition checks whether the status may move to target and
// returns an error naming both states if not.
func (s ImportStatus) ValidateTransition(target ImportStatus) error {
	if !s.canTransition(target) {
		return fmt.Errorf("invalid import status transition from %s to %s", s, target)
	}
	return nil
}

func (s ImportStatus) canTransition(target ImportStatus) bool {
	switch s {
	case ImportStatusPending:
		// A pending job can start or be cancelled before it starts.
		return target == ImportStatusInProgress || target == ImportStatusCancelled
	case ImportStatusInProgress:
		return target == ImportStatusCompleted || target == ImportStatusFailed || target == ImportStatusCancelled
	case ImportStatusFailed:
		// Manual retry/resume, or cancellation to give up on the job.
		return target == ImportStatusInProgress || target == ImportStatusCancelled
	case ImportStatusCancelled:
		// Resume only.
		return target == ImportStatusInProgress
	case ImportStatusCompleted:
		// Completed is absorbing.
		return false
	default:
		return false
	}
}

// ImportJob represents one historical data pull for a site from an external
// analytics property. At most one job per site may be pending or in_progress
// at any time.
type ImportJob struct {
	ID         string `json:"id" gorm:"column:id;primaryKey;type:varchar(36)"`
	SiteID     uint64 `json:"site_id" gorm:"column:site_id;not null;index"`
	PropertyID string `json:"property_id" gorm:"column:property_id;type:varchar(64);not null"`
	Format     string `json:"format" gorm:"column:format;type:varchar(16);not null;default:'json'"`

	Status ImportStatus `json:"status" gorm:"column:status;type:varchar(32);not null;default:'pending';index"`

	// Date range is fixed at creation, stored as YYYY-MM-DD.
	StartDate string `json:"start_date" gorm:"column:start_date;type:varchar(10);not null"`
	EndDate   string `json:"end_date" gorm:"column:end_date;type:varchar(10);not null"`

	TotalRows    int64 `json:"total_rows" gorm:"column:total_rows;not null;default:0"`
	ImportedRows int64 `json:"imported_rows" gorm:"column:imported_rows;not null;default:0"`
	BatchSize    int64 `json:"batch_size" gorm:"column:batch_size;not null;default:1000"`
	CurrentBatch int   `json:"current_batch" gorm:"column:current_batch;not null;default:0"`
	TotalBatches int   `json:"total_batches" gorm:"column:total_batches;not null;default:0"`
	Progress     int   `json:"progress" gorm:"column:progress;not null;default:0"`

	// Fetch position within the sequence of report shapes. Persisted per
	// batch so a retried or resumed job continues the pull where the
	// previous run stopped instead of re-requesting pages it already
	// stored.
	CursorReport int   `json:"cursor_report" gorm:"column:cursor_report;not null;default:0"`
	CursorOffset int64 `json:"cursor_offset" gorm:"column:cursor_offset;not null;default:0"`

	RetryCount int `json:"retry_count" gorm:"column:retry_count;not null;default:0"`
	MaxRetries int `json:"max_retries" gorm:"column:max_retries;not null;default:3"`

	CheckpointBatch *int       `json:"checkpoint_batch,omitempty" gorm:"column:checkpoint_batch"`
	CheckpointRows  *int64     `json:"checkpoint_rows,omitempty" gorm:"column:checkpoint_rows"`
	CheckpointAt    *time.Time `json:"checkpoint_at,omitempty" gorm:"column:checkpoint_at"`

	ErrorMessage *string `json:"error_message,omitempty" gorm:"column:error_message;type:text"`

	StartedAt   time.Time  `json:"started_at" gorm:"column:started_at;not null"`
	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	FailedAt    *time.Time `json:"failed_at,omitempty" gorm:"column:failed_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty" gorm:"column:cancelled_at"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (ImportJob) TableName() string { return "import_jobs" }

// TerminalAt returns the timestamp matching the job's terminal status, or
// nil when the job is still active.
func (j *ImportJob) TerminalAt() *time.Time {
	switch j.Status {
	case ImportStatusCompleted:
		return j.CompletedAt
	case ImportStatusFailed:
		return j.FailedAt
	case ImportStatusCancelled:
		return j.CancelledAt
	default:
		return nil
	}
}
