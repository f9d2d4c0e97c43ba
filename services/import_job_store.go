package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"site-analytics-api/config"
	"site-analytics-api/models"

	"gorm.io/gorm"
)

// ImportJobStore persists import jobs. The job service owns all mutation;
// the store only moves records in and out of storage and provides the
// per-site critical section used to enforce the single-active-job invariant.
type ImportJobStore interface {
	Create(ctx context.Context, job *models.ImportJob) error
	// Get returns (nil, nil) when the job does not exist.
	Get(ctx context.Context, id string) (*models.ImportJob, error)
	Update(ctx context.Context, job *models.ImportJob) error
	Delete(ctx context.Context, id string) error
	// FindActiveBySite returns the pending or in_progress job for the site,
	// or (nil, nil) when the site has no active job.
	FindActiveBySite(ctx context.Context, siteID uint64) (*models.ImportJob, error)
	ListBySite(ctx context.Context, siteID uint64) ([]models.ImportJob, error)
	// DeleteTerminalBefore removes terminal jobs whose terminal timestamp is
	// older than cutoff and returns the number deleted. Active jobs are
	// never touched.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// WithSiteLock runs fn while holding an exclusive lock for the site.
	// Check-and-create and check-and-resume must run inside it.
	WithSiteLock(ctx context.Context, siteID uint64, fn func() error) error
}

const siteLockTimeoutSeconds = 10

// gormImportJobStore backs the job store with MySQL. Site exclusion uses a
// named advisory lock so the invariant holds across processes.
type gormImportJobStore struct {
	db *gorm.DB
}

// NewImportJobStore constructs the MySQL-backed job store.
func NewImportJobStore(db *gorm.DB) ImportJobStore {
	if db == nil {
		db = config.DB
	}
	return &gormImportJobStore{db: db}
}

func (s *gormImportJobStore) Create(ctx context.Context, job *models.ImportJob) error {
	return s.db.WithContext(ctx).Create(job).Error
}

func (s *gormImportJobStore) Get(ctx context.Context, id string) (*models.ImportJob, error) {
	var job models.ImportJob
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (s *gormImportJobStore) Update(ctx context.Context, job *models.ImportJob) error {
	return s.db.WithContext(ctx).Save(job).Error
}

func (s *gormImportJobStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ImportJob{}).Error
}

func (s *gormImportJobStore) FindActiveBySite(ctx context.Context, siteID uint64) (*models.ImportJob, error) {
	var job models.ImportJob
	err := s.db.WithContext(ctx).
		Where("site_id = ? AND status IN ?", siteID, []models.ImportStatus{models.ImportStatusPending, models.ImportStatusInProgress}).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

func (s *gormImportJobStore) ListBySite(ctx context.Context, siteID uint64) ([]models.ImportJob, error) {
	var jobs []models.ImportJob
	err := s.db.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("started_at DESC").
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *gormImportJobStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND COALESCE(completed_at, failed_at, cancelled_at) < ?",
			[]models.ImportStatus{models.ImportStatusCompleted, models.ImportStatusFailed, models.ImportStatusCancelled},
			cutoff).
		Delete(&models.ImportJob{})
	return res.RowsAffected, res.Error
}

func (s *gormImportJobStore) WithSiteLock(ctx context.Context, siteID uint64, fn func() error) error {
	lockName := fmt.Sprintf("import_job_site_%d", siteID)

	var ok int
	if err := s.db.WithContext(ctx).Raw("SELECT GET_LOCK(?, ?)", lockName, siteLockTimeoutSeconds).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return &ConflictError{Msg: fmt.Sprintf("could not acquire import lock for site %d", siteID)}
	}
	defer func() {
		var released int
		if err := s.db.WithContext(ctx).Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&released).Error; err != nil {
			log.Printf("failed to release import lock %s: %v", lockName, err)
		}
	}()

	return fn()
}
