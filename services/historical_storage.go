package services

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"site-analytics-api/config"
	"site-analytics-api/models"

	"gorm.io/gorm"
)

// StatsRecord is one row of imported analytics data destined for storage.
type StatsRecord struct {
	Dimension   string
	Visitors    int64
	Pageviews   int64
	Sessions    int64
	BounceRate  float64
	AvgDuration float64
	ImportJobID string
}

// HistoricalStorage receives imported analytics rows. Writes merge with
// existing data for the same (site, date, dimension) key: numeric fields
// sum, non-numeric fields are overwritten, so re-importing a date range is
// additive rather than duplicating rows.
type HistoricalStorage interface {
	PutBatch(ctx context.Context, siteID uint64, dateKey string, records []StatsRecord) error
	// DeleteByJob removes every row a given import job wrote.
	DeleteByJob(ctx context.Context, jobID string) error
}

// mergeStat folds an incoming record into an existing stat row.
func mergeStat(existing *models.SiteStat, rec StatsRecord) {
	existing.Visitors += rec.Visitors
	existing.Pageviews += rec.Pageviews
	existing.Sessions += rec.Sessions
	existing.BounceRate += rec.BounceRate
	existing.AvgDuration += rec.AvgDuration
	existing.ImportJobID = rec.ImportJobID
}

type gormHistoricalStorage struct {
	db *gorm.DB
}

// NewHistoricalStorage constructs the MySQL-backed storage.
func NewHistoricalStorage(db *gorm.DB) HistoricalStorage {
	if db == nil {
		db = config.DB
	}
	return &gormHistoricalStorage{db: db}
}

func (s *gormHistoricalStorage) PutBatch(ctx context.Context, siteID uint64, dateKey string, records []StatsRecord) error {
	if len(records) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, rec := range records {
			var stat models.SiteStat
			err := tx.Where("site_id = ? AND date_key = ? AND dimension = ?", siteID, dateKey, rec.Dimension).
				First(&stat).Error
			if err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				stat = models.SiteStat{SiteID: siteID, DateKey: dateKey, Dimension: rec.Dimension}
				mergeStat(&stat, rec)
				if err := tx.Create(&stat).Error; err != nil {
					return err
				}
				continue
			}
			mergeStat(&stat, rec)
			if err := tx.Save(&stat).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *gormHistoricalStorage) DeleteByJob(ctx context.Context, jobID string) error {
	return s.db.WithContext(ctx).Where("import_job_id = ?", jobID).Delete(&models.SiteStat{}).Error
}

// MemoryHistoricalStorage is an in-memory HistoricalStorage for tests.
type MemoryHistoricalStorage struct {
	mu    sync.RWMutex
	stats map[string]models.SiteStat // "siteID|dateKey|dimension"
}

func NewMemoryHistoricalStorage() *MemoryHistoricalStorage {
	return &MemoryHistoricalStorage{stats: make(map[string]models.SiteStat)}
}

func (s *MemoryHistoricalStorage) PutBatch(ctx context.Context, siteID uint64, dateKey string, records []StatsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		key := statKey(siteID, dateKey, rec.Dimension)
		stat, ok := s.stats[key]
		if !ok {
			stat = models.SiteStat{SiteID: siteID, DateKey: dateKey, Dimension: rec.Dimension}
		}
		mergeStat(&stat, rec)
		s.stats[key] = stat
	}
	return nil
}

func (s *MemoryHistoricalStorage) DeleteByJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, stat := range s.stats {
		if stat.ImportJobID == jobID {
			delete(s.stats, key)
		}
	}
	return nil
}

// Get returns the stored row for a key, for assertions in tests.
func (s *MemoryHistoricalStorage) Get(siteID uint64, dateKey, dimension string) (models.SiteStat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.stats[statKey(siteID, dateKey, dimension)]
	return stat, ok
}

// Len returns the number of stored rows.
func (s *MemoryHistoricalStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.stats)
}

func statKey(siteID uint64, dateKey, dimension string) string {
	return strconv.FormatUint(siteID, 10) + "|" + dateKey + "|" + dimension
}
