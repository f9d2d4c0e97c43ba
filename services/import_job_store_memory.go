package services

import (
	"context"
	"sync"
	"time"

	"site-analytics-api/models"
)

// MemoryImportJobStore is an in-memory ImportJobStore for tests and local
// development. Site exclusion uses one mutex per site.
type MemoryImportJobStore struct {
	mu        sync.RWMutex
	jobs      map[string]models.ImportJob
	siteLocks sync.Map // siteID -> *sync.Mutex
}

// NewMemoryImportJobStore constructs an empty in-memory store.
func NewMemoryImportJobStore() *MemoryImportJobStore {
	return &MemoryImportJobStore{jobs: make(map[string]models.ImportJob)}
}

func (s *MemoryImportJobStore) Create(ctx context.Context, job *models.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryImportJobStore) Get(ctx context.Context, id string) (*models.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := job
	return &copied, nil
}

func (s *MemoryImportJobStore) Update(ctx context.Context, job *models.ImportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryImportJobStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryImportJobStore) FindActiveBySite(ctx context.Context, siteID uint64) (*models.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.SiteID == siteID && job.Status.IsActive() {
			copied := job
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryImportJobStore) ListBySite(ctx context.Context, siteID uint64) ([]models.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []models.ImportJob
	for _, job := range s.jobs {
		if job.SiteID == siteID {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func (s *MemoryImportJobStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, job := range s.jobs {
		terminalAt := job.TerminalAt()
		if terminalAt == nil {
			continue
		}
		if terminalAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryImportJobStore) WithSiteLock(ctx context.Context, siteID uint64, fn func() error) error {
	lock, _ := s.siteLocks.LoadOrStore(siteID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}
