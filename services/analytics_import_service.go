package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"site-analytics-api/config"
	"site-analytics-api/models"

	"gorm.io/gorm"
)

// AnalyticsImportService glues the job manager, the GA4 client, the token
// manager and historical storage into the batch-fetch worker that drives an
// import job. One worker goroutine runs per active job.
type AnalyticsImportService struct {
	jobs       *ImportJobService
	ga4        *GA4Client
	oauth      *GoogleOAuthService
	tokenStore TokenStore
	storage    HistoricalStorage
	db         *gorm.DB
}

// NewAnalyticsImportService constructs the import worker service. A nil db
// disables request auditing but not the import itself.
func NewAnalyticsImportService(
	jobs *ImportJobService,
	ga4 *GA4Client,
	oauth *GoogleOAuthService,
	tokenStore TokenStore,
	storage HistoricalStorage,
	db *gorm.DB,
) *AnalyticsImportService {
	if db == nil {
		db = config.DB
	}
	return &AnalyticsImportService{
		jobs:       jobs,
		ga4:        ga4,
		oauth:      oauth,
		tokenStore: tokenStore,
		storage:    storage,
		db:         db,
	}
}

// Run drives the job to a terminal status on behalf of the given user.
// Intended to be called from a goroutine; errors are also recorded on the
// job itself.
func (s *AnalyticsImportService) Run(ctx context.Context, userID int, jobID string) error {
	runner := NewImportRunner(s.jobs, s.batchFetcher(userID), defaultCheckpointInterval)
	return runner.Run(ctx, jobID)
}

// EstimateTotalRows asks GA4 how many rows the import will cover by
// summing the row counts of every report shape. Used at job creation so
// progress percentages have a denominator.
func (s *AnalyticsImportService) EstimateTotalRows(ctx context.Context, userID int, propertyID, startDate, endDate string) (int64, error) {
	tokens, err := s.ensureFreshToken(ctx, userID)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, reportType := range ImportReportTypes {
		request, err := BuildReport(reportType, startDate, endDate, 1)
		if err != nil {
			return 0, err
		}
		page, err := s.ga4.RunReport(ctx, tokens.AccessToken, propertyID, request)
		if err != nil {
			return 0, err
		}
		total += page.RowCount
	}
	return total, nil
}

// PreviewTopPages fetches a small top-pages sample so the dashboard can
// show what an import would bring in before the user commits to one.
func (s *AnalyticsImportService) PreviewTopPages(ctx context.Context, userID int, propertyID, startDate, endDate string, maxResults int64) (*RunReportResponse, error) {
	tokens, err := s.ensureFreshToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ga4.RunReportWithPagination(ctx, tokens.AccessToken, PaginationOptions{
		PropertyID: propertyID,
		Request:    BuildPagesReport(startDate, endDate, 0),
		PageSize:   25,
		MaxResults: maxResults,
	})
}

// ListProperties returns the GA4 properties the user's credentials can see.
func (s *AnalyticsImportService) ListProperties(ctx context.Context, userID int) ([]Property, error) {
	tokens, err := s.ensureFreshToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ga4.ListProperties(ctx, tokens.AccessToken)
}

// DeleteImportedData removes every stat row the given job wrote.
func (s *AnalyticsImportService) DeleteImportedData(ctx context.Context, jobID string) error {
	return s.storage.DeleteByJob(ctx, jobID)
}

// batchFetcher returns the BatchFetcher for one run. The fetch position is
// read from the job record the runner passes in, so a retried or resumed
// job continues at the report shape and offset the previous run persisted
// rather than re-pulling pages it already stored. Each call fetches one
// page of the current report shape, stores it, persists the advanced
// cursor, and moves on to the next shape when a page comes back short.
func (s *AnalyticsImportService) batchFetcher(userID int) BatchFetcher {
	return func(ctx context.Context, job *models.ImportJob, batch int) (int64, bool, error) {
		reportIndex := job.CursorReport
		offset := job.CursorOffset
		if reportIndex >= len(ImportReportTypes) {
			return 0, true, nil
		}
		reportType := ImportReportTypes[reportIndex]

		tokens, err := s.ensureFreshToken(ctx, userID)
		if err != nil {
			return 0, false, err
		}

		request, err := BuildReport(reportType, job.StartDate, job.EndDate, job.BatchSize)
		if err != nil {
			return 0, false, err
		}
		request.Offset = offset

		started := time.Now()
		page, err := s.ga4.RunReport(ctx, tokens.AccessToken, job.PropertyID, request)
		s.recordAPIRequest(ctx, job.ID, reportType, offset, page, time.Since(started), err)
		if err != nil {
			return 0, false, err
		}

		if err := s.storeRows(ctx, job, reportType, page.Rows); err != nil {
			return 0, false, err
		}

		rows := int64(len(page.Rows))
		if rows < job.BatchSize {
			reportIndex++
			offset = 0
		} else {
			offset += rows
		}
		if err := s.jobs.AdvanceCursor(ctx, job.ID, reportIndex, offset); err != nil {
			return rows, false, err
		}

		done := reportIndex >= len(ImportReportTypes)
		return rows, done, nil
	}
}

// ensureFreshToken loads the user's Google credentials, refreshing and
// persisting them when they are inside the expiry buffer.
func (s *AnalyticsImportService) ensureFreshToken(ctx context.Context, userID int) (*TokenSet, error) {
	tokens, err := s.tokenStore.LoadTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, errors.New("google analytics account is not connected")
	}
	if tokens.Scope != "" && !ValidateScope(tokens.Scope) {
		return nil, fmt.Errorf("stored credentials are missing the %s scope", AnalyticsReadonlyScope)
	}

	if !IsTokenExpired(tokens.ExpiresAt) {
		return tokens, nil
	}

	refreshed, err := s.oauth.RefreshAccessToken(ctx, tokens.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}
	if err := s.tokenStore.SaveTokens(ctx, userID, refreshed); err != nil {
		log.Printf("failed to persist refreshed tokens for user %d: %v", userID, err)
	}
	return refreshed, nil
}

// storeRows converts report rows into stat records grouped by date and
// writes them through the storage merge.
func (s *AnalyticsImportService) storeRows(ctx context.Context, job *models.ImportJob, reportType ReportType, rows []ReportRow) error {
	byDate := make(map[string][]StatsRecord)
	for _, row := range rows {
		dateKey, rec, ok := convertRow(reportType, row)
		if !ok {
			continue
		}
		rec.ImportJobID = job.ID
		byDate[dateKey] = append(byDate[dateKey], rec)
	}

	for dateKey, records := range byDate {
		if err := s.storage.PutBatch(ctx, job.SiteID, dateKey, records); err != nil {
			return fmt.Errorf("store %s rows for %s: %w", reportType, dateKey, err)
		}
	}
	return nil
}

// convertRow maps one GA4 row onto a StatsRecord. The first dimension of
// every report shape is the date; rows without it are skipped.
func convertRow(reportType ReportType, row ReportRow) (string, StatsRecord, bool) {
	if len(row.DimensionValues) == 0 {
		return "", StatsRecord{}, false
	}
	dateKey := normalizeDateKey(row.DimensionValues[0].Value)
	if dateKey == "" {
		return "", StatsRecord{}, false
	}

	rec := StatsRecord{}
	switch reportType {
	case ReportOverview:
		rec.Visitors = metricInt(row, 0)
		rec.Sessions = metricInt(row, 1)
		rec.Pageviews = metricInt(row, 2)
		rec.BounceRate = metricFloat(row, 3)
		rec.AvgDuration = metricFloat(row, 4)
	case ReportPages:
		rec.Dimension = "page:" + dimensionValue(row, 1)
		rec.Pageviews = metricInt(row, 0)
		rec.Visitors = metricInt(row, 1)
	case ReportReferrers:
		rec.Dimension = "referrer:" + dimensionValue(row, 1)
		rec.Sessions = metricInt(row, 0)
		rec.Visitors = metricInt(row, 1)
	case ReportGeo:
		rec.Dimension = "country:" + dimensionValue(row, 1)
		rec.Visitors = metricInt(row, 0)
		rec.Sessions = metricInt(row, 1)
	case ReportDevices:
		rec.Dimension = "device:" + dimensionValue(row, 1)
		rec.Visitors = metricInt(row, 0)
		rec.Sessions = metricInt(row, 1)
	default:
		return "", StatsRecord{}, false
	}
	return dateKey, rec, true
}

// normalizeDateKey turns GA4's YYYYMMDD date dimension into YYYY-MM-DD.
// Values already in that form pass through.
func normalizeDateKey(value string) string {
	if len(value) == 10 && value[4] == '-' && value[7] == '-' {
		return value
	}
	if len(value) != 8 {
		return ""
	}
	if _, err := time.Parse("20060102", value); err != nil {
		return ""
	}
	return value[:4] + "-" + value[4:6] + "-" + value[6:]
}

func dimensionValue(row ReportRow, idx int) string {
	if idx >= len(row.DimensionValues) {
		return ""
	}
	return row.DimensionValues[idx].Value
}

func metricInt(row ReportRow, idx int) int64 {
	if idx >= len(row.MetricValues) {
		return 0
	}
	parsed, err := strconv.ParseFloat(row.MetricValues[idx].Value, 64)
	if err != nil {
		return 0
	}
	return int64(parsed)
}

func metricFloat(row ReportRow, idx int) float64 {
	if idx >= len(row.MetricValues) {
		return 0
	}
	parsed, err := strconv.ParseFloat(row.MetricValues[idx].Value, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// recordAPIRequest writes an audit row for one batch request. Failures are
// logged, never fatal.
func (s *AnalyticsImportService) recordAPIRequest(ctx context.Context, jobID string, reportType ReportType, offset int64, page *RunReportResponse, duration time.Duration, reqErr error) {
	if s.db == nil {
		return
	}

	row := &models.ImportAPIRequest{
		JobID:          jobID,
		ReportType:     string(reportType),
		Offset:         offset,
		ResponseTimeMs: int(duration / time.Millisecond),
	}
	if page != nil {
		row.RowsReturned = len(page.Rows)
	}
	if reqErr != nil {
		msg := reqErr.Error()
		row.ErrorMessage = &msg
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		log.Printf("failed to record import api request for job %s: %v", jobID, err)
	}
}
