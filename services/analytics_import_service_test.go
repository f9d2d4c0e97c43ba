package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertRow(t *testing.T) {
	dateKey, rec, ok := convertRow(ReportOverview, ReportRow{
		DimensionValues: []ReportValue{{Value: "20240115"}},
		MetricValues: []ReportValue{
			{Value: "120"}, {Value: "150"}, {Value: "480"}, {Value: "41.2"}, {Value: "93.7"},
		},
	})
	require.True(t, ok)
	assert.Equal(t, "2024-01-15", dateKey)
	assert.Empty(t, rec.Dimension)
	assert.Equal(t, int64(120), rec.Visitors)
	assert.Equal(t, int64(150), rec.Sessions)
	assert.Equal(t, int64(480), rec.Pageviews)
	assert.Equal(t, 41.2, rec.BounceRate)
	assert.Equal(t, 93.7, rec.AvgDuration)

	dateKey, rec, ok = convertRow(ReportPages, ReportRow{
		DimensionValues: []ReportValue{{Value: "20240115"}, {Value: "/pricing"}},
		MetricValues:    []ReportValue{{Value: "75"}, {Value: "40"}},
	})
	require.True(t, ok)
	assert.Equal(t, "2024-01-15", dateKey)
	assert.Equal(t, "page:/pricing", rec.Dimension)
	assert.Equal(t, int64(75), rec.Pageviews)
	assert.Equal(t, int64(40), rec.Visitors)

	_, rec, ok = convertRow(ReportReferrers, ReportRow{
		DimensionValues: []ReportValue{{Value: "20240115"}, {Value: "google"}},
		MetricValues:    []ReportValue{{Value: "33"}, {Value: "21"}},
	})
	require.True(t, ok)
	assert.Equal(t, "referrer:google", rec.Dimension)
	assert.Equal(t, int64(33), rec.Sessions)

	_, rec, ok = convertRow(ReportGeo, ReportRow{
		DimensionValues: []ReportValue{{Value: "20240115"}, {Value: "Australia"}},
		MetricValues:    []ReportValue{{Value: "12"}, {Value: "15"}},
	})
	require.True(t, ok)
	assert.Equal(t, "country:Australia", rec.Dimension)

	_, rec, ok = convertRow(ReportDevices, ReportRow{
		DimensionValues: []ReportValue{{Value: "20240115"}, {Value: "mobile"}},
		MetricValues:    []ReportValue{{Value: "9"}, {Value: "11"}},
	})
	require.True(t, ok)
	assert.Equal(t, "device:mobile", rec.Dimension)

	// Rows without a usable date are skipped.
	_, _, ok = convertRow(ReportOverview, ReportRow{})
	assert.False(t, ok)
	_, _, ok = convertRow(ReportOverview, ReportRow{DimensionValues: []ReportValue{{Value: "garbage"}}})
	assert.False(t, ok)
}

func TestNormalizeDateKey(t *testing.T) {
	assert.Equal(t, "2024-01-15", normalizeDateKey("20240115"))
	assert.Equal(t, "2024-01-15", normalizeDateKey("2024-01-15"))
	assert.Empty(t, normalizeDateKey("20241315"))
	assert.Empty(t, normalizeDateKey("2024"))
	assert.Empty(t, normalizeDateKey(""))
}

// ga4Fixture serves all five report shapes with one page each, keyed off
// the requested dimensions.
func ga4Fixture(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":runReport") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var request RunReportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))

		row := ReportRow{DimensionValues: []ReportValue{{Value: "20240101"}}}
		if len(request.Dimensions) > 1 {
			row.DimensionValues = append(row.DimensionValues, ReportValue{Value: "x"})
		}
		for range request.Metrics {
			row.MetricValues = append(row.MetricValues, ReportValue{Value: "10"})
		}
		json.NewEncoder(w).Encode(RunReportResponse{Rows: []ReportRow{row}, RowCount: 1})
	}))
}

func newTestImportService(t *testing.T, server *httptest.Server) (*AnalyticsImportService, *ImportJobService, *MemoryHistoricalStorage, *MemoryTokenStore) {
	t.Helper()

	jobs, _ := newTestJobService()
	ga4 := newTestGA4Client(server)
	oauth := NewGoogleOAuthService(testOAuthConfig(), server.Client())
	tokenStore := NewMemoryTokenStore()
	storage := NewMemoryHistoricalStorage()

	svc := NewAnalyticsImportService(jobs, ga4, oauth, tokenStore, storage, nil)
	return svc, jobs, storage, tokenStore
}

func freshTokens() *TokenSet {
	return &TokenSet{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Scope:        AnalyticsReadonlyScope,
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestBatchFetcherWalksAllReportTypes(t *testing.T) {
	server := ga4Fixture(t)
	defer server.Close()

	svc, jobs, storage, tokenStore := newTestImportService(t, server)
	ctx := context.Background()

	require.NoError(t, tokenStore.SaveTokens(ctx, 1, freshTokens()))

	job := createTestJob(t, jobs, 1, 5)
	require.NoError(t, svc.Run(ctx, 1, job.ID))

	final, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", final.Status.String())
	assert.Equal(t, int64(5), final.ImportedRows)
	assert.Equal(t, 100, final.Progress)

	// One overview row plus one row per dimension report.
	assert.Equal(t, 5, storage.Len())
	overview, ok := storage.Get(1, "2024-01-01", "")
	require.True(t, ok)
	assert.Equal(t, job.ID, overview.ImportJobID)
	_, ok = storage.Get(1, "2024-01-01", "page:x")
	assert.True(t, ok)
	_, ok = storage.Get(1, "2024-01-01", "device:x")
	assert.True(t, ok)
}

func TestRunFailsWithoutConnectedAccount(t *testing.T) {
	server := ga4Fixture(t)
	defer server.Close()

	svc, jobs, _, _ := newTestImportService(t, server)
	ctx := context.Background()

	job := createTestJob(t, jobs, 1, 5)
	err := svc.Run(ctx, 1, job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")

	final, getErr := jobs.GetJob(ctx, job.ID)
	require.NoError(t, getErr)
	assert.Equal(t, "failed", final.Status.String())
	require.NotNil(t, final.ErrorMessage)
}

func TestRunRejectsWrongScope(t *testing.T) {
	server := ga4Fixture(t)
	defer server.Close()

	svc, jobs, _, tokenStore := newTestImportService(t, server)
	ctx := context.Background()

	tokens := freshTokens()
	tokens.Scope = "https://www.googleapis.com/auth/userinfo.email"
	require.NoError(t, tokenStore.SaveTokens(ctx, 1, tokens))

	job := createTestJob(t, jobs, 1, 5)
	err := svc.Run(ctx, 1, job.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scope")
}

func TestRunRefreshesExpiredToken(t *testing.T) {
	var refreshed bool
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		refreshed = true
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "access-2",
			"token_type":   "Bearer",
			"scope":        AnalyticsReadonlyScope,
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access-2", r.Header.Get("Authorization"))
		var request RunReportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		row := ReportRow{DimensionValues: []ReportValue{{Value: "20240101"}}}
		if len(request.Dimensions) > 1 {
			row.DimensionValues = append(row.DimensionValues, ReportValue{Value: "x"})
		}
		for range request.Metrics {
			row.MetricValues = append(row.MetricValues, ReportValue{Value: "1"})
		}
		json.NewEncoder(w).Encode(RunReportResponse{Rows: []ReportRow{row}, RowCount: 1})
	})

	jobs, _ := newTestJobService()
	ga4 := newTestGA4Client(server)
	oauth := newTestOAuthService(server)
	tokenStore := NewMemoryTokenStore()
	storage := NewMemoryHistoricalStorage()
	svc := NewAnalyticsImportService(jobs, ga4, oauth, tokenStore, storage, nil)

	ctx := context.Background()
	stale := freshTokens()
	stale.ExpiresAt = time.Now().Add(2 * time.Minute) // inside the buffer
	require.NoError(t, tokenStore.SaveTokens(ctx, 1, stale))

	job := createTestJob(t, jobs, 1, 5)
	require.NoError(t, svc.Run(ctx, 1, job.ID))
	assert.True(t, refreshed)

	// The refreshed token was persisted, keeping the old refresh token.
	saved, err := tokenStore.LoadTokens(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "access-2", saved.AccessToken)
	assert.Equal(t, "refresh-1", saved.RefreshToken)
}

// TestRunResumesPullWherePreviousRunStopped drives a job through a mid-run
// failure and a resume, checking that the second run continues the pull at
// the persisted offset instead of re-requesting pages the first run already
// stored (which would merge-sum the same rows twice).
func TestRunResumesPullWherePreviousRunStopped(t *testing.T) {
	var (
		mu              sync.Mutex
		overviewOffsets []int64
		failedOnce      bool
	)

	// Ten overview rows on distinct dates; the other report shapes are
	// empty. The request at offset 6 fails once.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request RunReportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))

		if len(request.Dimensions) != 1 {
			json.NewEncoder(w).Encode(RunReportResponse{Rows: []ReportRow{}})
			return
		}

		mu.Lock()
		overviewOffsets = append(overviewOffsets, request.Offset)
		fail := request.Offset == 6 && !failedOnce
		if fail {
			failedOnce = true
		}
		mu.Unlock()

		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "backend unavailable"}})
			return
		}

		var rows []ReportRow
		for day := request.Offset + 1; day <= request.Offset+request.Limit && day <= 10; day++ {
			rows = append(rows, ReportRow{
				DimensionValues: []ReportValue{{Value: fmt.Sprintf("202401%02d", day)}},
				MetricValues: []ReportValue{
					{Value: "1"}, {Value: "1"}, {Value: "1"}, {Value: "0"}, {Value: "0"},
				},
			})
		}
		json.NewEncoder(w).Encode(RunReportResponse{Rows: rows, RowCount: 10})
	}))
	defer server.Close()

	svc, jobs, storage, tokenStore := newTestImportService(t, server)
	ctx := context.Background()
	require.NoError(t, tokenStore.SaveTokens(ctx, 1, freshTokens()))

	job, err := jobs.CreateJob(ctx, &CreateJobInput{
		SiteID:        1,
		PropertyID:    "properties/123456",
		StartDate:     "2024-01-01",
		EndDate:       "2024-01-10",
		EstimatedRows: 10,
		BatchSize:     2,
	})
	require.NoError(t, err)

	require.Error(t, svc.Run(ctx, 1, job.ID))

	failed, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, "failed", failed.Status.String())
	assert.Equal(t, int64(6), failed.ImportedRows)
	assert.Equal(t, 0, failed.CursorReport)
	assert.Equal(t, int64(6), failed.CursorOffset)

	_, err = jobs.ResumeJob(ctx, job.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Run(ctx, 1, job.ID))

	final, err := jobs.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", final.Status.String())
	assert.Equal(t, int64(10), final.ImportedRows)
	assert.Equal(t, 100, final.Progress)

	// First run pulled 0/2/4 and failed at 6; the resumed run picked up
	// at 6 and never went back to the start.
	mu.Lock()
	offsets := append([]int64(nil), overviewOffsets...)
	mu.Unlock()
	assert.Equal(t, []int64{0, 2, 4, 6, 6, 8}, offsets)

	// Every row was stored exactly once.
	assert.Equal(t, 10, storage.Len())
	for day := 1; day <= 10; day++ {
		stat, ok := storage.Get(1, fmt.Sprintf("2024-01-%02d", day), "")
		require.True(t, ok)
		assert.Equal(t, int64(1), stat.Visitors)
	}
}

func TestDeleteImportedData(t *testing.T) {
	server := ga4Fixture(t)
	defer server.Close()

	svc, jobs, storage, tokenStore := newTestImportService(t, server)
	ctx := context.Background()

	require.NoError(t, tokenStore.SaveTokens(ctx, 1, freshTokens()))

	job := createTestJob(t, jobs, 1, 5)
	require.NoError(t, svc.Run(ctx, 1, job.ID))
	require.Equal(t, 5, storage.Len())

	require.NoError(t, svc.DeleteImportedData(ctx, job.ID))
	assert.Equal(t, 0, storage.Len())
}

func TestEstimateTotalRows(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(RunReportResponse{RowCount: 90})
	}))
	defer server.Close()

	svc, _, _, tokenStore := newTestImportService(t, server)
	ctx := context.Background()
	require.NoError(t, tokenStore.SaveTokens(ctx, 1, freshTokens()))

	total, err := svc.EstimateTotalRows(ctx, 1, "properties/1", "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Equal(t, int64(450), total)
	assert.Equal(t, len(ImportReportTypes), calls)
}
