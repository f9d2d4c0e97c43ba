package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	ga4DataBaseURL  = "https://analyticsdata.googleapis.com"
	ga4AdminBaseURL = "https://analyticsadmin.googleapis.com"

	ga4RequestTimeout = 30 * time.Second
	ga4MaxRetries     = 3
	ga4BaseRetryDelay = 100 * time.Millisecond
)

// GA4Client is an HTTP client for the Google Analytics 4 Data and Admin
// APIs. It hides pagination, transient-failure retry and per-request
// timeouts. Access tokens are passed per call; the client never stores
// credentials.
type GA4Client struct {
	client       *http.Client
	dataBaseURL  string
	adminBaseURL string
	timeout      time.Duration
	maxRetries   int
	baseDelay    time.Duration
}

// NewGA4Client constructs a GA4Client. A nil httpClient falls back to a
// default client; the per-request timeout is applied via context.
func NewGA4Client(httpClient *http.Client) *GA4Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GA4Client{
		client:       httpClient,
		dataBaseURL:  ga4DataBaseURL,
		adminBaseURL: ga4AdminBaseURL,
		timeout:      ga4RequestTimeout,
		maxRetries:   ga4MaxRetries,
		baseDelay:    ga4BaseRetryDelay,
	}
}

// Property is one GA4 property visible to the connected account.
type Property struct {
	PropertyID  string `json:"property"`
	DisplayName string `json:"displayName"`
}

// RunReportRequest is the request body for the GA4 runReport call.
type RunReportRequest struct {
	DateRanges []DateRange `json:"dateRanges"`
	Dimensions []Dimension `json:"dimensions"`
	Metrics    []Metric    `json:"metrics"`
	OrderBys   []OrderBy   `json:"orderBys,omitempty"`
	Limit      int64       `json:"limit,omitempty"`
	Offset     int64       `json:"offset,omitempty"`
}

type DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type Dimension struct {
	Name string `json:"name"`
}

type Metric struct {
	Name string `json:"name"`
}

type OrderBy struct {
	Metric    *MetricOrderBy    `json:"metric,omitempty"`
	Dimension *DimensionOrderBy `json:"dimension,omitempty"`
	Desc      bool              `json:"desc,omitempty"`
}

type MetricOrderBy struct {
	MetricName string `json:"metricName"`
}

type DimensionOrderBy struct {
	DimensionName string `json:"dimensionName"`
}

// RunReportResponse is the (possibly accumulated) result of runReport.
type RunReportResponse struct {
	DimensionHeaders []Header    `json:"dimensionHeaders"`
	MetricHeaders    []Header    `json:"metricHeaders"`
	Rows             []ReportRow `json:"rows"`
	RowCount         int64       `json:"rowCount"`
}

type Header struct {
	Name string `json:"name"`
}

type ReportRow struct {
	DimensionValues []ReportValue `json:"dimensionValues"`
	MetricValues    []ReportValue `json:"metricValues"`
}

type ReportValue struct {
	Value string `json:"value"`
}

// PaginationOptions controls RunReportWithPagination.
type PaginationOptions struct {
	PropertyID string
	Request    RunReportRequest
	PageSize   int64
	MaxResults int64
}

// ListProperties returns the GA4 properties the token can read. An empty
// response body and an empty account list both normalize to an empty slice.
func (c *GA4Client) ListProperties(ctx context.Context, accessToken string) ([]Property, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.adminBaseURL + "/v1beta/accountSummaries"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read properties response: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []Property{}, nil
	}

	var decoded struct {
		AccountSummaries []struct {
			PropertySummaries []Property `json:"propertySummaries"`
		} `json:"accountSummaries"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode properties response: %w", err)
	}

	properties := []Property{}
	for _, account := range decoded.AccountSummaries {
		properties = append(properties, account.PropertySummaries...)
	}
	return properties, nil
}

// RunReport executes one runReport call for the property. Rate-limited
// (429) and network-level failures are retried with exponential backoff up
// to maxRetries; any other non-2xx response fails immediately.
func (c *GA4Client) RunReport(ctx context.Context, accessToken, propertyID string, request RunReportRequest) (*RunReportResponse, error) {
	var result *RunReportResponse
	attempts := 0

	operation := func() error {
		attempts++
		resp, err := c.doRunReport(ctx, accessToken, propertyID, request)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				if apiErr.StatusCode == http.StatusTooManyRequests {
					return err
				}
				// Provider rejected the request; retrying cannot help.
				return backoff.Permanent(err)
			}
			var timeoutErr *TimeoutError
			if errors.As(err, &timeoutErr) {
				return backoff.Permanent(err)
			}
			// Network-level failure.
			return err
		}
		result = resp
		return nil
	}

	schedule := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, schedule); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, &RateLimitError{Attempts: attempts}
		}
		return nil, err
	}
	return result, nil
}

// RunReportWithPagination calls RunReport with increasing offsets until a
// page comes back short or MaxResults rows have been accumulated. The
// returned headers are those of the last non-empty page.
func (c *GA4Client) RunReportWithPagination(ctx context.Context, accessToken string, opts PaginationOptions) (*RunReportResponse, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultBatchSize
	}

	accumulated := &RunReportResponse{Rows: []ReportRow{}}
	var offset int64

	for {
		request := opts.Request
		request.Limit = pageSize
		request.Offset = offset

		page, err := c.RunReport(ctx, accessToken, opts.PropertyID, request)
		if err != nil {
			return nil, err
		}

		if len(page.Rows) > 0 {
			accumulated.DimensionHeaders = page.DimensionHeaders
			accumulated.MetricHeaders = page.MetricHeaders
			accumulated.Rows = append(accumulated.Rows, page.Rows...)
		}
		accumulated.RowCount = page.RowCount

		if int64(len(page.Rows)) < pageSize {
			break
		}
		if opts.MaxResults > 0 && int64(len(accumulated.Rows)) >= opts.MaxResults {
			break
		}
		offset += pageSize
	}

	if opts.MaxResults > 0 && int64(len(accumulated.Rows)) > opts.MaxResults {
		accumulated.Rows = accumulated.Rows[:opts.MaxResults]
	}
	return accumulated, nil
}

func (c *GA4Client) doRunReport(ctx context.Context, accessToken, propertyID string, request RunReportRequest) (*RunReportResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal runReport request: %w", err)
	}

	// The timeout context is cancelled on every exit path.
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1beta/%s:runReport", c.dataBaseURL, propertyID)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &TimeoutError{Err: err}
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, readAPIError(resp)
	}

	var decoded RunReportResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode runReport response: %w", err)
	}
	return &decoded, nil
}

func (c *GA4Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

// readAPIError extracts the provider's error message (Google wraps it as
// {"error":{"message":...}}) and falls back to the raw body.
func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var decoded struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	message := ""
	if err := json.Unmarshal(body, &decoded); err == nil {
		message = decoded.Error.Message
	}
	if message == "" {
		message = string(bytes.TrimSpace(body))
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}
