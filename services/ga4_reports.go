package services

import (
	"fmt"
	"regexp"
)

// ReportType identifies one of the fixed report shapes imported per job.
type ReportType string

const (
	ReportOverview  ReportType = "overview"
	ReportPages     ReportType = "pages"
	ReportReferrers ReportType = "referrers"
	ReportGeo       ReportType = "geo"
	ReportDevices   ReportType = "devices"
)

// ImportReportTypes is the fixed order in which a historical import walks
// the report shapes.
var ImportReportTypes = []ReportType{ReportOverview, ReportPages, ReportReferrers, ReportGeo, ReportDevices}

var propertyIDPattern = regexp.MustCompile(`^properties/[0-9]+$`)

// ValidatePropertyID reports whether id is a well-formed GA4 property
// resource name: "properties/" followed by digits only.
func ValidatePropertyID(id string) bool {
	return propertyIDPattern.MatchString(id)
}

// BuildOverviewReport returns the daily traffic overview request: one row
// per date with the headline metrics.
func BuildOverviewReport(start, end string, limit int64) RunReportRequest {
	return RunReportRequest{
		DateRanges: []DateRange{{StartDate: start, EndDate: end}},
		Dimensions: []Dimension{{Name: "date"}},
		Metrics: []Metric{
			{Name: "activeUsers"},
			{Name: "sessions"},
			{Name: "screenPageViews"},
			{Name: "bounceRate"},
			{Name: "averageSessionDuration"},
		},
		OrderBys: []OrderBy{{Dimension: &DimensionOrderBy{DimensionName: "date"}}},
		Limit:    limit,
	}
}

// BuildPagesReport returns the top-pages request, ordered by page views.
func BuildPagesReport(start, end string, limit int64) RunReportRequest {
	return RunReportRequest{
		DateRanges: []DateRange{{StartDate: start, EndDate: end}},
		Dimensions: []Dimension{{Name: "date"}, {Name: "pagePath"}},
		Metrics: []Metric{
			{Name: "screenPageViews"},
			{Name: "activeUsers"},
		},
		OrderBys: []OrderBy{{Metric: &MetricOrderBy{MetricName: "screenPageViews"}, Desc: true}},
		Limit:    limit,
	}
}

// BuildReferrersReport returns the traffic-sources request.
func BuildReferrersReport(start, end string, limit int64) RunReportRequest {
	return RunReportRequest{
		DateRanges: []DateRange{{StartDate: start, EndDate: end}},
		Dimensions: []Dimension{{Name: "date"}, {Name: "sessionSource"}},
		Metrics: []Metric{
			{Name: "sessions"},
			{Name: "activeUsers"},
		},
		OrderBys: []OrderBy{{Metric: &MetricOrderBy{MetricName: "sessions"}, Desc: true}},
		Limit:    limit,
	}
}

// BuildGeoReport returns the visitors-by-country request.
func BuildGeoReport(start, end string, limit int64) RunReportRequest {
	return RunReportRequest{
		DateRanges: []DateRange{{StartDate: start, EndDate: end}},
		Dimensions: []Dimension{{Name: "date"}, {Name: "country"}},
		Metrics: []Metric{
			{Name: "activeUsers"},
			{Name: "sessions"},
		},
		OrderBys: []OrderBy{{Metric: &MetricOrderBy{MetricName: "activeUsers"}, Desc: true}},
		Limit:    limit,
	}
}

// BuildDevicesReport returns the device-category breakdown request.
func BuildDevicesReport(start, end string, limit int64) RunReportRequest {
	return RunReportRequest{
		DateRanges: []DateRange{{StartDate: start, EndDate: end}},
		Dimensions: []Dimension{{Name: "date"}, {Name: "deviceCategory"}},
		Metrics: []Metric{
			{Name: "activeUsers"},
			{Name: "sessions"},
		},
		OrderBys: []OrderBy{{Metric: &MetricOrderBy{MetricName: "activeUsers"}, Desc: true}},
		Limit:    limit,
	}
}

// BuildReport dispatches to the builder for the given report type.
func BuildReport(reportType ReportType, start, end string, limit int64) (RunReportRequest, error) {
	switch reportType {
	case ReportOverview:
		return BuildOverviewReport(start, end, limit), nil
	case ReportPages:
		return BuildPagesReport(start, end, limit), nil
	case ReportReferrers:
		return BuildReferrersReport(start, end, limit), nil
	case ReportGeo:
		return BuildGeoReport(start, end, limit), nil
	case ReportDevices:
		return BuildDevicesReport(start, end, limit), nil
	default:
		return RunReportRequest{}, fmt.Errorf("unknown report type %q", reportType)
	}
}
