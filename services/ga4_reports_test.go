package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportReportTypesOrder(t *testing.T) {
	assert.Equal(t, []ReportType{ReportOverview, ReportPages, ReportReferrers, ReportGeo, ReportDevices}, ImportReportTypes)
}

func TestBuildOverviewReportShape(t *testing.T) {
	request := BuildOverviewReport("2024-01-01", "2024-03-31", 500)

	require.Len(t, request.DateRanges, 1)
	assert.Equal(t, "2024-01-01", request.DateRanges[0].StartDate)
	assert.Equal(t, "2024-03-31", request.DateRanges[0].EndDate)

	require.Len(t, request.Dimensions, 1)
	assert.Equal(t, "date", request.Dimensions[0].Name)

	metricNames := make([]string, 0, len(request.Metrics))
	for _, metric := range request.Metrics {
		metricNames = append(metricNames, metric.Name)
	}
	assert.Equal(t, []string{"activeUsers", "sessions", "screenPageViews", "bounceRate", "averageSessionDuration"}, metricNames)

	require.Len(t, request.OrderBys, 1)
	require.NotNil(t, request.OrderBys[0].Dimension)
	assert.Equal(t, "date", request.OrderBys[0].Dimension.DimensionName)
	assert.False(t, request.OrderBys[0].Desc)
	assert.Equal(t, int64(500), request.Limit)
}

func TestBuildPagesReportShape(t *testing.T) {
	request := BuildPagesReport("2024-01-01", "2024-01-31", 1000)

	require.Len(t, request.Dimensions, 2)
	assert.Equal(t, "date", request.Dimensions[0].Name)
	assert.Equal(t, "pagePath", request.Dimensions[1].Name)

	require.Len(t, request.OrderBys, 1)
	require.NotNil(t, request.OrderBys[0].Metric)
	assert.Equal(t, "screenPageViews", request.OrderBys[0].Metric.MetricName)
	assert.True(t, request.OrderBys[0].Desc)
}

func TestBuildReportDispatch(t *testing.T) {
	secondDimension := map[ReportType]string{
		ReportPages:     "pagePath",
		ReportReferrers: "sessionSource",
		ReportGeo:       "country",
		ReportDevices:   "deviceCategory",
	}

	for _, reportType := range ImportReportTypes {
		request, err := BuildReport(reportType, "2024-01-01", "2024-01-31", 100)
		require.NoErrorf(t, err, "report type %s", reportType)
		// Every shape leads with the date dimension so rows can be keyed
		// by day.
		require.NotEmpty(t, request.Dimensions)
		assert.Equal(t, "date", request.Dimensions[0].Name)

		if want, ok := secondDimension[reportType]; ok {
			require.Len(t, request.Dimensions, 2)
			assert.Equal(t, want, request.Dimensions[1].Name)
		}
	}

	_, err := BuildReport(ReportType("unknown"), "2024-01-01", "2024-01-31", 100)
	require.Error(t, err)
}
