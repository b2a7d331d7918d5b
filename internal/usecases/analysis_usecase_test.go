package usecases

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"insightdash/internal/classifier"
	"insightdash/internal/entities"
	"insightdash/internal/gateway"
)

type fakeFetcher struct {
	table entities.TableData
	err   error
	calls int
}

func (f *fakeFetcher) FetchTable(_ context.Context, _ entities.SessionContext, _ string, _ url.Values) (entities.TableData, error) {
	f.calls++
	return f.table, f.err
}

func customersTable() entities.TableData {
	return entities.TableData{
		Columns: []string{"name", "orderCount", "totalSpending"},
		Rows: []entities.Row{
			{"name": "a", "orderCount": float64(20), "totalSpending": float64(1500)},
			{"name": "b", "orderCount": float64(12), "totalSpending": float64(80)},
			{"name": "c", "orderCount": float64(2), "totalSpending": float64(250)},
			{"name": "d", "orderCount": float64(0), "totalSpending": float64(0)},
		},
	}
}

func TestCustomersPaginates(t *testing.T) {
	uc := NewAnalysisUsecase(&fakeFetcher{table: customersTable()}, classifier.NewStore())

	view, err := uc.Customers(context.Background(), entities.SessionContext{}, 1, 2)
	require.NoError(t, err)
	require.Len(t, view.Rows, 2)
	require.Equal(t, 2, view.TotalPages)
	require.Equal(t, 4, view.TotalRows)
	require.Equal(t, []string{"name", "orderCount", "totalSpending"}, view.Columns)
}

func TestCustomersFetchFailureYieldsEmptyView(t *testing.T) {
	fetcher := &fakeFetcher{err: &gateway.FetchError{Path: "/customers-table"}}
	uc := NewAnalysisUsecase(fetcher, classifier.NewStore())

	view, err := uc.Customers(context.Background(), entities.SessionContext{}, 1, 10)
	require.Error(t, err)
	require.Empty(t, view.Rows)
	require.Empty(t, view.Columns)
}

func TestFrequencyBucketsUseConfiguredRanges(t *testing.T) {
	uc := NewAnalysisUsecase(&fakeFetcher{table: customersTable()}, classifier.NewStore())

	view, err := uc.FrequencyBuckets(context.Background(), entities.SessionContext{})
	require.NoError(t, err)

	require.Equal(t, []string{
		classifier.CohortLoyal, classifier.CohortFrequent, classifier.CohortOccasional,
		classifier.CohortNew, classifier.CohortDead, classifier.CohortNoOrders,
	}, view.Order)
	require.Len(t, view.Buckets[classifier.CohortLoyal], 1)
	require.Len(t, view.Buckets[classifier.CohortFrequent], 1)
	require.Len(t, view.Buckets[classifier.CohortNew], 1)
	require.Len(t, view.Buckets[classifier.CohortDead], 1)
	require.Equal(t, BucketCount{Name: classifier.CohortLoyal, Count: 1}, view.Summary[0])
}

func TestSpendingBucketsSortDescending(t *testing.T) {
	uc := NewAnalysisUsecase(&fakeFetcher{table: customersTable()}, classifier.NewStore())

	view, err := uc.SpendingBuckets(context.Background(), entities.SessionContext{})
	require.NoError(t, err)
	require.Len(t, view.Buckets[classifier.CohortVIP], 1)
	require.Len(t, view.Buckets[classifier.CohortMediumSpender], 1)
	require.Len(t, view.Buckets[classifier.CohortLowSpender], 2)

	low := view.Buckets[classifier.CohortLowSpender]
	require.Equal(t, "b", low[0]["name"])
	require.Equal(t, "d", low[1]["name"])
}

func TestBucketsSurviveFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{err: &gateway.FetchError{Path: "/customers-table"}}
	uc := NewAnalysisUsecase(fetcher, classifier.NewStore())

	view, err := uc.FrequencyBuckets(context.Background(), entities.SessionContext{})
	require.Error(t, err)
	require.NotNil(t, view.Buckets)
	require.NotEmpty(t, view.Order)
	for _, c := range view.Summary {
		require.Zero(t, c.Count)
	}
}

func TestSeriesFromTable(t *testing.T) {
	fetcher := &fakeFetcher{table: entities.TableData{
		Columns: []string{"month", "forecast"},
		Rows: []entities.Row{
			{"month": "Jan", "forecast": float64(10)},
			{"month": "Feb", "forecast": float64(20)},
		},
	}}
	uc := NewAnalysisUsecase(fetcher, classifier.NewStore())

	points, err := uc.Series(context.Background(), entities.SessionContext{}, PathForecast, "month", "forecast", nil)
	require.NoError(t, err)
	require.Equal(t, []SeriesPoint{{Label: "Jan", Value: 10}, {Label: "Feb", Value: 20}}, points)
}

func TestSegmentRows(t *testing.T) {
	uc := NewAnalysisUsecase(&fakeFetcher{table: customersTable()}, classifier.NewStore())

	rows, err := uc.SegmentRows(context.Background(), entities.SessionContext{}, classifier.MetricFrequency, classifier.CohortLoyal)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "a", rows[0]["name"])
}
