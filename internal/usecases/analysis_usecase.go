package usecases

import (
	"context"
	"net/url"
	"strconv"

	"insightdash/internal/classifier"
	"insightdash/internal/entities"
)

// Upstream table endpoints. The remote backend owns all aggregation; these
// paths return row sets this service classifies and paginates.
const (
	PathCustomers = "/customers-table"
	PathOrders    = "/orders-table"
	PathForecast  = "/forecast-table"
)

// TableFetcher is the slice of the gateway client the analysis layer needs.
type TableFetcher interface {
	FetchTable(ctx context.Context, sc entities.SessionContext, path string, query url.Values) (entities.TableData, error)
}

// TableView is one page of a normalized table.
type TableView struct {
	Columns    []string       `json:"columns"`
	Rows       []entities.Row `json:"rows"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
	TotalRows  int            `json:"total_rows"`
}

// BucketView is a classified table: rows partitioned into cohorts, plus the
// per-cohort counts in declared order for the section headers.
type BucketView struct {
	Order   []string                  `json:"order"`
	Buckets map[string][]entities.Row `json:"buckets"`
	Summary []BucketCount             `json:"summary"`
}

type AnalysisUsecase struct {
	fetcher TableFetcher
	ranges  *classifier.Store
}

func NewAnalysisUsecase(fetcher TableFetcher, ranges *classifier.Store) *AnalysisUsecase {
	return &AnalysisUsecase{fetcher: fetcher, ranges: ranges}
}

// Customers returns one page of the customers table. On fetch failure the
// view is empty and the error is returned for the handler to flag.
func (uc *AnalysisUsecase) Customers(ctx context.Context, sc entities.SessionContext, page, perPage int) (TableView, error) {
	td, err := uc.fetcher.FetchTable(ctx, sc, PathCustomers, nil)
	if err != nil {
		return emptyTableView(page), err
	}
	rows, totalPages := Paginate(td.Rows, page, perPage)
	return TableView{
		Columns:    td.Columns,
		Rows:       rows,
		Page:       page,
		TotalPages: totalPages,
		TotalRows:  len(td.Rows),
	}, nil
}

// FrequencyBuckets classifies customers by order count using the current
// range configuration.
func (uc *AnalysisUsecase) FrequencyBuckets(ctx context.Context, sc entities.SessionContext) (BucketView, error) {
	return uc.buckets(ctx, sc, classifier.MetricFrequency, classifier.OrderCountKey, classifier.FrequencySort(classifier.OrderCountKey))
}

// SpendingBuckets classifies customers by total spending.
func (uc *AnalysisUsecase) SpendingBuckets(ctx context.Context, sc entities.SessionContext) (BucketView, error) {
	return uc.buckets(ctx, sc, classifier.MetricSpending, classifier.TotalSpendingKey, classifier.DescendingBy(classifier.TotalSpendingKey))
}

func (uc *AnalysisUsecase) buckets(ctx context.Context, sc entities.SessionContext, metric string, key classifier.KeyFunc, sort classifier.SortFunc) (BucketView, error) {
	cohorts, err := uc.ranges.Cohorts(metric)
	if err != nil {
		return BucketView{Buckets: map[string][]entities.Row{}}, err
	}

	fallback := classifier.FallbackBucket
	if metric == classifier.MetricFrequency {
		fallback = classifier.CohortNoOrders
	}

	td, fetchErr := uc.fetcher.FetchTable(ctx, sc, PathCustomers, nil)
	buckets := classifier.Classify(td.Rows, cohorts, fallback, key, sort)

	order := make([]string, 0, len(cohorts)+1)
	for _, c := range cohorts {
		order = append(order, c.Name)
	}
	if _, ok := buckets[fallback]; ok && !contains(order, fallback) {
		order = append(order, fallback)
	}

	return BucketView{
		Order:   order,
		Buckets: buckets,
		Summary: BucketSummary(buckets, order),
	}, fetchErr
}

// Series derives chart points from an upstream table endpoint.
func (uc *AnalysisUsecase) Series(ctx context.Context, sc entities.SessionContext, path, labelField, valueField string, query url.Values) ([]SeriesPoint, error) {
	td, err := uc.fetcher.FetchTable(ctx, sc, path, query)
	if err != nil {
		return []SeriesPoint{}, err
	}
	return SeriesPoints(td.Rows, labelField, valueField), nil
}

// SegmentRows returns the classified rows for one cohort, for the segment
// messenger.
func (uc *AnalysisUsecase) SegmentRows(ctx context.Context, sc entities.SessionContext, metric, cohort string) ([]entities.Row, error) {
	view, err := uc.buckets(ctx, sc, metric, keyForMetric(metric), sortForMetric(metric))
	if err != nil {
		return nil, err
	}
	return view.Buckets[cohort], nil
}

func keyForMetric(metric string) classifier.KeyFunc {
	if metric == classifier.MetricSpending {
		return classifier.TotalSpendingKey
	}
	return classifier.OrderCountKey
}

func sortForMetric(metric string) classifier.SortFunc {
	if metric == classifier.MetricFrequency {
		return classifier.FrequencySort(classifier.OrderCountKey)
	}
	return classifier.DescendingBy(keyForMetric(metric))
}

func emptyTableView(page int) TableView {
	return TableView{Columns: []string{}, Rows: []entities.Row{}, Page: page}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ParsePage reads a 1-based page query param, defaulting to 1.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}
