package usecases

import (
	"insightdash/internal/entities"
)

// DefaultPerPage matches the dashboard's table page size.
const DefaultPerPage = 10

// Paginate slices rows into a 1-based page and reports the page count.
// Out-of-range pages return an empty slice rather than an error.
func Paginate(rows []entities.Row, page, perPage int) ([]entities.Row, int) {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if page < 1 {
		page = 1
	}
	totalPages := (len(rows) + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * perPage
	if start >= len(rows) {
		return []entities.Row{}, totalPages
	}
	end := start + perPage
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], totalPages
}

// SeriesPoint is one label/value pair on a chart.
type SeriesPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// SeriesPoints projects rows onto chart points. Non-numeric values coerce
// to 0, keeping the point count equal to the row count.
func SeriesPoints(rows []entities.Row, labelField, valueField string) []SeriesPoint {
	points := make([]SeriesPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, SeriesPoint{
			Label: row.String(labelField),
			Value: row.Number(valueField),
		})
	}
	return points
}

// BucketCount is the row count of one cohort, for the section headers.
type BucketCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// BucketSummary reports per-cohort counts in the declared order. Cohorts
// with no rows still appear, with a zero count.
func BucketSummary(buckets map[string][]entities.Row, order []string) []BucketCount {
	summary := make([]BucketCount, 0, len(order))
	for _, name := range order {
		summary = append(summary, BucketCount{Name: name, Count: len(buckets[name])})
	}
	return summary
}
