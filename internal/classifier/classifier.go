package classifier

import (
	"sort"
	"strings"
	"time"

	"insightdash/internal/entities"
)

// Range holds the numeric bounds of one cohort. A nil bound means no
// constraint on that side; zero is a real value, not unset.
type Range struct {
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	Equals *float64 `json:"equals"`
}

// Matches reports whether key satisfies every set bound.
func (r Range) Matches(key float64) bool {
	if r.Min != nil && key < *r.Min {
		return false
	}
	if r.Max != nil && key > *r.Max {
		return false
	}
	if r.Equals != nil && key != *r.Equals {
		return false
	}
	return true
}

// Cohort pairs a bucket name with its range. Position in a cohort slice is
// evaluation priority: the first cohort whose range matches wins, so
// overlapping ranges resolve by order, never by best fit.
type Cohort struct {
	Name  string `json:"name"`
	Range Range  `json:"range"`
}

// KeyFunc extracts the numeric comparison key from a row.
type KeyFunc func(entities.Row) float64

// SortFunc orders one bucket in place.
type SortFunc func(name string, rows []entities.Row)

// Classify buckets every row into exactly one cohort. Rows matching no
// cohort land in the fallback bucket, so the output is always a total
// partition of the input. The function is pure: same inputs, same output.
func Classify(rows []entities.Row, cohorts []Cohort, fallback string, key KeyFunc, sortBuckets SortFunc) map[string][]entities.Row {
	buckets := make(map[string][]entities.Row)
	for _, row := range rows {
		k := key(row)
		name := fallback
		for _, c := range cohorts {
			if c.Range.Matches(k) {
				name = c.Name
				break
			}
		}
		buckets[name] = append(buckets[name], row)
	}

	if sortBuckets != nil {
		for name, bucket := range buckets {
			sortBuckets(name, bucket)
		}
	}
	return buckets
}

// OrderCountKey reads the order count under either naming convention the
// upstream has used over time.
func OrderCountKey(row entities.Row) float64 {
	return row.Number("orderCount", "order_count", "total_orders")
}

// TotalSpendingKey reads total spend under either naming convention.
func TotalSpendingKey(row entities.Row) float64 {
	return row.Number("totalSpending", "total_spent", "total_spending")
}

// DescendingBy sorts every bucket descending by the comparison key.
func DescendingBy(key KeyFunc) SortFunc {
	return func(_ string, rows []entities.Row) {
		sort.SliceStable(rows, func(i, j int) bool {
			return key(rows[i]) > key(rows[j])
		})
	}
}

// FrequencySort sorts buckets descending by order count, except the New
// cohort which sorts by most recent last-order date. Newly acquired
// customers are more interesting by recency than by a count that is 1-4
// by definition.
func FrequencySort(key KeyFunc) SortFunc {
	byKey := DescendingBy(key)
	return func(name string, rows []entities.Row) {
		if name != CohortNew {
			byKey(name, rows)
			return
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return lastOrderTime(rows[i]).After(lastOrderTime(rows[j]))
		})
	}
}

// lastOrderTime parses the last-order date field. Unparseable or missing
// dates sort last.
func lastOrderTime(row entities.Row) time.Time {
	raw := row.String("lastOrderDate", "last_order_date")
	if raw == "" {
		return time.Time{}
	}
	// Normalization trims time components, but accept full stamps too.
	if i := strings.IndexByte(raw, 'T'); i > 0 {
		raw = raw[:i]
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
