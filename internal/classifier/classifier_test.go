package classifier

import (
	"reflect"
	"testing"

	"insightdash/internal/entities"
)

func frequencyRows(counts ...float64) []entities.Row {
	rows := make([]entities.Row, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, entities.Row{"orderCount": c})
	}
	return rows
}

func TestClassifyPartitionsEveryRow(t *testing.T) {
	store := NewStore()
	cohorts, err := store.Cohorts(MetricFrequency)
	if err != nil {
		t.Fatal(err)
	}

	rows := frequencyRows(0, 1, 3, 5, 9, 10, 15, 16, 40, 7, 2)
	rows = append(rows, entities.Row{"orderCount": "not-a-number"}) // coerces to 0
	rows = append(rows, entities.Row{})                             // missing key

	buckets := Classify(rows, cohorts, FallbackBucket, OrderCountKey, FrequencySort(OrderCountKey))

	total := 0
	for _, bucket := range buckets {
		total += len(bucket)
	}
	if total != len(rows) {
		t.Fatalf("expected %d rows across buckets, got %d", len(rows), total)
	}
}

func TestClassifyPriorityOrderWins(t *testing.T) {
	cohorts := []Cohort{
		{Name: "Loyal", Range: Range{Min: num(16)}},
		{Name: "Frequent", Range: Range{Min: num(10), Max: num(15)}},
		{Name: "Occasional", Range: Range{Min: num(5), Max: num(9)}},
	}

	buckets := Classify(frequencyRows(12), cohorts, FallbackBucket, OrderCountKey, nil)
	if len(buckets["Frequent"]) != 1 {
		t.Fatalf("expected count=12 in Frequent, got buckets %v", buckets)
	}

	// Overlap Loyal down to min=10: Loyal is declared first, so it must win
	// even though Frequent also matches.
	cohorts[0].Range.Min = num(10)
	buckets = Classify(frequencyRows(12), cohorts, FallbackBucket, OrderCountKey, nil)
	if len(buckets["Loyal"]) != 1 {
		t.Fatalf("expected overlapping count=12 in Loyal, got buckets %v", buckets)
	}
}

func TestNewCohortSortsByDateNotCount(t *testing.T) {
	rows := []entities.Row{
		{"orderCount": float64(2), "lastOrderDate": "2024-01-01"},
		{"orderCount": float64(3), "lastOrderDate": "2023-06-01"},
		{"orderCount": float64(1), "lastOrderDate": "2024-03-01"},
	}
	store := NewStore()
	cohorts, _ := store.Cohorts(MetricFrequency)

	buckets := Classify(rows, cohorts, FallbackBucket, OrderCountKey, FrequencySort(OrderCountKey))
	bucket := buckets[CohortNew]
	if len(bucket) != 3 {
		t.Fatalf("expected 3 rows in New, got %d", len(bucket))
	}

	gotCounts := []float64{
		OrderCountKey(bucket[0]),
		OrderCountKey(bucket[1]),
		OrderCountKey(bucket[2]),
	}
	want := []float64{1, 2, 3} // most recent date first
	if !reflect.DeepEqual(gotCounts, want) {
		t.Fatalf("expected New ordered by date desc %v, got %v", want, gotCounts)
	}
}

func TestOtherCohortsSortDescendingByCount(t *testing.T) {
	rows := []entities.Row{
		{"orderCount": float64(10)},
		{"orderCount": float64(15)},
		{"orderCount": float64(12)},
	}
	store := NewStore()
	cohorts, _ := store.Cohorts(MetricFrequency)

	buckets := Classify(rows, cohorts, FallbackBucket, OrderCountKey, FrequencySort(OrderCountKey))
	bucket := buckets[CohortFrequent]
	if len(bucket) != 3 {
		t.Fatalf("expected 3 rows in Frequent, got %d", len(bucket))
	}
	if OrderCountKey(bucket[0]) != 15 || OrderCountKey(bucket[2]) != 10 {
		t.Fatalf("expected descending counts, got %v %v %v",
			OrderCountKey(bucket[0]), OrderCountKey(bucket[1]), OrderCountKey(bucket[2]))
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	rows := frequencyRows(0, 1, 5, 10, 16, 7, 7, 3)
	store := NewStore()
	cohorts, _ := store.Cohorts(MetricFrequency)

	first := Classify(rows, cohorts, FallbackBucket, OrderCountKey, FrequencySort(OrderCountKey))
	second := Classify(rows, cohorts, FallbackBucket, OrderCountKey, FrequencySort(OrderCountKey))
	if !reflect.DeepEqual(first, second) {
		t.Fatal("expected identical output for identical input")
	}
}

func TestUnsetMinIsNotZero(t *testing.T) {
	// Dead has min unset and max=0: an unset min means no lower bound, so
	// count=0 matches Dead before the No Orders equals=0 rule is reached.
	store := NewStore()
	cohorts, _ := store.Cohorts(MetricFrequency)

	buckets := Classify(frequencyRows(0), cohorts, FallbackBucket, OrderCountKey, nil)
	if len(buckets[CohortDead]) != 1 {
		t.Fatalf("expected count=0 in Dead, got buckets %v", buckets)
	}

	// Flip the priority so the explicit zero rule comes first: the same
	// record now lands in No Orders. Precedence is configuration.
	if err := store.Reorder(MetricFrequency, []string{
		CohortLoyal, CohortFrequent, CohortOccasional, CohortNew, CohortNoOrders, CohortDead,
	}); err != nil {
		t.Fatal(err)
	}
	cohorts, _ = store.Cohorts(MetricFrequency)
	buckets = Classify(frequencyRows(0), cohorts, FallbackBucket, OrderCountKey, nil)
	if len(buckets[CohortNoOrders]) != 1 {
		t.Fatalf("expected count=0 in No Orders after reorder, got buckets %v", buckets)
	}
}

func TestClassifyEmptyInput(t *testing.T) {
	store := NewStore()
	cohorts, _ := store.Cohorts(MetricFrequency)

	buckets := Classify(nil, cohorts, FallbackBucket, OrderCountKey, FrequencySort(OrderCountKey))
	for name, bucket := range buckets {
		if len(bucket) != 0 {
			t.Fatalf("expected empty bucket %s, got %d rows", name, len(bucket))
		}
	}
}

func TestSpendingDefaults(t *testing.T) {
	store := NewStore()
	cohorts, _ := store.Cohorts(MetricSpending)

	rows := []entities.Row{
		{"total_spent": 1500.0},
		{"total_spent": 750.0},
		{"total_spent": 200.0},
		{"total_spent": 20.0},
	}
	buckets := Classify(rows, cohorts, FallbackBucket, TotalSpendingKey, DescendingBy(TotalSpendingKey))

	for _, tc := range []struct {
		cohort string
		want   int
	}{
		{CohortVIP, 1},
		{CohortHighSpender, 1},
		{CohortMediumSpender, 1},
		{CohortLowSpender, 1},
	} {
		if len(buckets[tc.cohort]) != tc.want {
			t.Fatalf("expected %d in %s, got %v", tc.want, tc.cohort, buckets)
		}
	}
}
