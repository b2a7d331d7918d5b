package classifier

import (
	"fmt"
	"math"
	"strconv"
	"sync"
)

// Metrics the store holds cohort sets for.
const (
	MetricFrequency = "frequency"
	MetricSpending  = "spending"
)

// Bound kinds accepted by SetBound.
const (
	BoundMin    = "min"
	BoundMax    = "max"
	BoundEquals = "equals"
)

// Frequency cohort names, in default priority order.
const (
	CohortLoyal      = "Loyal"
	CohortFrequent   = "Frequent"
	CohortOccasional = "Occasional"
	CohortNew        = "New"
	CohortDead       = "Dead"
	CohortNoOrders   = "No Orders"
)

// Spending cohort names.
const (
	CohortVIP           = "VIP"
	CohortHighSpender   = "High Spender"
	CohortMediumSpender = "Medium Spender"
	CohortLowSpender    = "Low Spender"
)

// FallbackBucket receives rows that match no cohort.
const FallbackBucket = "Unclassified"

func num(v float64) *float64 { return &v }

func defaultCohorts(metric string) []Cohort {
	switch metric {
	case MetricFrequency:
		return []Cohort{
			{Name: CohortLoyal, Range: Range{Min: num(16)}},
			{Name: CohortFrequent, Range: Range{Min: num(10), Max: num(15)}},
			{Name: CohortOccasional, Range: Range{Min: num(5), Max: num(9)}},
			{Name: CohortNew, Range: Range{Min: num(1), Max: num(4)}},
			{Name: CohortDead, Range: Range{Max: num(0)}},
			{Name: CohortNoOrders, Range: Range{Equals: num(0)}},
		}
	case MetricSpending:
		return []Cohort{
			{Name: CohortVIP, Range: Range{Min: num(1000)}},
			{Name: CohortHighSpender, Range: Range{Min: num(500), Max: num(999.99)}},
			{Name: CohortMediumSpender, Range: Range{Min: num(100), Max: num(499.99)}},
			{Name: CohortLowSpender, Range: Range{Max: num(99.99)}},
		}
	}
	return nil
}

// Store holds the operator-editable cohort ranges, one ordered set per
// metric. State is in-memory only and resets to defaults on restart.
type Store struct {
	mu      sync.RWMutex
	metrics map[string][]Cohort
}

// NewStore seeds a store with the default frequency and spending cohorts.
func NewStore() *Store {
	return &Store{
		metrics: map[string][]Cohort{
			MetricFrequency: defaultCohorts(MetricFrequency),
			MetricSpending:  defaultCohorts(MetricSpending),
		},
	}
}

// Cohorts returns a copy of the ordered cohort set for a metric.
func (s *Store) Cohorts(metric string) ([]Cohort, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cohorts, ok := s.metrics[metric]
	if !ok {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	out := make([]Cohort, len(cohorts))
	copy(out, cohorts)
	return out, nil
}

// SetBound updates a single bound of one cohort. An empty raw value clears
// the bound; anything else must parse to a finite number. On any error the
// store is left untouched, so the cohort's other bounds never see a partial
// write.
func (s *Store) SetBound(metric, cohort, kind, raw string) error {
	var value *float64
	if raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("bound %q is not a number", raw)
		}
		if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return fmt.Errorf("bound must be finite")
		}
		value = &parsed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cohorts, ok := s.metrics[metric]
	if !ok {
		return fmt.Errorf("unknown metric %q", metric)
	}
	for i := range cohorts {
		if cohorts[i].Name != cohort {
			continue
		}
		switch kind {
		case BoundMin:
			cohorts[i].Range.Min = value
		case BoundMax:
			cohorts[i].Range.Max = value
		case BoundEquals:
			cohorts[i].Range.Equals = value
		default:
			return fmt.Errorf("unknown bound kind %q", kind)
		}
		return nil
	}
	return fmt.Errorf("unknown cohort %q for metric %q", cohort, metric)
}

// Reorder sets the evaluation priority of a metric's cohorts. Precedence
// between overlapping rules (Dead max=0 vs No Orders equals=0) is a
// configuration choice, not a hardcoded one, so the order itself is
// editable. The names must be a permutation of the existing set.
func (s *Store) Reorder(metric string, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cohorts, ok := s.metrics[metric]
	if !ok {
		return fmt.Errorf("unknown metric %q", metric)
	}
	if len(names) != len(cohorts) {
		return fmt.Errorf("expected %d cohort names, got %d", len(cohorts), len(names))
	}

	byName := make(map[string]Cohort, len(cohorts))
	for _, c := range cohorts {
		byName[c.Name] = c
	}
	reordered := make([]Cohort, 0, len(names))
	for _, name := range names {
		c, ok := byName[name]
		if !ok {
			return fmt.Errorf("unknown cohort %q for metric %q", name, metric)
		}
		delete(byName, name)
		reordered = append(reordered, c)
	}
	s.metrics[metric] = reordered
	return nil
}

// Reset restores a metric's cohorts to the hardcoded defaults.
func (s *Store) Reset(metric string) error {
	defaults := defaultCohorts(metric)
	if defaults == nil {
		return fmt.Errorf("unknown metric %q", metric)
	}
	s.mu.Lock()
	s.metrics[metric] = defaults
	s.mu.Unlock()
	return nil
}
