// Package metrics reduces raw latency samples and correctness flags into
// summary statistics.
package metrics

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/samber/lo"
)

// LatencyStats summarises a set of latency samples in milliseconds.
type LatencyStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// Percentile returns the pth percentile of values using linear interpolation
// between the two order statistics that bracket position (len-1)*p/100.
// An empty input yields 0. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	k := float64(len(sorted)-1) * p / 100
	f := int(math.Floor(k))
	if f < 0 {
		return sorted[0]
	}
	if f >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	c := f + 1
	return sorted[f] + (k-float64(f))*(sorted[c]-sorted[f])
}

// Mean returns the arithmetic mean, or 0 for an empty input.
func Mean(values []float64) float64 {
	m, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return m
}

// Summarize computes LatencyStats for values.
func Summarize(values []float64) LatencyStats {
	if len(values) == 0 {
		return LatencyStats{}
	}

	data := stats.Float64Data(values)
	out := LatencyStats{
		Count:  len(values),
		Median: Percentile(values, 50),
		P95:    Percentile(values, 95),
		P99:    Percentile(values, 99),
	}
	out.Mean, _ = data.Mean()
	out.Min, _ = data.Min()
	out.Max, _ = data.Max()
	out.StdDev, _ = data.StandardDeviation()
	return out
}

// Sum adds values.
func Sum(values []float64) float64 {
	s, err := stats.Sum(values)
	if err != nil {
		return 0
	}
	return s
}

// Accuracy returns correct/total, or 0 when total is 0.
func Accuracy(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// Ratio returns later/earlier, or 0 when either side is not positive.
func Ratio(later, earlier float64) float64 {
	if later <= 0 || earlier <= 0 {
		return 0
	}
	return later / earlier
}

// Scored is anything that carries a category and a correctness flag.
type Scored interface {
	ScoreCategory() string
	ScoreCorrect() bool
}

// CategoryAccuracy is the accuracy for one category.
type CategoryAccuracy struct {
	Category string  `json:"category"`
	Correct  int     `json:"correct"`
	Total    int     `json:"total"`
	Accuracy float64 `json:"accuracy"`
}

// ByCategory groups items by category and returns their accuracy in
// alphabetical category order.
func ByCategory[T Scored](items []T) []CategoryAccuracy {
	groups := lo.GroupBy(items, func(item T) string { return item.ScoreCategory() })

	categories := lo.Keys(groups)
	sort.Strings(categories)

	out := make([]CategoryAccuracy, 0, len(categories))
	for _, cat := range categories {
		group := groups[cat]
		correct := lo.CountBy(group, func(item T) bool { return item.ScoreCorrect() })
		out = append(out, CategoryAccuracy{
			Category: cat,
			Correct:  correct,
			Total:    len(group),
			Accuracy: Accuracy(correct, len(group)),
		})
	}
	return out
}
