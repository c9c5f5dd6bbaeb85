package metrics

import (
	"math"
	"testing"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{"empty", nil, 99, 0},
		{"single element p99", []float64{7.5}, 99, 7.5},
		{"single element p0", []float64{7.5}, 0, 7.5},
		{"two elements p0", []float64{1, 3}, 0, 1},
		{"two elements p50", []float64{1, 3}, 50, 2},
		{"two elements p100", []float64{1, 3}, 100, 3},
		{"unsorted input", []float64{5, 1, 3, 2, 4}, 50, 3},
		{"interpolated p99", []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 99, 9.91},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.values, tt.p)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.values, tt.p, got, tt.want)
			}
		})
	}
}

func TestPercentileTwoElementsMonotone(t *testing.T) {
	a, b := 2.0, 11.0
	prev := math.Inf(-1)
	for p := 0.0; p <= 100; p += 5 {
		got := Percentile([]float64{b, a}, p)
		if got < a || got > b {
			t.Fatalf("p%v = %v outside [%v, %v]", p, got, a, b)
		}
		if got < prev {
			t.Fatalf("p%v = %v decreased from %v", p, got, prev)
		}
		prev = got
	}
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	values := []float64{3, 1, 2}
	Percentile(values, 50)
	if values[0] != 3 || values[1] != 1 || values[2] != 2 {
		t.Errorf("input mutated: %v", values)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 2, 6, 8})
	if s.Count != 4 {
		t.Errorf("Count = %d, want 4", s.Count)
	}
	if s.Mean != 5 {
		t.Errorf("Mean = %v, want 5", s.Mean)
	}
	if s.Min != 2 || s.Max != 8 {
		t.Errorf("Min/Max = %v/%v, want 2/8", s.Min, s.Max)
	}
	if s.Median != 5 {
		t.Errorf("Median = %v, want 5", s.Median)
	}

	if empty := Summarize(nil); empty.Count != 0 || empty.Mean != 0 {
		t.Errorf("Summarize(nil) = %+v, want zero", empty)
	}
}

func TestAccuracyAndRatio(t *testing.T) {
	if got := Accuracy(0, 0); got != 0 {
		t.Errorf("Accuracy(0,0) = %v", got)
	}
	if got := Accuracy(3, 4); got != 0.75 {
		t.Errorf("Accuracy(3,4) = %v", got)
	}
	if got := Ratio(4, 2); got != 2 {
		t.Errorf("Ratio(4,2) = %v", got)
	}
	if got := Ratio(4, 0); got != 0 {
		t.Errorf("Ratio(4,0) = %v", got)
	}
}

type scoredItem struct {
	cat     string
	correct bool
}

func (s scoredItem) ScoreCategory() string { return s.cat }
func (s scoredItem) ScoreCorrect() bool    { return s.correct }

func TestByCategorySortedAlphabetically(t *testing.T) {
	items := []scoredItem{
		{"temporal", true},
		{"adversarial", false},
		{"single_hop", true},
		{"adversarial", true},
		{"temporal", false},
		{"temporal", true},
	}

	got := ByCategory(items)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}

	wantOrder := []string{"adversarial", "single_hop", "temporal"}
	for i, cat := range wantOrder {
		if got[i].Category != cat {
			t.Errorf("got[%d].Category = %q, want %q", i, got[i].Category, cat)
		}
	}
	if got[2].Correct != 2 || got[2].Total != 3 {
		t.Errorf("temporal = %+v, want 2/3", got[2])
	}
	if math.Abs(got[0].Accuracy-0.5) > 1e-9 {
		t.Errorf("adversarial accuracy = %v, want 0.5", got[0].Accuracy)
	}
}
