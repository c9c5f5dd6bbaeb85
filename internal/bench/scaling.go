package bench

import (
	"MemHarness/internal/metrics"
	"MemHarness/internal/timing"
)

// Trend classifies how latency grew relative to data growth.
type Trend string

const (
	SubLinear   Trend = "sub-linear"
	Linear      Trend = "linear"
	SuperLinear Trend = "super-linear"
)

// linearBand is the relative tolerance around the data factor that still
// counts as linear growth.
const linearBand = 0.1

// Classify compares a latency ratio against the data growth factor.
func Classify(ratio, factor float64) Trend {
	switch {
	case ratio < factor*(1-linearBand):
		return SubLinear
	case ratio <= factor*(1+linearBand):
		return Linear
	default:
		return SuperLinear
	}
}

// PathScaling is one path's latency growth between two points. A ratio is
// zero, and its trend empty, when either side had no measurement.
type PathScaling struct {
	Path        timing.Path `json:"path"`
	RecallRatio float64     `json:"recall_ratio"`
	RecallTrend Trend       `json:"recall_trend,omitempty"`
	InsertRatio float64     `json:"insert_avg_ratio"`
	InsertTrend Trend       `json:"insert_avg_trend,omitempty"`
}

// ScalingStep compares two consecutive scale points.
type ScalingStep struct {
	From       int           `json:"from"`
	To         int           `json:"to"`
	DataFactor float64       `json:"data_factor"`
	Paths      []PathScaling `json:"paths"`
}

// Analyze compares each consecutive pair of points. It is descriptive only.
func Analyze(points []ScalePoint) []ScalingStep {
	var steps []ScalingStep
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if prev.MemoryCount <= 0 {
			continue
		}
		step := ScalingStep{
			From:       prev.MemoryCount,
			To:         cur.MemoryCount,
			DataFactor: float64(cur.MemoryCount) / float64(prev.MemoryCount),
		}
		for _, path := range []timing.Path{timing.Embedded, timing.Network} {
			a, b := prev.Result(path), cur.Result(path)
			if a == nil || b == nil {
				continue
			}
			ps := PathScaling{
				Path:        path,
				RecallRatio: metrics.Ratio(b.RecallAvgMs, a.RecallAvgMs),
				InsertRatio: metrics.Ratio(b.InsertAvgMs, a.InsertAvgMs),
			}
			if ps.RecallRatio > 0 {
				ps.RecallTrend = Classify(ps.RecallRatio, step.DataFactor)
			}
			if ps.InsertRatio > 0 {
				ps.InsertTrend = Classify(ps.InsertRatio, step.DataFactor)
			}
			step.Paths = append(step.Paths, ps)
		}
		steps = append(steps, step)
	}
	return steps
}
