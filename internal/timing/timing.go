// Package timing measures individual operations and keeps the resulting
// samples for later aggregation.
package timing

import (
	"sync"
	"time"
)

// Path identifies which client path produced a sample.
type Path string

const (
	Embedded Path = "embedded"
	Network  Path = "network"
)

// Sample is one timed call. It is never modified after it is recorded.
type Sample struct {
	Operation string    `json:"operation"`
	Path      Path      `json:"path"`
	ElapsedMs float64   `json:"elapsed_ms"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Measure runs fn and returns its wall-clock duration together with its result.
func Measure[T any](fn func() (T, error)) (time.Duration, T, error) {
	start := time.Now()
	result, err := fn()
	return time.Since(start), result, err
}

// Milliseconds converts d into fractional milliseconds.
func Milliseconds(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// Recorder collects samples for one run.
type Recorder struct {
	mu      sync.Mutex
	samples []Sample
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Do times fn, records the sample under (op, path) and returns fn's result.
func Do[T any](r *Recorder, op string, path Path, fn func() (T, error)) (T, Sample, error) {
	startedAt := time.Now()
	elapsed, result, err := Measure(fn)

	s := Sample{
		Operation: op,
		Path:      path,
		ElapsedMs: Milliseconds(elapsed),
		Success:   err == nil,
		StartedAt: startedAt,
	}
	if err != nil {
		s.Error = err.Error()
	}
	if r != nil {
		r.record(s)
	}
	return result, s, err
}

// Time is Do for operations without a result.
func (r *Recorder) Time(op string, path Path, fn func() error) (Sample, error) {
	_, s, err := Do(r, op, path, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return s, err
}

func (r *Recorder) record(s Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

// Samples returns a copy of every recorded sample in recording order.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Elapsed returns the elapsed milliseconds of successful samples for (op, path).
func (r *Recorder) Elapsed(op string, path Path) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []float64
	for _, s := range r.samples {
		if s.Operation == op && s.Path == path && s.Success {
			out = append(out, s.ElapsedMs)
		}
	}
	return out
}

// Failures counts failed samples for path across all operations.
func (r *Recorder) Failures(path Path) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.samples {
		if s.Path == path && !s.Success {
			n++
		}
	}
	return n
}

// Reset drops all samples.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.samples = nil
	r.mu.Unlock()
}
