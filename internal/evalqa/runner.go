package evalqa

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"MemHarness/internal/config"
	"MemHarness/internal/llm"
	"MemHarness/internal/logging"
	"MemHarness/internal/memclient"
	"MemHarness/internal/memory"
	"MemHarness/internal/metrics"
	"MemHarness/internal/timing"
)

// Result is the outcome of one item.
type Result struct {
	QuestionID        string  `json:"question_id"`
	QuestionType      string  `json:"question_type"`
	Correct           bool    `json:"correct"`
	PredictedIndex    int     `json:"predicted_idx"`
	CorrectIndex      int     `json:"correct_idx"`
	LatencyStoreMs    float64 `json:"latency_store_ms"`
	LatencyRecallMs   float64 `json:"latency_recall_ms"`
	MemoriesStored    int     `json:"num_memories_stored"`
	MemoriesRetrieved int     `json:"num_memories_retrieved"`
	RawResponse       string  `json:"raw_response"`
	Parsed            bool    `json:"parsed"`
	JudgeError        string  `json:"judge_error,omitempty"`
	// Failed is set when the memory side of the item could not run. Failed
	// items are not scored.
	Failed string `json:"failed,omitempty"`
	// Choices is the number of options, used for the random baseline.
	Choices int `json:"choices"`
}

func (r Result) ScoreCategory() string { return r.QuestionType }
func (r Result) ScoreCorrect() bool    { return r.Correct }

// Report summarises a run. Percentages are in [0, 100].
type Report struct {
	Provider          string                     `json:"provider"`
	Model             string                     `json:"model"`
	Path              timing.Path                `json:"path"`
	StartedAt         time.Time                  `json:"started_at"`
	TotalItems        int                        `json:"total_items"`
	ScoredItems       int                        `json:"scored_items"`
	FailedItems       int                        `json:"failed_items"`
	OverallAccuracy   float64                    `json:"overall_accuracy"`
	AccuracyByType    map[string]float64         `json:"accuracy_by_type"`
	Categories        []metrics.CategoryAccuracy `json:"categories"`
	LatencyStoreAvg   float64                    `json:"latency_store_ms_avg"`
	LatencyRecallAvg  float64                    `json:"latency_recall_ms_avg"`
	AvgMemoriesStored float64                    `json:"avg_memories_stored"`
	Unparsed          int                        `json:"unparsed_responses"`
	JudgeErrors       int                        `json:"judge_errors"`
	RandomBaseline    float64                    `json:"random_baseline"`
	Results           []Result                   `json:"results"`
}

// Correct counts correct scored results.
func (r *Report) Correct() int {
	return lo.CountBy(r.Results, func(res Result) bool { return res.Failed == "" && res.Correct })
}

// Options parameterises a run.
type Options struct {
	RecallLimit int
	Ingest      IngestOptions
	// Progress, when set, is called after every item.
	Progress func(done, total int, res Result)
}

// OptionsFromConfig maps the eval section of the configuration.
func OptionsFromConfig(cfg config.EvalConfig) Options {
	opts := Options{
		RecallLimit: cfg.RecallLimit,
		Ingest: IngestOptions{
			SummaryMaxChars: cfg.SummaryMaxChars,
			ChunkSize:       cfg.ChunkSize,
			MaxChunks:       cfg.MaxChunks,
		},
	}
	return opts.withDefaults()
}

func (o Options) withDefaults() Options {
	def := DefaultIngestOptions()
	if o.RecallLimit <= 0 {
		o.RecallLimit = 5
	}
	if o.Ingest.SummaryMaxChars <= 0 {
		o.Ingest.SummaryMaxChars = def.SummaryMaxChars
	}
	if o.Ingest.ChunkSize <= 0 {
		o.Ingest.ChunkSize = def.ChunkSize
	}
	if o.Ingest.MaxChunks <= 0 {
		o.Ingest.MaxChunks = def.MaxChunks
	}
	return o
}

// Runner evaluates items one at a time, each on a fresh memory instance.
type Runner struct {
	provider    llm.Provider
	provisioner memclient.Provisioner
	opts        Options
}

// NewRunner returns a runner judging with provider over instances from
// provisioner.
func NewRunner(provider llm.Provider, provisioner memclient.Provisioner, opts Options) *Runner {
	return &Runner{provider: provider, provisioner: provisioner, opts: opts.withDefaults()}
}

// Run evaluates items in order. It stops early only when ctx is cancelled,
// returning the report for the items done so far.
func (r *Runner) Run(ctx context.Context, items []Item) (*Report, error) {
	started := time.Now().UTC()
	results := make([]Result, 0, len(items))
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return r.report(started, results), err
		}
		res := r.Evaluate(ctx, it)
		results = append(results, res)
		if r.opts.Progress != nil {
			r.opts.Progress(i+1, len(items), res)
		}
	}
	return r.report(started, results), nil
}

// Evaluate runs one item: provision, ingest, recall, judge, score. The
// instance is released before returning.
func (r *Runner) Evaluate(ctx context.Context, it Item) Result {
	res := Result{
		QuestionID:   it.QuestionID,
		QuestionType: it.QuestionType,
		CorrectIndex: it.CorrectIndex,
		Choices:      len(it.Choices),
	}
	if err := it.Validate(); err != nil {
		res.Failed = err.Error()
		return res
	}

	h, err := r.provisioner.Provision(ctx, "locomo_"+it.QuestionID)
	if err != nil {
		res.Failed = err.Error()
		logging.Logger.Warn("item failed", "question_id", it.QuestionID, "err", err)
		return res
	}
	defer func() {
		if err := h.Release(); err != nil {
			logging.Logger.Warn("release failed", "question_id", it.QuestionID, "err", err)
		}
	}()

	units := BuildUnits(it.Sessions, it.Summaries, r.opts.Ingest)
	storeDur, stored, err := timing.Measure(func() (int, error) {
		return Ingest(ctx, h.Client, units)
	})
	res.MemoriesStored = stored
	res.LatencyStoreMs = timing.Milliseconds(storeDur)
	if err != nil {
		// Ingest already names the failing unit.
		res.Failed = err.Error()
		logging.Logger.Warn("item failed", "question_id", it.QuestionID, "err", err)
		return res
	}

	recallDur, found, err := timing.Measure(func() ([]memory.Memory, error) {
		return h.Client.Recall(ctx, it.Question, r.opts.RecallLimit)
	})
	res.LatencyRecallMs = timing.Milliseconds(recallDur)
	res.MemoriesRetrieved = len(found)
	if err != nil {
		res.Failed = fmt.Errorf("recall: %w", err).Error()
		logging.Logger.Warn("item failed", "question_id", it.QuestionID, "err", err)
		return res
	}

	prompt := BuildPrompt(BuildContext(found), it.Question, it.Choices)
	answer, err := r.provider.Complete(ctx, prompt)
	if err != nil {
		res.JudgeError = err.Error()
		logging.Logger.Warn("judge error", "question_id", it.QuestionID, "err", err)
	} else {
		res.RawResponse = answer
		res.PredictedIndex, res.Parsed = ParseAnswer(answer)
	}
	res.Correct = res.PredictedIndex == it.CorrectIndex
	return res
}

func (r *Runner) report(started time.Time, results []Result) *Report {
	scored := lo.Filter(results, func(res Result, _ int) bool { return res.Failed == "" })

	rep := &Report{
		Provider:    r.provider.Name(),
		Model:       r.provider.Model(),
		Path:        r.provisioner.Path(),
		StartedAt:   started,
		TotalItems:  len(results),
		ScoredItems: len(scored),
		FailedItems: len(results) - len(scored),
		Results:     results,
	}
	if rep.Results == nil {
		rep.Results = []Result{}
	}

	correct := lo.CountBy(scored, func(res Result) bool { return res.Correct })
	rep.OverallAccuracy = 100 * metrics.Accuracy(correct, len(scored))

	rep.Categories = metrics.ByCategory(scored)
	rep.AccuracyByType = make(map[string]float64, len(rep.Categories))
	for _, c := range rep.Categories {
		rep.AccuracyByType[c.Category] = 100 * c.Accuracy
	}

	rep.LatencyStoreAvg = metrics.Mean(lo.Map(scored, func(res Result, _ int) float64 { return res.LatencyStoreMs }))
	rep.LatencyRecallAvg = metrics.Mean(lo.Map(scored, func(res Result, _ int) float64 { return res.LatencyRecallMs }))
	rep.AvgMemoriesStored = metrics.Mean(lo.Map(scored, func(res Result, _ int) float64 { return float64(res.MemoriesStored) }))
	rep.Unparsed = lo.CountBy(scored, func(res Result) bool { return !res.Parsed && res.JudgeError == "" })
	rep.JudgeErrors = lo.CountBy(scored, func(res Result) bool { return res.JudgeError != "" })
	rep.RandomBaseline = 100 * RandomBaseline(scored)
	return rep
}

// RandomBaseline is the expected accuracy of uniform guessing: the mean of
// 1/len(choices) over results.
func RandomBaseline(results []Result) float64 {
	odds := lo.FilterMap(results, func(res Result, _ int) (float64, bool) {
		if res.Choices <= 0 {
			return 0, false
		}
		return 1 / float64(res.Choices), true
	})
	return metrics.Mean(odds)
}

// DefaultOutputFile names the JSON report for provider.
func DefaultOutputFile(provider string) string {
	return fmt.Sprintf("locomo_mc10_results_%s.json", provider)
}
