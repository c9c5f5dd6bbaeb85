package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"MemHarness/internal/bench"
	"MemHarness/internal/evalqa"
)

// Render formats Markdown for the terminal. An empty style picks the light
// or dark theme from the terminal background.
func Render(md, style string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}

type mdTable struct {
	b *strings.Builder
}

func (t mdTable) header(cols ...string) {
	t.row(cols...)
	seps := make([]string, len(cols))
	for i := range seps {
		seps[i] = "---"
	}
	t.row(seps...)
}

func (t mdTable) row(cols ...string) {
	for i, c := range cols {
		cols[i] = strings.ReplaceAll(c, "|", `\|`)
	}
	t.b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
}

var latencyColumns = []func(*bench.PathResult) float64{
	func(r *bench.PathResult) float64 { return r.InsertAvgMs },
	func(r *bench.PathResult) float64 { return r.RecallAvgMs },
	func(r *bench.PathResult) float64 { return r.RecallP99Ms },
	func(r *bench.PathResult) float64 { return r.ListAvgMs },
	func(r *bench.PathResult) float64 { return r.SummaryAvgMs },
	func(r *bench.PathResult) float64 { return r.StatsAvgMs },
}

// ScaleMarkdown summarises a sweep as a Markdown document.
func ScaleMarkdown(rep *bench.Report) string {
	var b strings.Builder
	t := mdTable{&b}

	fmt.Fprintf(&b, "# Scalability Benchmark\n\nStarted %s. %d queries per recall phase.\n\n",
		rep.StartedAt.Format("2006-01-02 15:04:05"), len(rep.Queries))

	b.WriteString("## Latency\n\n")
	t.header("Scale", "Path", "Insert avg", "Recall avg", "Recall p99", "List avg", "Summary avg", "Stats avg")
	for _, p := range rep.Points {
		for _, res := range []*bench.PathResult{p.Embedded, p.Network} {
			if res == nil {
				continue
			}
			cells := []string{fmt.Sprint(p.MemoryCount), string(res.Path)}
			for _, pick := range latencyColumns {
				cells = append(cells, pathCell(res, pick))
			}
			t.row(cells...)
		}
	}

	if len(rep.Scaling) > 0 {
		b.WriteString("\n## Scaling\n\n")
		t.header("Step", "Data", "Path", "Recall", "Insert avg")
		for _, s := range rep.Scaling {
			for _, ps := range s.Paths {
				t.row(fmt.Sprintf("%d → %d", s.From, s.To), fmt.Sprintf("%.1fx", s.DataFactor), string(ps.Path),
					ratioCell(ps.RecallRatio, ps.RecallTrend), ratioCell(ps.InsertRatio, ps.InsertTrend))
			}
		}
	}

	if errs := pathErrors(rep.Points); len(errs) > 0 {
		b.WriteString("\n## Failures\n\n")
		for _, e := range errs {
			fmt.Fprintf(&b, "- **%s** at %s memories: %s\n", e[1], e[0], e[3])
		}
	}
	return b.String()
}

// EvalMarkdown summarises an evaluation run as a Markdown document.
func EvalMarkdown(rep *evalqa.Report) string {
	var b strings.Builder
	t := mdTable{&b}

	fmt.Fprintf(&b, "# Retrieval QA Evaluation\n\n**%s** (`%s`) on the %s path.\n\n", rep.Provider, rep.Model, rep.Path)
	fmt.Fprintf(&b, "- Overall accuracy: **%.2f%%** (%d/%d)\n", rep.OverallAccuracy, rep.Correct(), rep.ScoredItems)
	fmt.Fprintf(&b, "- Random baseline: %.2f%%\n", rep.RandomBaseline)
	fmt.Fprintf(&b, "- Failed items: %d, unparsed responses: %d, judge errors: %d\n", rep.FailedItems, rep.Unparsed, rep.JudgeErrors)
	fmt.Fprintf(&b, "- Average store latency %.1f ms, recall latency %.1f ms\n\n", rep.LatencyStoreAvg, rep.LatencyRecallAvg)

	if len(rep.Categories) > 0 {
		b.WriteString("## By question type\n\n")
		t.header("Type", "Accuracy", "Correct")
		for _, c := range rep.Categories {
			t.row(c.Category, fmt.Sprintf("%.2f%%", 100*c.Accuracy), fmt.Sprintf("%d/%d", c.Correct, c.Total))
		}
	}
	return b.String()
}

// BreakdownMarkdown summarises a per-operation comparison.
func BreakdownMarkdown(rep *bench.BreakdownReport) string {
	var b strings.Builder
	t := mdTable{&b}

	fmt.Fprintf(&b, "# Operation Breakdown\n\n%d iterations per operation.\n\n", rep.Iterations)
	t.header("Operation", "Embedded (ms)", "Network (ms)", "Overhead (ms)", "Winner")
	for _, op := range rep.Operations {
		if op.Error != "" {
			t.row(op.Operation, failed, failed, "", op.Error)
			continue
		}
		t.row(op.Operation, fmt.Sprintf("%.2f", op.Embedded.Mean), fmt.Sprintf("%.2f", op.Network.Mean),
			fmt.Sprintf("%+.2f", op.Overhead), string(op.Winner))
	}
	emb, net := rep.Totals()
	t.row("**total**", fmt.Sprintf("%.2f", emb), fmt.Sprintf("%.2f", net), fmt.Sprintf("%+.2f", net-emb), "")
	return b.String()
}
