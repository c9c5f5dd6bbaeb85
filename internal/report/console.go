// Package report renders harness results for the terminal and persists them
// as JSON files or DuckDB rows.
package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"MemHarness/internal/bench"
	"MemHarness/internal/evalqa"
	"MemHarness/internal/timing"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00D9FF"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFE66D")).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Padding(0, 1)

	noteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666680"))

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3d3d5c"))
)

const (
	failed = "FAILED"
	na     = "N/A"
)

func newTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(rows) && col < len(rows[row]) && rows[row][col] == failed {
				return failStyle
			}
			return cellStyle
		})
	return t.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString("\n")
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
}

func ms(v float64) string { return fmt.Sprintf("%.2fms", v) }

// speedup is network time over embedded time. Failed paths still count when
// the phase itself was measured.
func speedup(emb, net *bench.PathResult, pick func(*bench.PathResult) float64) string {
	if emb == nil || net == nil || pick(emb) <= 0 || pick(net) <= 0 {
		return na
	}
	return fmt.Sprintf("%.2fx", pick(net)/pick(emb))
}

func pathCell(res *bench.PathResult, pick func(*bench.PathResult) float64) string {
	switch {
	case res == nil:
		return na
	case pick(res) > 0:
		return ms(pick(res))
	case !res.Success:
		return failed
	default:
		return ms(0)
	}
}

// ScaleTables renders a sweep as one table per phase plus the scaling analysis.
func ScaleTables(rep *bench.Report) string {
	var b strings.Builder

	insertTotal := func(r *bench.PathResult) float64 { return r.InsertTotalMs }
	insertAvg := func(r *bench.PathResult) float64 { return r.InsertAvgMs }
	recallAvg := func(r *bench.PathResult) float64 { return r.RecallAvgMs }
	recallP99 := func(r *bench.PathResult) float64 { return r.RecallP99Ms }

	section(&b, "INSERT PERFORMANCE")
	var rows [][]string
	for _, p := range rep.Points {
		rows = append(rows, []string{
			fmt.Sprint(p.MemoryCount),
			pathCell(p.Embedded, insertTotal), pathCell(p.Embedded, insertAvg),
			pathCell(p.Network, insertTotal), pathCell(p.Network, insertAvg),
			speedup(p.Embedded, p.Network, insertAvg),
		})
	}
	b.WriteString(newTable([]string{"Scale", "Embedded Total", "Embedded Avg", "Network Total", "Network Avg", "Speedup"}, rows))

	section(&b, "RECALL (Semantic Search) PERFORMANCE")
	rows = nil
	for _, p := range rep.Points {
		rows = append(rows, []string{
			fmt.Sprint(p.MemoryCount),
			pathCell(p.Embedded, recallAvg), pathCell(p.Embedded, recallP99),
			pathCell(p.Network, recallAvg), pathCell(p.Network, recallP99),
			speedup(p.Embedded, p.Network, recallAvg),
		})
	}
	b.WriteString(newTable([]string{"Scale", "Embedded Avg", "Embedded P99", "Network Avg", "Network P99", "Speedup"}, rows))

	aux := []struct {
		title string
		pick  func(*bench.PathResult) float64
	}{
		{"LIST MEMORIES PERFORMANCE", func(r *bench.PathResult) float64 { return r.ListAvgMs }},
		{"CONTEXT SUMMARY PERFORMANCE", func(r *bench.PathResult) float64 { return r.SummaryAvgMs }},
		{"GET STATS PERFORMANCE", func(r *bench.PathResult) float64 { return r.StatsAvgMs }},
	}
	for _, a := range aux {
		section(&b, a.title)
		rows = nil
		for _, p := range rep.Points {
			rows = append(rows, []string{
				fmt.Sprint(p.MemoryCount),
				pathCell(p.Embedded, a.pick),
				pathCell(p.Network, a.pick),
				speedup(p.Embedded, p.Network, a.pick),
			})
		}
		b.WriteString(newTable([]string{"Scale", "Embedded Avg", "Network Avg", "Speedup"}, rows))
	}

	section(&b, "RESOURCES")
	rows = nil
	for _, p := range rep.Points {
		rss := na
		if p.RSSMB > 0 {
			rss = fmt.Sprintf("%.1f MiB", p.RSSMB)
		}
		rows = append(rows, []string{fmt.Sprint(p.MemoryCount), fmt.Sprintf("%.1fs", p.DurationMs/1000), rss})
	}
	b.WriteString(newTable([]string{"Scale", "Point Duration", "Process RSS"}, rows))

	if errs := pathErrors(rep.Points); len(errs) > 0 {
		section(&b, "FAILURES")
		b.WriteString(newTable([]string{"Scale", "Path", "Failed Calls", "Error"}, errs))
	}

	if len(rep.Scaling) > 0 {
		section(&b, "SCALING ANALYSIS")
		rows = nil
		for _, s := range rep.Scaling {
			for _, ps := range s.Paths {
				rows = append(rows, []string{
					fmt.Sprintf("%d -> %d", s.From, s.To),
					fmt.Sprintf("%.1fx", s.DataFactor),
					string(ps.Path),
					ratioCell(ps.RecallRatio, ps.RecallTrend),
					ratioCell(ps.InsertRatio, ps.InsertTrend),
				})
			}
		}
		b.WriteString(newTable([]string{"Step", "Data", "Path", "Recall", "Insert Avg"}, rows))
	}

	b.WriteString("\n")
	b.WriteString(noteStyle.Render("Speedup = network time / embedded time (higher means embedded is faster). P99 = 99th percentile latency."))
	b.WriteString("\n")
	return b.String()
}

func ratioCell(ratio float64, trend bench.Trend) string {
	if ratio <= 0 {
		return na
	}
	return fmt.Sprintf("%.2fx %s", ratio, trend)
}

func pathErrors(points []bench.ScalePoint) [][]string {
	var rows [][]string
	for _, p := range points {
		for _, path := range []timing.Path{timing.Embedded, timing.Network} {
			res := p.Result(path)
			if res == nil || res.Success {
				continue
			}
			rows = append(rows, []string{fmt.Sprint(p.MemoryCount), string(path), fmt.Sprint(res.Failures), res.Error})
		}
	}
	return rows
}

// EvalTables renders the evaluation summary and per-category accuracy.
func EvalTables(rep *evalqa.Report) string {
	var b strings.Builder

	section(&b, "RESULTS")
	b.WriteString(newTable([]string{"Metric", "Value"}, [][]string{
		{"Provider", rep.Provider},
		{"Model", rep.Model},
		{"Path", string(rep.Path)},
		{"Overall accuracy", fmt.Sprintf("%.2f%% (%d/%d)", rep.OverallAccuracy, rep.Correct(), rep.ScoredItems)},
		{"Random baseline", fmt.Sprintf("%.2f%%", rep.RandomBaseline)},
		{"Items failed", fmt.Sprint(rep.FailedItems)},
		{"Unparsed responses", fmt.Sprint(rep.Unparsed)},
		{"Judge errors", fmt.Sprint(rep.JudgeErrors)},
		{"Store latency (avg)", fmt.Sprintf("%.1f ms", rep.LatencyStoreAvg)},
		{"Recall latency (avg)", fmt.Sprintf("%.1f ms", rep.LatencyRecallAvg)},
		{"Memories stored per item", fmt.Sprintf("%.1f", rep.AvgMemoriesStored)},
	}))

	if len(rep.Categories) > 0 {
		section(&b, "ACCURACY BY QUESTION TYPE")
		var rows [][]string
		for _, c := range rep.Categories {
			rows = append(rows, []string{c.Category, fmt.Sprintf("%.2f%%", 100*c.Accuracy), fmt.Sprintf("%d/%d", c.Correct, c.Total)})
		}
		b.WriteString(newTable([]string{"Type", "Accuracy", "Correct"}, rows))
	}
	b.WriteString("\n")
	return b.String()
}

// BreakdownTables renders per-iteration rows for every operation followed by
// a summary of mean latencies.
func BreakdownTables(rep *bench.BreakdownReport) string {
	var b strings.Builder
	for _, op := range rep.Operations {
		section(&b, "OPERATION: "+strings.ToUpper(op.Operation))
		var rows [][]string
		for _, it := range op.Iterations {
			rows = append(rows, []string{
				fmt.Sprint(it.Iteration),
				fmt.Sprintf("%.2f", it.EmbeddedMs),
				fmt.Sprintf("%.2f", it.NetworkMs),
				fmt.Sprintf("%+.2f", it.DiffMs),
				string(it.Winner),
			})
		}
		if len(op.Iterations) > 0 {
			rows = append(rows,
				[]string{"AVG", fmt.Sprintf("%.2f", op.Embedded.Mean), fmt.Sprintf("%.2f", op.Network.Mean), fmt.Sprintf("%+.2f", op.Overhead), string(op.Winner)},
				[]string{"MIN", fmt.Sprintf("%.2f", op.Embedded.Min), fmt.Sprintf("%.2f", op.Network.Min), "", ""},
				[]string{"MAX", fmt.Sprintf("%.2f", op.Embedded.Max), fmt.Sprintf("%.2f", op.Network.Max), "", ""},
			)
		}
		if op.Error != "" {
			rows = append(rows, []string{failed, op.Error, "", "", ""})
		}
		b.WriteString(newTable([]string{"Iter", "Embedded (ms)", "Network (ms)", "Diff (ms)", "Winner"}, rows))
	}

	section(&b, "SUMMARY")
	var rows [][]string
	for _, op := range rep.Operations {
		rows = append(rows, []string{
			op.Operation,
			fmt.Sprintf("%.2f", op.Embedded.Mean),
			fmt.Sprintf("%.2f", op.Network.Mean),
			fmt.Sprintf("%+.2f", op.Overhead),
			ratio(op.Network.Mean, op.Embedded.Mean),
		})
	}
	emb, net := rep.Totals()
	rows = append(rows, []string{"TOTAL", fmt.Sprintf("%.2f", emb), fmt.Sprintf("%.2f", net), fmt.Sprintf("%+.2f", net-emb), ratio(net, emb)})
	b.WriteString(newTable([]string{"Operation", "Embedded (ms)", "Network (ms)", "Overhead", "Speedup"}, rows))
	b.WriteString("\n")
	return b.String()
}

func ratio(a, b float64) string {
	if b <= 0 {
		return na
	}
	return fmt.Sprintf("%.1fx", a/b)
}
