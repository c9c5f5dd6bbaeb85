package report

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"MemHarness/internal/bench"
	"MemHarness/internal/timing"
)

var labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ECDC4")).Width(10)

// Progress draws a single updating progress line. It renders the bar
// statically so it works without a terminal program loop.
type Progress struct {
	mu   sync.Mutex
	w    io.Writer
	bar  progress.Model
	open bool
}

// NewProgress writes progress lines to w, typically stderr.
func NewProgress(w io.Writer, width int) *Progress {
	if width <= 0 {
		width = 40
	}
	return &Progress{
		w:   w,
		bar: progress.New(progress.WithDefaultGradient(), progress.WithWidth(width)),
	}
}

// Update redraws the line for label at done of total.
func (p *Progress) Update(label string, done, total int) {
	if p == nil || total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pct := min(max(float64(done)/float64(total), 0), 1)
	fmt.Fprintf(p.w, "\r%s %s %d/%d", labelStyle.Render(label), p.bar.ViewAs(pct), done, total)
	p.open = true
	if done >= total {
		fmt.Fprintln(p.w)
		p.open = false
	}
}

// Done terminates a line left open by an interrupted run.
func (p *Progress) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		fmt.Fprintln(p.w)
		p.open = false
	}
}

// Insert adapts the bar to the sweep's insert progress callback.
func (p *Progress) Insert() bench.ProgressFunc {
	return func(path timing.Path, done, total int) {
		p.Update(string(path), done, total)
	}
}
