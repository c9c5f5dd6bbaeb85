package memclient

import (
	"context"

	"MemHarness/internal/memory"
	"MemHarness/internal/timing"
)

// Embedded drives an in-process memory engine.
type Embedded struct {
	engine *memory.Engine
}

// NewEmbedded wraps engine. Close closes the engine.
func NewEmbedded(engine *memory.Engine) *Embedded {
	return &Embedded{engine: engine}
}

func (c *Embedded) Path() timing.Path { return timing.Embedded }

func (c *Embedded) Remember(ctx context.Context, content string, memoryType memory.MemoryType, tags []string) (string, error) {
	return c.engine.Remember(ctx, memory.NewMemory{Content: content, MemoryType: memoryType, Tags: tags})
}

func (c *Embedded) Recall(ctx context.Context, query string, limit int) ([]memory.Memory, error) {
	return c.engine.Recall(ctx, query, limit)
}

func (c *Embedded) RecallByTags(ctx context.Context, tags []string, limit int) ([]memory.Memory, error) {
	return c.engine.RecallByTags(ctx, tags, limit)
}

func (c *Embedded) RecallByDate(ctx context.Context, r memory.DateRange, limit int) ([]memory.Memory, error) {
	return c.engine.RecallByDate(ctx, r, limit)
}

func (c *Embedded) List(ctx context.Context, limit int) ([]memory.Memory, error) {
	return c.engine.List(ctx, limit)
}

func (c *Embedded) Get(ctx context.Context, id string) (memory.Memory, error) {
	return c.engine.Get(ctx, id)
}

func (c *Embedded) Forget(ctx context.Context, id string) error {
	return c.engine.Forget(ctx, id)
}

func (c *Embedded) ForgetByTags(ctx context.Context, tags []string) (int, error) {
	return c.engine.ForgetByTags(ctx, tags)
}

func (c *Embedded) ForgetByAge(ctx context.Context, days int) (int, error) {
	return c.engine.ForgetByAge(ctx, days)
}

func (c *Embedded) ForgetByImportance(ctx context.Context, threshold float64) (int, error) {
	return c.engine.ForgetByImportance(ctx, threshold)
}

func (c *Embedded) ForgetByPattern(ctx context.Context, pattern string) (int, error) {
	return c.engine.ForgetByPattern(ctx, pattern)
}

func (c *Embedded) ForgetByDate(ctx context.Context, r memory.DateRange) (int, error) {
	return c.engine.ForgetByDate(ctx, r)
}

// ContextSummary includes decisions, learnings and context, matching the
// network request the harness sends.
func (c *Embedded) ContextSummary(ctx context.Context, maxItems int) (memory.ContextSummary, error) {
	return c.engine.ContextSummary(ctx, memory.SummaryOptions{
		MaxItems:         maxItems,
		IncludeDecisions: true,
		IncludeLearnings: true,
		IncludeContext:   true,
	})
}

func (c *Embedded) Stats(ctx context.Context) (memory.Stats, error) {
	return c.engine.Stats(ctx)
}

func (c *Embedded) Close() error {
	return c.engine.Close()
}
