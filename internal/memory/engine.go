// Package memory is the reference memory subsystem measured by the harness:
// a SQLite record store with a pluggable vector index, rooted in one
// directory per instance.
package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"MemHarness/internal/embedding"
)

// Options configures an Engine.
type Options struct {
	// Dir is the storage root. It is created if missing.
	Dir string
	// Index is "sqlite" (default) or "chromem".
	Index string
	// Embedder produces vectors for content and queries. Nil means a
	// HashProvider of the default width.
	Embedder embedding.Provider
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine is one memory instance. It is safe for concurrent use, although the
// harness only ever drives it from one goroutine.
type Engine struct {
	mu       sync.Mutex
	dir      string
	store    *store
	index    Index
	embedder embedding.Provider
	ownEmbed bool
	now      func() time.Time
	closed   bool
}

// Open creates or reopens the engine rooted at opts.Dir.
func Open(opts Options) (*Engine, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("memory: storage dir is required")
	}

	st, err := openStore(filepath.Join(opts.Dir, "memories.db"))
	if err != nil {
		return nil, err
	}

	var idx Index
	switch strings.ToLower(strings.TrimSpace(opts.Index)) {
	case "", "sqlite":
		idx, err = newSQLiteIndex(st.db)
	case "chromem":
		idx, err = newChromemIndex(filepath.Join(opts.Dir, "vectors"))
	default:
		err = fmt.Errorf("memory: unknown index %q", opts.Index)
	}
	if err != nil {
		st.close()
		return nil, err
	}

	e := &Engine{
		dir:      opts.Dir,
		store:    st,
		index:    idx,
		embedder: opts.Embedder,
		now:      opts.Now,
	}
	if e.embedder == nil {
		e.embedder = embedding.NewHashProvider(embedding.DefaultDim)
		e.ownEmbed = true
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Dir returns the storage root.
func (e *Engine) Dir() string { return e.dir }

// Remember stores one memory and returns its id.
func (e *Engine) Remember(ctx context.Context, in NewMemory) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}
	return e.remember(ctx, in)
}

// RememberBatch stores memories in order and returns their ids. It stops at
// the first failure and returns the ids stored so far.
func (e *Engine) RememberBatch(ctx context.Context, in []NewMemory) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	// Items before the first invalid one are stored; their contents are
	// embedded in one call.
	types := make([]MemoryType, 0, len(in))
	var invalid error
	for i, m := range in {
		memType, err := validate(m)
		if err != nil {
			invalid = fmt.Errorf("memory: batch item %d: %w", i, err)
			break
		}
		types = append(types, memType)
	}
	valid := in[:len(types)]

	vecs, err := embedding.EmbedBatch(ctx, e.embedder, lo.Map(valid, func(m NewMemory, _ int) string { return m.Content }))
	if err != nil {
		return nil, fmt.Errorf("memory: embed batch: %w", err)
	}
	ids := make([]string, 0, len(valid))
	for i, m := range valid {
		id, err := e.insert(ctx, m, types[i], vecs[i])
		if err != nil {
			return ids, fmt.Errorf("memory: batch item %d: %w", i, err)
		}
		ids = append(ids, id)
	}
	return ids, invalid
}

func (e *Engine) remember(ctx context.Context, in NewMemory) (string, error) {
	memType, err := validate(in)
	if err != nil {
		return "", err
	}
	vec, err := e.embedder.Embed(ctx, in.Content)
	if err != nil {
		return "", fmt.Errorf("memory: embed content: %w", err)
	}
	return e.insert(ctx, in, memType, vec)
}

func validate(in NewMemory) (MemoryType, error) {
	if strings.TrimSpace(in.Content) == "" {
		return "", ErrEmptyContent
	}
	return ParseType(string(in.MemoryType))
}

func (e *Engine) insert(ctx context.Context, in NewMemory, memType MemoryType, vec []float32) (string, error) {
	m := Memory{
		ID:         uuid.NewString(),
		Content:    in.Content,
		MemoryType: memType,
		Tags:       lo.Uniq(lo.Compact(in.Tags)),
		Importance: calculateImportance(in.Content, memType),
		CreatedAt:  e.now().UTC(),
	}
	if err := e.store.insert(ctx, m); err != nil {
		return "", err
	}
	if err := e.index.Add(ctx, m.ID, vec); err != nil {
		return "", err
	}
	return m.ID, nil
}

// Recall returns up to limit memories ranked by similarity to query.
func (e *Engine) Recall(ctx context.Context, query string, limit int) ([]Memory, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return []Memory{}, nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embed query: %w", err)
	}
	hits, err := e.index.Search(ctx, vec, limit)
	if err != nil {
		return nil, err
	}

	ids := lo.Map(hits, func(h Hit, _ int) string { return h.ID })
	found, err := e.store.getMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	scores := lo.SliceToMap(hits, func(h Hit) (string, float64) { return h.ID, h.Score })
	for i := range found {
		found[i].Score = scores[found[i].ID]
	}
	return found, nil
}

// RecallByTags returns up to limit memories carrying any of tags, newest first.
func (e *Engine) RecallByTags(ctx context.Context, tags []string, limit int) ([]Memory, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	out, err := e.store.byTags(ctx, lo.Uniq(lo.Compact(tags)), limit)
	if out == nil && err == nil {
		out = []Memory{}
	}
	return out, err
}

// RecallByDate returns up to limit memories created within r, newest first.
func (e *Engine) RecallByDate(ctx context.Context, r DateRange, limit int) ([]Memory, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.store.query(ctx, "created_at BETWEEN ? AND ?", "seq DESC", limit,
		r.Start.UnixNano(), r.End.UnixNano())
}

// List returns up to limit memories in insertion order.
func (e *Engine) List(ctx context.Context, limit int) ([]Memory, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	return e.store.query(ctx, "", "seq ASC", limit)
}

// Get returns the memory with id.
func (e *Engine) Get(ctx context.Context, id string) (Memory, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Memory{}, ErrClosed
	}
	return e.store.get(ctx, id)
}

// Forget deletes the memory with id.
func (e *Engine) Forget(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	n, err := e.deleteIDs(ctx, []string{id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ForgetByTags deletes memories carrying any of tags.
func (e *Engine) ForgetByTags(ctx context.Context, tags []string) (int, error) {
	tags = lo.Uniq(lo.Compact(tags))
	if len(tags) == 0 {
		return 0, nil
	}
	return e.forgetWhere(ctx,
		`id IN (SELECT memory_id FROM memory_tags WHERE tag IN (`+placeholders(len(tags))+`))`, toArgs(tags)...)
}

// ForgetByAge deletes memories older than days.
func (e *Engine) ForgetByAge(ctx context.Context, days int) (int, error) {
	cutoff := e.now().Add(-time.Duration(days) * 24 * time.Hour)
	return e.forgetWhere(ctx, "created_at < ?", cutoff.UnixNano())
}

// ForgetByImportance deletes memories whose importance is below threshold.
func (e *Engine) ForgetByImportance(ctx context.Context, threshold float64) (int, error) {
	return e.forgetWhere(ctx, "importance < ?", threshold)
}

// ForgetByDate deletes memories created within r.
func (e *Engine) ForgetByDate(ctx context.Context, r DateRange) (int, error) {
	return e.forgetWhere(ctx, "created_at BETWEEN ? AND ?", r.Start.UnixNano(), r.End.UnixNano())
}

// ForgetByPattern deletes memories whose content matches the regular expression.
func (e *Engine) ForgetByPattern(ctx context.Context, pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("%w: pattern %q: %v", ErrInvalidInput, pattern, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	contents, err := e.store.contents(ctx)
	if err != nil {
		return 0, err
	}
	var ids []string
	for id, content := range contents {
		if re.MatchString(content) {
			ids = append(ids, id)
		}
	}
	return e.deleteIDs(ctx, ids)
}

func (e *Engine) forgetWhere(ctx context.Context, where string, args ...any) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	ids, err := e.store.ids(ctx, where, args...)
	if err != nil {
		return 0, err
	}
	return e.deleteIDs(ctx, ids)
}

func (e *Engine) deleteIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := e.store.delete(ctx, ids)
	if err != nil {
		return 0, err
	}
	if err := e.index.Delete(ctx, ids); err != nil {
		return n, err
	}
	return n, nil
}

// ContextSummary returns the newest decisions, learnings and context notes,
// at most opts.MaxItems of each.
func (e *Engine) ContextSummary(ctx context.Context, opts SummaryOptions) (ContextSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ContextSummary{}, ErrClosed
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 5
	}

	out := ContextSummary{Decisions: []Memory{}, Learnings: []Memory{}, Context: []Memory{}}
	sections := []struct {
		include bool
		kind    MemoryType
		dst     *[]Memory
	}{
		{opts.IncludeDecisions, Decision, &out.Decisions},
		{opts.IncludeLearnings, Learning, &out.Learnings},
		{opts.IncludeContext, Context, &out.Context},
	}
	for _, s := range sections {
		if !s.include {
			continue
		}
		found, err := e.store.query(ctx, "memory_type = ?", "seq DESC", opts.MaxItems, string(s.kind))
		if err != nil {
			return ContextSummary{}, err
		}
		*s.dst = found
	}

	total, err := e.store.count(ctx)
	if err != nil {
		return ContextSummary{}, err
	}
	out.TotalMemories = total
	return out, nil
}

// Stats describes the engine contents.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return Stats{}, ErrClosed
	}
	st, err := e.store.stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.Index = e.index.Name()
	return st, nil
}

// Close releases the database and index. It is safe to call twice.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if err := e.index.Close(); err != nil {
		firstErr = err
	}
	if err := e.store.close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if e.ownEmbed {
		e.embedder.Close()
	}
	return firstErr
}

func calculateImportance(text string, memType MemoryType) float64 {
	score := 0.5

	switch memType {
	case Decision, Error, Learning:
		score += 0.2
	case Discovery, Pattern:
		score += 0.1
	case Conversation, FileAccess, Search:
		score -= 0.1
	}

	if len(text) > 200 {
		score += 0.1
	}

	textLower := strings.ToLower(text)
	for _, word := range []string{"important", "remember", "key", "critical", "note", "must"} {
		if strings.Contains(textLower, word) {
			score += 0.05
		}
	}

	return min(max(score, 0), 1)
}
