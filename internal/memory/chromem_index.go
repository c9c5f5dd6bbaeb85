package memory

import (
	"context"
	"fmt"

	"github.com/philippgille/chromem-go"
)

const chromemCollection = "memories"

// chromemIndex stores embeddings in a persistent chromem-go collection under
// the engine root.
type chromemIndex struct {
	db  *chromem.DB
	col *chromem.Collection
}

func newChromemIndex(dir string) (*chromemIndex, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem db: %w", err)
	}
	// Embeddings are always supplied, so no embedding func is needed.
	col, err := db.GetOrCreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open chromem collection: %w", err)
	}
	return &chromemIndex{db: db, col: col}, nil
}

func (x *chromemIndex) Name() string { return "chromem" }

func (x *chromemIndex) Add(ctx context.Context, id string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("chromem: empty embedding for %s", id)
	}
	if isZero(vec) {
		// chromem rejects vectors it cannot normalise; store a tiny bias instead.
		vec = make([]float32, len(vec))
		vec[0] = 1
	}
	if err := x.col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   id,
		Embedding: vec,
	}); err != nil {
		return fmt.Errorf("failed to add chromem document: %w", err)
	}
	return nil
}

func (x *chromemIndex) Search(ctx context.Context, vec []float32, limit int) ([]Hit, error) {
	// chromem requires nResults <= collection size.
	n := min(limit, x.col.Count())
	if n <= 0 || isZero(vec) {
		return nil, nil
	}
	results, err := x.col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{ID: r.ID, Score: float64(r.Similarity)})
	}
	return hits, nil
}

func (x *chromemIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := x.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("failed to delete chromem documents: %w", err)
	}
	return nil
}

func (x *chromemIndex) Close() error { return nil }

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
