package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// Hit is one vector search result.
type Hit struct {
	ID    string
	Score float64
}

// Index stores embeddings and answers nearest-neighbour queries. Vectors are
// expected to be L2-normalised so the dot product is the cosine similarity.
type Index interface {
	Name() string
	Add(ctx context.Context, id string, vec []float32) error
	Search(ctx context.Context, vec []float32, limit int) ([]Hit, error)
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// sqliteIndex keeps embeddings as little-endian float32 blobs next to the
// records and answers queries with a full scan.
type sqliteIndex struct {
	db *sql.DB
}

func newSQLiteIndex(db *sql.DB) (*sqliteIndex, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memory_vectors (
			id TEXT PRIMARY KEY,
			embedding BLOB NOT NULL
		);
	`); err != nil {
		return nil, fmt.Errorf("failed to create vector table: %w", err)
	}
	return &sqliteIndex{db: db}, nil
}

func (x *sqliteIndex) Name() string { return "sqlite" }

func (x *sqliteIndex) Add(ctx context.Context, id string, vec []float32) error {
	if _, err := x.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO memory_vectors (id, embedding) VALUES (?, ?)`, id, float32SliceToBytes(vec)); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

func (x *sqliteIndex) Search(ctx context.Context, vec []float32, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := x.db.QueryContext(ctx, `SELECT id, embedding FROM memory_vectors`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan embeddings: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to read embedding: %w", err)
		}
		hits = append(hits, Hit{ID: id, Score: cosineSimilarityF32(vec, bytesToFloat32Slice(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate embeddings: %w", err)
	}

	return topK(hits, limit), nil
}

func (x *sqliteIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := x.db.ExecContext(ctx,
		`DELETE FROM memory_vectors WHERE id IN (`+placeholders(len(ids))+`)`, toArgs(ids)...); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	return nil
}

// Close is a no-op; the database belongs to the store.
func (x *sqliteIndex) Close() error { return nil }

// topK sorts hits by descending score, breaking ties by id, and keeps the first k.
func topK(hits []Hit, k int) []Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func float32SliceToBytes(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func bytesToFloat32Slice(buf []byte) []float32 {
	if len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func cosineSimilarityF32(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
