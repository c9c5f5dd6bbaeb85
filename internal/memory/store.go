package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// store wraps the SQLite database holding memory records for one root.
type store struct {
	db         *sql.DB
	insertStmt *sql.Stmt
	tagStmt    *sql.Stmt
}

const memoryColumns = `id, content, memory_type, tags, importance, created_at`

func openStore(path string) (*store, error) {
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to ensure memory directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}
	// One connection keeps transactions and prepared statements on the same handle.
	db.SetMaxOpenConns(1)

	if err := bootstrap(db); err != nil {
		db.Close()
		return nil, err
	}

	insertStmt, err := db.Prepare(`INSERT INTO memories (` + memoryColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	tagStmt, err := db.Prepare(`INSERT OR IGNORE INTO memory_tags (memory_id, tag) VALUES (?, ?)`)
	if err != nil {
		insertStmt.Close()
		db.Close()
		return nil, fmt.Errorf("failed to prepare tag statement: %w", err)
	}

	return &store{db: db, insertStmt: insertStmt, tagStmt: tagStmt}, nil
}

func bootstrap(db *sql.DB) error {
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		return fmt.Errorf("failed to configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			memory_type TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '[]',
			importance REAL NOT NULL DEFAULT 0.5,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
		CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
		CREATE TABLE IF NOT EXISTS memory_tags (
			memory_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			PRIMARY KEY (memory_id, tag)
		);
		CREATE INDEX IF NOT EXISTS idx_memory_tags_tag ON memory_tags(tag);
	`); err != nil {
		return fmt.Errorf("failed to create memory tables: %w", err)
	}

	return nil
}

func (s *store) insert(ctx context.Context, m Memory) error {
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.StmtContext(ctx, s.insertStmt).ExecContext(ctx,
		m.ID, m.Content, string(m.MemoryType), string(tags), m.Importance, m.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}

	tagStmt := tx.StmtContext(ctx, s.tagStmt)
	for _, tag := range m.Tags {
		if _, err := tagStmt.ExecContext(ctx, m.ID, tag); err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit memory: %w", err)
	}
	return nil
}

func (s *store) get(ctx context.Context, id string) (Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Memory{}, ErrNotFound
	}
	return m, err
}

// getMany returns the memories for ids in the order of ids, skipping any
// that no longer exist.
func (s *store) getMany(ctx context.Context, ids []string) ([]Memory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id IN (`+placeholders(len(ids))+`)`, toArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	found, err := collect(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Memory, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}
	out := make([]Memory, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *store) query(ctx context.Context, where string, order string, limit int, args ...any) ([]Memory, error) {
	q := `SELECT ` + memoryColumns + ` FROM memories`
	if where != "" {
		q += ` WHERE ` + where
	}
	q += ` ORDER BY ` + order
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	return collect(rows)
}

func (s *store) byTags(ctx context.Context, tags []string, limit int) ([]Memory, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	where := `id IN (SELECT memory_id FROM memory_tags WHERE tag IN (` + placeholders(len(tags)) + `))`
	return s.query(ctx, where, "seq DESC", limit, toArgs(tags)...)
}

// ids returns the ids of every memory matching where.
func (s *store) ids(ctx context.Context, where string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM memories WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select memory ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan memory id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *store) contents(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan contents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, fmt.Errorf("failed to scan content: %w", err)
		}
		out[id] = content
	}
	return out, rows.Err()
}

func (s *store) delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	args := toArgs(ids)
	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete memories: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_tags WHERE memory_id IN (`+placeholders(len(ids))+`)`, args...); err != nil {
		return 0, fmt.Errorf("failed to delete tags: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}

	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *store) stats(ctx context.Context) (Stats, error) {
	st := Stats{ByType: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT memory_type, COUNT(*) FROM memories GROUP BY memory_type`)
	if err != nil {
		return st, fmt.Errorf("failed to count memories: %w", err)
	}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return st, fmt.Errorf("failed to scan count: %w", err)
		}
		st.ByType[t] = n
		st.TotalMemories += n
	}
	rows.Close()

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT tag) FROM memory_tags`).Scan(&st.UniqueTags); err != nil {
		return st, fmt.Errorf("failed to count tags: %w", err)
	}

	if st.TotalMemories > 0 {
		var oldest, newest int64
		if err := s.db.QueryRowContext(ctx, `SELECT MIN(created_at), MAX(created_at) FROM memories`).Scan(&oldest, &newest); err != nil {
			return st, fmt.Errorf("failed to read time bounds: %w", err)
		}
		o, n := time.Unix(0, oldest).UTC(), time.Unix(0, newest).UTC()
		st.Oldest, st.Newest = &o, &n
	}
	return st, nil
}

func (s *store) count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return n, nil
}

func (s *store) close() error {
	var firstErr error
	for _, stmt := range []*sql.Stmt{s.insertStmt, s.tagStmt} {
		if stmt != nil {
			if err := stmt.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (Memory, error) {
	var (
		m         Memory
		memType   string
		tags      string
		createdAt int64
	)
	if err := row.Scan(&m.ID, &m.Content, &memType, &tags, &m.Importance, &createdAt); err != nil {
		return Memory{}, err
	}
	m.MemoryType = MemoryType(memType)
	m.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
		return Memory{}, fmt.Errorf("failed to decode tags for %s: %w", m.ID, err)
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	return m, nil
}

func collect(rows *sql.Rows) ([]Memory, error) {
	defer rows.Close()
	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}
	if out == nil {
		out = []Memory{}
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
