package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"

	"MemHarness/internal/bench"
	"MemHarness/internal/evalqa"
	"MemHarness/internal/logging"
)

// Sink appends run results to a DuckDB file so runs can be compared with SQL.
type Sink struct {
	db   *sql.DB
	path string
}

// OpenSink opens or creates the database at path.
func OpenSink(path string) (*Sink, error) {
	if path == "" {
		path = "memharness.duckdb"
	}
	if dir := filepath.Dir(filepath.Clean(path)); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create results directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB results: %w", err)
	}
	s := &Sink{db: db, path: path}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) bootstrap() error {
	tables := []struct{ name, ddl string }{
		{"runs", `
			CREATE TABLE IF NOT EXISTS runs (
				run_id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				started_at TIMESTAMP,
				recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				label TEXT
			)`},
		{"scale_points", `
			CREATE TABLE IF NOT EXISTS scale_points (
				run_id TEXT NOT NULL,
				memory_count INTEGER NOT NULL,
				path TEXT NOT NULL,
				success BOOLEAN,
				error TEXT,
				failures INTEGER,
				insert_total_ms DOUBLE,
				insert_avg_ms DOUBLE,
				recall_avg_ms DOUBLE,
				recall_p99_ms DOUBLE,
				list_avg_ms DOUBLE,
				summary_avg_ms DOUBLE,
				stats_avg_ms DOUBLE
			)`},
		{"eval_results", `
			CREATE TABLE IF NOT EXISTS eval_results (
				run_id TEXT NOT NULL,
				question_id TEXT NOT NULL,
				question_type TEXT,
				correct BOOLEAN,
				predicted_idx INTEGER,
				correct_idx INTEGER,
				latency_store_ms DOUBLE,
				latency_recall_ms DOUBLE,
				memories_stored INTEGER,
				memories_retrieved INTEGER,
				parsed BOOLEAN,
				judge_error TEXT,
				failed TEXT
			)`},
		{"breakdown_ops", `
			CREATE TABLE IF NOT EXISTS breakdown_ops (
				run_id TEXT NOT NULL,
				operation TEXT NOT NULL,
				embedded_mean_ms DOUBLE,
				network_mean_ms DOUBLE,
				overhead_ms DOUBLE,
				winner TEXT,
				error TEXT
			)`},
	}
	for _, t := range tables {
		if _, err := s.db.Exec(t.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Sink) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insertRun(ctx context.Context, tx *sql.Tx, runID, kind, label string, started time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, kind, started_at, label) VALUES (?, ?, ?, ?)`,
		runID, kind, started.UTC(), label)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// WriteScale appends a sweep and returns its run id.
func (s *Sink) WriteScale(ctx context.Context, rep *bench.Report) (string, error) {
	runID := uuid.NewString()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRun(ctx, tx, runID, "scale", "", rep.StartedAt); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO scale_points VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare scale insert: %w", err)
		}
		defer stmt.Close()
		for _, p := range rep.Points {
			for _, r := range []*bench.PathResult{p.Embedded, p.Network} {
				if r == nil {
					continue
				}
				if _, err := stmt.ExecContext(ctx, runID, p.MemoryCount, string(r.Path), r.Success, r.Error, r.Failures,
					r.InsertTotalMs, r.InsertAvgMs, r.RecallAvgMs, r.RecallP99Ms, r.ListAvgMs, r.SummaryAvgMs, r.StatsAvgMs); err != nil {
					return fmt.Errorf("failed to insert scale point %d/%s: %w", p.MemoryCount, r.Path, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	logging.Logger.Info("scale results stored", "db", s.path, "run_id", runID)
	return runID, nil
}

// WriteEval appends an evaluation run and returns its run id.
func (s *Sink) WriteEval(ctx context.Context, rep *evalqa.Report) (string, error) {
	runID := uuid.NewString()
	label := rep.Provider + "/" + rep.Model + "/" + string(rep.Path)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRun(ctx, tx, runID, "eval", label, rep.StartedAt); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO eval_results VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare eval insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rep.Results {
			if _, err := stmt.ExecContext(ctx, runID, r.QuestionID, r.QuestionType, r.Correct, r.PredictedIndex, r.CorrectIndex,
				r.LatencyStoreMs, r.LatencyRecallMs, r.MemoriesStored, r.MemoriesRetrieved, r.Parsed, r.JudgeError, r.Failed); err != nil {
				return fmt.Errorf("failed to insert result %s: %w", r.QuestionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	logging.Logger.Info("eval results stored", "db", s.path, "run_id", runID)
	return runID, nil
}

// WriteBreakdown appends an operation breakdown and returns its run id.
func (s *Sink) WriteBreakdown(ctx context.Context, rep *bench.BreakdownReport) (string, error) {
	runID := uuid.NewString()
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRun(ctx, tx, runID, "breakdown", fmt.Sprintf("%d iterations", rep.Iterations), time.Now()); err != nil {
			return err
		}
		for _, op := range rep.Operations {
			if _, err := tx.ExecContext(ctx, `INSERT INTO breakdown_ops VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, op.Operation, op.Embedded.Mean, op.Network.Mean, op.Overhead, string(op.Winner), op.Error); err != nil {
				return fmt.Errorf("failed to insert operation %s: %w", op.Operation, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	logging.Logger.Info("breakdown results stored", "db", s.path, "run_id", runID)
	return runID, nil
}

// Count returns the rows of table that belong to runID.
func (s *Sink) Count(ctx context.Context, table, runID string) (int, error) {
	switch table {
	case "runs", "scale_points", "eval_results", "breakdown_ops":
	default:
		return 0, fmt.Errorf("unknown results table %q", table)
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}
