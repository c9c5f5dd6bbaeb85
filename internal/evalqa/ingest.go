package evalqa

import (
	"context"
	"fmt"
	"strings"

	"MemHarness/internal/memclient"
	"MemHarness/internal/memory"
)

// IngestOptions bounds how transcripts become memory units. Lengths count
// runes, not bytes.
type IngestOptions struct {
	SummaryMaxChars int
	ChunkSize       int
	MaxChunks       int
}

// DefaultIngestOptions matches the reference evaluation.
func DefaultIngestOptions() IngestOptions {
	return IngestOptions{SummaryMaxChars: 2000, ChunkSize: 500, MaxChunks: 10}
}

// Unit is one memory to store.
type Unit struct {
	Content string
	Type    memory.MemoryType
	Tags    []string
}

// BuildUnits turns paired sessions and summaries into memory units. Pairs
// beyond the shorter list are ignored. For session i (1-based) the summary
// comes first, followed by up to MaxChunks dialogue chunks.
func BuildUnits(sessions, summaries []Transcript, opts IngestOptions) []Unit {
	n := min(len(sessions), len(summaries))
	var units []Unit
	for i := 0; i < n; i++ {
		sessionTag := fmt.Sprintf("session_%d", i+1)

		if summary := string(summaries[i]); strings.TrimSpace(summary) != "" {
			units = append(units, Unit{
				Content: fmt.Sprintf("Session %d Summary: %s", i+1, truncateRunes(summary, opts.SummaryMaxChars)),
				Type:    memory.Context,
				Tags:    []string{sessionTag, "summary"},
			})
		}

		session := string(sessions[i])
		if strings.TrimSpace(session) == "" {
			continue
		}
		for _, chunk := range chunkRunes(session, opts.ChunkSize, opts.MaxChunks) {
			units = append(units, Unit{
				Content: fmt.Sprintf("Session %d: %s", i+1, chunk),
				Type:    memory.Conversation,
				Tags:    []string{sessionTag, "dialogue"},
			})
		}
	}
	return units
}

// Ingest stores units in order and returns how many were stored.
func Ingest(ctx context.Context, c memclient.Client, units []Unit) (int, error) {
	for i, u := range units {
		if _, err := c.Remember(ctx, u.Content, u.Type, u.Tags); err != nil {
			return i, fmt.Errorf("ingest unit %d: %w", i, err)
		}
	}
	return len(units), nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func chunkRunes(s string, size, maxChunks int) []string {
	if size <= 0 {
		return []string{s}
	}
	r := []rune(s)
	var chunks []string
	for start := 0; start < len(r); start += size {
		if maxChunks > 0 && len(chunks) == maxChunks {
			break
		}
		chunks = append(chunks, string(r[start:min(start+size, len(r))]))
	}
	return chunks
}
