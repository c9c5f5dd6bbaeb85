package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MemoryType classifies a stored memory.
type MemoryType string

const (
	Observation  MemoryType = "Observation"
	Decision     MemoryType = "Decision"
	Learning     MemoryType = "Learning"
	Error        MemoryType = "Error"
	Discovery    MemoryType = "Discovery"
	Pattern      MemoryType = "Pattern"
	Context      MemoryType = "Context"
	Task         MemoryType = "Task"
	CodeEdit     MemoryType = "CodeEdit"
	FileAccess   MemoryType = "FileAccess"
	Search       MemoryType = "Search"
	Command      MemoryType = "Command"
	Conversation MemoryType = "Conversation"
)

var knownTypes = []MemoryType{
	Observation, Decision, Learning, Error, Discovery, Pattern, Context,
	Task, CodeEdit, FileAccess, Search, Command, Conversation,
}

var (
	// ErrNotFound is returned when a memory id does not exist.
	ErrNotFound = errors.New("memory: not found")
	// ErrEmptyContent is returned when remembering blank content.
	ErrEmptyContent = errors.New("memory: content must not be empty")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("memory: engine is closed")
	// ErrInvalidInput marks caller mistakes such as an unknown type or a bad pattern.
	ErrInvalidInput = errors.New("memory: invalid input")
)

// ParseType resolves s case-insensitively. An empty string means Observation.
func ParseType(s string) (MemoryType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Observation, nil
	}
	for _, t := range knownTypes {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown memory type %q", ErrInvalidInput, s)
}

// Memory is one stored unit.
type Memory struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	MemoryType MemoryType `json:"memory_type"`
	Tags       []string   `json:"tags"`
	Importance float64    `json:"importance"`
	CreatedAt  time.Time  `json:"created_at"`
	// Score is the similarity to the query for semantic recall and zero otherwise.
	Score float64 `json:"score,omitempty"`
}

// DateRange is an inclusive time window.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies within the range.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// SummaryOptions selects which sections a context summary includes.
type SummaryOptions struct {
	MaxItems         int
	IncludeDecisions bool
	IncludeLearnings bool
	IncludeContext   bool
}

// ContextSummary groups the newest decisions, learnings and context notes.
type ContextSummary struct {
	Decisions     []Memory `json:"decisions"`
	Learnings     []Memory `json:"learnings"`
	Context       []Memory `json:"context"`
	TotalMemories int      `json:"total_memories"`
}

// Stats describes the contents of one engine.
type Stats struct {
	TotalMemories int            `json:"total_memories"`
	ByType        map[string]int `json:"by_type"`
	UniqueTags    int            `json:"unique_tags"`
	Oldest        *time.Time     `json:"oldest,omitempty"`
	Newest        *time.Time     `json:"newest,omitempty"`
	Index         string         `json:"index"`
}

// NewMemory is the input to Remember.
type NewMemory struct {
	Content    string     `json:"content"`
	MemoryType MemoryType `json:"memory_type"`
	Tags       []string   `json:"tags"`
}
