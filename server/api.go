package server

import (
	"fmt"
	"strings"
	"time"

	"MemHarness/internal/memory"
)

// APIKeyHeader carries the credential on every request.
const APIKeyHeader = "X-API-Key"

// RememberRequest stores one memory.
type RememberRequest struct {
	UserID     string   `json:"user_id"`
	Content    string   `json:"content"`
	MemoryType string   `json:"memory_type,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// RememberResponse returns the id of the stored memory.
type RememberResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

// BatchRememberRequest stores several memories in order.
type BatchRememberRequest struct {
	UserID   string             `json:"user_id"`
	Memories []memory.NewMemory `json:"memories"`
}

// BatchRememberResponse lists the stored ids.
type BatchRememberResponse struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

// RecallRequest is a semantic query.
type RecallRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
}

// RecallTagsRequest selects memories by tag.
type RecallTagsRequest struct {
	UserID string   `json:"user_id"`
	Tags   []string `json:"tags"`
	Limit  int      `json:"limit,omitempty"`
}

// DateRangeRequest carries ISO-8601 UTC bounds ending in "Z".
type DateRangeRequest struct {
	UserID string `json:"user_id"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Limit  int    `json:"limit,omitempty"`
}

// MemoriesResponse wraps a list of memories.
type MemoriesResponse struct {
	Memories []memory.Memory `json:"memories"`
	Count    int             `json:"count"`
}

// ForgetTagsRequest deletes memories by tag.
type ForgetTagsRequest struct {
	UserID string   `json:"user_id"`
	Tags   []string `json:"tags"`
}

// ForgetAgeRequest deletes memories older than DaysOld.
type ForgetAgeRequest struct {
	UserID  string `json:"user_id"`
	DaysOld int    `json:"days_old"`
}

// ForgetImportanceRequest deletes memories below Threshold.
type ForgetImportanceRequest struct {
	UserID    string  `json:"user_id"`
	Threshold float64 `json:"threshold"`
}

// ForgetPatternRequest deletes memories whose content matches Pattern.
type ForgetPatternRequest struct {
	UserID  string `json:"user_id"`
	Pattern string `json:"pattern"`
}

// ForgetResponse reports how many memories were deleted.
type ForgetResponse struct {
	Forgotten int `json:"forgotten"`
}

// DeleteUserResponse confirms a user's engine and storage are gone.
type DeleteUserResponse struct {
	UserID  string `json:"user_id"`
	Deleted bool   `json:"deleted"`
}

// ContextSummaryRequest asks for the newest decisions, learnings and context.
type ContextSummaryRequest struct {
	UserID           string `json:"user_id"`
	MaxItems         int    `json:"max_items"`
	IncludeDecisions bool   `json:"include_decisions"`
	IncludeLearnings bool   `json:"include_learnings"`
	IncludeContext   bool   `json:"include_context"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
	Index  string `json:"index,omitempty"`
	Users  int    `json:"users"`
	Uptime string `json:"uptime"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FormatTime renders t as ISO-8601 in UTC with a trailing "Z".
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime accepts RFC 3339 timestamps, with or without fractional seconds.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// ToRange converts the request bounds into a memory.DateRange.
func (r DateRangeRequest) ToRange() (memory.DateRange, error) {
	start, err := ParseTime(r.Start)
	if err != nil {
		return memory.DateRange{}, err
	}
	end, err := ParseTime(r.End)
	if err != nil {
		return memory.DateRange{}, err
	}
	if end.Before(start) {
		return memory.DateRange{}, fmt.Errorf("end %s is before start %s", r.End, r.Start)
	}
	return memory.DateRange{Start: start, End: end}, nil
}
