// Package memclient gives the harness one contract for memory operations,
// implemented identically over the embedded engine and the REST API.
package memclient

import (
	"context"
	"errors"
	"fmt"

	"MemHarness/internal/memory"
	"MemHarness/internal/timing"
)

// Client is the operation contract both access paths implement. Query-based
// retrieval is ordered by relevance; List is ordered by insertion.
type Client interface {
	Path() timing.Path

	Remember(ctx context.Context, content string, memoryType memory.MemoryType, tags []string) (string, error)
	Recall(ctx context.Context, query string, limit int) ([]memory.Memory, error)
	RecallByTags(ctx context.Context, tags []string, limit int) ([]memory.Memory, error)
	RecallByDate(ctx context.Context, r memory.DateRange, limit int) ([]memory.Memory, error)
	List(ctx context.Context, limit int) ([]memory.Memory, error)
	Get(ctx context.Context, id string) (memory.Memory, error)

	Forget(ctx context.Context, id string) error
	ForgetByTags(ctx context.Context, tags []string) (int, error)
	ForgetByAge(ctx context.Context, days int) (int, error)
	ForgetByImportance(ctx context.Context, threshold float64) (int, error)
	ForgetByPattern(ctx context.Context, pattern string) (int, error)
	ForgetByDate(ctx context.Context, r memory.DateRange) (int, error)

	ContextSummary(ctx context.Context, maxItems int) (memory.ContextSummary, error)
	Stats(ctx context.Context) (memory.Stats, error)

	Close() error
}

// TransportError is a failed network-path call: a connection failure, a
// timeout or a non-2xx status.
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("memclient: %s: status %d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("memclient: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResourceError is a failure to allocate or release a disposable storage root.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("memclient: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsResource reports whether err is a ResourceError.
func IsResource(err error) bool {
	var re *ResourceError
	return errors.As(err, &re)
}
