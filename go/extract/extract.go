// Package extract is the seam between the orchestrator and source-system
// adapters. Adapters register an extractor per schema or per table; extract
// tasks resolve and invoke it at execution time with an explicit request
// carrying the effective time range and the remaining execution budget.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sluicedata/sluice/go/catalog"
	"github.com/sluicedata/sluice/go/config"
)

// ErrExtractorMissing reports an extract task with no registered extractor.
var ErrExtractorMissing = errors.New("no extractor registered")

// Rows is a lazy, finite, non-restartable row sequence. Next returns io.EOF
// when the sequence is exhausted. Rows are consumed exactly once.
type Rows interface {
	Next() ([]interface{}, error)
}

// Request is one extract batch handed to an extractor.
type Request struct {
	Table *catalog.Table
	// Start and End bound the batch, formatted YYYY-MM-DDTHH:MM:SS. For
	// batched tables each task covers a single day slice.
	Start string
	End   string
	// TaskNumber identifies the batch within the job, starting at 0.
	TaskNumber int
	// Limit caps the number of rows to extract; 0 means unbounded.
	Limit int
	// Deadline is the remaining execution budget. Long-running extractors
	// consult it to stop early; flushed files remain independently loadable.
	Deadline *Deadline
}

// Func produces the rows of one extract batch.
type Func func(ctx context.Context, req *Request) (Rows, error)

// Registry resolves extractors by table, falling back to a schema-wide
// registration.
type Registry struct {
	mu       sync.RWMutex
	byTable  map[string]Func
	bySchema map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{
		byTable:  make(map[string]Func),
		bySchema: make(map[string]Func),
	}
}

// RegisterTable installs an extractor for a single table.
func (r *Registry) RegisterTable(schemaName, tableName string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTable[tableKey(schemaName, tableName)] = fn
}

// RegisterSchema installs an extractor for every table of a schema.
func (r *Registry) RegisterSchema(schemaName string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bySchema[strings.ToLower(schemaName)] = fn
}

// Resolve returns the extractor for a table, preferring a table-level
// registration over a schema-level one.
func (r *Registry) Resolve(schemaName, tableName string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.byTable[tableKey(schemaName, tableName)]; ok {
		return fn, nil
	}
	if fn, ok := r.bySchema[strings.ToLower(schemaName)]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("%w for table %s.%s", ErrExtractorMissing, schemaName, tableName)
}

func tableKey(schemaName, tableName string) string {
	return strings.ToLower(schemaName) + "." + strings.ToLower(tableName)
}

// Deadline is the execution budget handed to extractors.
type Deadline struct {
	at time.Time
}

// NewDeadline builds a deadline expiring at the given instant.
func NewDeadline(at time.Time) *Deadline { return &Deadline{at: at} }

// DeadlineFromContext derives the deadline from ctx, or from the configured
// function timeout when ctx carries none.
func DeadlineFromContext(ctx context.Context) *Deadline {
	if at, ok := ctx.Deadline(); ok {
		return &Deadline{at: at}
	}
	return &Deadline{at: time.Now().Add(time.Duration(config.LambdaTimeoutMillis()) * time.Millisecond)}
}

// RemainingMillis returns the milliseconds left, never negative.
func (d *Deadline) RemainingMillis() int64 {
	var remaining = time.Until(d.at).Milliseconds()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the budget is spent.
func (d *Deadline) Expired() bool { return d.RemainingMillis() == 0 }

type sliceRows struct {
	rows [][]interface{}
	next int
}

// FromSlice adapts an in-memory row set to the Rows interface. Used by
// static sources and in tests.
func FromSlice(rows [][]interface{}) Rows {
	return &sliceRows{rows: rows}
}

func (s *sliceRows) Next() ([]interface{}, error) {
	if s.next >= len(s.rows) {
		return nil, io.EOF
	}
	var row = s.rows[s.next]
	s.next++
	return row, nil
}
