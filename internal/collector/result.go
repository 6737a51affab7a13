package collector

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/icemetrics/icemetrics/internal/catalog"
	"github.com/icemetrics/icemetrics/internal/iceberg"
	"github.com/icemetrics/icemetrics/internal/stats"
)

var (
	// ErrCancelled marks a table that was never dispatched because the run
	// was interrupted.
	ErrCancelled = errors.New("collection cancelled before table was read")

	// ErrTablePanic marks a table whose measurement panicked.
	ErrTablePanic = errors.New("table measurement panicked")
)

// Failure kinds reported for tables that could not be measured.
const (
	KindMetadataUnreadable = "metadata_unreadable"
	KindTimeout            = "timeout"
	KindCancelled          = "cancelled"
	KindPanic              = "panic"
	KindOverflow           = "overflow"
	KindOther              = "error"
)

// TableError records why a table is missing from the metrics set.
type TableError struct {
	Table catalog.TableIdentifier
	Err   error
}

func (e TableError) Error() string {
	return e.Table.String() + ": " + e.Err.Error()
}

func (e TableError) Unwrap() error {
	return e.Err
}

// Kind classifies the failure.
func (e TableError) Kind() string {
	switch {
	case errors.Is(e.Err, ErrCancelled):
		return KindCancelled
	case errors.Is(e.Err, ErrTablePanic):
		return KindPanic
	case errors.Is(e.Err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(e.Err, stats.ErrOverflow):
		return KindOverflow
	case errors.Is(e.Err, iceberg.ErrMetadataUnreadable):
		return KindMetadataUnreadable
	default:
		return KindOther
	}
}

func (e TableError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Database string `json:"database"`
		Table    string `json:"table"`
		Kind     string `json:"kind"`
		Reason   string `json:"reason"`
	}{e.Table.Namespace, e.Table.Name, e.Kind(), e.Err.Error()})
}

// Result is the outcome of one collection run. Every discovered table
// appears exactly once, in Tables or in Errors.
type Result struct {
	RunID       string               `json:"run_id"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt time.Time            `json:"completed_at"`
	Namespaces  []string             `json:"namespaces"`
	Tables      []stats.TableMetrics `json:"tables"`
	Errors      []TableError         `json:"errors,omitempty"`
}

// Discovered is the number of tables the run enumerated.
func (r *Result) Discovered() int {
	return len(r.Tables) + len(r.Errors)
}

// Cancelled reports whether any table was skipped by an interruption.
func (r *Result) Cancelled() bool {
	for _, e := range r.Errors {
		if errors.Is(e.Err, ErrCancelled) {
			return true
		}
	}
	return false
}

// FailedNamespaces returns the namespaces with at least one failed table.
func (r *Result) FailedNamespaces() map[string]bool {
	failed := make(map[string]bool)
	for _, e := range r.Errors {
		failed[e.Table.Namespace] = true
	}
	return failed
}

func (r *Result) sort() {
	sort.Strings(r.Namespaces)
	sort.Slice(r.Tables, func(i, j int) bool {
		a, b := r.Tables[i], r.Tables[j]
		if a.Database != b.Database {
			return a.Database < b.Database
		}
		return a.Table < b.Table
	})
	sort.Slice(r.Errors, func(i, j int) bool {
		return r.Errors[i].Table.Less(r.Errors[j].Table)
	})
}
