// Package aggregate rolls per-table metrics up to warehouse level.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/icemetrics/icemetrics/internal/collector"
	"github.com/icemetrics/icemetrics/internal/stats"
)

// TopN is the length of the ranked table lists.
const TopN = 5

// Baseline is the previous run's storage totals, used to compute growth.
type Baseline struct {
	Warehouse   string    `json:"warehouse" yaml:"warehouse" bson:"warehouse"`
	RunID       string    `json:"run_id" yaml:"run_id" bson:"run_id"`
	CollectedAt time.Time `json:"collected_at" yaml:"collected_at" bson:"collected_at"`
	// NamespaceBytes holds only namespaces whose tables were all measured.
	NamespaceBytes map[string]int64 `json:"namespace_bytes" yaml:"namespace_bytes" bson:"namespace_bytes"`
	TotalBytes     int64            `json:"total_bytes" yaml:"total_bytes" bson:"total_bytes"`
	// Partial is set when some table failed, making TotalBytes an undercount.
	Partial bool `json:"partial" yaml:"partial" bson:"partial"`
}

// RankedTable is one entry of a top-N list.
type RankedTable struct {
	Rank     int    `json:"rank"`
	Database string `json:"database"`
	Table    string `json:"table"`
	Value    int64  `json:"value"`
}

// Growth is the change in stored bytes since the baseline run.
type Growth struct {
	Since          time.Time        `json:"since"`
	NamespaceBytes map[string]int64 `json:"namespace_bytes"`
	// TotalBytes is nil when either run missed tables.
	TotalBytes *int64 `json:"total_bytes,omitempty"`
}

// Metrics are the warehouse-level rollups of one run.
type Metrics struct {
	Warehouse        string           `json:"warehouse"`
	RunID            string           `json:"run_id"`
	CompletedAt      time.Time        `json:"completed_at"`
	DatabaseCount    int              `json:"total_database_count"`
	TableCount       int              `json:"total_table_count"`
	FailureCount     int              `json:"failure_count"`
	FailedNamespaces []string         `json:"failed_namespaces,omitempty"`
	NamespaceBytes   map[string]int64 `json:"per_namespace_total_bytes"`
	TotalBytes       int64            `json:"total_bytes"`
	TopByRecords     []RankedTable    `json:"top5_by_record_count"`
	TopBySize        []RankedTable    `json:"top5_by_size"`
	// Growth is nil when there is no baseline.
	Growth *Growth `json:"growth_delta,omitempty"`
}

// Compute folds a run result and the optional previous baseline into
// warehouse metrics. The result does not depend on table order.
func Compute(warehouse string, result *collector.Result, prev *Baseline) (*Metrics, error) {
	m := &Metrics{
		Warehouse:      warehouse,
		RunID:          result.RunID,
		CompletedAt:    result.CompletedAt,
		TableCount:     len(result.Tables),
		FailureCount:   len(result.Errors),
		NamespaceBytes: make(map[string]int64),
	}

	for _, ns := range result.Namespaces {
		m.NamespaceBytes[ns] = 0
	}
	for _, t := range result.Tables {
		sum, err := stats.Add(m.NamespaceBytes[t.Database], t.Metrics.TotalBytes)
		if err != nil {
			return nil, fmt.Errorf("namespace %s bytes: %w", t.Database, err)
		}
		m.NamespaceBytes[t.Database] = sum
		if m.TotalBytes, err = stats.Add(m.TotalBytes, t.Metrics.TotalBytes); err != nil {
			return nil, fmt.Errorf("warehouse bytes: %w", err)
		}
	}
	for ns := range result.FailedNamespaces() {
		if _, ok := m.NamespaceBytes[ns]; !ok {
			m.NamespaceBytes[ns] = 0
		}
		m.FailedNamespaces = append(m.FailedNamespaces, ns)
	}
	sort.Strings(m.FailedNamespaces)
	m.DatabaseCount = len(m.NamespaceBytes)

	m.TopByRecords = Ranked(result.Tables, func(v stats.Values) int64 { return v.TotalRecords }, TopN)
	m.TopBySize = Ranked(result.Tables, func(v stats.Values) int64 { return v.TotalBytes }, TopN)
	m.Growth = growth(m, prev)
	return m, nil
}

// Ranked returns up to n tables ordered by key descending, ties broken by
// (database, table) ascending.
func Ranked(tables []stats.TableMetrics, key func(stats.Values) int64, n int) []RankedTable {
	sorted := make([]stats.TableMetrics, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		ka, kb := key(a.Metrics), key(b.Metrics)
		if ka != kb {
			return ka > kb
		}
		if a.Database != b.Database {
			return a.Database < b.Database
		}
		return a.Table < b.Table
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	out := make([]RankedTable, len(sorted))
	for i, t := range sorted {
		out[i] = RankedTable{Rank: i + 1, Database: t.Database, Table: t.Table, Value: key(t.Metrics)}
	}
	return out
}

// growth compares against the baseline. Namespaces missing from either side
// or with failed tables in this run are left out.
func growth(m *Metrics, prev *Baseline) *Growth {
	if prev == nil {
		return nil
	}
	failed := make(map[string]bool, len(m.FailedNamespaces))
	for _, ns := range m.FailedNamespaces {
		failed[ns] = true
	}

	g := &Growth{Since: prev.CollectedAt, NamespaceBytes: make(map[string]int64)}
	for ns, cur := range m.NamespaceBytes {
		before, ok := prev.NamespaceBytes[ns]
		if !ok || failed[ns] {
			continue
		}
		g.NamespaceBytes[ns] = cur - before
	}
	if m.FailureCount == 0 && !prev.Partial {
		delta := m.TotalBytes - prev.TotalBytes
		g.TotalBytes = &delta
	}
	return g
}

// Baseline returns what the next run should compare against.
func (m *Metrics) Baseline() Baseline {
	failed := make(map[string]bool, len(m.FailedNamespaces))
	for _, ns := range m.FailedNamespaces {
		failed[ns] = true
	}
	b := Baseline{
		Warehouse:      m.Warehouse,
		RunID:          m.RunID,
		CollectedAt:    m.CompletedAt,
		NamespaceBytes: make(map[string]int64, len(m.NamespaceBytes)),
		TotalBytes:     m.TotalBytes,
		Partial:        m.FailureCount > 0,
	}
	for ns, v := range m.NamespaceBytes {
		if !failed[ns] {
			b.NamespaceBytes[ns] = v
		}
	}
	return b
}
