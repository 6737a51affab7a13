package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/icemetrics/icemetrics/internal/aggregate"
	"github.com/icemetrics/icemetrics/internal/logging"
	"github.com/icemetrics/icemetrics/internal/stats"
)

// ErrExportFailure marks a push the sink rejected or never received.
var ErrExportFailure = errors.New("metrics export failed")

// Default job names.
const (
	DefaultJob      = "iceberg_metrics"
	AggregateSuffix = "_aggregate"
)

// Gauge names. The aggregate names are also read back by history.Gateway.
const (
	TablePartitions       = "iceberg_table_partitions"
	TableFiles            = "iceberg_table_files"
	TableBytes            = "iceberg_storage_total_bytes"
	TableRecords          = "iceberg_table_records"
	TableAvgPartitionSize = "iceberg_table_avg_partition_size"
	TableInfo             = "iceberg_table_info"

	DatabaseCount        = "iceberg_database_count"
	TableCount           = "iceberg_table_count"
	TableFailures        = "iceberg_table_failures"
	NamespaceFailures    = "iceberg_namespace_failures"
	NamespaceBytes       = "iceberg_namespace_total_bytes"
	WarehouseBytes       = "iceberg_warehouse_total_bytes"
	TopByRecords         = "iceberg_top_tables_by_records"
	TopBySize            = "iceberg_top_tables_by_size"
	NamespaceGrowth      = "iceberg_namespace_growth_bytes"
	WarehouseGrowth      = "iceberg_warehouse_growth_bytes"
	CollectionInfo       = "iceberg_collection_info"
	LastSuccessTimestamp = "iceberg_collection_last_success_timestamp_seconds"
)

// PushError records one rejected group.
type PushError struct {
	Job      string
	Grouping map[string]string
	Err      error
}

func (e *PushError) Error() string {
	keys := make([]string, 0, len(e.Grouping))
	for k := range e.Grouping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	group := ""
	for _, k := range keys {
		group += "/" + k + "/" + e.Grouping[k]
	}
	return fmt.Sprintf("pushing %s%s: %v", e.Job, group, e.Err)
}

func (e *PushError) Unwrap() []error {
	return []error{ErrExportFailure, e.Err}
}

// Exporter pushes one group per table, then one aggregate group.
type Exporter struct {
	Pusher Pusher
	Job    string
	// Workers bounds concurrent pushes.
	Workers int
	Logger  *slog.Logger
}

// Export pushes every group, continuing past failures. The returned error
// joins every *PushError and matches ErrExportFailure.
func (e *Exporter) Export(ctx context.Context, tables []stats.TableMetrics, agg *aggregate.Metrics) error {
	logger := e.logger()

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(job string, grouping map[string]string, err error) {
		if err == nil {
			return
		}
		pe := &PushError{Job: job, Grouping: grouping, Err: err}
		logger.Warn("push failed", "error", pe)
		mu.Lock()
		errs = append(errs, pe)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(e.workers())
	for _, t := range tables {
		t := t
		g.Go(func() error {
			grouping := map[string]string{"database": t.Database, "table": t.Table}
			record(e.job(), grouping, e.Pusher.Push(ctx, e.job(), grouping, TableRegistry(t)))
			return nil
		})
	}
	g.Wait()

	// The aggregate group goes last. Its values do not depend on the table
	// pushes, so it is pushed even when some of them failed.
	if agg != nil {
		job := e.job() + AggregateSuffix
		grouping := map[string]string{"warehouse": agg.Warehouse}
		record(job, grouping, e.Pusher.Push(ctx, job, grouping, AggregateRegistry(agg)))
	}

	groups := len(tables)
	if agg != nil {
		groups++
	}
	logger.Info("metrics exported", "groups", groups, "failed", len(errs))
	return errors.Join(errs...)
}

// TableRegistry holds the gauges of one table. Database and table names
// travel in the grouping key.
func TableRegistry(t stats.TableMetrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	gauge := func(name, help string, v float64) {
		f.NewGauge(prometheus.GaugeOpts{Name: name, Help: help}).Set(v)
	}
	gauge(TablePartitions, "Number of distinct partitions in the current snapshot.", float64(t.Metrics.PartitionCount))
	gauge(TableFiles, "Number of live data files in the current snapshot.", float64(t.Metrics.FileCount))
	gauge(TableBytes, "Total bytes of live data files.", float64(t.Metrics.TotalBytes))
	gauge(TableRecords, "Total records in live data files.", float64(t.Metrics.TotalRecords))
	gauge(TableAvgPartitionSize, "Average bytes per partition.", t.Metrics.AvgPartitionSize)
	gauge(TableInfo, "Always 1; marks the table as measured.", 1)
	return reg
}

// AggregateRegistry holds the warehouse rollups. Growth gauges are left out
// entirely when there is no baseline.
func AggregateRegistry(m *aggregate.Metrics) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	gauge := func(name, help string, v float64) {
		f.NewGauge(prometheus.GaugeOpts{Name: name, Help: help}).Set(v)
	}
	gauge(DatabaseCount, "Number of namespaces in the warehouse.", float64(m.DatabaseCount))
	gauge(TableCount, "Number of tables measured.", float64(m.TableCount))
	gauge(TableFailures, "Number of tables that could not be measured.", float64(m.FailureCount))
	gauge(WarehouseBytes, "Total bytes across measured tables.", float64(m.TotalBytes))
	gauge(LastSuccessTimestamp, "Unix time the collection finished.", float64(m.CompletedAt.Unix()))

	f.NewGaugeVec(prometheus.GaugeOpts{
		Name: CollectionInfo,
		Help: "Always 1; carries the run id.",
	}, []string{"run_id"}).WithLabelValues(m.RunID).Set(1)

	nsBytes := f.NewGaugeVec(prometheus.GaugeOpts{
		Name: NamespaceBytes,
		Help: "Total bytes per namespace.",
	}, []string{"database"})
	for ns, v := range m.NamespaceBytes {
		nsBytes.WithLabelValues(ns).Set(float64(v))
	}

	if len(m.FailedNamespaces) > 0 {
		nsFailures := f.NewGaugeVec(prometheus.GaugeOpts{
			Name: NamespaceFailures,
			Help: "1 for namespaces with tables that could not be measured.",
		}, []string{"database"})
		for _, ns := range m.FailedNamespaces {
			nsFailures.WithLabelValues(ns).Set(1)
		}
	}

	ranked := func(name, help string, tables []aggregate.RankedTable) {
		if len(tables) == 0 {
			return
		}
		vec := f.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, []string{"rank", "database", "table"})
		for _, t := range tables {
			vec.WithLabelValues(strconv.Itoa(t.Rank), t.Database, t.Table).Set(float64(t.Value))
		}
	}
	ranked(TopByRecords, "Largest tables by record count.", m.TopByRecords)
	ranked(TopBySize, "Largest tables by bytes.", m.TopBySize)

	if m.Growth != nil {
		growth := f.NewGaugeVec(prometheus.GaugeOpts{
			Name: NamespaceGrowth,
			Help: "Change in namespace bytes since the previous run.",
		}, []string{"database"})
		for ns, v := range m.Growth.NamespaceBytes {
			growth.WithLabelValues(ns).Set(float64(v))
		}
		if m.Growth.TotalBytes != nil {
			gauge(WarehouseGrowth, "Change in warehouse bytes since the previous run.", float64(*m.Growth.TotalBytes))
		}
	}
	return reg
}

// WriteJSON writes one JSON object per table, one per line.
func WriteJSON(w io.Writer, tables []stats.TableMetrics) error {
	enc := json.NewEncoder(w)
	for _, t := range tables {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("writing %s.%s: %w", t.Database, t.Table, err)
		}
	}
	return nil
}

func (e *Exporter) job() string {
	if e.Job == "" {
		return DefaultJob
	}
	return e.Job
}

func (e *Exporter) workers() int {
	if e.Workers < 1 {
		return 4
	}
	return e.Workers
}

func (e *Exporter) logger() *slog.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}
