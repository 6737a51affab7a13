package stats

import (
	"errors"
	"fmt"
	"math"

	"github.com/icemetrics/icemetrics/internal/iceberg"
)

// ErrOverflow means a byte or record total does not fit in 64 bits.
var ErrOverflow = errors.New("metric total overflows int64")

// TableMetrics is the per-table record pushed to the sink and written to
// JSON output.
type TableMetrics struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	Metrics  Values `json:"metrics"`
}

// Values are the measured quantities of one table.
type Values struct {
	PartitionCount   int64   `json:"partition_count"`
	FileCount        int64   `json:"file_count"`
	TotalBytes       int64   `json:"total_bytes"`
	TotalRecords     int64   `json:"total_records"`
	AvgPartitionSize float64 `json:"avg_partition_size"`
}

// Compute derives a table's metrics from its facts.
func Compute(facts *iceberg.Facts) (TableMetrics, error) {
	m := TableMetrics{Database: facts.Table.Namespace, Table: facts.Table.Name}

	partitions := make(map[iceberg.PartitionKey]struct{})
	for _, f := range facts.Files {
		var err error
		if m.Metrics.TotalBytes, err = Add(m.Metrics.TotalBytes, f.SizeBytes); err != nil {
			return TableMetrics{}, fmt.Errorf("%s total bytes: %w", facts.Table, err)
		}
		if m.Metrics.TotalRecords, err = Add(m.Metrics.TotalRecords, f.RecordCount); err != nil {
			return TableMetrics{}, fmt.Errorf("%s total records: %w", facts.Table, err)
		}
		partitions[f.Partition] = struct{}{}
	}

	m.Metrics.FileCount = int64(len(facts.Files))
	m.Metrics.PartitionCount = int64(len(partitions))
	m.Metrics.AvgPartitionSize = AveragePartitionSize(m.Metrics.TotalBytes, m.Metrics.PartitionCount)
	return m, nil
}

// AveragePartitionSize is totalBytes/partitions, or 0 for no partitions.
func AveragePartitionSize(totalBytes, partitions int64) float64 {
	if partitions == 0 {
		return 0
	}
	return float64(totalBytes) / float64(partitions)
}

// Add sums two non-negative totals, failing instead of wrapping.
func Add(a, b int64) (int64, error) {
	if b > math.MaxInt64-a {
		return 0, ErrOverflow
	}
	return a + b, nil
}
