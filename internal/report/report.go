package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/icemetrics/icemetrics/internal/aggregate"
	"github.com/icemetrics/icemetrics/internal/collector"
	"github.com/icemetrics/icemetrics/internal/stats"
)

const DefaultDir = "~/.icemetrics/reports"

// Export statuses.
const (
	ExportSucceeded = "succeeded"
	ExportFailed    = "failed"
	ExportSkipped   = "skipped"
)

// RunReport is the record of one collection run.
type RunReport struct {
	Version     string               `json:"version"`
	GeneratedAt time.Time            `json:"generated_at"`
	RunID       string               `json:"run_id"`
	Warehouse   string               `json:"warehouse"`
	Catalog     string               `json:"catalog"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt time.Time            `json:"completed_at"`
	Aggregate   *aggregate.Metrics   `json:"aggregate"`
	Tables      []stats.TableMetrics `json:"tables"`
	Failures    []Failure            `json:"failures,omitempty"`
	Export      ExportSummary        `json:"export"`
}

// Failure is a table that could not be measured.
type Failure struct {
	Database string `json:"database"`
	Table    string `json:"table"`
	Kind     string `json:"kind"`
	Reason   string `json:"reason"`
}

// ExportSummary describes what happened when pushing metrics.
type ExportSummary struct {
	Status string   `json:"status"`
	Errors []string `json:"errors,omitempty"`
}

// GenerateReport builds the report for a finished run. exportErr is the
// joined push error, if any.
func GenerateReport(catalogType string, result *collector.Result, agg *aggregate.Metrics, exported bool, exportErr error) *RunReport {
	r := &RunReport{
		Version:     "1",
		GeneratedAt: time.Now().UTC(),
		RunID:       result.RunID,
		Warehouse:   agg.Warehouse,
		Catalog:     catalogType,
		StartedAt:   result.StartedAt,
		CompletedAt: result.CompletedAt,
		Aggregate:   agg,
		Tables:      result.Tables,
	}
	for _, e := range result.Errors {
		r.Failures = append(r.Failures, Failure{
			Database: e.Table.Namespace,
			Table:    e.Table.Name,
			Kind:     e.Kind(),
			Reason:   e.Err.Error(),
		})
	}

	switch {
	case !exported:
		r.Export.Status = ExportSkipped
	case exportErr != nil:
		r.Export.Status = ExportFailed
		if joined, ok := exportErr.(interface{ Unwrap() []error }); ok {
			for _, err := range joined.Unwrap() {
				r.Export.Errors = append(r.Export.Errors, err.Error())
			}
		} else {
			r.Export.Errors = []string{exportErr.Error()}
		}
	default:
		r.Export.Status = ExportSucceeded
	}
	return r
}

// Path returns where the report of a run is written.
func Path(dir, runID string) string {
	return filepath.Join(dir, runID+".json")
}

// WriteJSON writes the report as JSON.
func WriteJSON(report *RunReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadJSON reads a report from a JSON file.
func ReadJSON(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	r := &RunReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}
	return r, nil
}

// FormatText renders the report summary for a terminal.
func FormatText(report *RunReport, s Styles) string {
	var b strings.Builder
	agg := report.Aggregate

	b.WriteString(s.Title.Render("Iceberg Metrics Collection"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Run:       %s\n", report.RunID))
	b.WriteString(fmt.Sprintf("  Warehouse: %s (%s)\n", report.Warehouse, report.Catalog))
	b.WriteString(fmt.Sprintf("  Duration:  %s\n\n", report.CompletedAt.Sub(report.StartedAt).Round(time.Millisecond)))

	b.WriteString(fmt.Sprintf("  Databases: %d\n", agg.DatabaseCount))
	b.WriteString(fmt.Sprintf("  Tables:    %s", s.Good.Render(fmt.Sprintf("%d measured", agg.TableCount))))
	if agg.FailureCount > 0 {
		b.WriteString(", " + s.Bad.Render(fmt.Sprintf("%d failed", agg.FailureCount)))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Storage:   %s\n", humanize.IBytes(uint64(agg.TotalBytes))))

	if agg.Growth != nil {
		if agg.Growth.TotalBytes != nil {
			b.WriteString(fmt.Sprintf("  Growth:    %s since %s\n", signedBytes(*agg.Growth.TotalBytes), agg.Growth.Since.Format(time.RFC3339)))
		} else {
			b.WriteString(s.Dim.Render("  Growth:    partial (tables missing from this or the previous run)"))
			b.WriteString("\n")
		}
	} else {
		b.WriteString(s.Dim.Render("  Growth:    no previous run"))
		b.WriteString("\n")
	}

	if len(agg.NamespaceBytes) > 0 {
		b.WriteString("\n")
		b.WriteString(s.Heading.Render("  Namespaces:"))
		b.WriteString("\n")
		names := make([]string, 0, len(agg.NamespaceBytes))
		for ns := range agg.NamespaceBytes {
			names = append(names, ns)
		}
		sort.Strings(names)
		for _, ns := range names {
			line := fmt.Sprintf("    %-30s %12s", ns, humanize.IBytes(uint64(agg.NamespaceBytes[ns])))
			if agg.Growth != nil {
				if d, ok := agg.Growth.NamespaceBytes[ns]; ok {
					line += "  " + s.Dim.Render(signedBytes(d))
				}
			}
			b.WriteString(line + "\n")
		}
	}

	writeRanked := func(title string, tables []aggregate.RankedTable, format func(int64) string) {
		if len(tables) == 0 {
			return
		}
		b.WriteString("\n")
		b.WriteString(s.Heading.Render("  " + title))
		b.WriteString("\n")
		for _, t := range tables {
			b.WriteString(fmt.Sprintf("    %d. %-40s %14s\n", t.Rank, t.Database+"."+t.Table, format(t.Value)))
		}
	}
	writeRanked("Top tables by records:", agg.TopByRecords, func(v int64) string { return humanize.Comma(v) })
	writeRanked("Top tables by size:", agg.TopBySize, func(v int64) string { return humanize.IBytes(uint64(v)) })

	if len(report.Failures) > 0 {
		b.WriteString("\n")
		b.WriteString(s.Bad.Render("  Failures:"))
		b.WriteString("\n")
		for _, f := range report.Failures {
			b.WriteString(fmt.Sprintf("    [%s] %s.%s: %s\n", f.Kind, f.Database, f.Table, f.Reason))
		}
	}

	b.WriteString("\n")
	switch report.Export.Status {
	case ExportSucceeded:
		b.WriteString(s.Good.Render("  Metrics pushed"))
	case ExportSkipped:
		b.WriteString(s.Dim.Render("  Export skipped (dry run)"))
	case ExportFailed:
		b.WriteString(s.Bad.Render(fmt.Sprintf("  Export failed (%d group(s))", len(report.Export.Errors))))
		for _, e := range report.Export.Errors {
			b.WriteString("\n    - " + e)
		}
	}
	b.WriteString("\n")
	return b.String()
}

func signedBytes(v int64) string {
	if v < 0 {
		return "-" + humanize.IBytes(uint64(-v))
	}
	return "+" + humanize.IBytes(uint64(v))
}
