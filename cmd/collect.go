package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/icemetrics/icemetrics/internal/aggregate"
	"github.com/icemetrics/icemetrics/internal/collector"
	"github.com/icemetrics/icemetrics/internal/config"
	"github.com/icemetrics/icemetrics/internal/export"
	"github.com/icemetrics/icemetrics/internal/history"
	"github.com/icemetrics/icemetrics/internal/iceberg"
	"github.com/icemetrics/icemetrics/internal/lock"
	"github.com/icemetrics/icemetrics/internal/logging"
	"github.com/icemetrics/icemetrics/internal/progress"
	"github.com/icemetrics/icemetrics/internal/report"
)

// pushTimeout bounds the whole export, which runs even after an interrupt.
const pushTimeout = 2 * time.Minute

var (
	collectGateway      string
	collectMaxWorkers   int
	collectTableTimeout time.Duration
	collectNamespaces   []string
	collectDryRun       bool
	collectJSON         bool
	collectProgress     bool
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Measure every table and push metrics",
	Long: `Enumerate the warehouse's namespaces and tables, read each table's current
Iceberg snapshot, and push per-table and warehouse metrics to the Pushgateway.

Exit status is 0 on success, 1 when the run could not complete, and 2 when
metrics were computed but could not all be pushed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}
		writeJSON := collectJSON || cfg.Collector.OutputJSON

		logger, err := logging.Setup(logging.Options{
			Level:     cfg.Logging.Level,
			Directory: cfg.Logging.Directory,
			Quiet:     collectProgress || writeJSON,
		})
		if err != nil {
			return err
		}

		lockPath := lock.PathFor("", cfg.Warehouse.ARN)
		if err := lock.Acquire(lockPath, cfg.Warehouse.ARN); err != nil {
			return err
		}
		defer lock.Release(lockPath)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		client, err := newAWSClient(ctx, cfg)
		if err != nil {
			return err
		}
		cat := newCatalog(cfg, client)

		coll := &collector.Collector{
			Catalog:      cat,
			Reader:       iceberg.NewReader(cat, iceberg.RoutingStore{Remote: client}),
			MaxWorkers:   cfg.Collector.MaxWorkers,
			TableTimeout: cfg.Collector.TableTimeout,
			Namespaces:   collectNamespaces,
			Logger:       logger,
		}

		var result *collector.Result
		if collectProgress {
			result, err = runWithProgress(ctx, cfg.Warehouse.ARN, cancel, coll)
		} else {
			result, err = coll.Run(ctx)
		}
		if err != nil {
			return err
		}

		return finishRun(ctx, cfg, logger, result, writeJSON)
	},
}

// runWithProgress runs the collection behind the live terminal view.
// Quitting the view cancels the run.
func runWithProgress(ctx context.Context, warehouse string, cancel func(), coll *collector.Collector) (*collector.Result, error) {
	view := progress.NewView(warehouse, cancel, os.Stderr)
	coll.OnDiscovered = view.Discovered
	coll.OnTable = view.Table

	viewErr := make(chan error, 1)
	go func() { viewErr <- view.Run() }()

	result, err := coll.Run(ctx)
	view.Finish()
	if verr := <-viewErr; verr != nil {
		coll.Logger.Warn("progress view failed", "error", verr)
	}
	return result, err
}

// finishRun aggregates, exports and reports a completed collection.
func finishRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, result *collector.Result, writeJSON bool) error {
	warehouse := cfg.Warehouse.ARN

	store, err := history.Open(ctx, cfg)
	if err != nil {
		logger.Warn("history store unavailable, growth will not be reported", "type", cfg.History.Type, "error", err)
		store = history.None{}
	}
	defer store.Close(context.WithoutCancel(ctx))

	prev := history.Load(ctx, store, warehouse, logger)
	agg, err := aggregate.Compute(warehouse, result, prev)
	if err != nil {
		return fmt.Errorf("aggregating metrics: %w", err)
	}

	// A cancelled run is missing tables, so its totals would overwrite good
	// groups with partial ones.
	exported := !collectDryRun && !result.Cancelled()
	var exportErr error
	if exported {
		pushCtx, cancelPush := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancelPush()

		exp := &export.Exporter{
			Pusher: &export.GatewayPusher{
				URL:      cfg.Metrics.Gateway,
				Username: cfg.Metrics.Username,
				Password: cfg.Metrics.Password,
			},
			Job:     cfg.Metrics.Job,
			Workers: cfg.Collector.MaxWorkers,
			Logger:  logger,
		}
		exportErr = exp.Export(pushCtx, result.Tables, agg)
		if exportErr == nil {
			if err := store.Record(pushCtx, agg.Baseline()); err != nil {
				logger.Warn("recording run history failed", "error", err)
			}
		}
	}

	out := io.Writer(os.Stdout)
	if writeJSON {
		if err := export.WriteJSON(os.Stdout, result.Tables); err != nil {
			return fmt.Errorf("writing table records: %w", err)
		}
		out = os.Stderr
	}

	rep := report.GenerateReport(cfg.Warehouse.Catalog, result, agg, exported, exportErr)
	reportPath := report.Path(config.ExpandHome(report.DefaultDir), result.RunID)
	if err := report.WriteJSON(rep, reportPath); err != nil {
		logger.Warn("writing run report failed", "error", err)
	} else {
		logger.Info("run report written", "path", reportPath)
	}
	fmt.Fprintln(out, report.FormatText(rep, report.TerminalStyles()))

	switch {
	case result.Cancelled():
		return fmt.Errorf("collection interrupted: %w", collector.ErrCancelled)
	case exportErr != nil:
		return &exitError{code: 2, err: fmt.Errorf("exporting metrics: %w", exportErr)}
	}
	return nil
}

func init() {
	addWarehouseFlags(collectCmd)
	collectCmd.Flags().StringVar(&collectGateway, "prometheus-gateway", "", "Pushgateway address (default: localhost:9091)")
	collectCmd.Flags().IntVar(&collectMaxWorkers, "max-workers", 1, "tables measured concurrently")
	collectCmd.Flags().DurationVar(&collectTableTimeout, "table-timeout", 2*time.Minute, "time allowed to read one table's metadata")
	collectCmd.Flags().StringSliceVar(&collectNamespaces, "namespace", nil, "only measure these namespaces (repeatable)")
	collectCmd.Flags().BoolVar(&collectDryRun, "dry-run", false, "measure without pushing metrics or recording history")
	collectCmd.Flags().BoolVar(&collectJSON, "json", false, "print one JSON record per table to stdout")
	collectCmd.Flags().BoolVar(&collectProgress, "progress", false, "show a live progress view")
	rootCmd.AddCommand(collectCmd)
}
