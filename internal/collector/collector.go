// Package collector measures every table of a warehouse with a bounded
// pool of workers.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/icemetrics/icemetrics/internal/catalog"
	"github.com/icemetrics/icemetrics/internal/iceberg"
	"github.com/icemetrics/icemetrics/internal/logging"
	"github.com/icemetrics/icemetrics/internal/stats"
)

// FactsReader reads the data-file facts of one table. *iceberg.Reader
// satisfies it.
type FactsReader interface {
	ReadFacts(ctx context.Context, table catalog.TableIdentifier) (*iceberg.Facts, error)
}

// TableEvent reports one finished table. Exactly one of Metrics and Err is set.
type TableEvent struct {
	Table   catalog.TableIdentifier
	Metrics *stats.TableMetrics
	Err     error
	Elapsed time.Duration
}

// Collector runs one collection over a catalog.
type Collector struct {
	Catalog      catalog.Catalog
	Reader       FactsReader
	MaxWorkers   int
	TableTimeout time.Duration
	// Namespaces restricts the run to the named namespaces when non-empty.
	Namespaces []string
	Logger     *slog.Logger

	// OnDiscovered is called once with the number of tables to measure.
	OnDiscovered func(total int)
	// OnTable is called from a single goroutine as each table finishes.
	OnTable func(TableEvent)
}

// Inventory is the namespace and table universe of a warehouse.
type Inventory struct {
	Namespaces []string
	Tables     []catalog.TableIdentifier
}

// Enumerate lists every namespace and table. A namespace that disappears
// while being listed is kept with zero tables; any other catalog failure is
// returned and matches catalog.ErrCatalogUnavailable.
func (c *Collector) Enumerate(ctx context.Context) (*Inventory, error) {
	logger := c.logger()

	namespaces, err := c.Catalog.ListNamespaces(ctx)
	if err != nil {
		return nil, unavailable("listing namespaces", err)
	}

	var (
		mu  sync.Mutex
		inv = &Inventory{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for _, ns := range namespaces {
		ns := ns
		if !c.includes(ns.Name) {
			continue
		}
		g.Go(func() error {
			tables, err := c.Catalog.ListTables(gctx, ns.Name)
			if errors.Is(err, catalog.ErrNamespaceNotFound) {
				logger.Warn("namespace disappeared during enumeration", "namespace", ns.Name)
				mu.Lock()
				inv.Namespaces = append(inv.Namespaces, ns.Name)
				mu.Unlock()
				return nil
			}
			if err != nil {
				return unavailable(fmt.Sprintf("listing tables of %s", ns.Name), err)
			}
			mu.Lock()
			inv.Namespaces = append(inv.Namespaces, ns.Name)
			inv.Tables = append(inv.Tables, tables...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(inv.Namespaces)
	inv.Tables = dedupe(inv.Tables)
	logger.Info("enumerated warehouse", "namespaces", len(inv.Namespaces), "tables", len(inv.Tables))
	return inv, nil
}

// Run enumerates the warehouse and measures every table. It returns an
// error only when enumeration fails; per-table failures land in
// Result.Errors. Cancelling ctx stops dispatch while tables already being
// read finish under their own timeout.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	logger := c.logger()
	result := &Result{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	logger = logger.With("run_id", result.RunID)

	inv, err := c.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	result.Namespaces = inv.Namespaces
	if c.OnDiscovered != nil {
		c.OnDiscovered(len(inv.Tables))
	}

	events := make(chan TableEvent, c.workers())
	folded := make(chan struct{})
	go func() {
		defer close(folded)
		for ev := range events {
			if ev.Err != nil {
				result.Errors = append(result.Errors, TableError{Table: ev.Table, Err: ev.Err})
			} else {
				result.Tables = append(result.Tables, *ev.Metrics)
			}
			if c.OnTable != nil {
				c.OnTable(ev)
			}
		}
	}()

	var g errgroup.Group
	slots := make(chan struct{}, c.workers())
	for i, table := range inv.Tables {
		table := table
		if !acquire(ctx, slots) {
			logger.Warn("collection interrupted, skipping remaining tables", "skipped", len(inv.Tables)-i)
			for _, skipped := range inv.Tables[i:] {
				events <- TableEvent{Table: skipped, Err: ErrCancelled}
			}
			break
		}
		g.Go(func() error {
			defer func() { <-slots }()
			events <- c.measure(ctx, logger, table)
			return nil
		})
	}
	g.Wait()
	close(events)
	<-folded

	result.CompletedAt = time.Now().UTC()
	result.sort()
	logger.Info("collection finished",
		"tables", len(result.Tables),
		"failures", len(result.Errors),
		"elapsed", result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))
	return result, nil
}

// measure reads and computes one table. The read is detached from run
// cancellation so a started table is never cut off mid-read.
func (c *Collector) measure(ctx context.Context, logger *slog.Logger, table catalog.TableIdentifier) (ev TableEvent) {
	start := time.Now()
	ev.Table = table
	defer func() {
		if r := recover(); r != nil {
			ev.Metrics = nil
			ev.Err = fmt.Errorf("%w: %v", ErrTablePanic, r)
		}
		ev.Elapsed = time.Since(start)
		if ev.Err != nil {
			logger.Warn("table failed", "table", table.String(), "error", ev.Err, "elapsed", ev.Elapsed)
		} else {
			logger.Debug("table measured", "table", table.String(), "files", ev.Metrics.Metrics.FileCount, "elapsed", ev.Elapsed)
		}
	}()

	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
	defer cancel()

	facts, err := c.Reader.ReadFacts(readCtx, table)
	if err != nil {
		ev.Err = err
		return ev
	}
	m, err := stats.Compute(facts)
	if err != nil {
		ev.Err = err
		return ev
	}
	ev.Metrics = &m
	return ev
}

// acquire takes a worker slot unless the run has been cancelled.
func acquire(ctx context.Context, slots chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case slots <- struct{}{}:
	}
	if ctx.Err() != nil {
		<-slots
		return false
	}
	return true
}

func (c *Collector) includes(namespace string) bool {
	if len(c.Namespaces) == 0 {
		return true
	}
	for _, ns := range c.Namespaces {
		if ns == namespace {
			return true
		}
	}
	return false
}

func (c *Collector) workers() int {
	if c.MaxWorkers < 1 {
		return 1
	}
	return c.MaxWorkers
}

func (c *Collector) timeout() time.Duration {
	if c.TableTimeout <= 0 {
		return 2 * time.Minute
	}
	return c.TableTimeout
}

func (c *Collector) logger() *slog.Logger {
	if c.Logger == nil {
		return logging.Discard()
	}
	return c.Logger
}

// unavailable makes sure an enumeration failure is classified as fatal.
func unavailable(op string, err error) error {
	if errors.Is(err, catalog.ErrCatalogUnavailable) {
		return err
	}
	return &catalog.Error{Op: op, Kind: catalog.ErrCatalogUnavailable, Err: err}
}

func dedupe(tables []catalog.TableIdentifier) []catalog.TableIdentifier {
	sort.Slice(tables, func(i, j int) bool { return tables[i].Less(tables[j]) })
	out := tables[:0]
	for i, t := range tables {
		if i > 0 && t == tables[i-1] {
			continue
		}
		out = append(out, t)
	}
	return out
}
