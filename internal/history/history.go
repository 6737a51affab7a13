package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/icemetrics/icemetrics/internal/aggregate"
	"github.com/icemetrics/icemetrics/internal/config"
)

// Provider returns the most recent baseline for a warehouse, or nil when
// there is none.
type Provider interface {
	Previous(ctx context.Context, warehouse string) (*aggregate.Baseline, error)
}

// Recorder persists a run's baseline for the next run.
type Recorder interface {
	Record(ctx context.Context, b aggregate.Baseline) error
}

// Store is a Provider and Recorder backed by one storage system.
type Store interface {
	Provider
	Recorder
	Close(ctx context.Context) error
}

// Open creates the store selected by the history config.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	h := cfg.History
	switch h.Type {
	case config.HistoryGateway:
		return &Gateway{
			URL:      cfg.Metrics.Gateway,
			Job:      cfg.Metrics.Job + "_aggregate",
			Username: cfg.Metrics.Username,
			Password: cfg.Metrics.Password,
		}, nil
	case config.HistoryPostgres:
		pg, err := OpenPostgres(ctx, h.ConnectionString)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.HistoryMongoDB:
		m, err := OpenMongo(ctx, h.ConnectionString, h.Database)
		if err != nil {
			return nil, err
		}
		return m, nil
	case config.HistoryFile:
		return &File{Path: config.ExpandHome(h.Path)}, nil
	case config.HistoryNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("unsupported history type %q", h.Type)
	}
}

// Load reads the baseline, treating any failure as "no baseline".
func Load(ctx context.Context, p Provider, warehouse string, logger *slog.Logger) *aggregate.Baseline {
	b, err := p.Previous(ctx, warehouse)
	if err != nil {
		logger.Warn("previous run unavailable, growth will not be reported", "error", err)
		return nil
	}
	if b == nil {
		logger.Info("no previous run recorded, growth will not be reported")
	}
	return b
}

// None never has a baseline and records nothing.
type None struct{}

func (None) Previous(context.Context, string) (*aggregate.Baseline, error) { return nil, nil }
func (None) Record(context.Context, aggregate.Baseline) error              { return nil }
func (None) Close(context.Context) error                                   { return nil }
