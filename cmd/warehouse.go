package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	awsclient "github.com/icemetrics/icemetrics/internal/aws"
	"github.com/icemetrics/icemetrics/internal/catalog"
	"github.com/icemetrics/icemetrics/internal/config"
)

// Flags shared by every command that talks to a warehouse.
var (
	warehouseARN string
	region       string
	catalogType  string
)

func addWarehouseFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&warehouseARN, "warehouse", "", "table bucket ARN (or Glue catalog ARN) to measure")
	cmd.Flags().StringVar(&region, "region", "", "AWS region (default: taken from the warehouse ARN)")
	cmd.Flags().StringVar(&catalogType, "catalog", "", "catalog implementation (s3tables, glue)")
}

// loadRunConfig loads the optional config file, applies command-line
// overrides and validates the result.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadOptional(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("warehouse") {
		cfg.Warehouse.ARN = warehouseARN
	}
	if flags.Changed("region") {
		cfg.Warehouse.Region = region
	}
	if flags.Changed("catalog") {
		cfg.Warehouse.Catalog = catalogType
	}
	if flags.Changed("prometheus-gateway") {
		cfg.Metrics.Gateway = collectGateway
	}
	if flags.Changed("max-workers") {
		cfg.Collector.MaxWorkers = collectMaxWorkers
	}
	if flags.Changed("table-timeout") {
		cfg.Collector.TableTimeout = collectTableTimeout
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newAWSClient(ctx context.Context, cfg *config.Config) (*awsclient.RealClient, error) {
	client, err := awsclient.NewRealClient(ctx, awsclient.Options{
		Profile:           cfg.AWS.Profile,
		Region:            cfg.Region(),
		RequestsPerSecond: cfg.AWS.RequestsPerSecond,
	})
	if err != nil {
		return nil, fmt.Errorf("creating AWS client: %w", err)
	}
	return client, nil
}

// newCatalog builds the catalog client selected by warehouse.catalog.
func newCatalog(cfg *config.Config, client *awsclient.RealClient) catalog.Catalog {
	if cfg.Warehouse.Catalog == config.CatalogGlue {
		return catalog.NewGlue(client.Config(), cfg.Warehouse.GlueCatalogID, client.Throttle())
	}
	return catalog.NewS3Tables(client.Config(), cfg.Warehouse.ARN, client.Throttle())
}
