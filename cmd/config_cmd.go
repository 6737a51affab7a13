package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/icemetrics/icemetrics/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View, validate, and create the icemetrics configuration file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOptional(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		fmt.Println("Current configuration:")
		fmt.Println()
		fmt.Printf("  Warehouse:\n")
		fmt.Printf("    ARN:            %s\n", cfg.Warehouse.ARN)
		fmt.Printf("    Region:         %s\n", cfg.Region())
		fmt.Printf("    Catalog:        %s\n", cfg.Warehouse.Catalog)
		if cfg.Warehouse.GlueCatalogID != "" {
			fmt.Printf("    Glue Catalog:   %s\n", cfg.Warehouse.GlueCatalogID)
		}
		fmt.Println()
		fmt.Printf("  Collector:\n")
		fmt.Printf("    Max Workers:    %d\n", cfg.Collector.MaxWorkers)
		fmt.Printf("    Table Timeout:  %s\n", cfg.Collector.TableTimeout)
		fmt.Println()
		fmt.Printf("  Metrics:\n")
		fmt.Printf("    Gateway:        %s\n", cfg.Metrics.Gateway)
		fmt.Printf("    Job:            %s\n", cfg.Metrics.Job)
		if cfg.Metrics.Username != "" {
			fmt.Printf("    Username:       %s\n", cfg.Metrics.Username)
			fmt.Printf("    Password:       %s\n", maskSecret(cfg.Metrics.Password))
		}
		fmt.Println()
		fmt.Printf("  History:\n")
		fmt.Printf("    Type:           %s\n", cfg.History.Type)
		if cfg.History.ConnectionString != "" {
			fmt.Printf("    Connection:     %s\n", maskConnectionString(cfg.History.ConnectionString))
		}
		if cfg.History.Path != "" {
			fmt.Printf("    Path:           %s\n", cfg.History.Path)
		}
		fmt.Println()
		fmt.Printf("  Logging:          %s (%s)\n", cfg.Logging.Level, cfg.Logging.Directory)

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			var verr *config.ValidationError
			if errors.As(err, &verr) {
				fmt.Println("Validation errors:")
				for _, p := range verr.Problems {
					fmt.Printf("  - %s\n", p)
				}
			}
			return err
		}

		fmt.Println("Configuration is valid.")
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// maskConnectionString hides the password of a URL-style connection string.
func maskConnectionString(s string) string {
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
