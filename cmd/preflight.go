package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	awsclient "github.com/icemetrics/icemetrics/internal/aws"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check AWS credentials and permissions",
	Long: `Verify the AWS identity and simulate every IAM action a collection performs
against the configured warehouse.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}

		ctx := context.Background()
		client, err := newAWSClient(ctx, cfg)
		if err != nil {
			return err
		}

		report, err := awsclient.CheckWarehouseAccess(ctx, client, cfg.Warehouse.Catalog, cfg.Warehouse.ARN)
		if err != nil {
			return fmt.Errorf("checking AWS access: %w", err)
		}

		fmt.Printf("Identity:  %s (account %s)\n", report.Identity.ARN, report.Identity.Account)
		fmt.Printf("Warehouse: %s (%s, %s)\n\n", cfg.Warehouse.ARN, cfg.Warehouse.Catalog, cfg.Region())
		for _, c := range report.Checks {
			status := "OK"
			if !c.Allowed {
				status = "DENIED"
			}
			fmt.Printf("  [%-6s] %s on %s\n", status, c.Action, c.Resource)
			if c.Err != nil {
				fmt.Printf("           %v\n", c.Err)
			}
		}
		fmt.Println()
		fmt.Println(report.Message)

		if !report.Ready() {
			return fmt.Errorf("missing permissions for %s", cfg.Warehouse.ARN)
		}
		return nil
	},
}

func init() {
	addWarehouseFlags(preflightCmd)
	rootCmd.AddCommand(preflightCmd)
}
