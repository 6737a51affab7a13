package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/icemetrics/icemetrics/internal/collector"
	"github.com/icemetrics/icemetrics/internal/logging"
)

var (
	tablesNamespaces []string
	tablesJSON       bool
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the warehouse's namespaces and tables",
	Long:  `Enumerate namespaces and tables through the catalog without reading any table metadata.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}
		logger := logging.New(os.Stderr, cfg.Logging.Level)

		ctx := context.Background()
		client, err := newAWSClient(ctx, cfg)
		if err != nil {
			return err
		}

		coll := &collector.Collector{
			Catalog:    newCatalog(cfg, client),
			MaxWorkers: cfg.Collector.MaxWorkers,
			Namespaces: tablesNamespaces,
			Logger:     logger,
		}
		inv, err := coll.Enumerate(ctx)
		if err != nil {
			return err
		}

		byNamespace := groupByNamespace(inv)

		if tablesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(byNamespace)
		}

		for _, ns := range inv.Namespaces {
			names := byNamespace[ns]
			fmt.Printf("%s (%d tables)\n", ns, len(names))
			for _, name := range names {
				fmt.Printf("  %s\n", name)
			}
		}
		fmt.Printf("\n%d namespaces, %d tables\n", len(inv.Namespaces), len(inv.Tables))
		return nil
	},
}

func init() {
	addWarehouseFlags(tablesCmd)
	tablesCmd.Flags().StringSliceVar(&tablesNamespaces, "namespace", nil, "only list these namespaces (repeatable)")
	tablesCmd.Flags().BoolVar(&tablesJSON, "json", false, "print namespaces and tables as JSON")
	rootCmd.AddCommand(tablesCmd)
}

// groupByNamespace maps every enumerated namespace to its table names. A
// namespace without tables maps to an empty list.
func groupByNamespace(inv *collector.Inventory) map[string][]string {
	out := make(map[string][]string, len(inv.Namespaces))
	for _, ns := range inv.Namespaces {
		out[ns] = []string{}
	}
	for _, t := range inv.Tables {
		out[t.Namespace] = append(out[t.Namespace], t.Name)
	}
	return out
}
