package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/icemetrics/icemetrics/internal/config"
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	Long:  `Walk through prompts to create an icemetrics configuration file at ~/.icemetrics/icemetrics.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		fmt.Println("icemetrics Configuration Setup")
		fmt.Println("==============================")
		fmt.Println()

		fmt.Println("Warehouse")
		fmt.Println("---------")
		catalogType := prompt(reader, "Catalog (s3tables/glue)", config.CatalogS3Tables)
		arn := prompt(reader, "Warehouse ARN", "")
		region := prompt(reader, "Region (leave empty to use the ARN's)", "")
		var glueID string
		if catalogType == config.CatalogGlue {
			glueID = prompt(reader, "Glue catalog ID (leave empty for the account default)", "")
		}
		workersStr := prompt(reader, "Max workers", "4")
		workers, err := strconv.Atoi(workersStr)
		if err != nil || workers < 1 {
			return fmt.Errorf("invalid max workers: %s", workersStr)
		}
		fmt.Println()

		fmt.Println("Pushgateway")
		fmt.Println("-----------")
		gateway := prompt(reader, "Address", "localhost:9091")
		username := prompt(reader, "Username (leave empty for no auth)", "")
		var password string
		if username != "" {
			password = prompt(reader, "Password (a ${ENV:...}, ${VAULT:...} or ${AWS_SM:...} reference is fine)", "")
		}
		fmt.Println()

		fmt.Println("Run History")
		fmt.Println("-----------")
		historyType := prompt(reader, "Store (gateway/postgres/mongodb/file/none)", config.HistoryGateway)
		var connStr, database string
		switch historyType {
		case config.HistoryPostgres:
			connStr = prompt(reader, "Connection string", "postgres://localhost:5432/icemetrics")
		case config.HistoryMongoDB:
			connStr = prompt(reader, "Connection string", "mongodb://localhost:27017")
			database = prompt(reader, "Database name", "icemetrics")
		}
		fmt.Println()

		cfg := &config.Config{
			Version: config.CurrentVersion,
			Warehouse: config.WarehouseConfig{
				ARN:           arn,
				Region:        region,
				Catalog:       catalogType,
				GlueCatalogID: glueID,
			},
			Collector: config.CollectorConfig{MaxWorkers: workers},
			Metrics: config.MetricsConfig{
				Gateway:  gateway,
				Username: username,
				Password: password,
			},
			History: config.HistoryConfig{
				Type:             historyType,
				ConnectionString: connStr,
				Database:         database,
			},
		}

		cfgPath := config.ExpandHome(config.DefaultPath)
		if cfgFile != "" {
			cfgPath = cfgFile
		}

		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Printf("Config written to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  icemetrics preflight   Check AWS credentials and permissions")
		fmt.Println("  icemetrics tables      List the warehouse's tables")
		fmt.Println("  icemetrics collect     Measure tables and push metrics")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
