package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/icemetrics/icemetrics/internal/catalog"
	"github.com/icemetrics/icemetrics/internal/collector"
)

func TestExitCode(t *testing.T) {
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Errorf("plain error: expected 1, got %d", got)
	}
	wrapped := fmt.Errorf("run: %w", &exitError{code: 2, err: errors.New("push failed")})
	if got := exitCode(wrapped); got != 2 {
		t.Errorf("export failure: expected 2, got %d", got)
	}
}

func TestMaskConnectionString(t *testing.T) {
	got := maskConnectionString("postgres://user:hunter2@db:5432/icemetrics")
	if got != "postgres://user:%2A%2A%2A%2A@db:5432/icemetrics" && got != "postgres://user:****@db:5432/icemetrics" {
		t.Errorf("password not masked: %s", got)
	}
	if got := maskConnectionString("mongodb://localhost:27017"); got != "mongodb://localhost:27017" {
		t.Errorf("expected unchanged, got %s", got)
	}
}

func TestLoadRunConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "icemetrics.yaml")
	data := []byte(`version: 1
warehouse:
  arn: arn:aws:s3tables:us-west-2:123456789012:bucket/from-file
collector:
  max_workers: 2
metrics:
  gateway: gateway.internal:9091
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	oldCfg := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = oldCfg })

	if err := collectCmd.Flags().Set("max-workers", "8"); err != nil {
		t.Fatal(err)
	}
	if err := collectCmd.Flags().Set("table-timeout", "30s"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		collectCmd.Flags().Set("max-workers", "1")
		collectCmd.Flags().Set("table-timeout", "2m0s")
		collectCmd.Flags().Lookup("max-workers").Changed = false
		collectCmd.Flags().Lookup("table-timeout").Changed = false
	})

	cfg, err := loadRunConfig(collectCmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Warehouse.ARN != "arn:aws:s3tables:us-west-2:123456789012:bucket/from-file" {
		t.Errorf("warehouse should come from the file, got %s", cfg.Warehouse.ARN)
	}
	if cfg.Collector.MaxWorkers != 8 {
		t.Errorf("expected flag to override max workers, got %d", cfg.Collector.MaxWorkers)
	}
	if cfg.Collector.TableTimeout != 30*time.Second {
		t.Errorf("expected 30s table timeout, got %s", cfg.Collector.TableTimeout)
	}
	if cfg.Metrics.Gateway != "gateway.internal:9091" {
		t.Errorf("unchanged gateway should come from the file, got %s", cfg.Metrics.Gateway)
	}
	if cfg.Region() != "us-west-2" {
		t.Errorf("expected region from ARN, got %s", cfg.Region())
	}
}

func TestLoadRunConfig_InvalidWithoutWarehouse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "icemetrics.yaml")
	if err := os.WriteFile(path, []byte("version: 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	oldCfg := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = oldCfg })

	if _, err := loadRunConfig(tablesCmd); err == nil {
		t.Error("expected validation error without a warehouse ARN")
	}
}

func TestGroupByNamespace_KeepsEmptyNamespaces(t *testing.T) {
	inv := &collector.Inventory{
		Namespaces: []string{"empty", "sales"},
		Tables: []catalog.TableIdentifier{
			{Namespace: "sales", Name: "orders"},
			{Namespace: "sales", Name: "refunds"},
		},
	}

	data, err := json.Marshal(groupByNamespace(inv))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"empty":[],"sales":["orders","refunds"]}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}
