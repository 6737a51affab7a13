package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "icemetrics.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `version: 1
warehouse:
  arn: arn:aws:s3tables:eu-west-1:123456789012:bucket/analytics
collector:
  max_workers: 4
  table_timeout: 30s
metrics:
  gateway: pushgateway:9091
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Warehouse.Catalog != CatalogS3Tables {
		t.Errorf("expected default catalog s3tables, got %s", cfg.Warehouse.Catalog)
	}
	if cfg.Collector.MaxWorkers != 4 {
		t.Errorf("expected max_workers 4, got %d", cfg.Collector.MaxWorkers)
	}
	if cfg.Collector.TableTimeout != 30*time.Second {
		t.Errorf("expected table_timeout 30s, got %s", cfg.Collector.TableTimeout)
	}
	if cfg.Metrics.Job != "iceberg_metrics" {
		t.Errorf("expected default job iceberg_metrics, got %s", cfg.Metrics.Job)
	}
	if cfg.History.Type != HistoryGateway {
		t.Errorf("expected default history gateway, got %s", cfg.History.Type)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadInvalidVersion(t *testing.T) {
	path := writeConfig(t, `version: 99
warehouse:
  arn: x
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid version")
	}
}

func TestLoadOptional_NamedFileMissing(t *testing.T) {
	_, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for explicitly named missing file")
	}
}

func TestLoadOptional_DefaultMissing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := LoadOptional("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Collector.MaxWorkers != 1 {
		t.Errorf("expected default max_workers 1, got %d", cfg.Collector.MaxWorkers)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Warehouse.Catalog = "hive"
	cfg.Collector.MaxWorkers = -1
	cfg.History.Type = HistoryPostgres

	err := cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 4 {
		t.Errorf("expected 4 problems, got %d: %v", len(verr.Problems), verr.Problems)
	}
}

func TestRegion_FromARN(t *testing.T) {
	cfg := Default()
	cfg.Warehouse.ARN = "arn:aws:s3tables:ap-south-1:123456789012:bucket/b"
	if got := cfg.Region(); got != "ap-south-1" {
		t.Errorf("expected ap-south-1, got %s", got)
	}

	cfg.AWS.Region = "us-west-2"
	if got := cfg.Region(); got != "us-west-2" {
		t.Errorf("aws.region should win over ARN, got %s", got)
	}

	cfg.Warehouse.Region = "eu-central-1"
	if got := cfg.Region(); got != "eu-central-1" {
		t.Errorf("warehouse.region should win, got %s", got)
	}
}

func TestRegion_Fallback(t *testing.T) {
	cfg := Default()
	if got := cfg.Region(); got != "us-east-1" {
		t.Errorf("expected us-east-1, got %s", got)
	}
}

func TestResolveEnvSecret(t *testing.T) {
	t.Setenv("TEST_SECRET", "mysecret")
	val, err := ResolveValue("${ENV:TEST_SECRET}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "mysecret" {
		t.Errorf("expected mysecret, got %s", val)
	}
}

func TestResolveEmbeddedSecret(t *testing.T) {
	t.Setenv("PG_PASS", "pw")
	val, err := ResolveValue("postgres://metrics:${ENV:PG_PASS}@db:5432/metrics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "postgres://metrics:pw@db:5432/metrics" {
		t.Errorf("unexpected value %s", val)
	}
}

func TestResolvePlainValue(t *testing.T) {
	val, err := ResolveValue("plaintext")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "plaintext" {
		t.Errorf("expected plaintext, got %s", val)
	}
}

func TestLoad_ResolvesMetricsPassword(t *testing.T) {
	t.Setenv("GATEWAY_PASSWORD", "gw-secret")
	path := writeConfig(t, `version: 1
warehouse:
  arn: arn:aws:s3tables:us-east-1:123456789012:bucket/b
metrics:
  username: pusher
  password: ${ENV:GATEWAY_PASSWORD}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Metrics.Password != "gw-secret" {
		t.Errorf("expected resolved password, got %q", cfg.Metrics.Password)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "icemetrics.yaml")
	cfg := Default()
	cfg.Warehouse.ARN = "arn:aws:s3tables:us-east-1:123456789012:bucket/b"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "bucket/b") {
		t.Errorf("saved config missing warehouse arn:\n%s", data)
	}
}
