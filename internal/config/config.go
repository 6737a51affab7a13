package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.icemetrics/icemetrics.yaml"
)

// Catalog implementations.
const (
	CatalogS3Tables = "s3tables"
	CatalogGlue     = "glue"
)

// History store types.
const (
	HistoryGateway  = "gateway"
	HistoryPostgres = "postgres"
	HistoryMongoDB  = "mongodb"
	HistoryFile     = "file"
	HistoryNone     = "none"
)

// Config is the top-level configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	AWS       AWSConfig       `yaml:"aws,omitempty"`
	Collector CollectorConfig `yaml:"collector,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
	History   HistoryConfig   `yaml:"history,omitempty"`
	Logging   LogConfig       `yaml:"logging,omitempty"`
}

// WarehouseConfig identifies the table warehouse to measure.
type WarehouseConfig struct {
	ARN           string `yaml:"arn"`
	Region        string `yaml:"region,omitempty"`
	Catalog       string `yaml:"catalog,omitempty"` // s3tables or glue
	GlueCatalogID string `yaml:"glue_catalog_id,omitempty"`
}

// AWSConfig defines AWS client settings.
type AWSConfig struct {
	Profile           string  `yaml:"profile,omitempty"`
	Region            string  `yaml:"region,omitempty"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // 0 = unlimited
}

// CollectorConfig tunes the per-table worker pool.
type CollectorConfig struct {
	MaxWorkers   int           `yaml:"max_workers,omitempty"`   // default 1
	TableTimeout time.Duration `yaml:"table_timeout,omitempty"` // default 2m
	OutputJSON   bool          `yaml:"output_json,omitempty"`
}

// MetricsConfig defines the Pushgateway sink.
type MetricsConfig struct {
	Gateway  string `yaml:"gateway,omitempty"` // default localhost:9091
	Job      string `yaml:"job,omitempty"`     // default iceberg_metrics
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// HistoryConfig selects where the previous run's totals are read from.
type HistoryConfig struct {
	Type             string `yaml:"type,omitempty"` // gateway, postgres, mongodb, file, none
	ConnectionString string `yaml:"connection_string,omitempty"`
	Database         string `yaml:"database,omitempty"`
	Path             string `yaml:"path,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level     string `yaml:"level,omitempty"`     // debug, info, warn, error
	Directory string `yaml:"directory,omitempty"` // default ~/.icemetrics/logs/
}

// Default returns a config populated only with defaults. It is used when
// collect runs from flags alone.
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadOptional behaves like Load but falls back to defaults when no file
// exists at the default location. An explicitly named file must exist.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(ExpandHome(DefaultPath)); errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
	}
	return Load(path)
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate reports every problem with the config at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Warehouse.ARN == "" {
		problems = append(problems, "warehouse.arn is required")
	}
	switch c.Warehouse.Catalog {
	case CatalogS3Tables, CatalogGlue:
	default:
		problems = append(problems, fmt.Sprintf("warehouse.catalog %q is not one of s3tables, glue", c.Warehouse.Catalog))
	}
	if c.Collector.MaxWorkers < 1 {
		problems = append(problems, "collector.max_workers must be >= 1")
	}
	if c.Collector.TableTimeout <= 0 {
		problems = append(problems, "collector.table_timeout must be positive")
	}
	if c.AWS.RequestsPerSecond < 0 {
		problems = append(problems, "aws.requests_per_second must not be negative")
	}
	switch c.History.Type {
	case HistoryGateway, HistoryNone:
	case HistoryPostgres, HistoryMongoDB:
		if c.History.ConnectionString == "" {
			problems = append(problems, fmt.Sprintf("history.connection_string is required for %s", c.History.Type))
		}
	case HistoryFile:
		if c.History.Path == "" {
			problems = append(problems, "history.path is required for file history")
		}
	default:
		problems = append(problems, fmt.Sprintf("history.type %q is not supported", c.History.Type))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// ValidationError lists config problems.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d config problem(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// Region returns the region to talk to, preferring the warehouse's own.
func (c *Config) Region() string {
	if c.Warehouse.Region != "" {
		return c.Warehouse.Region
	}
	if c.AWS.Region != "" {
		return c.AWS.Region
	}
	if r := regionFromARN(c.Warehouse.ARN); r != "" {
		return r
	}
	return "us-east-1"
}

// regionFromARN extracts the region field of arn:partition:service:region:account:resource.
func regionFromARN(arn string) string {
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) < 6 || parts[0] != "arn" {
		return ""
	}
	return parts[3]
}

func (c *Config) applyDefaults() {
	if c.Warehouse.Catalog == "" {
		c.Warehouse.Catalog = CatalogS3Tables
	}
	if c.Collector.MaxWorkers == 0 {
		c.Collector.MaxWorkers = 1
	}
	if c.Collector.TableTimeout == 0 {
		c.Collector.TableTimeout = 2 * time.Minute
	}
	if c.Metrics.Gateway == "" {
		c.Metrics.Gateway = "localhost:9091"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "iceberg_metrics"
	}
	if c.History.Type == "" {
		c.History.Type = HistoryGateway
	}
	if c.History.Type == HistoryFile && c.History.Path == "" {
		c.History.Path = ExpandHome("~/.icemetrics/history.yaml")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.icemetrics/logs/")
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	r := secretResolver{profile: c.AWS.Profile, region: c.secretsRegion()}
	var err error
	c.Metrics.Password, err = r.resolve(c.Metrics.Password)
	if err != nil {
		return fmt.Errorf("metrics password: %w", err)
	}
	c.History.ConnectionString, err = r.resolve(c.History.ConnectionString)
	if err != nil {
		return fmt.Errorf("history connection string: %w", err)
	}
	return nil
}

// secretsRegion is the region secrets are read from before defaults apply.
func (c *Config) secretsRegion() string {
	if c.AWS.Region != "" {
		return c.AWS.Region
	}
	if c.Warehouse.Region != "" {
		return c.Warehouse.Region
	}
	return regionFromARN(c.Warehouse.ARN)
}

// ResolveValue resolves a secret reference using the default AWS profile
// and region.
func ResolveValue(val string) (string, error) {
	return secretResolver{}.resolve(val)
}

// secretResolver resolves ${ENV:..}, ${VAULT:..} and ${AWS_SM:..}
// references. AWS lookups use the configured profile and region.
type secretResolver struct {
	profile string
	region  string
}

func (r secretResolver) resolve(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	var (
		secret string
		err    error
	)
	switch provider {
	case "ENV":
		secret = os.Getenv(ref)
		if secret == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
	case "VAULT":
		secret, err = resolveVault(ref)
	case "AWS_SM":
		secret, err = resolveAWSSecretsManager(ref, r.profile, r.region)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
	if err != nil {
		return "", err
	}
	// The reference may be embedded, e.g. postgres://u:${ENV:PW}@host/db.
	return strings.Replace(val, matches[0], secret, 1), nil
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
