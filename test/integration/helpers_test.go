//go:build integration

package integration

import (
	"fmt"
	"os"
	"testing"
)

func pgConnString(t *testing.T) string {
	t.Helper()
	host := envOrDefault("ICEMETRICS_TEST_PG_HOST", "localhost")
	port := envOrDefault("ICEMETRICS_TEST_PG_PORT", "25432")
	db := envOrDefault("ICEMETRICS_TEST_PG_DATABASE", "icemetrics_test")
	user := envOrDefault("ICEMETRICS_TEST_PG_USER", "postgres")
	pass := envOrDefault("ICEMETRICS_TEST_PG_PASSWORD", "postgres")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, db)
}

func mongoURI(t *testing.T) string {
	t.Helper()
	return envOrDefault("ICEMETRICS_TEST_MONGO_URI", "mongodb://localhost:37017/?directConnection=true")
}

func mongoDatabase(t *testing.T) string {
	t.Helper()
	return envOrDefault("ICEMETRICS_TEST_MONGO_DATABASE", "icemetrics_test")
}

func pushgatewayURL(t *testing.T) string {
	t.Helper()
	return envOrDefault("ICEMETRICS_TEST_PUSHGATEWAY", "localhost:29091")
}

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("ICEMETRICS_TEST_PG_HOST") == "" && os.Getenv("ICEMETRICS_TEST_PG_PORT") == "" {
		t.Skip("skipping: ICEMETRICS_TEST_PG_HOST/PORT not set")
	}
}

func skipIfNoMongo(t *testing.T) {
	t.Helper()
	if os.Getenv("ICEMETRICS_TEST_MONGO_URI") == "" {
		t.Skip("skipping: ICEMETRICS_TEST_MONGO_URI not set")
	}
}

func skipIfNoPushgateway(t *testing.T) {
	t.Helper()
	if os.Getenv("ICEMETRICS_TEST_PUSHGATEWAY") == "" {
		t.Skip("skipping: ICEMETRICS_TEST_PUSHGATEWAY not set")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
