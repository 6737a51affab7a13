package aws

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Client defines the AWS operations the collector needs outside the catalog API.
type Client interface {
	VerifyCredentials(ctx context.Context) (*CallerIdentity, error)
	CheckAccess(ctx context.Context, action, resource string) (bool, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// CallerIdentity holds AWS STS caller identity information.
type CallerIdentity struct {
	Account string
	ARN     string
	UserID  string
}

// ActionCheck is the simulated decision for one IAM action.
type ActionCheck struct {
	Action   string
	Resource string
	Allowed  bool
	Err      error
}

// AccessReport describes whether the caller can run a collection.
type AccessReport struct {
	Identity *CallerIdentity
	Checks   []ActionCheck
	Message  string
}

// Ready reports whether every required action is allowed.
func (r *AccessReport) Ready() bool {
	for _, c := range r.Checks {
		if !c.Allowed {
			return false
		}
	}
	return len(r.Checks) > 0
}

// RequiredActions lists the IAM actions a collection run performs against
// the given catalog type ("s3tables" or "glue").
func RequiredActions(catalogType, warehouseARN string) []ActionCheck {
	switch catalogType {
	case "glue":
		return []ActionCheck{
			{Action: "glue:GetDatabases", Resource: "*"},
			{Action: "glue:GetTables", Resource: "*"},
			{Action: "glue:GetTable", Resource: "*"},
			{Action: "s3:GetObject", Resource: "*"},
		}
	default:
		tables := strings.TrimSuffix(warehouseARN, "/") + "/table/*"
		return []ActionCheck{
			{Action: "s3tables:ListNamespaces", Resource: warehouseARN},
			{Action: "s3tables:ListTables", Resource: warehouseARN},
			{Action: "s3tables:GetTableMetadataLocation", Resource: tables},
			{Action: "s3:GetObject", Resource: "*"},
		}
	}
}

// CheckWarehouseAccess verifies credentials and simulates every action a
// collection needs. Individual simulation failures are recorded per check.
func CheckWarehouseAccess(ctx context.Context, client Client, catalogType, warehouseARN string) (*AccessReport, error) {
	identity, err := client.VerifyCredentials(ctx)
	if err != nil {
		return nil, err
	}

	report := &AccessReport{Identity: identity}
	denied := 0
	for _, check := range RequiredActions(catalogType, warehouseARN) {
		check.Allowed, check.Err = client.CheckAccess(ctx, check.Action, check.Resource)
		if !check.Allowed {
			denied++
		}
		report.Checks = append(report.Checks, check)
	}

	switch {
	case denied == 0:
		report.Message = "All required permissions are available."
	case denied == len(report.Checks):
		report.Message = "No required permission is available. Check the IAM policy attached to " + identity.ARN + "."
	default:
		report.Message = fmt.Sprintf("%d of %d required permissions are missing.", denied, len(report.Checks))
	}
	return report, nil
}

// ParseS3URI splits s3://bucket/key (also s3a:// and s3n://) into bucket and key.
func ParseS3URI(location string) (bucket, key string, err error) {
	rest := ""
	for _, scheme := range []string{"s3://", "s3a://", "s3n://"} {
		if strings.HasPrefix(location, scheme) {
			rest = strings.TrimPrefix(location, scheme)
			break
		}
	}
	if rest == "" {
		return "", "", fmt.Errorf("not an S3 location: %q", location)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("S3 location %q has no object key", location)
	}
	return bucket, key, nil
}
