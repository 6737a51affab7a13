package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

const secretLookupTimeout = 30 * time.Second

// resolveAWSSecretsManager resolves a Secrets Manager reference of the form
// name, name#json-key, or a full secret ARN with an optional #json-key. The
// secret is read with the configured profile, in the ARN's region when one
// is given and in region otherwise.
func resolveAWSSecretsManager(ref, profile, region string) (string, error) {
	name, jsonKey, _ := strings.Cut(ref, "#")
	if name == "" {
		return "", fmt.Errorf("invalid AWS Secrets Manager reference %q", ref)
	}
	if r := regionFromARN(name); r != "" {
		region = r
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretLookupTimeout)
	defer cancel()

	var opts []func(*awsconfig.LoadOptions) error
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("loading AWS config: %w", err)
	}

	out, err := secretsmanager.NewFromConfig(cfg).GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("getting secret %q: %w", name, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value (binary secrets not supported)", name)
	}

	if jsonKey == "" {
		return *out.SecretString, nil
	}
	return extractJSONKey(*out.SecretString, jsonKey)
}

// extractJSONKey reads one string field of a JSON secret, the shape the
// console uses for key/value secrets.
func extractJSONKey(secret, key string) (string, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(secret), &fields); err != nil {
		return "", fmt.Errorf("secret is not a JSON object: %w", err)
	}
	v, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("secret value for key %q is not a string", key)
	}
	return s, nil
}
