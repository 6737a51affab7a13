package aws

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// ErrObjectNotFound is returned by Open when the object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Options configures the AWS clients.
type Options struct {
	Profile           string
	Region            string
	RequestsPerSecond float64
}

// LoadConfig loads the shared AWS configuration for the given profile and region.
func LoadConfig(ctx context.Context, profile, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return cfg, nil
}

// RealClient implements Client using the AWS SDK v2.
type RealClient struct {
	cfg       aws.Config
	throttle  *Throttle
	stsClient *sts.Client
	iamClient *iam.Client
	s3Client  *s3.Client
}

// NewRealClient creates a new AWS client.
func NewRealClient(ctx context.Context, opts Options) (*RealClient, error) {
	cfg, err := LoadConfig(ctx, opts.Profile, opts.Region)
	if err != nil {
		return nil, err
	}

	return &RealClient{
		cfg:       cfg,
		throttle:  NewThrottle(opts.RequestsPerSecond),
		stsClient: sts.NewFromConfig(cfg),
		iamClient: iam.NewFromConfig(cfg),
		s3Client:  s3.NewFromConfig(cfg),
	}, nil
}

// Config returns the loaded AWS configuration so catalog clients can share it.
func (c *RealClient) Config() aws.Config {
	return c.cfg
}

// Throttle returns the run-wide request throttle.
func (c *RealClient) Throttle() *Throttle {
	return c.throttle
}

// VerifyCredentials checks the current AWS credentials using STS.
func (c *RealClient) VerifyCredentials(ctx context.Context) (*CallerIdentity, error) {
	out, err := c.stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("getting caller identity: %w", err)
	}

	return &CallerIdentity{
		Account: aws.ToString(out.Account),
		ARN:     aws.ToString(out.Arn),
		UserID:  aws.ToString(out.UserId),
	}, nil
}

// CheckAccess simulates whether the caller may perform action on resource.
func (c *RealClient) CheckAccess(ctx context.Context, action, resource string) (bool, error) {
	identity, err := c.VerifyCredentials(ctx)
	if err != nil {
		return false, err
	}

	out, err := c.iamClient.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
		PolicySourceArn: aws.String(identity.ARN),
		ActionNames:     []string{action},
		ResourceArns:    []string{resource},
	})
	if err != nil {
		// Simulation itself needs iam:SimulatePrincipalPolicy; report as not verifiable.
		return false, fmt.Errorf("simulating %s: %w", action, err)
	}

	for _, result := range out.EvaluationResults {
		if result.EvalDecision == "allowed" {
			return true, nil
		}
	}
	return false, nil
}

// Open streams an object from S3. The caller closes the returned reader.
func (c *RealClient) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URI(location)
	if err != nil {
		return nil, err
	}
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("reading %s: %w", location, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", location, err)
	}
	return out.Body, nil
}
