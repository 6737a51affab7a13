package catalog

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3tables"
	s3ttypes "github.com/aws/aws-sdk-go-v2/service/s3tables/types"

	awsclient "github.com/icemetrics/icemetrics/internal/aws"
)

// S3TablesAPI is the subset of the S3 Tables client used here.
type S3TablesAPI interface {
	s3tables.ListNamespacesAPIClient
	s3tables.ListTablesAPIClient
	GetTableMetadataLocation(ctx context.Context, params *s3tables.GetTableMetadataLocationInput, optFns ...func(*s3tables.Options)) (*s3tables.GetTableMetadataLocationOutput, error)
}

// S3Tables implements Catalog for an Amazon S3 table bucket.
type S3Tables struct {
	api       S3TablesAPI
	bucketARN string
	throttle  *awsclient.Throttle
}

// NewS3Tables creates a catalog over the table bucket identified by bucketARN.
func NewS3Tables(cfg aws.Config, bucketARN string, throttle *awsclient.Throttle) *S3Tables {
	return NewS3TablesWithAPI(s3tables.NewFromConfig(cfg), bucketARN, throttle)
}

// NewS3TablesWithAPI creates a catalog over an existing API client.
func NewS3TablesWithAPI(api S3TablesAPI, bucketARN string, throttle *awsclient.Throttle) *S3Tables {
	return &S3Tables{api: api, bucketARN: bucketARN, throttle: throttle}
}

func (c *S3Tables) ListNamespaces(ctx context.Context) ([]Namespace, error) {
	paginator := s3tables.NewListNamespacesPaginator(c.api, &s3tables.ListNamespacesInput{
		TableBucketARN: aws.String(c.bucketARN),
	})

	var namespaces []Namespace
	for paginator.HasMorePages() {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, newError("list namespaces", c.bucketARN, ErrCatalogUnavailable, err)
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, newError("list namespaces", c.bucketARN, ErrCatalogUnavailable, err)
		}
		for _, ns := range page.Namespaces {
			// S3 Tables namespaces are single-level; the API still returns a list.
			if len(ns.Namespace) == 0 {
				continue
			}
			namespaces = append(namespaces, Namespace{Name: ns.Namespace[0]})
		}
	}
	return namespaces, nil
}

func (c *S3Tables) ListTables(ctx context.Context, namespace string) ([]TableIdentifier, error) {
	paginator := s3tables.NewListTablesPaginator(c.api, &s3tables.ListTablesInput{
		TableBucketARN: aws.String(c.bucketARN),
		Namespace:      aws.String(namespace),
	})

	var tables []TableIdentifier
	for paginator.HasMorePages() {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, newError("list tables", namespace, ErrCatalogUnavailable, err)
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var nf *s3ttypes.NotFoundException
			if errors.As(err, &nf) {
				return nil, newError("list tables", namespace, ErrNamespaceNotFound, err)
			}
			return nil, newError("list tables", namespace, ErrCatalogUnavailable, err)
		}
		for _, t := range page.Tables {
			tables = append(tables, TableIdentifier{Namespace: namespace, Name: aws.ToString(t.Name)})
		}
	}
	return tables, nil
}

func (c *S3Tables) MetadataLocation(ctx context.Context, table TableIdentifier) (string, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return "", err
	}
	out, err := c.api.GetTableMetadataLocation(ctx, &s3tables.GetTableMetadataLocationInput{
		TableBucketARN: aws.String(c.bucketARN),
		Namespace:      aws.String(table.Namespace),
		Name:           aws.String(table.Name),
	})
	if err != nil {
		var nf *s3ttypes.NotFoundException
		if errors.As(err, &nf) {
			return "", newError("get metadata location", table.String(), ErrTableNotFound, err)
		}
		return "", newError("get metadata location", table.String(), ErrCatalogUnavailable, err)
	}
	location := aws.ToString(out.MetadataLocation)
	if location == "" {
		return "", newError("get metadata location", table.String(), ErrNotIceberg, errors.New("table has no metadata yet"))
	}
	return location, nil
}
