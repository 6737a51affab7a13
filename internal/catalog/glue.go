package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"

	awsclient "github.com/icemetrics/icemetrics/internal/aws"
)

const (
	glueTableTypeKey        = "table_type"
	glueMetadataLocationKey = "metadata_location"
)

// GlueAPI is the subset of the Glue client used here.
type GlueAPI interface {
	glue.GetDatabasesAPIClient
	glue.GetTablesAPIClient
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
}

// Glue implements Catalog over the AWS Glue Data Catalog. Glue databases are
// namespaces; only tables registered with table_type=ICEBERG are listed.
type Glue struct {
	api       GlueAPI
	catalogID *string
	throttle  *awsclient.Throttle
}

// NewGlue creates a Glue-backed catalog. An empty catalogID means the caller's account.
func NewGlue(cfg aws.Config, catalogID string, throttle *awsclient.Throttle) *Glue {
	return NewGlueWithAPI(glue.NewFromConfig(cfg), catalogID, throttle)
}

// NewGlueWithAPI creates a Glue-backed catalog over an existing API client.
func NewGlueWithAPI(api GlueAPI, catalogID string, throttle *awsclient.Throttle) *Glue {
	g := &Glue{api: api, throttle: throttle}
	if catalogID != "" {
		g.catalogID = aws.String(catalogID)
	}
	return g
}

func (g *Glue) ListNamespaces(ctx context.Context) ([]Namespace, error) {
	paginator := glue.NewGetDatabasesPaginator(g.api, &glue.GetDatabasesInput{CatalogId: g.catalogID})

	var namespaces []Namespace
	for paginator.HasMorePages() {
		if err := g.throttle.Wait(ctx); err != nil {
			return nil, newError("get databases", "", ErrCatalogUnavailable, err)
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, newError("get databases", "", ErrCatalogUnavailable, err)
		}
		for _, db := range page.DatabaseList {
			namespaces = append(namespaces, Namespace{Name: aws.ToString(db.Name)})
		}
	}
	return namespaces, nil
}

func (g *Glue) ListTables(ctx context.Context, namespace string) ([]TableIdentifier, error) {
	paginator := glue.NewGetTablesPaginator(g.api, &glue.GetTablesInput{
		CatalogId:    g.catalogID,
		DatabaseName: aws.String(namespace),
	})

	var tables []TableIdentifier
	for paginator.HasMorePages() {
		if err := g.throttle.Wait(ctx); err != nil {
			return nil, newError("get tables", namespace, ErrCatalogUnavailable, err)
		}
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var nf *gluetypes.EntityNotFoundException
			if errors.As(err, &nf) {
				return nil, newError("get tables", namespace, ErrNamespaceNotFound, err)
			}
			return nil, newError("get tables", namespace, ErrCatalogUnavailable, err)
		}
		for _, t := range page.TableList {
			if !isIcebergTable(t) {
				continue
			}
			tables = append(tables, TableIdentifier{Namespace: namespace, Name: aws.ToString(t.Name)})
		}
	}
	return tables, nil
}

func (g *Glue) MetadataLocation(ctx context.Context, table TableIdentifier) (string, error) {
	if err := g.throttle.Wait(ctx); err != nil {
		return "", err
	}
	out, err := g.api.GetTable(ctx, &glue.GetTableInput{
		CatalogId:    g.catalogID,
		DatabaseName: aws.String(table.Namespace),
		Name:         aws.String(table.Name),
	})
	if err != nil {
		var nf *gluetypes.EntityNotFoundException
		if errors.As(err, &nf) {
			return "", newError("get table", table.String(), ErrTableNotFound, err)
		}
		return "", newError("get table", table.String(), ErrCatalogUnavailable, err)
	}
	if out.Table == nil || !isIcebergTable(*out.Table) {
		return "", newError("get table", table.String(), ErrNotIceberg, errors.New("table_type is not ICEBERG"))
	}
	location := out.Table.Parameters[glueMetadataLocationKey]
	if location == "" {
		return "", newError("get table", table.String(), ErrNotIceberg, errors.New("metadata_location parameter missing"))
	}
	return location, nil
}

func isIcebergTable(t gluetypes.Table) bool {
	return strings.EqualFold(t.Parameters[glueTableTypeKey], "ICEBERG")
}
