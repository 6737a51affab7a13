// Package catalog enumerates the namespaces and tables of an Iceberg
// warehouse and resolves each table's current metadata pointer.
package catalog

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCatalogUnavailable means the catalog could not be listed at all
	// (network, authentication or permission failure).
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrNamespaceNotFound means a namespace vanished between enumeration and listing.
	ErrNamespaceNotFound = errors.New("namespace not found")

	// ErrTableNotFound means a table vanished before its metadata pointer was read.
	ErrTableNotFound = errors.New("table not found")

	// ErrNotIceberg means the catalog entry exists but has no Iceberg metadata pointer.
	ErrNotIceberg = errors.New("not an iceberg table")
)

// Namespace is a logical grouping of tables (a "database").
type Namespace struct {
	Name string
}

// TableIdentifier addresses one table within the catalog.
type TableIdentifier struct {
	Namespace string
	Name      string
}

func (t TableIdentifier) String() string {
	return t.Namespace + "." + t.Name
}

// Less orders identifiers by (namespace, name).
func (t TableIdentifier) Less(o TableIdentifier) bool {
	if t.Namespace != o.Namespace {
		return t.Namespace < o.Namespace
	}
	return t.Name < o.Name
}

// Catalog is the read-only view of a warehouse catalog. Order of returned
// namespaces and tables carries no meaning.
type Catalog interface {
	ListNamespaces(ctx context.Context) ([]Namespace, error)
	ListTables(ctx context.Context, namespace string) ([]TableIdentifier, error)
	MetadataLocation(ctx context.Context, table TableIdentifier) (string, error)
}

// Error records which catalog operation failed. It unwraps to both its
// classification (one of the sentinel errors) and the underlying cause.
type Error struct {
	Op     string
	Target string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Target, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newError(op, target string, kind, err error) error {
	return &Error{Op: op, Target: target, Kind: kind, Err: err}
}
