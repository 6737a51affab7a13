package iceberg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/icemetrics/icemetrics/internal/catalog"
)

// ErrMetadataUnreadable marks a table whose metadata or manifest chain could
// not be read. It is a per-table failure.
var ErrMetadataUnreadable = errors.New("table metadata unreadable")

// Read stages, reported on ReadError.
const (
	StageLocate       = "locate"
	StageMetadata     = "metadata"
	StageManifestList = "manifest-list"
	StageManifest     = "manifest"
)

// ReadError describes where in the metadata chain a table read failed.
type ReadError struct {
	Table    catalog.TableIdentifier
	Stage    string
	Location string
	Err      error
}

func (e *ReadError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("reading %s (%s %s): %v", e.Table, e.Stage, e.Location, e.Err)
	}
	return fmt.Sprintf("reading %s (%s): %v", e.Table, e.Stage, e.Err)
}

func (e *ReadError) Unwrap() []error {
	return []error{ErrMetadataUnreadable, e.Err}
}

// Locator resolves a table's current metadata file. catalog.Catalog
// satisfies it.
type Locator interface {
	MetadataLocation(ctx context.Context, table catalog.TableIdentifier) (string, error)
}

// Facts are the raw per-file values of a table's current snapshot.
type Facts struct {
	Table            catalog.TableIdentifier
	MetadataLocation string
	FormatVersion    FormatVersion
	// SnapshotID is 0 when the table has no current snapshot.
	SnapshotID int64
	Files      []DataFile
}

// Reader walks metadata.json, the manifest list and every manifest of a
// table's current snapshot.
type Reader struct {
	locator Locator
	store   ObjectStore
}

// NewReader creates a Reader.
func NewReader(locator Locator, store ObjectStore) *Reader {
	return &Reader{locator: locator, store: store}
}

// ReadFacts reads the live data files of the table's current snapshot. Any
// failure is returned as a *ReadError matching ErrMetadataUnreadable.
func (r *Reader) ReadFacts(ctx context.Context, table catalog.TableIdentifier) (*Facts, error) {
	fail := func(stage, location string, err error) (*Facts, error) {
		return nil, &ReadError{Table: table, Stage: stage, Location: location, Err: err}
	}

	location, err := r.locator.MetadataLocation(ctx, table)
	if err != nil {
		return fail(StageLocate, "", err)
	}

	md, err := r.loadMetadata(ctx, location)
	if err != nil {
		return fail(StageMetadata, location, err)
	}

	facts := &Facts{
		Table:            table,
		MetadataLocation: location,
		FormatVersion:    md.FormatVersion,
	}
	if md.Current == nil {
		return facts, nil
	}
	facts.SnapshotID = md.Current.ID

	manifests := md.Current.Manifests
	if md.Current.ManifestList != "" {
		list, err := r.loadManifestList(ctx, md.Current.ManifestList, md.FormatVersion)
		if err != nil {
			return fail(StageManifestList, md.Current.ManifestList, err)
		}
		manifests = make([]string, len(list))
		for i, m := range list {
			manifests[i] = m.Path
		}
	}

	for _, path := range manifests {
		if err := ctx.Err(); err != nil {
			return fail(StageManifest, path, err)
		}
		err := r.scanManifest(ctx, path, md.FormatVersion, func(df DataFile) error {
			facts.Files = append(facts.Files, df)
			return nil
		})
		if err != nil {
			return fail(StageManifest, path, err)
		}
	}
	return facts, nil
}

func (r *Reader) loadMetadata(ctx context.Context, location string) (*TableMetadata, error) {
	rc, err := r.store.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var src io.Reader = rc
	if isGzipMetadata(location) {
		zr, err := gzip.NewReader(rc)
		if err != nil {
			return nil, fmt.Errorf("opening compressed metadata: %w", err)
		}
		defer zr.Close()
		src = zr
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	return ParseMetadata(data)
}

func (r *Reader) loadManifestList(ctx context.Context, location string, version FormatVersion) ([]ManifestFile, error) {
	rc, err := r.store.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readManifestList(rc, version)
}

func (r *Reader) scanManifest(ctx context.Context, location string, version FormatVersion, fn func(DataFile) error) error {
	rc, err := r.store.Open(ctx, location)
	if err != nil {
		return err
	}
	defer rc.Close()
	return readManifest(ctx, rc, version, fn)
}

// isGzipMetadata matches both gzip naming schemes writers use for metadata.
func isGzipMetadata(location string) bool {
	return strings.HasSuffix(location, ".gz.metadata.json") || strings.HasSuffix(location, ".metadata.json.gz")
}
