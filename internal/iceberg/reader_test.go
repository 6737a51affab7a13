package iceberg

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/icemetrics/icemetrics/internal/catalog"
)

const (
	ordersMetadata = "s3://warehouse/sales/orders/metadata/00003.metadata.json"
	ordersList     = "s3://warehouse/sales/orders/metadata/snap-42.avro"
	ordersData     = "s3://warehouse/sales/orders/metadata/m-data.avro"
	ordersDeletes  = "s3://warehouse/sales/orders/metadata/m-deletes.avro"
)

// ordersFixture builds a v2 table with two live files in partition p1, plus
// entries the reader must skip.
func ordersFixture(t *testing.T) (*catalog.MockCatalog, *MockStore, catalog.TableIdentifier) {
	t.Helper()
	cat := catalog.NewMockCatalog()
	id := cat.AddTable("sales", "orders", ordersMetadata)

	store := &MockStore{}
	store.Put(ordersMetadata, metadataV2(42, ordersList))
	store.Put(ordersList, writeOCF(t, manifestListV2Schema,
		listEntryV2(ordersData, 0),
		listEntryV2(ordersDeletes, 1),
	))
	store.Put(ordersData, writeOCF(t, manifestV2Schema,
		entryV2(1, 0, "s3://warehouse/sales/orders/data/a.parquet", "p1", 4, 500),
		entryV2(0, 0, "s3://warehouse/sales/orders/data/b.parquet", "p1", 5, 833),
		entryV2(2, 0, "s3://warehouse/sales/orders/data/gone.parquet", "p2", 100, 10000),
		entryV2(1, 1, "s3://warehouse/sales/orders/data/pos-del.parquet", "p1", 1, 64),
	))
	return cat, store, id
}

func TestReadFacts_Orders(t *testing.T) {
	cat, store, id := ordersFixture(t)

	facts, err := NewReader(cat, store).ReadFacts(context.Background(), id)
	if err != nil {
		t.Fatalf("ReadFacts: %v", err)
	}
	if facts.SnapshotID != 42 || facts.FormatVersion != FormatV2 {
		t.Errorf("unexpected snapshot %d / version %d", facts.SnapshotID, facts.FormatVersion)
	}
	if len(facts.Files) != 2 {
		t.Fatalf("expected 2 live data files, got %d: %+v", len(facts.Files), facts.Files)
	}
	var bytesTotal, records int64
	for _, f := range facts.Files {
		if f.Partition != facts.Files[0].Partition {
			t.Errorf("expected one partition, got %q and %q", f.Partition, facts.Files[0].Partition)
		}
		bytesTotal += f.SizeBytes
		records += f.RecordCount
	}
	if bytesTotal != 1333 || records != 9 {
		t.Errorf("expected 1333 bytes / 9 records, got %d / %d", bytesTotal, records)
	}
	for _, loc := range store.Opened {
		if loc == ordersDeletes {
			t.Error("delete manifest should not be opened")
		}
	}
}

func TestReadFacts_V1InlineManifests(t *testing.T) {
	cat := catalog.NewMockCatalog()
	id := cat.AddTable("logs", "events", "s3://wh/logs/events/v1.metadata.json")

	store := &MockStore{}
	store.Put("s3://wh/logs/events/v1.metadata.json", []byte(`{
  "format-version": 1,
  "current-snapshot-id": 3,
  "snapshots": [{"snapshot-id": 3, "timestamp-ms": 1, "manifests": ["s3://wh/m1.avro", "s3://wh/m2.avro"]}]
}`))
	store.Put("s3://wh/m1.avro", writeOCF(t, manifestV1Schema,
		entryV1(1, "s3://wh/d1.parquet", 10, 1000),
		entryV1(2, "s3://wh/d0.parquet", 99, 9999),
	))
	store.Put("s3://wh/m2.avro", writeOCF(t, manifestV1Schema,
		entryV1(0, "s3://wh/d2.parquet", 20, 2000),
	))

	facts, err := NewReader(cat, store).ReadFacts(context.Background(), id)
	if err != nil {
		t.Fatalf("ReadFacts: %v", err)
	}
	if len(facts.Files) != 2 {
		t.Fatalf("expected 2 files, got %+v", facts.Files)
	}
	for _, f := range facts.Files {
		if f.Partition != Unpartitioned {
			t.Errorf("expected unpartitioned file, got %q", f.Partition)
		}
	}
}

func TestReadFacts_EmptyTable(t *testing.T) {
	cat := catalog.NewMockCatalog()
	id := cat.AddTable("sales", "new", "s3://wh/new.metadata.json")
	store := &MockStore{}
	store.Put("s3://wh/new.metadata.json", []byte(`{"format-version": 2, "current-snapshot-id": -1, "snapshots": []}`))

	facts, err := NewReader(cat, store).ReadFacts(context.Background(), id)
	if err != nil {
		t.Fatalf("ReadFacts: %v", err)
	}
	if facts.SnapshotID != 0 || len(facts.Files) != 0 {
		t.Errorf("expected empty facts, got %+v", facts)
	}
}

func TestReadFacts_EmptyManifest(t *testing.T) {
	cat := catalog.NewMockCatalog()
	id := cat.AddTable("sales", "empty", "s3://wh/e.metadata.json")
	store := &MockStore{}
	store.Put("s3://wh/e.metadata.json", metadataV2(9, "s3://wh/list.avro"))
	store.Put("s3://wh/list.avro", writeOCF(t, manifestListV2Schema, listEntryV2("s3://wh/m.avro", 0)))
	store.Put("s3://wh/m.avro", writeOCF(t, manifestV2Schema))

	facts, err := NewReader(cat, store).ReadFacts(context.Background(), id)
	if err != nil {
		t.Fatalf("ReadFacts: %v", err)
	}
	if len(facts.Files) != 0 {
		t.Errorf("expected no files, got %d", len(facts.Files))
	}
}

func TestReadFacts_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(cat *catalog.MockCatalog, store *MockStore, id catalog.TableIdentifier)
		stage string
		cause error
	}{
		{
			name: "table gone",
			setup: func(cat *catalog.MockCatalog, _ *MockStore, id catalog.TableIdentifier) {
				delete(cat.Locations, id)
			},
			stage: StageLocate,
			cause: catalog.ErrTableNotFound,
		},
		{
			name: "metadata missing",
			setup: func(_ *catalog.MockCatalog, store *MockStore, _ catalog.TableIdentifier) {
				delete(store.Objects, ordersMetadata)
			},
			stage: StageMetadata,
			cause: os.ErrNotExist,
		},
		{
			name: "metadata corrupt",
			setup: func(_ *catalog.MockCatalog, store *MockStore, _ catalog.TableIdentifier) {
				store.Put(ordersMetadata, []byte("{not json"))
			},
			stage: StageMetadata,
		},
		{
			name: "manifest list corrupt",
			setup: func(_ *catalog.MockCatalog, store *MockStore, _ catalog.TableIdentifier) {
				store.Put(ordersList, []byte("not an avro container"))
			},
			stage: StageManifestList,
		},
		{
			name: "manifest unreadable",
			setup: func(_ *catalog.MockCatalog, store *MockStore, _ catalog.TableIdentifier) {
				store.Errs = map[string]error{ordersData: errors.New("access denied")}
			},
			stage: StageManifest,
		},
		{
			name: "negative size",
			setup: func(_ *catalog.MockCatalog, store *MockStore, _ catalog.TableIdentifier) {
				store.Put(ordersData, writeOCF(t, manifestV2Schema,
					entryV2(1, 0, "s3://warehouse/bad.parquet", "p1", 4, -1),
				))
			},
			stage: StageManifest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, store, id := ordersFixture(t)
			tt.setup(cat, store, id)

			_, err := NewReader(cat, store).ReadFacts(context.Background(), id)
			if !errors.Is(err, ErrMetadataUnreadable) {
				t.Fatalf("expected ErrMetadataUnreadable, got %v", err)
			}
			var re *ReadError
			if !errors.As(err, &re) {
				t.Fatalf("expected *ReadError, got %T", err)
			}
			if re.Stage != tt.stage {
				t.Errorf("expected stage %q, got %q", tt.stage, re.Stage)
			}
			if re.Table != id {
				t.Errorf("expected table %v, got %v", id, re.Table)
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("expected cause %v in %v", tt.cause, err)
			}
		})
	}
}

func TestReadFacts_Cancelled(t *testing.T) {
	cat, store, id := ordersFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewReader(cat, store).ReadFacts(ctx, id)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrMetadataUnreadable) {
		t.Errorf("expected cancelled read to be unreadable, got %v", err)
	}
}

func TestReadFacts_GzipMetadata(t *testing.T) {
	cat, store, id := ordersFixture(t)
	loc := "s3://warehouse/sales/orders/metadata/00004.gz.metadata.json"
	cat.Locations[id] = loc

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write(metadataV2(42, ordersList))
	zw.Close()
	store.Put(loc, buf.Bytes())

	facts, err := NewReader(cat, store).ReadFacts(context.Background(), id)
	if err != nil {
		t.Fatalf("ReadFacts: %v", err)
	}
	if len(facts.Files) != 2 {
		t.Errorf("expected 2 files, got %d", len(facts.Files))
	}
}

func TestReadFacts_LocalWarehouse(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "list.avro")
	manifestPath := filepath.Join(dir, "m.avro")
	metaPath := filepath.Join(dir, "v1.metadata.json")

	writeFile(t, manifestPath, writeOCF(t, manifestV2Schema,
		entryV2(1, 0, "file:///data/a.parquet", "eu", 3, 300),
		entryV2(1, 0, "file:///data/b.parquet", "us", 7, 700),
	))
	writeFile(t, listPath, writeOCF(t, manifestListV2Schema, listEntryV2("file://"+manifestPath, 0)))
	writeFile(t, metaPath, metadataV2(5, "file://"+listPath))

	cat := catalog.NewMockCatalog()
	id := cat.AddTable("local", "t", metaPath)

	facts, err := NewReader(cat, RoutingStore{}).ReadFacts(context.Background(), id)
	if err != nil {
		t.Fatalf("ReadFacts: %v", err)
	}
	if len(facts.Files) != 2 || facts.Files[0].Partition == facts.Files[1].Partition {
		t.Errorf("expected two files in distinct partitions, got %+v", facts.Files)
	}
}

func TestRoutingStore_RemoteWithoutStore(t *testing.T) {
	if _, err := (RoutingStore{}).Open(context.Background(), "s3://bucket/key"); err == nil {
		t.Error("expected error without a remote store")
	}
	remote := &MockStore{}
	remote.Put("s3a://bucket/key", []byte("x"))
	rc, err := RoutingStore{Remote: remote}.Open(context.Background(), "s3a://bucket/key")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rc.Close()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}
