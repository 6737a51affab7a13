package iceberg

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/linkedin/goavro/v2"
)

const manifestListV1Schema = `{
  "type": "record", "name": "manifest_file",
  "fields": [
    {"name": "manifest_path", "type": "string"},
    {"name": "manifest_length", "type": "long"},
    {"name": "partition_spec_id", "type": "int"}
  ]
}`

const manifestListV2Schema = `{
  "type": "record", "name": "manifest_file",
  "fields": [
    {"name": "manifest_path", "type": "string"},
    {"name": "manifest_length", "type": "long"},
    {"name": "partition_spec_id", "type": "int"},
    {"name": "content", "type": "int"}
  ]
}`

const manifestV2Schema = `{
  "type": "record", "name": "manifest_entry",
  "fields": [
    {"name": "status", "type": "int"},
    {"name": "snapshot_id", "type": ["null", "long"], "default": null},
    {"name": "data_file", "type": {
      "type": "record", "name": "r2",
      "fields": [
        {"name": "content", "type": "int"},
        {"name": "file_path", "type": "string"},
        {"name": "file_format", "type": "string"},
        {"name": "partition", "type": {
          "type": "record", "name": "r102",
          "fields": [{"name": "region", "type": ["null", "string"]}]
        }},
        {"name": "record_count", "type": "long"},
        {"name": "file_size_in_bytes", "type": "long"}
      ]
    }}
  ]
}`

// Unpartitioned v1 manifests carry no partition field at all.
const manifestV1Schema = `{
  "type": "record", "name": "manifest_entry",
  "fields": [
    {"name": "status", "type": "int"},
    {"name": "snapshot_id", "type": "long"},
    {"name": "data_file", "type": {
      "type": "record", "name": "r2",
      "fields": [
        {"name": "file_path", "type": "string"},
        {"name": "file_format", "type": "string"},
        {"name": "record_count", "type": "long"},
        {"name": "file_size_in_bytes", "type": "long"},
        {"name": "block_size_in_bytes", "type": "long"}
      ]
    }}
  ]
}`

func writeOCF(t *testing.T, schema string, records ...interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: &buf, Schema: schema})
	if err != nil {
		t.Fatalf("creating OCF writer: %v", err)
	}
	if len(records) > 0 {
		if err := w.Append(records); err != nil {
			t.Fatalf("appending records: %v", err)
		}
	}
	return buf.Bytes()
}

func listEntryV2(path string, content int32) map[string]interface{} {
	return map[string]interface{}{
		"manifest_path":     path,
		"manifest_length":   int64(4096),
		"partition_spec_id": int32(0),
		"content":           content,
	}
}

func entryV2(status, content int32, path string, region interface{}, records, size int64) map[string]interface{} {
	var partition interface{}
	if region != nil {
		partition = goavro.Union("string", region)
	}
	return map[string]interface{}{
		"status":      status,
		"snapshot_id": goavro.Union("long", int64(1)),
		"data_file": map[string]interface{}{
			"content":            content,
			"file_path":          path,
			"file_format":        "PARQUET",
			"partition":          map[string]interface{}{"region": partition},
			"record_count":       records,
			"file_size_in_bytes": size,
		},
	}
}

func entryV1(status int32, path string, records, size int64) map[string]interface{} {
	return map[string]interface{}{
		"status":      status,
		"snapshot_id": int64(1),
		"data_file": map[string]interface{}{
			"file_path":           path,
			"file_format":         "PARQUET",
			"record_count":        records,
			"file_size_in_bytes":  size,
			"block_size_in_bytes": int64(67108864),
		},
	}
}

func metadataV2(snapshotID int64, manifestList string) []byte {
	return []byte(fmt.Sprintf(`{
  "format-version": 2,
  "table-uuid": "9c12d441-03fe-4693-9a96-a0705ddf69c1",
  "location": "s3://warehouse/sales/orders",
  "current-snapshot-id": %d,
  "snapshots": [
    {"snapshot-id": 1, "timestamp-ms": 1515100955770, "manifest-list": "s3://warehouse/old-list.avro"},
    {"snapshot-id": %d, "timestamp-ms": 1555100955770, "manifest-list": %q}
  ]
}`, snapshotID, snapshotID, manifestList))
}
