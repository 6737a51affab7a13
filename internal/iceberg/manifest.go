package iceberg

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/linkedin/goavro/v2"
)

// Manifest and entry codes from the table format.
const (
	manifestContentData    = 0
	manifestContentDeletes = 1

	entryStatusDeleted = 2

	fileContentData = 0
)

// ManifestFile is one entry of a snapshot's manifest list.
type ManifestFile struct {
	Path   string
	Length int64
	SpecID int32
}

// DataFile is a live data file of the current snapshot.
type DataFile struct {
	Path        string
	Partition   PartitionKey
	SizeBytes   int64
	RecordCount int64
}

// readManifestList decodes a manifest list and returns its data manifests.
// Delete manifests are skipped; format v1 lists carry no content field and
// hold data manifests only.
func readManifestList(r io.Reader, version FormatVersion) ([]ManifestFile, error) {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening manifest list: %w", err)
	}

	var manifests []ManifestFile
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("reading manifest list entry: %w", err)
		}
		rec, ok := datum.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("manifest list entry is %T, expected a record", datum)
		}

		if version.tracksContent() {
			content, err := optionalInt(rec, "content", manifestContentData)
			if err != nil {
				return nil, err
			}
			if content == manifestContentDeletes {
				continue
			}
		}

		path, err := requiredString(rec, "manifest_path")
		if err != nil {
			return nil, err
		}
		length, err := optionalInt(rec, "manifest_length", 0)
		if err != nil {
			return nil, err
		}
		specID, err := optionalInt(rec, "partition_spec_id", 0)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, ManifestFile{Path: path, Length: length, SpecID: int32(specID)})
	}
	if err := ocf.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest list: %w", err)
	}
	return manifests, nil
}

// readManifest streams the live data files of one manifest into fn. Entries
// marked deleted and delete files are skipped.
func readManifest(ctx context.Context, r io.Reader, version FormatVersion, fn func(DataFile) error) error {
	ocf, err := goavro.NewOCFReader(r)
	if err != nil {
		return fmt.Errorf("opening manifest: %w", err)
	}

	for n := 0; ocf.Scan(); n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		datum, err := ocf.Read()
		if err != nil {
			return fmt.Errorf("reading manifest entry: %w", err)
		}
		entry, ok := datum.(map[string]interface{})
		if !ok {
			return fmt.Errorf("manifest entry is %T, expected a record", datum)
		}

		status, err := requiredInt(entry, "status")
		if err != nil {
			return err
		}
		if status == entryStatusDeleted {
			continue
		}

		file, ok := entry["data_file"].(map[string]interface{})
		if !ok {
			return errors.New("manifest entry has no data_file record")
		}
		if version.tracksContent() {
			content, err := optionalInt(file, "content", fileContentData)
			if err != nil {
				return err
			}
			if content != fileContentData {
				continue
			}
		}

		df, err := dataFileOf(file)
		if err != nil {
			return err
		}
		if err := fn(df); err != nil {
			return err
		}
	}
	if err := ocf.Err(); err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	return nil
}

func dataFileOf(file map[string]interface{}) (DataFile, error) {
	path, err := requiredString(file, "file_path")
	if err != nil {
		return DataFile{}, err
	}
	size, err := requiredInt(file, "file_size_in_bytes")
	if err != nil {
		return DataFile{}, err
	}
	records, err := requiredInt(file, "record_count")
	if err != nil {
		return DataFile{}, err
	}
	if size < 0 || records < 0 {
		return DataFile{}, fmt.Errorf("data file %s has negative size or record count", path)
	}
	partition, err := partitionKeyOf(file["partition"])
	if err != nil {
		return DataFile{}, fmt.Errorf("data file %s: %w", path, err)
	}
	return DataFile{Path: path, Partition: partition, SizeBytes: size, RecordCount: records}, nil
}

func requiredString(rec map[string]interface{}, field string) (string, error) {
	switch v := unwrapUnion(rec[field]).(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("field %s is missing", field)
	default:
		return "", fmt.Errorf("field %s is %T, expected string", field, v)
	}
}

func requiredInt(rec map[string]interface{}, field string) (int64, error) {
	v, ok := rec[field]
	if !ok || unwrapUnion(v) == nil {
		return 0, fmt.Errorf("field %s is missing", field)
	}
	return asInt64(field, unwrapUnion(v))
}

func optionalInt(rec map[string]interface{}, field string, def int64) (int64, error) {
	v := unwrapUnion(rec[field])
	if v == nil {
		return def, nil
	}
	return asInt64(field, v)
}

func asInt64(field string, v interface{}) (int64, error) {
	switch n := v.(type) {
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("field %s is %T, expected an integer", field, v)
	}
}
