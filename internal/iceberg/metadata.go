package iceberg

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FormatVersion is the Iceberg table format version recorded in metadata.
// It decides how the metadata JSON, manifest lists and manifests are read.
type FormatVersion int

const (
	FormatV1 FormatVersion = 1
	FormatV2 FormatVersion = 2
	FormatV3 FormatVersion = 3
)

// tracksContent reports whether manifests of this version distinguish data
// files from delete files.
func (v FormatVersion) tracksContent() bool {
	return v >= FormatV2
}

// Snapshot is the part of a table snapshot needed to reach its data files.
// Format v1 snapshots may list manifests inline instead of a manifest list.
type Snapshot struct {
	ID           int64
	TimestampMs  int64
	ManifestList string
	Manifests    []string
}

// TableMetadata is the parsed content of a metadata.json file.
type TableMetadata struct {
	FormatVersion FormatVersion
	TableUUID     string
	Location      string
	// Current is nil for tables that have never been written.
	Current *Snapshot
}

type snapshotJSON struct {
	SnapshotID   int64    `json:"snapshot-id"`
	TimestampMs  int64    `json:"timestamp-ms"`
	ManifestList string   `json:"manifest-list"`
	Manifests    []string `json:"manifests"`
}

type metadataJSON struct {
	FormatVersion     *int           `json:"format-version"`
	TableUUID         string         `json:"table-uuid"`
	Location          string         `json:"location"`
	CurrentSnapshotID *int64         `json:"current-snapshot-id"`
	Snapshots         []snapshotJSON `json:"snapshots"`
}

// ParseMetadata decodes table metadata JSON.
func ParseMetadata(data []byte) (*TableMetadata, error) {
	var raw metadataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding table metadata: %w", err)
	}
	if raw.FormatVersion == nil {
		return nil, errors.New("table metadata has no format-version")
	}

	version := FormatVersion(*raw.FormatVersion)
	switch version {
	case FormatV1:
		return parseV1(version, &raw)
	case FormatV2, FormatV3:
		return parseV2(version, &raw)
	default:
		return nil, fmt.Errorf("unsupported table format version %d", version)
	}
}

func parseV1(version FormatVersion, raw *metadataJSON) (*TableMetadata, error) {
	md := newTableMetadata(version, raw)
	snap, err := currentSnapshot(raw)
	if err != nil || snap == nil {
		return md, err
	}
	if snap.ManifestList == "" && snap.Manifests == nil {
		return nil, fmt.Errorf("snapshot %d has neither manifest-list nor manifests", snap.SnapshotID)
	}
	md.Current = &Snapshot{
		ID:           snap.SnapshotID,
		TimestampMs:  snap.TimestampMs,
		ManifestList: snap.ManifestList,
		Manifests:    snap.Manifests,
	}
	return md, nil
}

func parseV2(version FormatVersion, raw *metadataJSON) (*TableMetadata, error) {
	md := newTableMetadata(version, raw)
	snap, err := currentSnapshot(raw)
	if err != nil || snap == nil {
		return md, err
	}
	if snap.ManifestList == "" {
		return nil, fmt.Errorf("format v%d snapshot %d has no manifest-list", version, snap.SnapshotID)
	}
	md.Current = &Snapshot{
		ID:           snap.SnapshotID,
		TimestampMs:  snap.TimestampMs,
		ManifestList: snap.ManifestList,
	}
	return md, nil
}

func newTableMetadata(version FormatVersion, raw *metadataJSON) *TableMetadata {
	return &TableMetadata{
		FormatVersion: version,
		TableUUID:     raw.TableUUID,
		Location:      raw.Location,
	}
}

// currentSnapshot returns nil when the table has no current snapshot.
func currentSnapshot(raw *metadataJSON) (*snapshotJSON, error) {
	if raw.CurrentSnapshotID == nil || *raw.CurrentSnapshotID == -1 {
		return nil, nil
	}
	for i := range raw.Snapshots {
		if raw.Snapshots[i].SnapshotID == *raw.CurrentSnapshotID {
			return &raw.Snapshots[i], nil
		}
	}
	return nil, fmt.Errorf("current snapshot %d not found in snapshot log", *raw.CurrentSnapshotID)
}
