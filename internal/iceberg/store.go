package iceberg

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// ObjectStore opens metadata and manifest files by location.
type ObjectStore interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// LocalStore reads file:// locations and bare paths from the local disk.
type LocalStore struct{}

func (LocalStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(strings.TrimPrefix(location, "file://"))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", location, err)
	}
	return f, nil
}

// RoutingStore sends object-store URIs to Remote and everything else to
// Local.
type RoutingStore struct {
	Remote ObjectStore
	Local  ObjectStore
}

func (s RoutingStore) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if isRemote(location) {
		if s.Remote == nil {
			return nil, fmt.Errorf("no object store configured for %s", location)
		}
		return s.Remote.Open(ctx, location)
	}
	local := s.Local
	if local == nil {
		local = LocalStore{}
	}
	return local.Open(ctx, location)
}

func isRemote(location string) bool {
	for _, scheme := range []string{"s3://", "s3a://", "s3n://"} {
		if strings.HasPrefix(location, scheme) {
			return true
		}
	}
	return false
}
