// Package blob defines the snapshot archive interface. Implementations
// live in the subpackages: memory, local and gcs.
package blob

import (
	"context"
	"io"
)

// Store persists raw artifacts and returns a URI for the stored object.
type Store interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
