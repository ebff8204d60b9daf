package outbound

import (
	"context"
)

// MetadataCache stores raw metadata documents by name.
type MetadataCache interface {
	// Get returns the cached document, or nil if it is absent or expired.
	Get(ctx context.Context, doc MetadataDocument) ([]byte, error)

	// Set stores the document, replacing any previous version.
	Set(ctx context.Context, doc MetadataDocument, data []byte) error

	// Close closes the cache connection.
	Close() error
}
