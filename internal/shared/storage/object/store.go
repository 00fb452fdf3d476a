package object

import (
	"context"
	"io"
)

// ObjectStore defines the contract for saving and retrieving uploaded media.
type ObjectStore interface {
	Save(ctx context.Context, fileName string, r io.Reader) (storageKey string, sizeBytes int64, mimeType string, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	// URL returns a durable locator for a stored object, suitable for handing
	// to downstream collaborators that fetch the media themselves.
	URL(storageKey string) string
}
