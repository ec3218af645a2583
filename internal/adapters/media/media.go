// Package media stores product and profile images as opaque blobs. The rest
// of the system only ever sees the returned reference.
package media

import (
	"context"
	"io"
)

// Store saves and deletes image blobs.
type Store interface {
	// Save writes the blob and returns the reference to attach to the
	// owning document.
	Save(ctx context.Context, name, contentType string, content io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}
