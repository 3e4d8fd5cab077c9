package storage

import (
	"context"
	"io"
)

// ThumbnailStore persists uploaded thumbnails and resolves public URLs for
// them. Save returns the stored object's absolute URL.
type ThumbnailStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	URL(name string) string
}
