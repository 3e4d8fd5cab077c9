package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps thumbnails on the local filesystem under
// <root>/thumbnail/ and serves them through the backend's /media/ route.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore constructs a store writing beneath the media root. baseURL is
// the externally visible origin of this backend, e.g. http://localhost:8080.
func NewLocalStore(root, baseURL string) *LocalStore {
	return &LocalStore{
		root:    root,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Save writes the thumbnail to disk and returns its public URL.
func (s *LocalStore) Save(_ context.Context, name string, r io.Reader) (string, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return "", fmt.Errorf("local storage: empty name")
	}

	dir := filepath.Join(s.root, "thumbnail")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create thumbnail directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("create thumbnail file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("write thumbnail: %w", err)
	}

	return s.URL("thumbnail/" + name), nil
}

// URL resolves the public URL of a stored object path relative to the media root.
func (s *LocalStore) URL(name string) string {
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return ""
	}
	return fmt.Sprintf("%s/media/%s", s.baseURL, name)
}

var _ ThumbnailStore = (*LocalStore)(nil)
