package media

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/videoflix/backend/internal/models"
)

// Cleaner removes a deleted video's files from disk: the original upload (if
// still present), the whole per-video directory of derived HLS artifacts, and
// the thumbnail. Cleanup is best effort and not transactional with the row
// deletion; partial failures are reported but nothing is rolled back.
type Cleaner struct {
	layout Layout
	logger *slog.Logger
}

// NewCleaner constructs a Cleaner over the provided media layout.
func NewCleaner(layout Layout, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{layout: layout, logger: logger}
}

// Remove deletes every file derived from or uploaded for the video.
func (c *Cleaner) Remove(video models.Video) error {
	var errs []error

	if video.SourceFile != "" {
		if err := os.Remove(video.SourceFile); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove original: %w", err))
		}
	}

	if err := os.RemoveAll(c.layout.VideoDir(video.ID)); err != nil {
		errs = append(errs, fmt.Errorf("remove video directory: %w", err))
	}

	if video.Thumbnail != "" {
		thumb := filepath.Join(c.layout.ThumbnailDir(), filepath.Base(video.Thumbnail))
		if err := os.Remove(thumb); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("remove thumbnail: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("video cleanup incomplete", "video_id", video.ID, "error", err)
		return err
	}

	return nil
}
