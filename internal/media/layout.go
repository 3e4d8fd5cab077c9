package media

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Resolutions lists the transcode profiles produced for every uploaded video.
var Resolutions = []string{"480p", "720p", "1080p"}

// ffmpeg -s presets per resolution, matching the original's hd480/hd720/hd1080.
var resolutionSizes = map[string]string{
	"480p":  "hd480",
	"720p":  "hd720",
	"1080p": "hd1080",
}

var segmentNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+\.ts$`)

// Layout maps video identifiers to paths inside the media root:
// <root>/videos/<id>/original<ext> for uploads,
// <root>/videos/<id>/<resolution>/index.m3u8 plus sibling .ts segments for
// derived HLS artifacts, and <root>/thumbnail/<name> for thumbnails.
type Layout struct {
	Root string
}

// ValidResolution reports whether the resolution has a transcode profile.
func ValidResolution(resolution string) bool {
	_, ok := resolutionSizes[resolution]
	return ok
}

// ValidSegmentName reports whether the segment name is a plain .ts file name.
// Anything with path separators or dot-dot sequences is rejected so requests
// can never resolve outside the resolution directory.
func ValidSegmentName(name string) bool {
	if strings.Contains(name, "..") {
		return false
	}
	return segmentNamePattern.MatchString(name)
}

// VideoDir returns the per-video directory holding original and derived files.
func (l Layout) VideoDir(videoID string) string {
	return filepath.Join(l.Root, "videos", videoID)
}

// OriginalPath returns the location for an uploaded original file.
func (l Layout) OriginalPath(videoID, ext string) string {
	if ext == "" {
		ext = ".mp4"
	}
	return filepath.Join(l.VideoDir(videoID), "original"+ext)
}

// ResolutionDir returns the directory holding one resolution's HLS output.
func (l Layout) ResolutionDir(videoID, resolution string) string {
	return filepath.Join(l.VideoDir(videoID), resolution)
}

// ManifestPath returns the HLS playlist location for a resolution.
func (l Layout) ManifestPath(videoID, resolution string) string {
	return filepath.Join(l.ResolutionDir(videoID, resolution), "index.m3u8")
}

// SegmentPath returns the location of an HLS segment, or "" when the segment
// name fails validation.
func (l Layout) SegmentPath(videoID, resolution, segment string) string {
	if !ValidSegmentName(segment) {
		return ""
	}
	return filepath.Join(l.ResolutionDir(videoID, resolution), segment)
}

// ThumbnailDir returns the directory holding uploaded thumbnails.
func (l Layout) ThumbnailDir() string {
	return filepath.Join(l.Root, "thumbnail")
}
