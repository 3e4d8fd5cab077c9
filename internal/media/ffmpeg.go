package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// CommandRunner executes external commands and returns combined output for
// error reporting.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// FFmpeg transcodes uploaded videos into per-resolution HLS renditions by
// shelling out to the ffmpeg binary.
type FFmpeg struct {
	Binary  string
	Run     CommandRunner
	Timeout time.Duration
}

// NewFFmpeg constructs a transcoder that shells out to ffmpeg.
func NewFFmpeg(binary string, timeout time.Duration) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &FFmpeg{
		Binary:  binary,
		Run:     defaultCommandRunner,
		Timeout: timeout,
	}
}

// Transcode renders the source file into an HLS playlist plus segments for
// the given resolution under destDir. The directory is created if missing.
func (f *FFmpeg) Transcode(ctx context.Context, source, destDir, resolution string) error {
	size, ok := resolutionSizes[resolution]
	if !ok {
		return fmt.Errorf("unknown resolution %q", resolution)
	}

	if f.Run == nil {
		f.Run = defaultCommandRunner
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	args := []string{
		"-i", source,
		"-s", size,
		"-c:v", "libx264",
		"-crf", "23",
		"-c:a", "aac",
		"-strict", "-2",
		"-f", "hls",
		"-hls_time", "10",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(destDir, "segment_%03d.ts"),
		filepath.Join(destDir, "index.m3u8"),
	}

	if out, err := f.Run(execCtx, f.Binary, args...); err != nil {
		return fmt.Errorf("ffmpeg %s: %w: %s", resolution, err, truncate(out, 512))
	}

	return nil
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.CombinedOutput()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
