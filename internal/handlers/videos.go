package handlers

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/videoflix/backend/internal/logging"
	"github.com/videoflix/backend/internal/media"
	"github.com/videoflix/backend/internal/models"
	"github.com/videoflix/backend/internal/repositories"
	"github.com/videoflix/backend/internal/storage"
)

// maxUploadMemory caps the in-memory portion of multipart parsing; larger
// file parts spill to temporary files.
const maxUploadMemory = 32 << 20

// VideoHandler implements the video catalog and HLS delivery endpoints.
// All of them sit behind the authentication middleware.
type VideoHandler struct {
	Videos     VideoStore
	Layout     media.Layout
	Pipeline   IngestPipeline
	Cleaner    ArtifactCleaner
	Thumbnails storage.ThumbnailStore

	NowFunc func() time.Time
}

type videoResponse struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ThumbnailURL *string   `json:"thumbnail_url"`
	Category     string    `json:"category"`
}

// List handles GET /api/video/ and returns the catalog newest-first.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videos, err := h.Videos.List(ctx)
	if err != nil {
		logging.FromContext(ctx).Error("list videos", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to list videos"})
		return
	}

	payload := make([]videoResponse, 0, len(videos))
	for _, video := range videos {
		payload = append(payload, h.toResponse(video))
	}

	respondJSON(ctx, w, http.StatusOK, payload)
}

// Create handles POST /api/video/ multipart uploads. The original file lands
// under the media root and the transcode pipeline is kicked off before the
// response returns, so derived renditions appear shortly after.
func (h VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid multipart request"})
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	description := strings.TrimSpace(r.FormValue("description"))
	category := strings.TrimSpace(r.FormValue("category"))

	if title == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"title": "Title is required."})
		return
	}
	if !models.ValidCategory(category) {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"category": "Unknown category."})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"file": "A video file is required."})
		return
	}
	defer file.Close()

	videoID := uuid.NewString()
	ext := strings.ToLower(filepath.Ext(header.Filename))
	originalPath := h.Layout.OriginalPath(videoID, ext)

	if err := writeUpload(originalPath, file); err != nil {
		logger.Error("store uploaded video", "error", err, "videoId", videoID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store upload"})
		return
	}

	thumbnailKey := ""
	if thumb, thumbHeader, err := r.FormFile("thumbnail"); err == nil {
		name := videoID + strings.ToLower(filepath.Ext(thumbHeader.Filename))
		if _, err := h.Thumbnails.Save(ctx, name, thumb); err != nil {
			thumb.Close()
			logger.Error("store thumbnail", "error", err, "videoId", videoID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store thumbnail"})
			return
		}
		thumb.Close()
		thumbnailKey = "thumbnail/" + name
	}

	video := models.Video{
		ID:          videoID,
		Title:       title,
		Description: description,
		Category:    category,
		Thumbnail:   thumbnailKey,
		SourceFile:  originalPath,
		CreatedAt:   h.now(),
	}

	if err := h.Videos.Create(ctx, video); err != nil {
		logger.Error("create video record", "error", err, "videoId", videoID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create video"})
		return
	}

	if err := h.Pipeline.VideoCreated(ctx, video); err != nil {
		logger.Error("schedule transcode", "error", err, "videoId", videoID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to schedule processing"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, h.toResponse(video))
}

// Delete handles DELETE /api/video/{id}. Artifact removal is best effort;
// the database row is the source of truth and is gone either way.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, err := h.Videos.Delete(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "video not found"})
			return
		}
		logging.FromContext(ctx).Error("delete video", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to delete video"})
		return
	}

	if h.Cleaner != nil {
		if err := h.Cleaner.Remove(video); err != nil {
			logging.FromContext(ctx).Warn("remove video artifacts", "error", err, "videoId", video.ID)
		}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"detail": "Video deleted"})
}

// Manifest handles GET /api/video/{id}/{resolution}/index.m3u8. Unknown
// videos, unknown resolutions and not-yet-transcoded renditions all look the
// same from outside: 404.
func (h VideoHandler) Manifest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID := chi.URLParam(r, "id")
	resolution := chi.URLParam(r, "resolution")

	if !media.ValidResolution(resolution) {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if _, err := h.Videos.FindByID(ctx, videoID); err != nil {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	path := h.Layout.ManifestPath(videoID, resolution)
	if _, err := os.Stat(path); err != nil {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	http.ServeFile(w, r, path)
}

// Segment handles GET /api/video/{id}/{resolution}/{segment}. The video id
// and segment name are both validated before touching the filesystem, so a
// crafted id cannot resolve outside the per-video directory.
func (h VideoHandler) Segment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videoID := chi.URLParam(r, "id")
	resolution := chi.URLParam(r, "resolution")
	segment := chi.URLParam(r, "segment")

	if !media.ValidResolution(resolution) {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if _, err := h.Videos.FindByID(ctx, videoID); err != nil {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	path := h.Layout.SegmentPath(videoID, resolution, segment)
	if path == "" {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if _, err := os.Stat(path); err != nil {
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	w.Header().Set("Content-Type", "video/MP2T")
	http.ServeFile(w, r, path)
}

func (h VideoHandler) toResponse(video models.Video) videoResponse {
	resp := videoResponse{
		ID:          video.ID,
		CreatedAt:   video.CreatedAt,
		Title:       video.Title,
		Description: video.Description,
		Category:    video.Category,
	}
	if video.Thumbnail != "" && h.Thumbnails != nil {
		if url := h.Thumbnails.URL(video.Thumbnail); url != "" {
			resp.ThumbnailURL = &url
		}
	}
	return resp
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func writeUpload(path string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
