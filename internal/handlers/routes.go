package handlers

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/videoflix/backend/internal/media"
	"github.com/videoflix/backend/internal/middleware"
	"github.com/videoflix/backend/internal/notifications"
	"github.com/videoflix/backend/internal/storage"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users      UserStore
	Tokens     TokenIssuer
	SingleUse  SingleUseSource
	Events     notifications.Dispatcher
	Videos     VideoStore
	Layout     media.Layout
	Pipeline   IngestPipeline
	Cleaner    ArtifactCleaner
	Thumbnails storage.ThumbnailStore

	Limiter        RateLimiter
	TokenValidator middleware.TokenValidator
	SecureCookies  bool

	// ServeMedia enables the /media/ static route when thumbnails live on
	// the local filesystem rather than object storage.
	ServeMedia bool
	MediaRoot  string
}

// NewRouter wires all HTTP routes into a chi router.
func NewRouter(logger *slog.Logger, deps Dependencies) http.Handler {
	health := HealthHandler{}
	auth := AuthHandler{
		Users:         deps.Users,
		Tokens:        deps.Tokens,
		SingleUse:     deps.SingleUse,
		Events:        deps.Events,
		Limiter:       deps.Limiter,
		SecureCookies: deps.SecureCookies,
	}
	videos := VideoHandler{
		Videos:     deps.Videos,
		Layout:     deps.Layout,
		Pipeline:   deps.Pipeline,
		Cleaner:    deps.Cleaner,
		Thumbnails: deps.Thumbnails,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))

	r.Get("/healthz", health.Handle)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", auth.Register)
		r.Get("/activate/{uid}/{token}", auth.Activate)
		r.Post("/login", auth.Login)
		r.Post("/token/refresh", auth.Refresh)
		r.Post("/logout", auth.Logout)
		r.Post("/password_reset", auth.RequestPasswordReset)
		r.Post("/password_confirm/{uid}/{token}", auth.ConfirmPasswordReset)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(deps.TokenValidator))

			r.Get("/video", videos.List)
			r.Post("/video", videos.Create)
			r.Delete("/video/{id}", videos.Delete)
			r.Get("/video/{id}/{resolution}/index.m3u8", videos.Manifest)
			r.Get("/video/{id}/{resolution}/{segment}", videos.Segment)
		})
	})

	// Only thumbnails are exposed unauthenticated; originals and HLS
	// artifacts under the media root go through the video endpoints.
	// Directory requests are rejected so the file server never lists
	// the thumbnail folder.
	if deps.ServeMedia && deps.MediaRoot != "" {
		thumbs := http.StripPrefix("/media/thumbnail/",
			http.FileServer(http.Dir(filepath.Join(deps.MediaRoot, "thumbnail"))))
		r.Get("/media/thumbnail/*", func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/") {
				http.NotFound(w, r)
				return
			}
			thumbs.ServeHTTP(w, r)
		})
	}

	return r
}
