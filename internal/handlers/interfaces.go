package handlers

import (
	"context"

	"github.com/videoflix/backend/internal/auth"
	"github.com/videoflix/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	SetActive(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// TokenIssuer mints and validates the stateless session token pair.
type TokenIssuer interface {
	Issue(userID string) (models.SessionTokens, error)
	Validate(token string, kind auth.TokenKind) (string, error)
}

// SingleUseSource mints and checks activation/password-reset tokens.
type SingleUseSource interface {
	Mint(user models.User) string
	Check(user models.User, token string) bool
}

// VideoStore captures persistence for the video catalog.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context) ([]models.Video, error)
	Delete(ctx context.Context, id string) (models.Video, error)
}

// IngestPipeline schedules background transcoding for freshly created videos.
type IngestPipeline interface {
	VideoCreated(ctx context.Context, video models.Video) error
}

// ArtifactCleaner removes a deleted video's files from disk.
type ArtifactCleaner interface {
	Remove(video models.Video) error
}
