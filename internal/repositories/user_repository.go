package repositories

import (
	"context"

	"github.com/videoflix/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	SetActive(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}
