package notifications

import (
	"context"

	"github.com/videoflix/backend/internal/models"
)

// UserRegistered is emitted after a new inactive account is created. Token is
// the single-use activation token for the emailed deep link.
type UserRegistered struct {
	User  models.User
	Token string
}

// PasswordResetRequested is emitted when a reset is requested for an existing
// account. Token is the single-use reset token for the emailed deep link.
type PasswordResetRequested struct {
	User  models.User
	Token string
}

// Dispatcher reacts to domain events raised by the auth flows. Handlers that
// fail return an error; the triggering request path decides what to do with
// it (currently: fail the request).
type Dispatcher interface {
	UserRegistered(ctx context.Context, event UserRegistered) error
	PasswordResetRequested(ctx context.Context, event PasswordResetRequested) error
}
