package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/videoflix/backend/internal/auth"
	"github.com/videoflix/backend/internal/logging"
)

// AccessTokenCookie is the cookie carrying the short-lived access token.
const AccessTokenCookie = "access_token"

// TokenValidator checks an access token and returns the embedded user id.
type TokenValidator interface {
	Validate(token string, kind auth.TokenKind) (string, error)
}

// RequireAuth rejects requests without a valid access-token cookie. On
// success the authenticated user id is stored on the request context.
func RequireAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(AccessTokenCookie)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			userID, err := validator.Validate(cookie.Value, auth.KindAccess)
			if err != nil {
				logging.FromContext(r.Context()).Warn("access token rejected", "error", err)
				unauthorized(w)
				return
			}

			ctx := logging.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
}
