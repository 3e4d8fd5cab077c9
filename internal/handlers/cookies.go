package handlers

import (
	"net/http"
	"time"

	"github.com/videoflix/backend/internal/models"
)

const (
	accessTokenCookie  = "access_token"
	refreshTokenCookie = "refresh_token"
)

// setSessionCookies writes both token cookies. HttpOnly keeps them away from
// scripts; SameSite=Lax still lets top-level navigations from the frontend
// carry them.
func setSessionCookies(w http.ResponseWriter, tokens models.SessionTokens, secure bool) {
	now := time.Now().UTC()

	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    tokens.AccessToken,
		Path:     "/",
		MaxAge:   int(tokens.AccessExpiresAt.Sub(now).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    tokens.RefreshToken,
		Path:     "/",
		MaxAge:   int(tokens.RefreshExpiresAt.Sub(now).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookies expires both token cookies.
func clearSessionCookies(w http.ResponseWriter, secure bool) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
