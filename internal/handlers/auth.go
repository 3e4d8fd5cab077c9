package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/videoflix/backend/internal/auth"
	"github.com/videoflix/backend/internal/logging"
	"github.com/videoflix/backend/internal/models"
	"github.com/videoflix/backend/internal/notifications"
	"github.com/videoflix/backend/internal/repositories"
)

const minPasswordLength = 8

// AuthHandler implements registration, activation, login, token refresh,
// logout and the password-reset flows.
type AuthHandler struct {
	Users     UserStore
	Tokens    TokenIssuer
	SingleUse SingleUseSource
	Events    notifications.Dispatcher

	Limiter       RateLimiter
	SecureCookies bool
	NowFunc       func() time.Time
}

// Register handles POST /api/register requests. New accounts start inactive;
// the activation token travels by email and, for convenience, in the response.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "register") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid register payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid email address"})
		return
	}
	if req.Password != req.ConfirmedPassword {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"password": "Passwords do not match."})
		return
	}
	if len(req.Password) < minPasswordLength {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"password": "Password must be at least 8 characters."})
		return
	}

	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"email": "Please check your entries and try again."})
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("register user lookup failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create account"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("register failed to hash password", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return
	}

	now := h.now()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Password:  string(hashed),
		IsActive:  false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"email": "Please check your entries and try again."})
			return
		}
		logger.Error("register failed to create user", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create account"})
		return
	}

	token := h.SingleUse.Mint(user)

	if err := h.Events.UserRegistered(ctx, notifications.UserRegistered{User: user, Token: token}); err != nil {
		logger.Error("activation email failed", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to send activation email"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]any{
		"user":    map[string]string{"id": user.ID, "email": user.Email},
		"token":   token,
		"message": "Registration successful. Please check your email to activate your account.",
	})
}

// Activate handles GET /api/activate/{uid}/{token}. Any failure collapses
// into the same response so the link reveals nothing about accounts.
func (h AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	uid := chi.URLParam(r, "uid")
	token := chi.URLParam(r, "token")

	user, err := h.Users.FindByID(ctx, uid)
	if err != nil || !h.SingleUse.Check(user, token) {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "Invalid activation link."})
		return
	}

	if !user.IsActive {
		if err := h.Users.SetActive(ctx, user.ID); err != nil {
			logging.FromContext(ctx).Error("activate user", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to activate account"})
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "Account successfully activated."})
}

// Login handles POST /api/login. The response never reveals which of the
// email or password was wrong.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "login") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
		return
	}

	if !user.IsActive {
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"detail": "Account is not activated"})
		return
	}

	tokens, err := h.Tokens.Issue(user.ID)
	if err != nil {
		logger.Error("failed to issue session tokens", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
		return
	}

	setSessionCookies(w, tokens, h.SecureCookies)
	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"detail": "Login successful",
		"user":   map[string]string{"id": user.ID, "username": user.Email},
	})
}

// Refresh handles POST /api/token/refresh. The refresh token comes from the
// cookie or, as a fallback, the JSON body. Both tokens are rotated.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	refreshToken := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		refreshToken = cookie.Value
	}
	if refreshToken == "" {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			refreshToken = strings.TrimSpace(req.Refresh)
		}
	}

	if refreshToken == "" {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"detail": "Refresh token missing"})
		return
	}

	userID, err := h.Tokens.Validate(refreshToken, auth.KindRefresh)
	if err != nil {
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"detail": "Invalid refresh token"})
		return
	}

	tokens, err := h.Tokens.Issue(userID)
	if err != nil {
		logging.FromContext(ctx).Error("failed to rotate session tokens", "error", err, "userId", userID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to refresh session"})
		return
	}

	setSessionCookies(w, tokens, h.SecureCookies)
	respondJSON(ctx, w, http.StatusOK, map[string]string{
		"detail": "Token refreshed",
		"access": tokens.AccessToken,
	})
}

// Logout handles POST /api/logout. It clears both cookies unconditionally;
// outstanding tokens stay valid until natural expiry because no state is
// kept server-side.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	clearSessionCookies(w, h.SecureCookies)
	respondJSON(r.Context(), w, http.StatusOK, map[string]string{"detail": "Logout successful"})
}

// RequestPasswordReset handles POST /api/password_reset. The response is the
// same whether or not the email exists.
func (h AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.Limiter, r, "password-reset") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req passwordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"email": "Email is required."})
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"email": "Enter a valid email address."})
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	switch {
	case err == nil:
		token := h.SingleUse.Mint(user)
		if err := h.Events.PasswordResetRequested(ctx, notifications.PasswordResetRequested{User: user, Token: token}); err != nil {
			logger.Error("password reset email failed", "error", err, "userId", user.ID)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to send password reset email"})
			return
		}
	case errors.Is(err, repositories.ErrNotFound):
		// Fall through to the generic response; no email is sent.
	default:
		logger.Error("password reset lookup failed", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "unable to process password reset"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{
		"detail": "If an account with that email exists, a password reset email has been sent.",
	})
}

// ConfirmPasswordReset handles POST /api/password_confirm/{uid}/{token}.
// Updating the hash invalidates the used token and any other outstanding
// single-use tokens for the account.
func (h AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	uid := chi.URLParam(r, "uid")
	token := chi.URLParam(r, "token")

	var req passwordConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.NewPassword != req.ConfirmPassword {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"password": "Passwords do not match."})
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"password": "Password must be at least 8 characters."})
		return
	}

	user, err := h.Users.FindByID(ctx, uid)
	if err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "Invalid reset link."})
		return
	}

	if !h.SingleUse.Check(user, token) {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "Invalid or expired reset link."})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		logging.FromContext(ctx).Error("reset failed to hash password", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return
	}

	if err := h.Users.UpdatePassword(ctx, user.ID, string(hashed)); err != nil {
		logging.FromContext(ctx).Error("reset failed to update password", "error", err, "userId", user.ID)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to reset password"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"detail": "Your password has been reset successfully."})
}

type registerRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ConfirmedPassword string `json:"confirmed_password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type passwordConfirmRequest struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}
