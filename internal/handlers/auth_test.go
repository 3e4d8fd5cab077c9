package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/videoflix/backend/internal/auth"
	"github.com/videoflix/backend/internal/models"
	"github.com/videoflix/backend/internal/notifications"
	"github.com/videoflix/backend/internal/repositories"
)

type inMemoryUserStore struct {
	users map[string]models.User
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User)}
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) SetActive(_ context.Context, id string) error {
	user, ok := s.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	user.IsActive = true
	s.users[id] = user
	return nil
}

func (s *inMemoryUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	user, ok := s.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	user.Password = passwordHash
	s.users[id] = user
	return nil
}

type recordingDispatcher struct {
	registered []notifications.UserRegistered
	resets     []notifications.PasswordResetRequested
	err        error
}

func (d *recordingDispatcher) UserRegistered(_ context.Context, event notifications.UserRegistered) error {
	if d.err != nil {
		return d.err
	}
	d.registered = append(d.registered, event)
	return nil
}

func (d *recordingDispatcher) PasswordResetRequested(_ context.Context, event notifications.PasswordResetRequested) error {
	if d.err != nil {
		return d.err
	}
	d.resets = append(d.resets, event)
	return nil
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }

func newAuthHandler(store *inMemoryUserStore, events *recordingDispatcher) AuthHandler {
	return AuthHandler{
		Users:     store,
		Tokens:    auth.NewTokenManager("test-secret", time.Minute, time.Hour),
		SingleUse: auth.NewSingleUseTokens("test-secret", 72*time.Hour),
		Events:    events,
	}
}

func withURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return httptest.NewRequest(method, target, bytes.NewReader(body))
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestAuthHandlerRegister(t *testing.T) {
	store := newInMemoryUserStore()
	events := &recordingDispatcher{}
	handler := newAuthHandler(store, events)

	req := jsonRequest(t, http.MethodPost, "/api/register", registerRequest{
		Email:             "New@Example.com",
		Password:          "supersafe123",
		ConfirmedPassword: "supersafe123",
	})
	rec := httptest.NewRecorder()

	handler.Register(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	user, err := store.FindByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("expected user to be stored: %v", err)
	}
	if user.IsActive {
		t.Fatal("new accounts must start inactive")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("supersafe123")) != nil {
		t.Fatal("stored password is not hashed")
	}

	if len(events.registered) != 1 {
		t.Fatalf("expected one activation email, got %d", len(events.registered))
	}
	if events.registered[0].Token == "" {
		t.Fatal("activation event is missing the token")
	}
}

func TestAuthHandlerRegisterValidation(t *testing.T) {
	cases := []struct {
		name string
		req  registerRequest
	}{
		{"mismatched passwords", registerRequest{Email: "a@example.com", Password: "supersafe123", ConfirmedPassword: "different123"}},
		{"short password", registerRequest{Email: "a@example.com", Password: "short", ConfirmedPassword: "short"}},
		{"invalid email", registerRequest{Email: "not-an-email", Password: "supersafe123", ConfirmedPassword: "supersafe123"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newInMemoryUserStore()
			events := &recordingDispatcher{}
			handler := newAuthHandler(store, events)

			rec := httptest.NewRecorder()
			handler.Register(rec, jsonRequest(t, http.MethodPost, "/api/register", tc.req))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
			}
			if len(store.users) != 0 {
				t.Fatal("no user may be created on validation failure")
			}
			if len(events.registered) != 0 {
				t.Fatal("no email may be sent on validation failure")
			}
		})
	}
}

func TestAuthHandlerRegisterDuplicateEmail(t *testing.T) {
	store := newInMemoryUserStore()
	store.users["user-1"] = models.User{ID: "user-1", Email: "taken@example.com"}
	handler := newAuthHandler(store, &recordingDispatcher{})

	rec := httptest.NewRecorder()
	handler.Register(rec, jsonRequest(t, http.MethodPost, "/api/register", registerRequest{
		Email:             "taken@example.com",
		Password:          "supersafe123",
		ConfirmedPassword: "supersafe123",
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestAuthHandlerRegisterMailFailure(t *testing.T) {
	store := newInMemoryUserStore()
	events := &recordingDispatcher{err: errors.New("smtp down")}
	handler := newAuthHandler(store, events)

	rec := httptest.NewRecorder()
	handler.Register(rec, jsonRequest(t, http.MethodPost, "/api/register", registerRequest{
		Email:             "mail@example.com",
		Password:          "supersafe123",
		ConfirmedPassword: "supersafe123",
	}))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestAuthHandlerActivate(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newAuthHandler(store, &recordingDispatcher{})

	user := models.User{ID: "user-1", Email: "a@example.com", Password: "hash-v1"}
	store.users[user.ID] = user
	token := handler.SingleUse.Mint(user)

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/activate/user-1/"+token, nil),
		map[string]string{"uid": user.ID, "token": token})
	rec := httptest.NewRecorder()

	handler.Activate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if !store.users[user.ID].IsActive {
		t.Fatal("user was not activated")
	}

	// Re-activating with the same link stays successful.
	rec = httptest.NewRecorder()
	handler.Activate(rec, withURLParams(httptest.NewRequest(http.MethodGet, "/", nil),
		map[string]string{"uid": user.ID, "token": token}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected repeat activation to stay %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestAuthHandlerActivateRejectsStaleToken(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newAuthHandler(store, &recordingDispatcher{})

	user := models.User{ID: "user-1", Email: "a@example.com", Password: "hash-v1"}
	store.users[user.ID] = user
	token := handler.SingleUse.Mint(user)

	// Password change between mint and use invalidates the token.
	if err := store.UpdatePassword(context.Background(), user.ID, "hash-v2"); err != nil {
		t.Fatalf("update password: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.Activate(rec, withURLParams(httptest.NewRequest(http.MethodGet, "/", nil),
		map[string]string{"uid": user.ID, "token": token}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
	if store.users[user.ID].IsActive {
		t.Fatal("stale token must not activate the account")
	}
}

func TestAuthHandlerLogin(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newAuthHandler(store, &recordingDispatcher{})

	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store.users["user-1"] = models.User{ID: "user-1", Email: "login@example.com", Password: string(hashed), IsActive: true}

	rec := httptest.NewRecorder()
	handler.Login(rec, jsonRequest(t, http.MethodPost, "/api/login", loginRequest{Email: "login@example.com", Password: "password123"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var resp struct {
		Detail string `json:"detail"`
		User   struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"user"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Detail != "Login successful" || resp.User.Username != "login@example.com" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	access := cookieByName(t, rec, accessTokenCookie)
	refresh := cookieByName(t, rec, refreshTokenCookie)
	if !access.HttpOnly || !refresh.HttpOnly {
		t.Fatal("session cookies must be HttpOnly")
	}
	if access.Value == "" || refresh.Value == "" {
		t.Fatal("session cookies must carry tokens")
	}
}

func TestAuthHandlerLoginRejectsBadCredentials(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newAuthHandler(store, &recordingDispatcher{})

	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	store.users["user-1"] = models.User{ID: "user-1", Email: "login@example.com", Password: string(hashed), IsActive: true}

	for name, req := range map[string]loginRequest{
		"unknown email":  {Email: "nobody@example.com", Password: "password123"},
		"wrong password": {Email: "login@example.com", Password: "wrong-password"},
	} {
		rec := httptest.NewRecorder()
		handler.Login(rec, jsonRequest(t, http.MethodPost, "/api/login", req))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected status %d got %d", name, http.StatusUnauthorized, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "Invalid credentials") {
			t.Fatalf("%s: expected the uniform error body, got %s", name, rec.Body.String())
		}
	}
}

func TestAuthHandlerLoginRejectsInactiveAccount(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newAuthHandler(store, &recordingDispatcher{})

	hashed, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	store.users["user-1"] = models.User{ID: "user-1", Email: "login@example.com", Password: string(hashed)}

	rec := httptest.NewRecorder()
	handler.Login(rec, jsonRequest(t, http.MethodPost, "/api/login", loginRequest{Email: "login@example.com", Password: "password123"}))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d got %d", http.StatusForbidden, rec.Code)
	}
}

func TestAuthHandlerRefreshRotatesTokens(t *testing.T) {
	handler := newAuthHandler(newInMemoryUserStore(), &recordingDispatcher{})

	tokens, err := handler.Tokens.Issue("user-1")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/token/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: tokens.RefreshToken})
	rec := httptest.NewRecorder()

	handler.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	access := cookieByName(t, rec, accessTokenCookie)
	refresh := cookieByName(t, rec, refreshTokenCookie)
	if access.Value == "" || refresh.Value == "" {
		t.Fatal("refresh must rewrite both cookies")
	}

	var resp struct {
		Access string `json:"access"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Access == "" {
		t.Fatal("response must include the new access token")
	}
}

func TestAuthHandlerRefreshRejectsAccessToken(t *testing.T) {
	handler := newAuthHandler(newInMemoryUserStore(), &recordingDispatcher{})

	tokens, err := handler.Tokens.Issue("user-1")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/token/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshTokenCookie, Value: tokens.AccessToken})
	rec := httptest.NewRecorder()

	handler.Refresh(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAuthHandlerRefreshFallsBackToBody(t *testing.T) {
	handler := newAuthHandler(newInMemoryUserStore(), &recordingDispatcher{})

	tokens, err := handler.Tokens.Issue("user-1")
	if err != nil {
		t.Fatalf("issue tokens: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.Refresh(rec, jsonRequest(t, http.MethodPost, "/api/token/refresh", refreshRequest{Refresh: tokens.RefreshToken}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestAuthHandlerLogoutAlwaysSucceeds(t *testing.T) {
	handler := newAuthHandler(newInMemoryUserStore(), &recordingDispatcher{})

	rec := httptest.NewRecorder()
	handler.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/logout", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		cookie := cookieByName(t, rec, name)
		if cookie.MaxAge >= 0 || cookie.Value != "" {
			t.Fatalf("expected %s to be cleared, got %+v", name, cookie)
		}
	}
}

func TestAuthHandlerPasswordResetUniformResponse(t *testing.T) {
	store := newInMemoryUserStore()
	events := &recordingDispatcher{}
	handler := newAuthHandler(store, events)

	store.users["user-1"] = models.User{ID: "user-1", Email: "known@example.com", Password: "hash", IsActive: true}

	known := httptest.NewRecorder()
	handler.RequestPasswordReset(known, jsonRequest(t, http.MethodPost, "/api/password_reset", passwordResetRequest{Email: "known@example.com"}))

	unknown := httptest.NewRecorder()
	handler.RequestPasswordReset(unknown, jsonRequest(t, http.MethodPost, "/api/password_reset", passwordResetRequest{Email: "unknown@example.com"}))

	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected both to return %d, got %d and %d", http.StatusOK, known.Code, unknown.Code)
	}
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("responses must be indistinguishable: %q vs %q", known.Body.String(), unknown.Body.String())
	}
	if len(events.resets) != 1 {
		t.Fatalf("expected exactly one reset email, got %d", len(events.resets))
	}
	if events.resets[0].User.ID != "user-1" {
		t.Fatalf("reset email sent to the wrong user: %+v", events.resets[0].User)
	}
}

func TestAuthHandlerConfirmPasswordReset(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newAuthHandler(store, &recordingDispatcher{})

	hashed, _ := bcrypt.GenerateFromPassword([]byte("oldpassword1"), bcrypt.DefaultCost)
	user := models.User{ID: "user-1", Email: "a@example.com", Password: string(hashed), IsActive: true}
	store.users[user.ID] = user
	token := handler.SingleUse.Mint(user)

	req := jsonRequest(t, http.MethodPost, "/api/password_confirm/user-1/"+token, passwordConfirmRequest{
		NewPassword:     "brandnewpass1",
		ConfirmPassword: "brandnewpass1",
	})
	rec := httptest.NewRecorder()

	handler.ConfirmPasswordReset(rec, withURLParams(req, map[string]string{"uid": user.ID, "token": token}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	updated := store.users[user.ID]
	if bcrypt.CompareHashAndPassword([]byte(updated.Password), []byte("brandnewpass1")) != nil {
		t.Fatal("password was not updated")
	}

	// The used token hangs off the old hash and no longer verifies.
	if handler.SingleUse.Check(updated, token) {
		t.Fatal("token must be single use")
	}
}

func TestAuthHandlerConfirmPasswordResetValidation(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newAuthHandler(store, &recordingDispatcher{})

	user := models.User{ID: "user-1", Email: "a@example.com", Password: "hash-v1", IsActive: true}
	store.users[user.ID] = user
	token := handler.SingleUse.Mint(user)

	req := jsonRequest(t, http.MethodPost, "/api/password_confirm/user-1/"+token, passwordConfirmRequest{
		NewPassword:     "brandnewpass1",
		ConfirmPassword: "doesnotmatch1",
	})
	rec := httptest.NewRecorder()

	handler.ConfirmPasswordReset(rec, withURLParams(req, map[string]string{"uid": user.ID, "token": token}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
	if store.users[user.ID].Password != "hash-v1" {
		t.Fatal("mismatched confirmation must not mutate the password")
	}
}

func TestAuthHandlerConfirmPasswordResetRejectsBadToken(t *testing.T) {
	store := newInMemoryUserStore()
	handler := newAuthHandler(store, &recordingDispatcher{})

	user := models.User{ID: "user-1", Email: "a@example.com", Password: "hash-v1", IsActive: true}
	store.users[user.ID] = user

	req := jsonRequest(t, http.MethodPost, "/api/password_confirm/user-1/bogus", passwordConfirmRequest{
		NewPassword:     "brandnewpass1",
		ConfirmPassword: "brandnewpass1",
	})
	rec := httptest.NewRecorder()

	handler.ConfirmPasswordReset(rec, withURLParams(req, map[string]string{"uid": user.ID, "token": "bogus"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
	if store.users[user.ID].Password != "hash-v1" {
		t.Fatal("invalid token must not mutate the password")
	}
}

func TestAuthHandlerRateLimiting(t *testing.T) {
	handler := newAuthHandler(newInMemoryUserStore(), &recordingDispatcher{})
	handler.Limiter = denyAllLimiter{}

	endpoints := map[string]http.HandlerFunc{
		"register":       handler.Register,
		"login":          handler.Login,
		"password reset": handler.RequestPasswordReset,
	}

	for name, endpoint := range endpoints {
		rec := httptest.NewRecorder()
		endpoint(rec, jsonRequest(t, http.MethodPost, "/", map[string]string{}))

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("%s: expected status %d got %d", name, http.StatusTooManyRequests, rec.Code)
		}
	}
}
