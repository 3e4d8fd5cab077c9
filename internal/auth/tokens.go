package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/videoflix/backend/internal/models"
)

// TokenKind discriminates access tokens from refresh tokens. Presenting a
// refresh token where an access token is expected (or vice versa) fails
// validation.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

var (
	// ErrTokenInvalid indicates the token is malformed or carries a bad signature.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired indicates the token's signature checked out but it has expired.
	ErrTokenExpired = errors.New("token expired")
	// ErrWrongTokenKind indicates a structurally valid token of the wrong kind.
	ErrWrongTokenKind = errors.New("wrong token kind")
)

type sessionClaims struct {
	Kind TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// TokenManager mints and validates the stateless JWT pair used for API
// authentication. No session state is persisted server-side; validity is
// purely cryptographic and time based.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

// NewTokenManager constructs a TokenManager signing with the provided secret.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if secret == "" {
		panic("auth: signing secret must not be empty")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 24 * time.Hour
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a new access/refresh token pair for the provided user identifier.
func (m *TokenManager) Issue(userID string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	now := m.now()
	accessExpiry := now.Add(m.accessTTL)
	refreshExpiry := now.Add(m.refreshTTL)

	access, err := m.sign(userID, KindAccess, now, accessExpiry)
	if err != nil {
		return models.SessionTokens{}, err
	}

	refresh, err := m.sign(userID, KindRefresh, now, refreshExpiry)
	if err != nil {
		return models.SessionTokens{}, err
	}

	return models.SessionTokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiry,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

// Validate verifies the token's signature, expiry and kind, returning the
// embedded user identifier.
func (m *TokenManager) Validate(tokenString string, expected TokenKind) (string, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrTokenInvalid
	}

	if !token.Valid || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	if claims.Kind != expected {
		return "", ErrWrongTokenKind
	}

	return claims.Subject, nil
}

// AccessTTL reports the configured access token lifetime.
func (m *TokenManager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *TokenManager) sign(userID string, kind TokenKind, issued, expires time.Time) (string, error) {
	claims := sessionClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}
