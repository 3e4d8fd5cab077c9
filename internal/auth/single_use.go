package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/videoflix/backend/internal/models"
)

// SingleUseTokens derives activation and password-reset tokens from a user's
// current state. A token is an HMAC over the user id, the password hash and a
// minting timestamp: changing the password changes the hash and silently
// invalidates every outstanding token, which is what makes the tokens
// effectively single use without any server-side storage.
type SingleUseTokens struct {
	secret []byte
	maxAge time.Duration

	now func() time.Time
}

// NewSingleUseTokens constructs a generator with the provided signing secret
// and maximum token age.
func NewSingleUseTokens(secret string, maxAge time.Duration) *SingleUseTokens {
	if secret == "" {
		panic("auth: signing secret must not be empty")
	}
	if maxAge <= 0 {
		maxAge = 72 * time.Hour
	}
	return &SingleUseTokens{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Mint produces a token bound to the user's current password hash.
func (g *SingleUseTokens) Mint(user models.User) string {
	ts := g.now().Unix()
	return g.format(user, ts)
}

// Check recomputes the token for the embedded timestamp and compares it in
// constant time. It returns false for malformed tokens, tokens older than the
// configured max age, and tokens minted against a stale password hash.
func (g *SingleUseTokens) Check(user models.User, token string) bool {
	tsPart, _, ok := strings.Cut(token, "-")
	if !ok {
		return false
	}

	ts, err := strconv.ParseInt(tsPart, 36, 64)
	if err != nil {
		return false
	}

	now := g.now()
	if ts > now.Unix() || now.Sub(time.Unix(ts, 0)) > g.maxAge {
		return false
	}

	expected := g.format(user, ts)
	return hmac.Equal([]byte(expected), []byte(token))
}

func (g *SingleUseTokens) format(user models.User, ts int64) string {
	mac := hmac.New(sha256.New, g.secret)
	fmt.Fprintf(mac, "%s|%s|%d", user.ID, user.Password, ts)
	return strconv.FormatInt(ts, 36) + "-" + hex.EncodeToString(mac.Sum(nil))
}
