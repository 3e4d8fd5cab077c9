package models

import "time"

// User represents an account within the Videoflix platform. Accounts start out
// inactive and must be activated through the emailed confirmation link before
// they can log in.
type User struct {
	ID        string
	Email     string
	Password  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Video stores the metadata for a single uploaded video along with references
// to its original file and thumbnail within the media root.
type Video struct {
	ID          string
	Title       string
	Description string
	Category    string
	Thumbnail   string
	SourceFile  string
	CreatedAt   time.Time
}

// Categories lists the fixed set of accepted video categories.
var Categories = []string{
	"Action",
	"Comedy",
	"Drama",
	"Romance",
	"Horror",
	"Sci-Fi",
	"Documentary",
	"Animation",
}

// ValidCategory reports whether the provided category is one of the fixed set.
func ValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
