package models

import "time"

// Identity is an authenticated user as issued by the identity provider.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// User represents a row in the PostgreSQL users table. Rows are upserted
// on every successful login.
type User struct {
	Identity
	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}
