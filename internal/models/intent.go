package models

import "time"

// Login modes carried through an OAuth redirect.
const (
	ModeBrowser = "browser"
	ModeCLI     = "cli"
)

// PendingIntent is the navigation target that must survive a login
// redirect. It is consumed exactly once.
type PendingIntent struct {
	ReturnTo  string    `json:"return_to"`
	Mode      string    `json:"mode,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the intent is older than ttl at now.
func (p *PendingIntent) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(p.CreatedAt) > ttl
}
