// Package leaderboard turns whatever the backend returns for the
// leaderboard into canonical entries and serves the ranked, searchable
// board through a cache keyed by the caller's auth context.
package leaderboard

import (
	"strings"
)

// NoName is shown for users with neither a username nor a name.
const NoName = "Без имени"

// Entry is one leaderboard row in canonical form.
type Entry struct {
	ID          string  `json:"id,omitempty"`
	Username    string  `json:"username,omitempty"`
	FirstName   string  `json:"first_name,omitempty"`
	LastName    string  `json:"last_name,omitempty"`
	DisplayName string  `json:"display_name"`
	PhotoURL    string  `json:"photo_url,omitempty"`
	Score       float64 `json:"score"`
}

// displayName prefers the username, then "first last".
func displayName(e Entry) string {
	if e.Username != "" {
		return e.Username
	}
	var parts []string
	for _, p := range []string{e.FirstName, e.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if full := strings.Join(parts, " "); full != "" {
		return full
	}
	return NoName
}

// Initial is the avatar fallback letter.
func (e Entry) Initial() string {
	for _, r := range e.DisplayName {
		return strings.ToUpper(string(r))
	}
	return ""
}
