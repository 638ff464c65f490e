package telegram

import (
	"strings"
	"unicode"
)

// Placeholder profile shown when the app runs without a Telegram user.
const (
	PlaceholderName     = "Stargift User"
	PlaceholderHandle   = "@stargift"
	PlaceholderInitials = "SG"
	PlaceholderBadge    = "ID 1024"
)

// Profile is the profile card.
type Profile struct {
	Name        string `json:"name"`
	Handle      string `json:"handle"`
	Initials    string `json:"initials"`
	Badge       string `json:"badge"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Placeholder bool   `json:"placeholder"`
}

// ProfileFor builds the card for u, or the placeholder card for nil.
func ProfileFor(u *User) Profile {
	if u == nil {
		return Profile{
			Name:        PlaceholderName,
			Handle:      PlaceholderHandle,
			Initials:    PlaceholderInitials,
			Badge:       PlaceholderBadge,
			Placeholder: true,
		}
	}

	name := strings.TrimSpace(strings.Join(nonEmpty(u.FirstName, u.LastName), " "))
	if name == "" {
		name = u.Username
	}
	if name == "" {
		name = PlaceholderName
	}
	p := Profile{
		Name:     name,
		Initials: initials(name),
		Badge:    "ID " + u.IDString(),
		PhotoURL: u.PhotoURL,
	}
	if u.Username != "" {
		p.Handle = "@" + u.Username
	}
	return p
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// initials takes the first letter or digit of up to two words.
func initials(name string) string {
	var out []rune
	for _, w := range strings.Fields(name) {
		for _, r := range w {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				out = append(out, unicode.ToUpper(r))
				break
			}
		}
		if len(out) == 2 {
			break
		}
	}
	return string(out)
}
