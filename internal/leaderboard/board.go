package leaderboard

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Rank orders entries by score, highest first. Ties keep payload order.
func Rank(entries []Entry) []Entry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b Entry) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return out
}

// Filter keeps entries whose display name contains query, ignoring case
// and surrounding space. An empty query keeps everything.
func Filter(entries []Entry, query string) []Entry {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.DisplayName), q) {
			out = append(out, e)
		}
	}
	return out
}

// PositionLabel is the medal for the top three, "#n" below.
func PositionLabel(position int) string {
	switch position {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	}
	return "#" + strconv.Itoa(position)
}

func FormatXP(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64) + " xp"
}

// ProfileLink points at the user's Telegram profile, "" when the entry has
// neither a username nor an id.
func ProfileLink(e Entry) string {
	switch {
	case e.Username != "":
		return "https://t.me/" + url.PathEscape(e.Username)
	case e.ID != "":
		return "tg://user?id=" + url.QueryEscape(e.ID)
	}
	return ""
}

// IsMe compares the entry id with the current user's id.
func IsMe(e Entry, userID string) bool {
	return userID != "" && e.ID == userID
}

// Row is an entry decorated for display.
type Row struct {
	Entry
	Position      int    `json:"position"`
	PositionLabel string `json:"position_label"`
	XP            string `json:"xp"`
	Initial       string `json:"initial"`
	Link          string `json:"link,omitempty"`
	Me            bool   `json:"me"`
}

// Rows numbers entries from 1 in the given order.
func Rows(entries []Entry, userID string) []Row {
	out := make([]Row, len(entries))
	for i, e := range entries {
		out[i] = Row{
			Entry:         e,
			Position:      i + 1,
			PositionLabel: PositionLabel(i + 1),
			XP:            FormatXP(e.Score),
			Initial:       e.Initial(),
			Link:          ProfileLink(e),
			Me:            IsMe(e, userID),
		}
	}
	return out
}
