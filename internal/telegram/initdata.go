// Package telegram reads the Mini App launch context: the signed init data
// string the host hands to the app and the platform it runs on.
package telegram

import (
	"fmt"
	"strconv"
	"strings"

	initdata "github.com/telegram-mini-apps/init-data-golang"
)

// User is the subset of the init data user the app displays.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// IDString renders the user id the way leaderboard rows carry it.
func (u *User) IDString() string {
	if u == nil || u.ID == 0 {
		return ""
	}
	return strconv.FormatInt(u.ID, 10)
}

// CurrentUser extracts the user from raw init data. Empty init data, or
// init data without a user, yields (nil, nil); only malformed input is an
// error. Signatures are not checked here: the backend validates them.
func CurrentUser(raw string) (*User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	data, err := initdata.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("telegram: parse init data: %w", err)
	}
	if data.User.ID == 0 {
		return nil, nil
	}
	return &User{
		ID:        data.User.ID,
		Username:  data.User.Username,
		FirstName: data.User.FirstName,
		LastName:  data.User.LastName,
		PhotoURL:  data.User.PhotoURL,
	}, nil
}
