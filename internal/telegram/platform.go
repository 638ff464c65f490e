package telegram

import "strings"

// Platform is the host platform reported by the Telegram client
// ("ios", "android", "tdesktop", "weba", ...).
type Platform string

func ParsePlatform(s string) Platform {
	return Platform(strings.ToLower(strings.TrimSpace(s)))
}

func (p Platform) IsIOS() bool { return p == "ios" }
