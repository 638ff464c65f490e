package engine

import (
	"crypto/sha256"
	"encoding/hex"
)

// Seeds is the server/client seed pair of a provably fair session.
type Seeds struct {
	Server string `json:"server"` // ASCII; do NOT hex-decode
	Client string `json:"client"`
}

// HashedServer is the commitment shown to the player before any draw.
func (s Seeds) HashedServer() string {
	sum := sha256.Sum256([]byte(s.Server))
	return hex.EncodeToString(sum[:])
}
