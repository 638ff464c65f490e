package miniapp

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/exp/slog"

	"github.com/MJE43/stargift-miniapp/internal/leaderboard"
)

// FetchLeaderboard loads and normalizes the leaderboard for initData,
// falling back to the client's own auth context when initData is empty.
// Server errors are retried with capped exponential backoff.
func (c *Client) FetchLeaderboard(ctx context.Context, initData string) ([]leaderboard.Entry, error) {
	if initData == "" {
		initData = c.InitData()
	}
	var raw json.RawMessage
	if err := c.doRequestWithRetry(ctx, "/api/leaderboard", nil, initData, &raw); err != nil {
		if he, ok := AsHTTPError(err); ok && he.IsInvalidInitData() {
			c.log.Warn("invalid_init_data: leaderboard request must be made inside Telegram")
		}
		return nil, err
	}
	entries, err := leaderboard.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("miniapp: leaderboard: %w", err)
	}
	c.log.Debug("leaderboard fetched", slog.Int("entries", len(entries)))
	return entries, nil
}
