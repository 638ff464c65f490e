package leaderboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/singleflight"

	"github.com/MJE43/stargift-miniapp/internal/lib/logger/sl"
	"github.com/MJE43/stargift-miniapp/internal/telegram"
)

// loadTimeout bounds a shared fetch, which outlives the caller that
// started it.
const loadTimeout = 30 * time.Second

// Fetcher loads the raw board for an auth context.
type Fetcher interface {
	FetchLeaderboard(ctx context.Context, initData string) ([]Entry, error)
}

// EmptyReason explains an empty board.
type EmptyReason string

const (
	EmptyLeaderboard EmptyReason = "empty_leaderboard"
	LoadError        EmptyReason = "load_error"
)

// Empty-state copy.
const (
	EmptyTitle    = "Рейтинг пуст"
	EmptySubtitle = "Пока нет пользователей для отображения."
	LoadErrorHint = "Не удалось загрузить данные. Попробуйте позже."
)

// Page is one rendering of the board.
type Page struct {
	Rows []Row `json:"rows"`
	// Total counts ranked entries before filtering.
	Total       int         `json:"total"`
	Query       string      `json:"query,omitempty"`
	NoMatches   bool        `json:"no_matches"`
	EmptyReason EmptyReason `json:"empty_reason,omitempty"`
	// Hint is shown under the empty state when loading failed.
	Hint string `json:"hint,omitempty"`
	Err  error  `json:"-"`
}

// Cache holds the last loaded board for one auth context. Loading for a
// different init data string drops what was cached; concurrent loads for
// the same context share one fetch.
type Cache struct {
	fetcher Fetcher
	store   *cache.Cache
	group   singleflight.Group
	log     *slog.Logger

	mu      sync.Mutex
	current string
}

// NewCache builds a cache. ttl <= 0 keeps a board until the auth context
// changes or Invalidate is called.
func NewCache(f Fetcher, ttl time.Duration, log *slog.Logger) *Cache {
	exp, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		exp, cleanup = ttl, 2*ttl
	}
	return &Cache{
		fetcher: f,
		store:   cache.New(exp, cleanup),
		log:     sl.OrDiscard(log).With(slog.String("component", "leaderboard")),
	}
}

// authKey avoids keeping the signed init data itself as a map key.
func authKey(initData string) string {
	sum := sha256.Sum256([]byte(initData))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) switchTo(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != key {
		c.store.Flush()
		c.current = key
	}
}

func (c *Cache) isCurrent(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current == key
}

// Load returns the deduplicated board, fetching it at most once per auth
// context while cached.
func (c *Cache) Load(ctx context.Context, initData string) ([]Entry, error) {
	key := authKey(initData)
	c.switchTo(key)

	if v, ok := c.store.Get(key); ok {
		return slices.Clone(v.([]Entry)), nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		entries, err := c.fetcher.FetchLeaderboard(fetchCtx, initData)
		if err != nil {
			return nil, err
		}
		if c.isCurrent(key) {
			c.store.Set(key, entries, cache.DefaultExpiration)
		}
		return entries, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.log.Debug("leaderboard load shared")
		}
		return slices.Clone(res.Val.([]Entry)), nil
	}
}

// Invalidate drops the cached board.
func (c *Cache) Invalidate() {
	c.store.Flush()
}

// Page loads, ranks and filters the board for initData.
func (c *Cache) Page(ctx context.Context, initData, query string) Page {
	p := Page{Query: query, Rows: []Row{}}

	entries, err := c.Load(ctx, initData)
	if err != nil {
		c.log.Error("failed to load leaderboard", sl.Err(err))
		p.Err = err
		p.EmptyReason = LoadError
		p.Hint = LoadErrorHint
		c.emptyState(p)
		return p
	}

	ranked := Rank(entries)
	p.Total = len(ranked)
	if p.Total == 0 {
		p.EmptyReason = EmptyLeaderboard
		c.emptyState(p)
		return p
	}

	var me string
	if u, err := telegram.CurrentUser(initData); err != nil {
		c.log.Debug("init data has no readable user", sl.Err(err))
	} else {
		me = u.IDString()
	}

	filtered := Filter(ranked, query)
	p.Rows = Rows(filtered, me)
	p.NoMatches = len(filtered) == 0
	return p
}

func (c *Cache) emptyState(p Page) {
	c.log.Info("leaderboard_empty_state",
		slog.String("event", "leaderboard_empty_state"),
		slog.String("reason", string(p.EmptyReason)),
		slog.Bool("has_error", p.Err != nil),
		slog.Int64("timestamp", time.Now().UnixMilli()),
	)
}
