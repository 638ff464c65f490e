package leaderboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNormalizeShapes(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantIDs []string
	}{
		{"empty body", "", nil},
		{"null", "null", nil},
		{"bare array", `[{"userId": 1}, {"userId": 2}]`, []string{"1", "2"}},
		{"leaderboard key", `{"leaderboard": [{"user_id": "7"}]}`, []string{"7"}},
		{"items key", `{"items": [{"id": 3}]}`, []string{"3"}},
		{"data key", `{"data": [{"id": 4}]}`, []string{"4"}},
		{"users key", `{"users": [{"id": 5}]}`, []string{"5"}},
		{"error object", `{"error": "invalid_init_data"}`, nil},
		{"non-object rows skipped", `[1, "x", null, {"id": 9}]`, []string{"9"}},
		{"large numeric id", `[{"userId": 9007199254740993}]`, []string{"9007199254740993"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize([]byte(tt.body))
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if got == nil {
				t.Fatal("Normalize should return an empty slice, not nil")
			}
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("got %d entries, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("entry %d id = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestNormalizeInvalidJSON(t *testing.T) {
	if _, err := Normalize([]byte("<html>")); err == nil {
		t.Error("expected an error for a non-JSON body")
	}
}

func TestNormalizeAliases(t *testing.T) {
	body := `[
		{"userId": 1, "username": "alice", "firstName": "Alice", "lastName": "A", "photoUrl": "p1", "spentStars": 150},
		{"user_id": 2, "userName": "bob", "first_name": "Bob", "last_name": "B", "photo_url": "p2", "spent_stars": "75"},
		{"id": 3, "first_name": "Carol", "avatar": "p3", "score": 10},
		{"xp": 5}
	]`
	got, err := Normalize([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{
		{ID: "1", Username: "alice", FirstName: "Alice", LastName: "A", DisplayName: "alice", PhotoURL: "p1", Score: 150},
		{ID: "2", Username: "bob", FirstName: "Bob", LastName: "B", DisplayName: "bob", PhotoURL: "p2", Score: 75},
		{ID: "3", FirstName: "Carol", DisplayName: "Carol", PhotoURL: "p3", Score: 10},
		{DisplayName: NoName, Score: 5},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNormalizeDedupe(t *testing.T) {
	body := `[
		{"userId": 1, "spentStars": 10},
		{"userId": "1", "spentStars": 99},
		{"username": "zed", "spentStars": 5},
		{"username": "zed", "spentStars": 6},
		{"spentStars": 1},
		{"spentStars": 2}
	]`
	got, err := Normalize([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d entries, want 4: %+v", len(got), got)
	}
	if got[0].Score != 10 || got[1].Score != 5 {
		t.Errorf("first occurrence should win: %+v", got)
	}
	if got[2].Score != 1 || got[3].Score != 2 {
		t.Errorf("anonymous rows are kept by position: %+v", got)
	}
}

func TestRankAndFilter(t *testing.T) {
	entries := []Entry{
		{ID: "1", DisplayName: "Ann", Score: 10},
		{ID: "2", DisplayName: "Boris", Score: 30},
		{ID: "3", DisplayName: "anatoly", Score: 10},
		{ID: "4", DisplayName: "Dana", Score: 20},
	}
	ranked := Rank(entries)
	order := []string{"2", "4", "1", "3"}
	for i, id := range order {
		if ranked[i].ID != id {
			t.Fatalf("rank %d = %s, want %s", i, ranked[i].ID, id)
		}
	}
	if entries[0].ID != "1" {
		t.Error("Rank modified its input")
	}

	filtered := Filter(ranked, "  AN ")
	if len(filtered) != 3 {
		t.Fatalf("filter matched %d, want 3 (Ann, anatoly, Dana)", len(filtered))
	}
	if got := Filter(ranked, ""); len(got) != len(ranked) {
		t.Error("empty query should keep everything")
	}
	if got := Filter(ranked, "zzz"); len(got) != 0 {
		t.Error("unexpected match")
	}
}

func TestLabels(t *testing.T) {
	for pos, want := range map[int]string{1: "🥇", 2: "🥈", 3: "🥉", 4: "#4", 12: "#12"} {
		if got := PositionLabel(pos); got != want {
			t.Errorf("PositionLabel(%d) = %q, want %q", pos, got, want)
		}
	}
	if got := FormatXP(1500); got != "1500 xp" {
		t.Errorf("FormatXP = %q", got)
	}
	if got := FormatXP(2.5); got != "2.5 xp" {
		t.Errorf("FormatXP = %q", got)
	}
	if got := ProfileLink(Entry{Username: "alice", ID: "1"}); got != "https://t.me/alice" {
		t.Errorf("ProfileLink username = %q", got)
	}
	if got := ProfileLink(Entry{ID: "42"}); got != "tg://user?id=42" {
		t.Errorf("ProfileLink id = %q", got)
	}
	if got := ProfileLink(Entry{}); got != "" {
		t.Errorf("ProfileLink empty = %q", got)
	}
	if IsMe(Entry{}, "") || !IsMe(Entry{ID: "5"}, "5") {
		t.Error("IsMe mismatch")
	}
	if got := (Entry{DisplayName: "élan"}).Initial(); got != "É" {
		t.Errorf("Initial = %q", got)
	}
}

type countingFetcher struct {
	calls   atomic.Int32
	entries []Entry
	err     error
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
	// cancelled is set when the fetch context was done after the gate.
	cancelled atomic.Bool
}

func (f *countingFetcher) FetchLeaderboard(ctx context.Context, initData string) ([]Entry, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.once.Do(func() { close(f.started) })
	}
	if f.gate != nil {
		<-f.gate
	}
	if ctx.Err() != nil {
		f.cancelled.Store(true)
	}
	return f.entries, f.err
}

func TestCacheKeyedByAuthContext(t *testing.T) {
	f := &countingFetcher{entries: []Entry{{ID: "1", DisplayName: "a", Score: 1}}}
	c := NewCache(f, 0, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Load(ctx, "auth-a"); err != nil {
			t.Fatal(err)
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("same auth context fetched %d times", n)
	}

	c.Load(ctx, "auth-b")
	c.Load(ctx, "auth-a")
	if n := f.calls.Load(); n != 3 {
		t.Fatalf("changing auth context should refetch, calls=%d", n)
	}

	c.Invalidate()
	c.Load(ctx, "auth-a")
	if n := f.calls.Load(); n != 4 {
		t.Fatalf("Invalidate should force a fetch, calls=%d", n)
	}
}

func TestCacheReturnsCopies(t *testing.T) {
	f := &countingFetcher{entries: []Entry{{ID: "1", DisplayName: "a"}}}
	c := NewCache(f, 0, nil)
	got, _ := c.Load(context.Background(), "x")
	got[0].DisplayName = "mutated"
	again, _ := c.Load(context.Background(), "x")
	if again[0].DisplayName != "a" {
		t.Error("caller mutation leaked into the cache")
	}
}

func TestCacheSharesInFlightLoad(t *testing.T) {
	f := &countingFetcher{
		entries: []Entry{{ID: "1"}},
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	c := NewCache(f, 0, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Load(context.Background(), "same"); err != nil {
				t.Error(err)
			}
		}()
	}
	<-f.started
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	if n := f.calls.Load(); n != 1 {
		t.Errorf("concurrent loads fetched %d times, want 1", n)
	}
}

func TestCacheSharedLoadSurvivesCancelledCaller(t *testing.T) {
	f := &countingFetcher{
		entries: []Entry{{ID: "1"}},
		gate:    make(chan struct{}),
		started: make(chan struct{}),
	}
	c := NewCache(f, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := c.Load(ctx, "same")
		first <- err
	}()
	<-f.started

	second := make(chan error, 1)
	go func() {
		got, err := c.Load(context.Background(), "same")
		if err == nil && len(got) != 1 {
			err = errors.New("unexpected board")
		}
		second <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("cancelled caller err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting for the shared fetch")
	}

	close(f.gate)
	if err := <-second; err != nil {
		t.Errorf("waiting caller failed with the first caller's context: %v", err)
	}
	if f.cancelled.Load() {
		t.Error("shared fetch ran with a cancelled context")
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
}

func TestCacheTTL(t *testing.T) {
	f := &countingFetcher{entries: []Entry{{ID: "1"}}}
	c := NewCache(f, 30*time.Millisecond, nil)
	c.Load(context.Background(), "x")
	time.Sleep(60 * time.Millisecond)
	c.Load(context.Background(), "x")
	if n := f.calls.Load(); n != 2 {
		t.Errorf("expired board should be refetched, calls=%d", n)
	}
}

func TestCacheErrorsAreNotCached(t *testing.T) {
	f := &countingFetcher{err: errors.New("down")}
	c := NewCache(f, 0, nil)
	if _, err := c.Load(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	f.err = nil
	f.entries = []Entry{{ID: "1"}}
	got, err := c.Load(context.Background(), "x")
	if err != nil || len(got) != 1 {
		t.Fatalf("retry after error: %v %v", got, err)
	}
}

const meInitData = "user=%7B%22id%22%3A2%2C%22username%22%3A%22bob%22%7D&auth_date=1662771648&hash=abc"

func TestPage(t *testing.T) {
	f := &countingFetcher{entries: []Entry{
		{ID: "1", Username: "alice", DisplayName: "alice", Score: 5},
		{ID: "2", Username: "bob", DisplayName: "bob", Score: 50},
	}}
	c := NewCache(f, 0, nil)

	p := c.Page(context.Background(), meInitData, "")
	if p.Err != nil || p.EmptyReason != "" || p.Total != 2 {
		t.Fatalf("page = %+v", p)
	}
	if p.Rows[0].ID != "2" || p.Rows[0].PositionLabel != "🥇" || !p.Rows[0].Me {
		t.Errorf("top row = %+v", p.Rows[0])
	}
	if p.Rows[1].Me || p.Rows[1].XP != "5 xp" || p.Rows[1].Link != "https://t.me/alice" {
		t.Errorf("second row = %+v", p.Rows[1])
	}

	p = c.Page(context.Background(), meInitData, "ali")
	if len(p.Rows) != 1 || p.Rows[0].Position != 1 || p.NoMatches {
		t.Errorf("filtered page = %+v", p)
	}
	p = c.Page(context.Background(), meInitData, "nobody")
	if !p.NoMatches || p.Total != 2 || p.EmptyReason != "" {
		t.Errorf("no-match page = %+v", p)
	}
}

func TestPageEmptyReasons(t *testing.T) {
	empty := NewCache(&countingFetcher{entries: []Entry{}}, 0, nil)
	if p := empty.Page(context.Background(), "", ""); p.EmptyReason != EmptyLeaderboard || p.Err != nil {
		t.Errorf("empty page = %+v", p)
	}

	failing := NewCache(&countingFetcher{err: errors.New("boom")}, 0, nil)
	p := failing.Page(context.Background(), "", "")
	if p.EmptyReason != LoadError || p.Hint != LoadErrorHint || p.Err == nil || len(p.Rows) != 0 {
		t.Errorf("error page = %+v", p)
	}
}
