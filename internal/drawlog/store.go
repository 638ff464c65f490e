// Package drawlog is a local SQLite journal of completed spins. It backs
// odds auditing and provably fair replays; it is not product persistence.
package drawlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// --------- Data models ---------

// Session groups draws made from one random source.
type Session struct {
	ID               uuid.UUID `json:"id"`
	Source           string    `json:"source"`
	ServerSeedHashed string    `json:"server_seed_hashed,omitempty"`
	ClientSeed       string    `json:"client_seed,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	TotalDraws       int64     `json:"total_draws"`
}

// Draw is one revealed spin.
type Draw struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	Spin         int64     `json:"spin"`
	Tier         int       `json:"tier"`
	Mode         string    `json:"mode"`
	GiftID       string    `json:"gift_id"`
	Weight       float64   `json:"weight"`
	Index        int       `json:"index"`
	Roll         float64   `json:"roll"`
	Nonce        *int64    `json:"nonce,omitempty"`
	LandingIndex int       `json:"landing_index"`
	Offset       float64   `json:"offset"`
	CreatedAt    time.Time `json:"created_at"`
}

// GiftCount is one row of an observed distribution.
type GiftCount struct {
	GiftID string  `json:"gift_id"`
	Count  int64   `json:"count"`
	Share  float64 `json:"share"`
}

// Filter narrows Distribution and Recent. Zero fields match everything.
type Filter struct {
	SessionID uuid.UUID
	Tier      int
	Mode      string
}

var (
	ErrDuplicate   = errors.New("drawlog: draw already recorded for this nonce")
	ErrInvalidDraw = errors.New("drawlog: invalid draw")
)

// --------- Store ---------

type Store struct {
	db *sql.DB
}

// New opens/creates a SQLite database at dbPath and runs migrations.
// ":memory:" gives a throwaway journal.
func New(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --------- Migrations ---------

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS draw_sessions (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			server_seed_hashed TEXT NOT NULL DEFAULT '',
			client_seed TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_draw_sessions_last_seen ON draw_sessions(last_seen_at DESC);`,

		`CREATE TABLE IF NOT EXISTS draws (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			spin INTEGER NOT NULL,
			tier INTEGER NOT NULL,
			mode TEXT NOT NULL,
			gift_id TEXT NOT NULL,
			weight REAL NOT NULL,
			item_index INTEGER NOT NULL,
			roll REAL NOT NULL,
			nonce INTEGER,
			landing_index INTEGER NOT NULL,
			strip_offset REAL NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(session_id, nonce),
			FOREIGN KEY(session_id) REFERENCES draw_sessions(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_draws_session_created ON draws(session_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_draws_tier_mode ON draws(tier, mode);`,

		// Server seeds revealed after rotation, for replay.
		`CREATE TABLE IF NOT EXISTS seed_aliases (
			server_seed_hashed TEXT PRIMARY KEY,
			server_seed_plain  TEXT NOT NULL,
			first_seen TIMESTAMP NOT NULL,
			last_seen  TIMESTAMP NOT NULL
		);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --------- Sessions ---------

// StartSession opens a session for a random source. Fair sources pass
// their hashed server seed and client seed; other sources pass "".
func (s *Store) StartSession(ctx context.Context, source, serverSeedHashed, clientSeed string) (uuid.UUID, error) {
	if source == "" {
		return uuid.Nil, errors.New("drawlog: missing source")
	}
	now := time.Now().UTC()
	id := uuid.New()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO draw_sessions(id, source, server_seed_hashed, client_seed, created_at, last_seen_at)
		VALUES(?, ?, ?, ?, ?, ?)`,
		id.String(), source, serverSeedHashed, clientSeed, now, now)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// GetSession returns session metadata with its draw count.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	var ss Session
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.source, s.server_seed_hashed, s.client_seed, s.created_at, s.last_seen_at,
		       (SELECT COUNT(*) FROM draws d WHERE d.session_id = s.id)
		FROM draw_sessions s WHERE s.id=?`, id.String(),
	).Scan(&idStr, &ss.Source, &ss.ServerSeedHashed, &ss.ClientSeed, &ss.CreatedAt, &ss.LastSeenAt, &ss.TotalDraws)
	if err != nil {
		return Session{}, err
	}
	ss.ID, err = uuid.Parse(idStr)
	return ss, err
}

// --------- Draws ---------

func validate(d Draw) error {
	switch {
	case d.SessionID == uuid.Nil:
		return fmt.Errorf("%w: missing session", ErrInvalidDraw)
	case d.GiftID == "":
		return fmt.Errorf("%w: missing gift", ErrInvalidDraw)
	case d.Tier <= 0:
		return fmt.Errorf("%w: tier %d", ErrInvalidDraw, d.Tier)
	case d.Mode != "paid" && d.Mode != "demo":
		return fmt.Errorf("%w: mode %q", ErrInvalidDraw, d.Mode)
	case d.Roll < 0 || d.Roll >= 1:
		return fmt.Errorf("%w: roll %v outside [0, 1)", ErrInvalidDraw, d.Roll)
	}
	return nil
}

// Record stores d and returns it with ID and CreatedAt filled in. A second
// draw for the same session nonce is rejected with ErrDuplicate.
func (s *Store) Record(ctx context.Context, d Draw) (Draw, error) {
	if err := validate(d); err != nil {
		return Draw{}, err
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	d.CreatedAt = d.CreatedAt.UTC()

	var nonce sql.NullInt64
	if d.Nonce != nil {
		nonce = sql.NullInt64{Int64: *d.Nonce, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO draws(
			id, session_id, spin, tier, mode, gift_id, weight, item_index,
			roll, nonce, landing_index, strip_offset, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.SessionID.String(), d.Spin, d.Tier, strings.ToLower(d.Mode), d.GiftID, d.Weight, d.Index,
		d.Roll, nonce, d.LandingIndex, d.Offset, d.CreatedAt)
	if err != nil {
		if isUniqueErr(err) {
			return Draw{}, ErrDuplicate
		}
		return Draw{}, err
	}

	_, _ = s.db.ExecContext(ctx, `UPDATE draw_sessions SET last_seen_at=? WHERE id=?`, d.CreatedAt, d.SessionID.String())
	return d, nil
}

func (f Filter) where() (string, []any) {
	var conds []string
	var args []any
	if f.SessionID != uuid.Nil {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID.String())
	}
	if f.Tier > 0 {
		conds = append(conds, "tier = ?")
		args = append(args, f.Tier)
	}
	if f.Mode != "" {
		conds = append(conds, "mode = ?")
		args = append(args, strings.ToLower(f.Mode))
	}
	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

// Recent returns the newest draws first.
func (s *Store) Recent(ctx context.Context, f Filter, limit int) ([]Draw, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	where, args := f.where()
	q := fmt.Sprintf(`
		SELECT id, session_id, spin, tier, mode, gift_id, weight, item_index,
		       roll, nonce, landing_index, strip_offset, created_at
		FROM draws
		WHERE %s
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, where)
	rows, err := s.db.QueryContext(ctx, q, append(args, limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Draw{}
	for rows.Next() {
		d, err := scanDraw(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDraw(rows *sql.Rows) (Draw, error) {
	var (
		d             Draw
		id, sessionID string
		nonce         sql.NullInt64
	)
	if err := rows.Scan(&id, &sessionID, &d.Spin, &d.Tier, &d.Mode, &d.GiftID, &d.Weight, &d.Index,
		&d.Roll, &nonce, &d.LandingIndex, &d.Offset, &d.CreatedAt); err != nil {
		return Draw{}, err
	}
	var err error
	if d.ID, err = uuid.Parse(id); err != nil {
		return Draw{}, err
	}
	if d.SessionID, err = uuid.Parse(sessionID); err != nil {
		return Draw{}, err
	}
	if nonce.Valid {
		n := nonce.Int64
		d.Nonce = &n
	}
	return d, nil
}

// Distribution counts draws per gift, most frequent first.
func (s *Store) Distribution(ctx context.Context, f Filter) ([]GiftCount, int64, error) {
	where, args := f.where()
	q := fmt.Sprintf(`
		SELECT gift_id, COUNT(*) AS cnt
		FROM draws
		WHERE %s
		GROUP BY gift_id
		ORDER BY cnt DESC, gift_id ASC`, where)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out   []GiftCount
		total int64
	)
	for rows.Next() {
		var gc GiftCount
		if err := rows.Scan(&gc.GiftID, &gc.Count); err != nil {
			return nil, 0, err
		}
		total += gc.Count
		out = append(out, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Share = float64(out[i].Count) / float64(total)
	}
	return out, total, nil
}

// ExportCSV writes every draw of a session as CSV (header included).
func (s *Store) ExportCSV(ctx context.Context, w io.Writer, sessionID uuid.UUID) error {
	if _, err := io.WriteString(w, "spin,nonce,created_at,tier,mode,gift_id,weight,roll\n"); err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT spin, nonce, created_at, tier, mode, gift_id, weight, roll
		FROM draws WHERE session_id=? ORDER BY spin ASC`, sessionID.String())
	if err != nil {
		return err
	}
	defer rows.Close()

	var (
		spin   int64
		nonce  sql.NullInt64
		ts     time.Time
		tier   int
		mode   string
		gift   string
		weight float64
		roll   float64
	)
	for rows.Next() {
		if err := rows.Scan(&spin, &nonce, &ts, &tier, &mode, &gift, &weight, &roll); err != nil {
			return err
		}
		n := ""
		if nonce.Valid {
			n = fmt.Sprint(nonce.Int64)
		}
		line := fmt.Sprintf("%d,%s,%s,%d,%s,%s,%.2f,%.8f\n",
			spin, n, ts.UTC().Format(time.RFC3339Nano), tier, mode, gift, weight, roll)
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return rows.Err()
}

// --------- Seed aliases ---------

// UpsertSeedAlias links a hashed server seed to its plain text.
func (s *Store) UpsertSeedAlias(ctx context.Context, hashed, plain string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seed_aliases(server_seed_hashed, server_seed_plain, first_seen, last_seen)
		VALUES(?, ?, ?, ?)
		ON CONFLICT(server_seed_hashed) DO UPDATE SET
			server_seed_plain=excluded.server_seed_plain,
			last_seen=excluded.last_seen
	`, hashed, plain, now, now)
	return err
}

// LookupSeedAlias returns the plain seed for a hash if it exists.
func (s *Store) LookupSeedAlias(ctx context.Context, hashed string) (string, bool, error) {
	var plain string
	err := s.db.QueryRowContext(ctx, `SELECT server_seed_plain FROM seed_aliases WHERE server_seed_hashed=?`, hashed).Scan(&plain)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	return plain, err == nil, err
}

// --------- helpers ---------

func isUniqueErr(err error) bool {
	// modernc sqlite reports "UNIQUE constraint failed" in the message.
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
