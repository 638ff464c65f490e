package drawlog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/MJE43/stargift-miniapp/internal/engine"
	"github.com/MJE43/stargift-miniapp/internal/lib/logger/sl"
	"github.com/MJE43/stargift-miniapp/internal/spin"
)

// Journal records reveals of one controller into a session.
type Journal struct {
	store   *Store
	session uuid.UUID
	log     *slog.Logger
	timeout time.Duration
}

// NewJournal opens a session for source. Seeds are required for "fair"
// sources so the session can be replayed once the server seed is revealed.
func NewJournal(ctx context.Context, store *Store, source string, seeds *engine.Seeds, log *slog.Logger) (*Journal, error) {
	var hashed, client string
	if seeds != nil {
		hashed, client = seeds.HashedServer(), seeds.Client
	}
	id, err := store.StartSession(ctx, source, hashed, client)
	if err != nil {
		return nil, err
	}
	return &Journal{
		store:   store,
		session: id,
		log:     sl.OrDiscard(log).With(slog.String("component", "drawlog"), slog.String("session", id.String())),
		timeout: 5 * time.Second,
	}, nil
}

func (j *Journal) Session() uuid.UUID { return j.session }

// Record stores rev. Failures are logged; a journal problem never blocks a
// reveal.
func (j *Journal) Record(rev spin.Reveal) {
	if rev.Winner == nil || rev.Winner.Gift == nil {
		return
	}
	d := Draw{
		SessionID:    j.session,
		Spin:         int64(rev.Spin),
		Tier:         int(rev.Tier),
		Mode:         string(rev.Mode),
		GiftID:       string(rev.Winner.Gift.ID),
		Weight:       rev.Winner.Weight,
		Index:        rev.Index,
		Roll:         rev.Roll,
		LandingIndex: rev.Plan.LandingIndex,
		Offset:       rev.Plan.Offset,
		CreatedAt:    rev.At,
	}
	if rev.Nonce != nil {
		n := int64(*rev.Nonce)
		d.Nonce = &n
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if _, err := j.store.Record(ctx, d); err != nil {
		j.log.Error("failed to record draw", slog.Int64("spin", d.Spin), sl.Err(err))
		return
	}
	j.log.Debug("draw recorded", slog.Int64("spin", d.Spin), slog.String("gift", d.GiftID))
}
