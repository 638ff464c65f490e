package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/stargift-miniapp/internal/catalog"
	"github.com/MJE43/stargift-miniapp/internal/drawlog"
	"github.com/MJE43/stargift-miniapp/internal/engine"
	"github.com/MJE43/stargift-miniapp/internal/roulette"
	"github.com/MJE43/stargift-miniapp/internal/spin"
)

// rollTolerance absorbs float formatting noise from the sqlite REAL column.
const rollTolerance = 1e-12

type tallyRow struct {
	Gift   catalog.GiftID
	Weight float64
	Count  int
}

type tally struct {
	Tier  catalog.Tier
	Draws int
	Total float64
	Rows  []tallyRow
	// Unexpected counts draws of gifts the tier gives no weight.
	Unexpected int
}

// simulate draws n winners for tier the same way the controller does: the
// strip is shuffled once with order, then every draw is a weighted pick
// from src. Advancing sources move to a fresh nonce after each pick.
func simulate(cat *catalog.Catalog, chances *catalog.ChanceTable, tier catalog.Tier, n int, src, order engine.Source) tally {
	items := roulette.Shuffle(roulette.Items(cat, chances, tier), order)
	adv, _ := src.(spin.Advancer)

	counts := make(map[catalog.GiftID]int, len(items))
	for i := 0; i < n; i++ {
		idx := roulette.Pick(items, src)
		if adv != nil {
			adv.Advance()
		}
		if idx < len(items) {
			counts[items[idx].Gift.ID]++
		}
	}

	t := tally{Tier: tier, Draws: n, Total: chances.Total(tier)}
	for _, it := range roulette.Items(cat, chances, tier) {
		c := counts[it.Gift.ID]
		if it.Weight <= 0 {
			t.Unexpected += c
		}
		t.Rows = append(t.Rows, tallyRow{Gift: it.Gift.ID, Weight: it.Weight, Count: c})
	}
	return t
}

// ChiSquare is Pearson's statistic over the gifts with weight, and its
// degrees of freedom.
func (t tally) ChiSquare() (float64, int) {
	if t.Draws == 0 || t.Total <= 0 {
		return 0, 0
	}
	var chi float64
	cells := 0
	for _, r := range t.Rows {
		if r.Weight <= 0 {
			continue
		}
		exp := float64(t.Draws) * r.Weight / t.Total
		d := float64(r.Count) - exp
		chi += d * d / exp
		cells++
	}
	if cells == 0 {
		return 0, 0
	}
	return chi, cells - 1
}

// delta is the observed minus expected share in percentage points.
func (t tally) delta(r tallyRow) decimal.Decimal {
	if t.Draws == 0 || t.Total <= 0 {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	observed := decimal.NewFromInt(int64(r.Count)).Div(decimal.NewFromInt(int64(t.Draws))).Mul(hundred)
	expected := decimal.NewFromFloat(r.Weight).Div(decimal.NewFromFloat(t.Total)).Mul(hundred)
	return observed.Sub(expected).Round(2)
}

func writeReport(w io.Writer, t tally) error {
	chi, df := t.ChiSquare()
	if _, err := fmt.Fprintf(w, "tier %d: %s draws, chi-square %.2f (df %d)\n",
		t.Tier, humanize.Comma(int64(t.Draws)), chi, df); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "gift\tweight\texpected\tobserved\tcount\tdelta\t")
	for _, r := range t.Rows {
		d := t.delta(r)
		sign := ""
		if d.IsPositive() {
			sign = "+"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s%spp\t\n",
			r.Gift,
			humanize.Ftoa(r.Weight),
			catalog.FormatShare(r.Weight, t.Total),
			catalog.FormatShare(float64(r.Count), float64(t.Draws)),
			humanize.Comma(int64(r.Count)),
			sign, d.StringFixed(2),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if t.Unexpected > 0 {
		_, err := fmt.Fprintf(w, "WARNING: %s draws landed on zero-weight gifts\n", humanize.Comma(int64(t.Unexpected)))
		return err
	}
	return nil
}

var (
	errNotFair       = errors.New("session was not drawn from a fair source")
	errSeedHidden    = errors.New("server seed has not been revealed")
	errSeedMismatch  = errors.New("server seed does not match the session hash")
	errNothingToTest = errors.New("session has no draws with a nonce")
)

type mismatch struct {
	Draw drawlog.Draw
	Want float64
}

type verifyResult struct {
	Session    drawlog.Session
	Checked    int
	Mismatches []mismatch
}

// verify recomputes the roll of every journaled draw in session from the
// seed pair. serverSeed overrides the alias stored in the journal.
func verify(ctx context.Context, store *drawlog.Store, session uuid.UUID, serverSeed string, limit int) (verifyResult, error) {
	sess, err := store.GetSession(ctx, session)
	if err != nil {
		return verifyResult{}, fmt.Errorf("load session %s: %w", session, err)
	}
	if sess.Source != "fair" {
		return verifyResult{}, errNotFair
	}
	if serverSeed == "" {
		plain, ok, err := store.LookupSeedAlias(ctx, sess.ServerSeedHashed)
		if err != nil {
			return verifyResult{}, err
		}
		if !ok {
			return verifyResult{}, errSeedHidden
		}
		serverSeed = plain
	}
	seeds := engine.Seeds{Server: serverSeed, Client: sess.ClientSeed}
	if seeds.HashedServer() != sess.ServerSeedHashed {
		return verifyResult{}, errSeedMismatch
	}

	draws, err := store.Recent(ctx, drawlog.Filter{SessionID: session}, limit)
	if err != nil {
		return verifyResult{}, err
	}
	res := verifyResult{Session: sess}
	for _, d := range draws {
		if d.Nonce == nil {
			continue
		}
		res.Checked++
		want := engine.Floats(seeds, uint64(*d.Nonce), 0, 1)[0]
		if math.Abs(want-d.Roll) > rollTolerance {
			res.Mismatches = append(res.Mismatches, mismatch{Draw: d, Want: want})
		}
	}
	if res.Checked == 0 {
		return res, errNothingToTest
	}
	return res, nil
}

func writeVerify(w io.Writer, res verifyResult) error {
	fmt.Fprintf(w, "session %s (%s draws journaled, started %s)\n",
		res.Session.ID, humanize.Comma(res.Session.TotalDraws), humanize.Time(res.Session.CreatedAt))
	for _, m := range res.Mismatches {
		fmt.Fprintf(w, "MISMATCH nonce %d spin %d: journal roll %.12f, seeds give %.12f\n",
			*m.Draw.Nonce, m.Draw.Spin, m.Draw.Roll, m.Want)
	}
	_, err := fmt.Fprintf(w, "%s checked, %s mismatched\n",
		humanize.Comma(int64(res.Checked)), humanize.Comma(int64(len(res.Mismatches))))
	return err
}
