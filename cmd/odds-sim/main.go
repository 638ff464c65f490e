// Command odds-sim checks the gift roulette odds. By default it simulates
// draws per tier and compares observed shares with the chance table. With
// -verify it replays the rolls of a journaled fair session from its seeds.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/MJE43/stargift-miniapp/internal/catalog"
	"github.com/MJE43/stargift-miniapp/internal/drawlog"
	"github.com/MJE43/stargift-miniapp/internal/engine"
)

type options struct {
	tiers   string
	draws   int
	source  string
	seed    uint64
	server  string
	client  string
	nonce   uint64
	chances string

	verify  bool
	drawlog string
	session string
	limit   int
}

func main() {
	var o options
	flag.StringVar(&o.tiers, "tiers", "", "comma separated tiers to simulate (default: every tier)")
	flag.IntVar(&o.draws, "n", 100000, "draws per tier")
	flag.StringVar(&o.source, "source", "seeded", "random source: seeded or fair")
	flag.Uint64Var(&o.seed, "seed", 1, "seed for the seeded source and the strip order")
	flag.StringVar(&o.server, "server", "", "server seed (fair source, or override for -verify)")
	flag.StringVar(&o.client, "client", "", "client seed (fair source)")
	flag.Uint64Var(&o.nonce, "nonce", 0, "first nonce (fair source)")
	flag.StringVar(&o.chances, "chances", "", "chance table YAML (default: built in)")
	flag.BoolVar(&o.verify, "verify", false, "replay a journaled fair session instead of simulating")
	flag.StringVar(&o.drawlog, "drawlog", "", "draw journal database (-verify)")
	flag.StringVar(&o.session, "session", "", "journal session id (-verify)")
	flag.IntVar(&o.limit, "limit", 1000, "newest draws to verify, at most 1000")
	flag.Parse()

	if err := run(context.Background(), os.Stdout, o); err != nil {
		fmt.Fprintln(os.Stderr, "odds-sim:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, w io.Writer, o options) error {
	if o.verify {
		return runVerify(ctx, w, o)
	}

	cat := catalog.Default()
	chances := catalog.DefaultChanceTable(cat)
	if o.chances != "" {
		t, err := catalog.LoadChanceTable(o.chances, cat)
		if err != nil {
			return err
		}
		chances = t
	}
	tiers, err := parseTiers(o.tiers, chances)
	if err != nil {
		return err
	}
	if o.draws <= 0 {
		return fmt.Errorf("-n must be positive, got %d", o.draws)
	}

	for i, tier := range tiers {
		var src engine.Source
		switch o.source {
		case "seeded":
			src = engine.NewSeededSource(o.seed)
		case "fair":
			if o.server == "" || o.client == "" {
				return errors.New("fair source needs -server and -client")
			}
			src = engine.NewFairSource(engine.Seeds{Server: o.server, Client: o.client}, o.nonce)
		default:
			return fmt.Errorf("unknown source %q", o.source)
		}

		t := simulate(cat, chances, tier, o.draws, src, engine.NewSeededSource(o.seed+1))
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := writeReport(w, t); err != nil {
			return err
		}
	}
	return nil
}

func runVerify(ctx context.Context, w io.Writer, o options) error {
	if o.drawlog == "" || o.session == "" {
		return errors.New("-verify needs -drawlog and -session")
	}
	id, err := uuid.Parse(o.session)
	if err != nil {
		return fmt.Errorf("invalid -session: %w", err)
	}
	store, err := drawlog.New(o.drawlog)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := verify(ctx, store, id, o.server, o.limit)
	if err != nil {
		return err
	}
	if err := writeVerify(w, res); err != nil {
		return err
	}
	if len(res.Mismatches) > 0 {
		return fmt.Errorf("%d rolls do not match the seeds", len(res.Mismatches))
	}
	return nil
}

func parseTiers(s string, chances *catalog.ChanceTable) ([]catalog.Tier, error) {
	if strings.TrimSpace(s) == "" {
		return chances.Tiers(), nil
	}
	var out []catalog.Tier
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid tier %q: %w", part, err)
		}
		tier := catalog.Tier(v)
		if !chances.Has(tier) {
			return nil, fmt.Errorf("tier %d is not in the chance table", tier)
		}
		out = append(out, tier)
	}
	return out, nil
}
