package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/MJE43/stargift-miniapp/internal/bridge"
	"github.com/MJE43/stargift-miniapp/internal/catalog"
	"github.com/MJE43/stargift-miniapp/internal/config"
	"github.com/MJE43/stargift-miniapp/internal/drawlog"
	"github.com/MJE43/stargift-miniapp/internal/engine"
	"github.com/MJE43/stargift-miniapp/internal/leaderboard"
	"github.com/MJE43/stargift-miniapp/internal/lib/logger/sl"
	"github.com/MJE43/stargift-miniapp/internal/miniapp"
	"github.com/MJE43/stargift-miniapp/internal/roulette"
	"github.com/MJE43/stargift-miniapp/internal/spin"
	"github.com/MJE43/stargift-miniapp/internal/telegram"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := config.MustLoad(".env")

	log := setupLogger(cfg.Env)
	log.Info("starting stargift bridge",
		slog.String("env", cfg.Env),
		slog.String("go", runtime.Version()),
		slog.String("rng", cfg.Source),
	)
	log.Debug("debug messages are enabled")

	if err := run(cfg, log); err != nil {
		log.Error("bridge stopped", sl.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat := catalog.Default()
	chances := catalog.DefaultChanceTable(cat)
	if cfg.ChancesPath != "" {
		t, err := catalog.LoadChanceTable(cfg.ChancesPath, cat)
		if err != nil {
			return err
		}
		chances = t
		log.Info("chance table loaded", slog.String("path", cfg.ChancesPath))
	}

	src, seeds := drawSource(cfg)
	platform := telegram.ParsePlatform(cfg.Platform)

	client := miniapp.NewClient(miniapp.Config{
		BaseURL:    cfg.APIBaseURL,
		InitData:   cfg.InitData,
		MaxRetries: cfg.MaxRetries,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:     log,
	})

	hub := bridge.NewHub(log)
	renderer := bridge.NewRenderer(hub)
	renderer.SetContainerWidth(cfg.ViewportWidth)
	desk := bridge.NewInvoiceDesk(hub, log)

	opts := spin.Options{
		Catalog:      cat,
		Chances:      chances,
		Tier:         catalog.DefaultTier,
		Source:       src,
		Sequencer:    roulette.NewSequencer(roulette.CardFor(cfg.ViewportWidth)),
		Easing:       roulette.EasingFor(platform.IsIOS()),
		SpinDuration: cfg.SpinDuration,
		CloseDelay:   cfg.CloseDelay,
		Surface:      renderer,
		Haptics:      renderer,
		Scheduler:    spin.RealScheduler{},
		Opener:       desk,
		Notify:       hub.Notice,
		Logger:       log,
	}
	var board *leaderboard.Cache
	if cfg.APIBaseURL != "" {
		opts.Invoices = client
		board = leaderboard.NewCache(client, cfg.LeaderboardTTL, log)
	} else {
		log.Warn("API_BASE_URL is not set; paid spins and the leaderboard are disabled")
	}

	ctrl, err := spin.New(opts)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	var (
		store   *drawlog.Store
		session uuid.UUID
	)
	if cfg.DrawlogPath != "" {
		store, err = drawlog.New(cfg.DrawlogPath)
		if err != nil {
			return err
		}
		defer store.Close()

		journal, err := drawlog.NewJournal(ctx, store, cfg.Source, seeds, log)
		if err != nil {
			return err
		}
		session = journal.Session()
		ctrl.OnReveal(journal.Record)
		log.Info("draw journal enabled",
			slog.String("path", cfg.DrawlogPath),
			slog.String("session", session.String()),
		)
	}

	srv := bridge.NewServer(bridge.Options{
		Controller:     ctrl,
		Catalog:        cat,
		Chances:        chances,
		Hub:            hub,
		Renderer:       renderer,
		Invoices:       desk,
		Leaderboard:    board,
		Auth:           client,
		Draws:          store,
		Session:        session,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         log,
	})
	if err := srv.Start(cfg.BridgeAddr); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("bridge shutdown failed", sl.Err(err))
	}

	// The session is over; publishing the plain server seed lets its draws
	// be replayed.
	if store != nil && seeds != nil {
		if err := store.UpsertSeedAlias(shutdownCtx, seeds.HashedServer(), seeds.Server); err != nil {
			log.Error("failed to reveal server seed", sl.Err(err))
		}
	}
	return nil
}

func drawSource(cfg *config.Config) (engine.Source, *engine.Seeds) {
	switch cfg.Source {
	case config.SourceFair:
		seeds := engine.Seeds{Server: cfg.ServerSeed, Client: cfg.ClientSeed}
		return engine.NewFairSource(seeds, cfg.StartNonce), &seeds
	case config.SourceSeeded:
		return engine.NewSeededSource(cfg.Seed), nil
	default:
		return engine.NewCryptoSource(), nil
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvLocal:
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}
