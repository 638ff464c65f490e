// Package config reads the bridge settings from the environment, after an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Random sources a bridge can draw from.
const (
	SourceCrypto = "crypto"
	SourceFair   = "fair"
	SourceSeeded = "seeded"
)

type Config struct {
	Env        string `validate:"oneof=local dev prod"`
	APIBaseURL string `validate:"omitempty,url"`
	BridgeAddr string `validate:"required,hostname_port"`

	// DrawlogPath is empty when the journal is disabled.
	DrawlogPath  string
	ChancesPath  string `validate:"omitempty,file"`
	Platform     string
	InitData     string

	// ViewportWidth picks the card size before the renderer reports one.
	ViewportWidth float64 `validate:"gte=0"`

	SpinDuration time.Duration `validate:"gt=0"`
	CloseDelay   time.Duration `validate:"gte=0"`

	// LeaderboardTTL of zero keeps a loaded board until the auth context
	// changes.
	LeaderboardTTL time.Duration `validate:"gte=0"`
	HTTPTimeout    time.Duration `validate:"gt=0"`
	MaxRetries     int           `validate:"gte=-1,lte=10"`
	AllowedOrigins []string      `validate:"dive,required"`

	Source     string `validate:"oneof=crypto fair seeded"`
	ServerSeed string `validate:"required_if=Source fair"`
	ClientSeed string `validate:"required_if=Source fair"`
	StartNonce uint64
	Seed       uint64
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path (when it exists) into the environment without overriding
// variables already set, then builds and validates the Config.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return FromEnv(os.Getenv)
}

// MustLoad is Load for main; it exits on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}
	cfg := &Config{
		Env:            r.str("APP_ENV", EnvLocal),
		APIBaseURL:     r.str("API_BASE_URL", ""),
		BridgeAddr:     r.str("BRIDGE_ADDR", "127.0.0.1:17890"),
		DrawlogPath:    r.str("DRAWLOG_PATH", ""),
		ChancesPath:    r.str("CHANCES_PATH", ""),
		Platform:       r.str("PLATFORM", ""),
		InitData:       r.str("TELEGRAM_INIT_DATA", ""),
		ViewportWidth:  r.float("VIEWPORT_WIDTH", 0),
		SpinDuration:   r.duration("SPIN_DURATION", 4*time.Second),
		CloseDelay:     r.duration("CLOSE_DELAY", 320*time.Millisecond),
		LeaderboardTTL: r.duration("LEADERBOARD_TTL", 0),
		HTTPTimeout:    r.duration("HTTP_TIMEOUT", 15*time.Second),
		MaxRetries:     r.int("API_MAX_RETRIES", 3),
		AllowedOrigins: r.list("ALLOWED_ORIGINS", []string{"*"}),
		Source:         strings.ToLower(r.str("RNG_SOURCE", SourceCrypto)),
		ServerSeed:     r.str("SERVER_SEED", ""),
		ClientSeed:     r.str("CLIENT_SEED", ""),
		StartNonce:     r.uint("START_NONCE", 0),
		Seed:           r.uint("RNG_SEED", 1),
	}
	if err := errors.Join(r.errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	s := r.str(key, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) int(key string, def int) int {
	s := r.str(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (r *reader) float(key string, def float64) float64 {
	s := r.str(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (r *reader) uint(key string, def uint64) uint64 {
	s := r.str(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return v
}

func (r *reader) list(key string, def []string) []string {
	s := r.str(key, "")
	if s == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
