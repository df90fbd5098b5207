package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/five82/fiscal/internal/api"
	"github.com/five82/fiscal/internal/cache"
	"github.com/five82/fiscal/internal/config"
	"github.com/five82/fiscal/internal/logging"
	"github.com/five82/fiscal/internal/session"
)

// Options configure the fiscal application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/fiscal/prefs.toml
	// LogLevel overrides the configured level when set.
	LogLevel string
	// NoCache keeps offline data in memory for this process only.
	NoCache bool
	// Console mirrors warnings to Stderr. The TUI leaves it off.
	Console bool
	Stderr  io.Writer
}

// Env holds the services shared by the TUI and the CLI commands.
type Env struct {
	Config   config.Config
	Log      *logging.Logger
	Sessions *session.Store
	Cache    *cache.Cache
	Client   *api.Client
}

// Bootstrap loads configuration and opens every local service. A cache that
// cannot be opened degrades to a disabled store; the session may be absent.
func Bootstrap(ctx context.Context, opts Options) (*Env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}

	logger, err := logging.New(logging.Options{
		Path:    cfg.LogPath(),
		Level:   level,
		Console: opts.Console,
		Stderr:  opts.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	sessions := session.NewStore(cfg.DataDir)
	if _, err := sessions.Load(); err != nil && !errors.Is(err, session.ErrNoSession) {
		logger.Warn().Err(err).Str("path", sessions.Path()).Msg("session unreadable, continuing signed out")
	}

	var store cache.Partitions
	if opts.NoCache {
		store = cache.NewMemory()
	} else if db, err := cache.Open(ctx, cfg.CachePath()); err != nil {
		logger.Warn().Err(err).Str("path", cfg.CachePath()).Msg("local cache unavailable, running without offline data")
		store = cache.Disabled{Reason: err}
	} else {
		store = db
	}

	client, err := api.NewClient(cfg.APIURL, api.Options{
		Timeout: cfg.RequestTimeout,
		Retries: cfg.Retries,
		Tokens:  sessions,
		Logger:  logger.With().Str("component", "api").Logger(),
	})
	if err != nil {
		_ = store.Close()
		_ = logger.Close()
		return nil, fmt.Errorf("init api client: %w", err)
	}

	records := cache.New(store, logger.With().Str("component", "cache").Logger())
	logger.Debug().
		Str("api", client.BaseURL().String()).
		Str("data_dir", cfg.DataDir).
		Bool("cache", records.Available()).
		Msg("environment ready")

	return &Env{
		Config:   cfg,
		Log:      logger,
		Sessions: sessions,
		Cache:    records,
		Client:   client,
	}, nil
}

// Close releases the cache and the log file.
func (e *Env) Close() error {
	return errors.Join(e.Cache.Close(), e.Log.Close())
}
