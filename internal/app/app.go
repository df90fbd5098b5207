package app

import (
	"context"
	"fmt"
	"time"

	"github.com/five82/fiscal/internal/netwatch"
	"github.com/five82/fiscal/internal/prefs"
	"github.com/five82/fiscal/internal/state"
	"github.com/five82/fiscal/internal/ui"
)

// Run boots the fiscal TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	env, err := Bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	defer env.Close()

	userPrefs, err := prefs.Load(opts.PrefsPath)
	if err != nil {
		env.Log.Warn().Err(err).Msg("load prefs, using defaults")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	provider, monitor, err := env.Start(ctx)
	if err != nil {
		return err
	}
	defer provider.Close()

	env.Log.Info().Str("api", env.Client.BaseURL().String()).Msg("fiscal started")
	return ui.Run(ui.Options{
		Context:      ctx,
		Provider:     provider,
		Assigner:     env.Client,
		Reconnect:    monitor.Notify,
		ThemeName:    userPrefs.Theme,
		PrefsPath:    opts.PrefsPath,
		ShowAssigned: userPrefs.ShowAssigned,
		Logger:       env.Log.With().Str("component", "ui").Logger(),
	})
}

// Start builds the sync provider and launches the background loops that
// feed it: the connectivity monitor and the session file watcher. Both stop
// with ctx.
func (e *Env) Start(ctx context.Context) (*state.Provider, *netwatch.Monitor, error) {
	probe, err := netwatch.NewDialProber(e.Config.APIURL)
	if err != nil {
		return nil, nil, fmt.Errorf("init connectivity probe: %w", err)
	}
	probe.Timeout = min(e.Config.RequestTimeout, 3*time.Second)

	provider := state.NewProvider(e.Client, e.Cache, state.Options{
		Debounce:      e.Config.Debounce,
		OfflineFilter: e.Config.Offline.ApplyFilters,
		Identity:      e.Sessions.Identity(),
		Logger:        e.Log.With().Str("component", "state").Logger(),
	})

	monitor := netwatch.New(probe, netwatch.Options{
		Interval: e.Config.ProbeInterval,
		Logger:   e.Log.With().Str("component", "netwatch").Logger(),
	})
	monitor.Subscribe(func(time.Time) {
		provider.HandleOnline(ctx)
	})

	provider.Start(ctx)
	go monitor.Run(ctx)
	e.watchSession(ctx, provider)

	return provider, monitor, nil
}

func (e *Env) watchSession(ctx context.Context, provider *state.Provider) {
	logger := e.Log.With().Str("component", "session").Logger()
	if err := e.Sessions.Watch(ctx, logger, provider.SetIdentity); err != nil {
		logger.Warn().Err(err).Msg("session changes will not be picked up")
	}
}
