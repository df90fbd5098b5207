package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/five82/fiscal/internal/app"
)

type rootFlags struct {
	configPath string
	prefsPath  string
	logLevel   string
	noCache    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "fiscal",
		Short: "Offline-first client for fiscalização field work",
		Long: `fiscal lists inspection targets, assigns them to teams and keeps a local
copy so the data stays available without a network connection.

Run without a subcommand to open the dashboard.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, flags)
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/fiscal/config.toml)")
	root.PersistentFlags().StringVar(&flags.prefsPath, "prefs", "", "TUI preferences file (default ~/.config/fiscal/prefs.toml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flags.noCache, "no-cache", false, "keep offline data in memory instead of the local database")

	root.AddGroup(
		&cobra.Group{ID: "session", Title: "Session:"},
		&cobra.Group{ID: "data", Title: "Data:"},
	)
	root.AddCommand(
		&cobra.Command{
			Use:   "tui",
			Short: "Open the dashboard (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runTUI(cmd, flags)
			},
		},
		newLoginCmd(flags),
		newLogoutCmd(flags),
		newWhoamiCmd(flags),
		newTargetsCmd(flags),
		newTeamsCmd(flags),
		newCacheCmd(flags),
		newLogsCmd(flags),
	)
	return root
}

func runTUI(cmd *cobra.Command, flags *rootFlags) error {
	return app.Run(cmd.Context(), app.Options{
		ConfigPath: flags.configPath,
		PrefsPath:  flags.prefsPath,
		LogLevel:   flags.logLevel,
		NoCache:    flags.noCache,
	})
}

// withEnv bootstraps the shared services for a one-shot command and closes
// them afterwards. Warnings are mirrored to the command's stderr.
func withEnv(cmd *cobra.Command, flags *rootFlags, fn func(ctx context.Context, env *app.Env) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	env, err := app.Bootstrap(ctx, app.Options{
		ConfigPath: flags.configPath,
		PrefsPath:  flags.prefsPath,
		LogLevel:   flags.logLevel,
		NoCache:    flags.noCache,
		Console:    true,
		Stderr:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer env.Close()
	return fn(ctx, env)
}
