package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/five82/fiscal/internal/app"
	"github.com/five82/fiscal/internal/session"
	"github.com/five82/fiscal/internal/state"
)

func newLoginCmd(flags *rootFlags) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:     "login",
		GroupID: "session",
		Short:   "Sign in and store the session token",
		Long: `Sign in against the API and store the access token in the data dir.

Missing credentials are asked for interactively. A running dashboard picks
up the new session automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(username) == "" || password == "" {
				if err := promptCredentials(cmd.Context(), &username, &password); err != nil {
					return err
				}
			}
			return withEnv(cmd, flags, func(ctx context.Context, env *app.Env) error {
				sess, err := session.Login(ctx, env.Client, env.Sessions, username, password)
				if err != nil {
					return err
				}
				env.Log.Info().Int64("user_id", sess.User.ID).Msg("logged in")
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (expires %s)\n",
					sess.User.DisplayName(), sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username or email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when empty)")
	return cmd
}

func promptCredentials(ctx context.Context, username, password *string) error {
	notEmpty := func(field string) func(string) error {
		return func(v string) error {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("%s is required", field)
			}
			return nil
		}
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Username").
				Value(username).
				Validate(notEmpty("username")),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(password).
				Validate(notEmpty("password")),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return errors.New("login cancelled")
		}
		return fmt.Errorf("read credentials: %w", err)
	}
	return nil
}

func newLogoutCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "logout",
		GroupID: "session",
		Short:   "Remove the stored session",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, flags, func(_ context.Context, env *app.Env) error {
				if err := env.Sessions.Clear(); err != nil {
					return err
				}
				env.Log.Info().Msg("logged out")
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "whoami",
		GroupID: "session",
		Short:   "Show the signed-in user",
		Long:    "Show the signed-in user, refreshed from the API or from the local cache when offline.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, flags, func(ctx context.Context, env *app.Env) error {
				id := env.Sessions.Identity()
				if id == nil {
					return errors.New("not signed in, run fiscal login")
				}

				provider := state.NewProvider(env.Client, env.Cache, state.Options{
					Identity: id,
					Logger:   env.Log.With().Str("component", "state").Logger(),
				})
				defer provider.Close()
				fetchErr := provider.FetchUser(ctx)
				snap := provider.Snapshot()

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s  id=%d", id.DisplayName(), id.ID)
				if id.Email != "" {
					fmt.Fprintf(out, "  %s", id.Email)
				}
				fmt.Fprintln(out)
				for _, u := range snap.UserData {
					if u.Role != "" {
						fmt.Fprintf(out, "role: %s\n", u.Role)
					}
					for _, team := range u.Teams {
						fmt.Fprintf(out, "team: %s (#%d)\n", team.Name, team.ID)
					}
				}
				if snap.IsOffline {
					fmt.Fprintf(out, "%s\n", offlineNote(snap.UserFreshness, len(snap.UserData), fetchErr))
				}
				return nil
			})
		},
	}
}

func offlineNote(f state.Freshness, n int, err error) string {
	if n == 0 {
		return fmt.Sprintf("offline mode: no cached data (%v)", err)
	}
	return fmt.Sprintf("offline mode: showing %s data (%v)", f, err)
}
