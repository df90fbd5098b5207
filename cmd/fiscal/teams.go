package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/five82/fiscal/internal/app"
)

func newTeamsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "teams",
		GroupID: "data",
		Short:   "Manage inspection teams",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List teams",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withEnv(cmd, flags, func(ctx context.Context, env *app.Env) error {
					teams, err := env.Client.ListTeams(ctx)
					if err != nil {
						return fmt.Errorf("list teams: %w", err)
					}
					rows := make([][]string, 0, len(teams))
					for _, t := range teams {
						rows = append(rows, []string{
							strconv.FormatInt(t.ID, 10),
							orDash(t.Name),
							orDash(t.Status),
							strconv.Itoa(len(t.Users)),
							strconv.Itoa(len(t.Targets)),
						})
					}
					fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "NOME", "STATUS", "USUÁRIOS", "ALVOS"}, rows))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "create NAME",
			Short: "Create a team",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				name := strings.TrimSpace(strings.Join(args, " "))
				return withEnv(cmd, flags, func(ctx context.Context, env *app.Env) error {
					team, err := env.Client.CreateTeam(ctx, name)
					if err != nil {
						return fmt.Errorf("create team: %w", err)
					}
					env.Log.Info().Int64("team_id", team.ID).Str("name", team.Name).Msg("team created")
					fmt.Fprintf(cmd.OutOrStdout(), "Created team %s (#%d)\n", team.Name, team.ID)
					return nil
				})
			},
		},
		newTeamsAddUsersCmd(flags),
		&cobra.Command{
			Use:   "members TEAM_ID",
			Short: "Show a team's users and targets",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				teamID, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
				if err != nil || teamID <= 0 {
					return fmt.Errorf("invalid team id %q", args[0])
				}
				return withEnv(cmd, flags, func(ctx context.Context, env *app.Env) error {
					team, err := env.Client.FetchTeamMembers(ctx, teamID)
					if err != nil {
						return fmt.Errorf("fetch team: %w", err)
					}
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "%s (#%d)\n", orDash(team.Name), team.ID)
					users := make([][]string, 0, len(team.Users))
					for _, u := range team.Users {
						users = append(users, []string{strconv.FormatInt(u.ID, 10), orDash(u.Name), orDash(u.Email), orDash(u.Role)})
					}
					fmt.Fprintln(out, renderTable([]string{"ID", "NOME", "EMAIL", "PAPEL"}, users))
					if len(team.Targets) > 0 {
						printTargets(out, team.Targets)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func newTeamsAddUsersCmd(flags *rootFlags) *cobra.Command {
	var teamID int64
	cmd := &cobra.Command{
		Use:   "add-users --team ID USER_ID...",
		Short: "Add users to a team",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if teamID <= 0 {
				return errors.New("--team is required")
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withEnv(cmd, flags, func(ctx context.Context, env *app.Env) error {
				if err := env.Client.AddTeamUsers(ctx, teamID, ids); err != nil {
					return fmt.Errorf("add users: %w", err)
				}
				env.Log.Info().Int64("team_id", teamID).Ints64("users", ids).Msg("team users added")
				fmt.Fprintf(cmd.OutOrStdout(), "Added %d users to team %d\n", len(ids), teamID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&teamID, "team", 0, "team id")
	return cmd
}
