package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/five82/fiscal/internal/api"
	"github.com/five82/fiscal/internal/app"
	"github.com/five82/fiscal/internal/state"
)

func newTargetsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "targets",
		GroupID: "data",
		Short:   "List and assign inspection targets",
	}
	cmd.AddCommand(newTargetsListCmd(flags), newTargetsAssignCmd(flags))
	return cmd
}

type listFlags struct {
	filters     api.Filters
	offlineOnly bool
	unassigned  bool
}

func newTargetsListCmd(flags *rootFlags) *cobra.Command {
	lf := &listFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List targets from the API, falling back to the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lf.filters.Status != "" {
				// The alias is sent as typed; only case and spacing are fixed.
				raw := strings.ToUpper(strings.TrimSpace(lf.filters.Status))
				if !api.Status(raw).Known() {
					return fmt.Errorf("unknown status %q", lf.filters.Status)
				}
				lf.filters.Status = raw
			}
			return withEnv(cmd, flags, func(ctx context.Context, env *app.Env) error {
				snap, err := listTargets(ctx, env, lf)
				if err != nil {
					return err
				}
				targets := snap.Targets
				if lf.unassigned {
					targets = snap.Unassigned()
				}
				out := cmd.OutOrStdout()
				printTargets(out, targets)
				switch {
				case lf.offlineOnly:
					fmt.Fprintf(out, "%d targets from local cache\n", len(targets))
				case snap.IsOffline:
					fmt.Fprintf(out, "%d targets, offline mode (%v)\n", len(targets), snap.LastError)
				default:
					fmt.Fprintf(out, "%d targets\n", len(targets))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&lf.filters.NumeroArt, "numero-art", "", "filter by ART number")
	cmd.Flags().StringVar(&lf.filters.TeamID, "team", "", "filter by team id")
	cmd.Flags().StringVar(&lf.filters.Status, "status", "", "filter by status (NÃO INICIADA, EM ANDAMENTO, CONCLUÍDA)")
	cmd.Flags().BoolVar(&lf.offlineOnly, "offline-only", false, "read the local cache without calling the API")
	cmd.Flags().BoolVar(&lf.unassigned, "unassigned", false, "only show targets without a team")
	return cmd
}

func listTargets(ctx context.Context, env *app.Env, lf *listFlags) (state.Snapshot, error) {
	if lf.offlineOnly {
		cached, err := env.Cache.LoadAllTargets(ctx)
		if err != nil {
			return state.Snapshot{}, fmt.Errorf("read cache: %w", err)
		}
		out := make([]api.Target, 0, len(cached))
		for _, t := range cached {
			if lf.filters.Match(t) {
				out = append(out, t)
			}
		}
		return state.Snapshot{Targets: out, IsOffline: true, TargetFreshness: state.StaleOffline}, nil
	}

	provider := state.NewProvider(env.Client, env.Cache, state.Options{
		Filters:       lf.filters,
		OfflineFilter: env.Config.Offline.ApplyFilters,
		Logger:        env.Log.With().Str("component", "state").Logger(),
	})
	defer provider.Close()
	// Remote failures surface through the snapshot.
	_ = provider.FetchTargets(ctx)
	return provider.Snapshot(), nil
}

func printTargets(w io.Writer, targets []api.Target) {
	sorted := append([]api.Target(nil), targets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	rows := make([][]string, 0, len(sorted))
	for _, t := range sorted {
		team := "-"
		if t.Assigned() {
			team = "#" + strconv.FormatInt(*t.TeamID, 10)
			if name := t.TeamName(); name != "" {
				team += " " + name
			}
		}
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			orDash(t.NumeroArt),
			orDash(t.NomeProfissional),
			orDash(string(t.NormalizedStatus())),
			team,
		})
	}
	fmt.Fprintln(w, renderTable([]string{"ID", "ART", "PROFISSIONAL", "STATUS", "EQUIPE"}, rows))
}

func newTargetsAssignCmd(flags *rootFlags) *cobra.Command {
	var teamID int64
	cmd := &cobra.Command{
		Use:   "assign --team ID TARGET_ID...",
		Short: "Assign targets to a team",
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
				if err := env.Client.AssignTargets(ctx, teamID, ids); err != nil {
					return fmt.Errorf("assign targets: %w", err)
				}
				env.Log.Info().Int64("team_id", teamID).Ints64("targets", ids).Msg("targets assigned")
				fmt.Fprintf(cmd.OutOrStdout(), "Assigned %d targets to team %d\n", len(ids), teamID)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&teamID, "team", 0, "team id")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	seen := make(map[int64]bool, len(args))
	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid id %q", part)
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no ids given")
	}
	return ids, nil
}

func renderTable(headers []string, rows [][]string) string {
	headerStyle := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return strings.TrimSpace(s)
}
