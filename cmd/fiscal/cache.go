package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/five82/fiscal/internal/app"
	"github.com/five82/fiscal/internal/cache"
)

func newCacheCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cache",
		GroupID: "data",
		Short:   "Inspect or reset the local offline cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show record counts per partition",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withEnv(cmd, flags, func(ctx context.Context, env *app.Env) error {
					out := cmd.OutOrStdout()
					if !env.Cache.Available() {
						fmt.Fprintln(out, "cache unavailable")
						return nil
					}
					stats, err := env.Cache.Stats(ctx)
					if err != nil {
						return fmt.Errorf("cache stats: %w", err)
					}
					rows := [][]string{
						{string(cache.PartitionUsers), strconv.Itoa(stats[cache.PartitionUsers])},
						{string(cache.PartitionTargets), strconv.Itoa(stats[cache.PartitionTargets])},
					}
					fmt.Fprintln(out, env.Config.CachePath())
					fmt.Fprintln(out, renderTable([]string{"PARTITION", "RECORDS"}, rows))
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear-targets",
			Short: "Delete every cached target",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withEnv(cmd, flags, func(ctx context.Context, env *app.Env) error {
					if err := env.Cache.ClearTargets(ctx); err != nil {
						return fmt.Errorf("clear targets: %w", err)
					}
					env.Log.Info().Msg("cached targets cleared")
					fmt.Fprintln(cmd.OutOrStdout(), "Cached targets cleared")
					return nil
				})
			},
		},
	)
	return cmd
}
