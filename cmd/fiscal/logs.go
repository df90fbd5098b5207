package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/five82/fiscal/internal/app"
	"github.com/five82/fiscal/internal/logtail"
)

func newLogsCmd(flags *rootFlags) *cobra.Command {
	var lines int
	var raw bool
	cmd := &cobra.Command{
		Use:     "logs",
		GroupID: "data",
		Short:   "Print the end of the fiscal log",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withEnv(cmd, flags, func(_ context.Context, env *app.Env) error {
				path := env.Config.LogPath()
				tail, err := logtail.Read(path, lines)
				if err != nil {
					return err
				}
				if len(tail) == 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "no log entries in %s\n", path)
					return nil
				}
				if !raw {
					tail = logtail.FormatLines(tail)
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tail, "\n"))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines, 0 for the whole file")
	cmd.Flags().BoolVar(&raw, "raw", false, "print JSON lines as written")
	return cmd
}
