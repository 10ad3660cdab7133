package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/indexer"
)

func indexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index new transcript data incrementally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				var stats indexer.Stats
				err := retry(ctx, func() error {
					var err error
					stats, err = a.indexer.Run(ctx)
					return err
				})
				if err != nil {
					return err
				}
				return printStats(cmd, opts.output, stats)
			})
		},
	}
}

func reindexCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the whole index from the transcripts",
		Long: "Drops every indexed session and message and scans all transcripts again.\n" +
			"Message ids change and message tags are lost; manual session tags are kept.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("reindex drops all message tags; rerun with --yes to confirm")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				var stats indexer.Stats
				err := retry(ctx, func() error {
					var err error
					stats, err = a.indexer.Reindex(ctx)
					return err
				})
				if err != nil {
					return err
				}
				return printStats(cmd, opts.output, stats)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm dropping message tags")
	return cmd
}

func printStats(cmd *cobra.Command, format string, s indexer.Stats) error {
	return render(cmd.OutOrStdout(), format, s, func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "Run:\t%s\n", s.RunID)
		fmt.Fprintf(tw, "Files indexed:\t%d\n", s.Files)
		fmt.Fprintf(tw, "Files unchanged:\t%d\n", s.Skipped)
		fmt.Fprintf(tw, "Files rewritten:\t%d\n", s.Invalidated)
		fmt.Fprintf(tw, "New messages:\t%d\n", s.Messages)
		fmt.Fprintf(tw, "Sessions:\t%d\n", s.Sessions)
		fmt.Fprintf(tw, "Duration:\t%.2fs\n", s.DurationSeconds)
	})
}
