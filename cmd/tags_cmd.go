package cmd

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/query"
	"github.com/nextlevelbuilder/recall/internal/store"
)

func tagsCmd(opts *rootOptions) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List tags with usage counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				tags, err := a.query.TagCatalogue(ctx, scope)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, tags, func(tw *tabwriter.Writer) {
					if len(tags) == 0 {
						fmt.Fprintln(tw, "No tags.")
						return
					}
					fmt.Fprintf(tw, "TAG\tSCOPE\tAUTO\tMANUAL\tTOTAL\n")
					for _, t := range tags {
						fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", cell(t.Tag, 48), t.Scope, t.Auto, t.Manual, t.Total)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", query.ScopeAll, "all, message or session")
	return cmd
}

func tagCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Attach manual tags to a message or session",
	}
	cmd.AddCommand(tagMessageCmd(opts))
	cmd.AddCommand(tagSessionCmd(opts))
	return cmd
}

func tagMessageCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "message <message-id> <tag>...",
		Short: "Tag a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid message id %q", args[0])
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				var res *query.MessageTagging
				err := retry(ctx, func() error {
					var err error
					res, err = a.query.TagMessage(ctx, id, args[1:])
					return err
				})
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, res, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "Message:\t%d (%s, %s)\n", res.MessageID, res.Role, shortTS(res.Timestamp))
					fmt.Fprintf(tw, "Session:\t%s\n", res.SessionID)
					printTagList(tw, res.Tags)
				})
			})
		},
	}
}

func tagSessionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "session <session-id> <tag>...",
		Short: "Tag a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				var res *query.SessionTagging
				err := retry(ctx, func() error {
					var err error
					res, err = a.query.TagSession(ctx, args[0], args[1:])
					return err
				})
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, res, func(tw *tabwriter.Writer) {
					fmt.Fprintf(tw, "Session:\t%s\n", res.SessionID)
					if slug := deref(res.Slug); slug != "" {
						fmt.Fprintf(tw, "Slug:\t%s\n", slug)
					}
					printTagList(tw, res.Tags)
				})
			})
		},
	}
}

func printTagList(tw *tabwriter.Writer, tags []store.Tag) {
	for i, t := range tags {
		label := ""
		if i == 0 {
			label = "Tags:"
		}
		fmt.Fprintf(tw, "%s\t%s (%s)\n", label, t.Tag, t.Source)
	}
}
