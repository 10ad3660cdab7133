package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/query"
)

func sessionsCmd(opts *rootOptions) *cobra.Command {
	var p query.ListParams
	cmd := &cobra.Command{
		Use:   "sessions [slug]",
		Short: "List indexed sessions",
		Long: "List sessions, most recent first. With a slug, list that chain oldest first\n" +
			"with each session's position, for use with show --sessions.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			if len(args) == 1 {
				p.Slug = args[0]
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				list, err := a.query.ListSessions(ctx, p)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, list, func(tw *tabwriter.Writer) {
					printSessionTable(tw, list, p.Slug != "")
				})
			})
		},
	}
	addFilterFlags(cmd, &p.Project, &p.DateFrom, &p.DateTo, &p.Tags)
	cmd.Flags().IntVarP(&p.Limit, "limit", "n", query.DefaultSessionLimit, "maximum sessions (max 500)")
	return cmd
}

func printSessionTable(tw *tabwriter.Writer, list []query.SessionSummary, chain bool) {
	if len(list) == 0 {
		fmt.Fprintln(tw, "No sessions found.")
		return
	}
	if chain {
		fmt.Fprint(tw, "#\t")
	}
	fmt.Fprintf(tw, "SESSION\tSLUG\tPROJECT\tSTARTED\tLAST\tMSGS\tTAGS\n")
	for _, s := range list {
		if chain {
			fmt.Fprintf(tw, "%d\t", s.Position)
		}
		tags := make([]string, 0, len(s.Tags))
		for _, t := range s.Tags {
			tags = append(tags, t.Tag)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			s.SessionID,
			cell(deref(s.Slug), 28),
			cell(deref(s.ProjectDir), 36),
			shortTS(deref(s.FirstTimestamp)),
			shortTS(deref(s.LastTimestamp)),
			s.MessageCount,
			cell(strings.Join(tags, ","), 40),
		)
	}
}
