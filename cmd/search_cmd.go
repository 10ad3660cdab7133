package cmd

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/query"
)

func searchCmd(opts *rootOptions) *cobra.Command {
	var p query.SearchParams
	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Full-text search across indexed messages",
		Long: "Search message content. The query uses FTS5 syntax: AND, OR, NOT and \"phrases\".\n" +
			"Multiple arguments are joined with spaces.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			p.Query = strings.Join(args, " ")
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				hits, err := a.query.Search(ctx, p)
				if err != nil {
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, hits, func(tw *tabwriter.Writer) {
					if len(hits) == 0 {
						fmt.Fprintln(tw, "No matches.")
						return
					}
					fmt.Fprintf(tw, "ID\tTIME\tROLE\tSESSION\tSNIPPET\n")
					for _, h := range hits {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
							h.ID,
							shortTS(h.Timestamp),
							h.Role,
							cell(sessionLabel(h.SessionID, h.Slug), 28),
							cell(h.Snippet, 80),
						)
					}
				})
			})
		},
	}
	addFilterFlags(cmd, &p.Project, &p.DateFrom, &p.DateTo, &p.Tags)
	cmd.Flags().IntVarP(&p.Limit, "limit", "n", query.DefaultSearchLimit, "maximum results (max 500)")
	return cmd
}

func addFilterFlags(cmd *cobra.Command, project, from, to *string, tags *[]string) {
	cmd.Flags().StringVarP(project, "project", "p", "", "filter by project directory (substring)")
	cmd.Flags().StringVar(from, "from", "", "only at or after this time (ISO 8601)")
	cmd.Flags().StringVar(to, "to", "", "only up to this time; a bare date includes the whole day")
	cmd.Flags().StringSliceVarP(tags, "tag", "t", nil, "require this tag (repeatable)")
}

// sessionLabel prefers the slug and falls back to a shortened id.
func sessionLabel(id string, slug *string) string {
	if s := deref(slug); s != "" {
		return s
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
