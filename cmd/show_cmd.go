package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/query"
	"github.com/nextlevelbuilder/recall/internal/store"
)

func showCmd(opts *rootOptions) *cobra.Command {
	var (
		p     query.ConversationParams
		roles []string
	)
	cmd := &cobra.Command{
		Use:   "show <session-id|slug>",
		Short: "Print a session or a whole slug chain",
		Long: "Print the messages of one session, or of every session sharing a slug in\n" +
			"chronological order. Table output renders markdown; json and yaml print records.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validOutput(opts.output); err != nil {
				return err
			}
			p.ID = args[0]
			for _, r := range roles {
				role, err := store.ParseRole(r)
				if err != nil {
					return err
				}
				p.Roles = append(p.Roles, role)
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app) error {
				c, err := a.query.Conversation(ctx, p)
				if err != nil {
					return err
				}
				if opts.output == outputTable {
					_, err := fmt.Fprint(cmd.OutOrStdout(), query.FormatMarkdown(c))
					return err
				}
				return render(cmd.OutOrStdout(), opts.output, c, nil)
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&p.Sessions, "sessions", "s", "", `chain positions, e.g. "2", "2-3", "1,3-5"`)
	f.StringVar(&p.Around, "around", "", "show a window of messages around this timestamp")
	f.IntVarP(&p.Window, "window", "w", query.DefaultWindow, "messages on each side of --around")
	f.StringSliceVarP(&roles, "role", "r", nil, "only these roles: user, assistant, tool_summary, plan")
	f.IntVarP(&p.Limit, "limit", "n", query.DefaultConversationLimit, "maximum messages (max 500)")
	return cmd
}
