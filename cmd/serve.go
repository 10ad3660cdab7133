package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/config"
	"github.com/nextlevelbuilder/recall/internal/mcp"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var (
		noIndex bool
		noWatch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the index as an MCP server over stdio",
		Long: "Run an MCP server on stdin/stdout. An incremental scan runs before requests\n" +
			"are accepted. Logs go to stderr.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := opts.openApp(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			srv := mcp.New(a.store, a.query, a.indexer, mcp.Options{
				Name:             "recall",
				Version:          Version,
				ReindexPerMinute: a.cfg.MCP.ReindexPerMinute,
			})

			if a.cfg.MCP.IndexOnStart && !noIndex {
				if stats, err := srv.Index(ctx); err != nil {
					slog.Warn("startup indexing failed", "error", err)
				} else {
					slog.Info("startup indexing",
						"files", stats.Files,
						"messages", stats.Messages,
						"unchanged", stats.Skipped,
						"duration_seconds", stats.DurationSeconds,
					)
				}
			}

			// A cold BPE cache is fetched here, not inside a tool call.
			a.query.LoadTokenizer()

			if expr := a.cfg.MCP.IndexSchedule; expr != "" {
				go func() {
					if err := srv.RunSchedule(ctx, expr); err != nil {
						slog.Error("index schedule stopped", "error", err)
					}
				}()
			}

			if !noWatch {
				if w := watchConfig(a); w != nil {
					defer w.Stop()
				}
			}

			return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "skip the startup scan")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}

// watchConfig reloads the log level and custom tag rules when the config
// file changes. Other settings need a restart.
func watchConfig(a *app) *config.Watcher {
	w, err := config.NewWatcher(a.cfgPath)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return nil
	}
	w.OnChange(func(cfg *config.Config) {
		if l, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
			a.level.Set(l)
		}
		if err := a.tagger.SetRules(cfg.Tagging.Rules); err != nil {
			slog.Error("tag rules not reloaded", "error", err)
			return
		}
		slog.Info("tag rules reloaded", "rules", len(cfg.Tagging.Rules))
	})
	if err := w.Start(); err != nil {
		slog.Warn("config watcher not started", "error", err)
		w.Stop()
		return nil
	}
	return w
}
