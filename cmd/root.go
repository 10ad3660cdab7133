// Package cmd implements the recall command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/recall/internal/config"
	"github.com/nextlevelbuilder/recall/internal/indexer"
	"github.com/nextlevelbuilder/recall/internal/query"
	"github.com/nextlevelbuilder/recall/internal/store"
	"github.com/nextlevelbuilder/recall/internal/tagger"
	"github.com/nextlevelbuilder/recall/internal/tracing"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath  string
	dbPath      string
	transcripts string
	logLevel    string
	output      string
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+formatError(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "recall",
		Short:         "Index and search conversation transcripts",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/recall/config.json5, env RECALL_CONFIG)")
	pf.StringVar(&opts.dbPath, "db", "", "index database path (overrides config)")
	pf.StringVar(&opts.transcripts, "transcripts", "", "transcript root directory (overrides config)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVarP(&opts.output, "output", "o", outputTable, "output format: table, json, yaml")

	cmd.AddCommand(
		serveCmd(opts),
		indexCmd(opts),
		reindexCmd(opts),
		searchCmd(opts),
		showCmd(opts),
		sessionsCmd(opts),
		tagsCmd(opts),
		tagCmd(opts),
		configCmd(opts),
		doctorCmd(opts),
	)
	return cmd
}

// loadConfig resolves the config file and applies flag overrides.
func (o *rootOptions) loadConfig() (*config.Config, string, error) {
	path := resolveConfigPath(o.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	if o.dbPath != "" {
		cfg.DBPath = config.ExpandHome(o.dbPath)
	}
	if o.transcripts != "" {
		cfg.TranscriptsDir = config.ExpandHome(o.transcripts)
	}
	if o.logLevel != "" {
		if _, err := config.ParseLogLevel(o.logLevel); err != nil {
			return nil, path, err
		}
		cfg.LogLevel = o.logLevel
	}
	return cfg, path, nil
}

// app is the wired set of components a command works with.
type app struct {
	cfg     *config.Config
	cfgPath string
	level   *slog.LevelVar
	store   *store.Store
	tagger  *tagger.Tagger
	indexer *indexer.Indexer
	query   *query.Service
	tracing *tracing.Provider
}

// openApp loads config, installs logging and tracing, and opens the store.
// Logs go to stderr so stdout stays free for results and the MCP channel.
func (o *rootOptions) openApp(ctx context.Context, logOut io.Writer) (*app, error) {
	cfg, cfgPath, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	level := setupLogging(logOut, cfg.LogLevel, cfg.LogFormat)

	tp, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		Protocol:    cfg.Telemetry.Protocol,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		Headers:     cfg.Telemetry.Headers,
	})
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
		tp = nil
	}

	tg, err := tagger.New(cfg.Tagging.Rules)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	var markers *indexer.Markers
	if cfg.MarkersDir != "" {
		markers = indexer.NewMarkers(cfg.MarkersDir)
	}
	ix := indexer.New(s, tg, cfg.TranscriptsDir, markers)
	if err := ix.SetExclude(cfg.Exclude); err != nil {
		s.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		cfgPath: cfgPath,
		level:   level,
		store:   s,
		tagger:  tg,
		indexer: ix,
		query:   query.New(s, tokenCounter(cfg.Tokenizer)),
		tracing: tp,
	}, nil
}

func tokenCounter(name string) query.TokenCounter {
	if name == "heuristic" {
		return query.HeuristicCounter{}
	}
	return query.NewTokenizer(name)
}

// Close flushes spans and closes the store.
func (a *app) Close(ctx context.Context) {
	if err := a.tracing.Shutdown(ctx); err != nil {
		slog.Warn("tracing shutdown", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("close store", "error", err)
	}
}

// withApp opens the app for the duration of fn.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.openApp(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(context.WithoutCancel(ctx))
	return fn(ctx, a)
}

// retry runs a store write, retrying while the index is locked by another
// process.
func retry(ctx context.Context, fn func() error) error {
	err := store.RetryBusy(ctx, store.DefaultRetryConfig(), fn)
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("interrupted")
	}
	return err
}
