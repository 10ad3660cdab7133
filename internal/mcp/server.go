// Package mcp exposes the index over the Model Context Protocol. Every tool
// is a thin adapter over the query service or the indexer; the server
// itself never touches SQL.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/recall/internal/indexer"
	"github.com/nextlevelbuilder/recall/internal/query"
	"github.com/nextlevelbuilder/recall/internal/store"
)

// ErrRateLimited is returned when reindex requests arrive faster than the
// configured rate.
var ErrRateLimited = errors.New("reindex rate limited")

// Indexer runs scans. Implemented by *indexer.Indexer.
type Indexer interface {
	Run(ctx context.Context) (indexer.Stats, error)
	Reindex(ctx context.Context) (indexer.Stats, error)
	Root() string
}

// Options configures a Server.
type Options struct {
	Name    string
	Version string
	// ReindexPerMinute bounds reindex calls. 0 disables the limit.
	ReindexPerMinute int
}

// Server serves recall tools over MCP.
type Server struct {
	mcp     *server.MCPServer
	store   *store.Store
	query   *query.Service
	indexer Indexer

	limiter *rate.Limiter // nil = unlimited
	flight  singleflight.Group
	runMu   sync.Mutex // one scan at a time

	mu      sync.Mutex
	lastRun *RunStatus
}

// RunStatus describes the most recent scan.
type RunStatus struct {
	Kind     string         `json:"kind"` // "index" or "reindex"
	Finished time.Time      `json:"finished"`
	Stats    *indexer.Stats `json:"stats,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// New creates a server and registers every tool.
func New(s *store.Store, q *query.Service, ix Indexer, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "recall"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	srv := &Server{
		store:   s,
		query:   q,
		indexer: ix,
	}
	if opts.ReindexPerMinute > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(float64(opts.ReindexPerMinute)/60.0), 1)
	}

	srv.mcp = server.NewMCPServer(opts.Name, opts.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Search and tag indexed conversation history. "+
			"Use search_history to find messages, get_conversation to read a session or slug chain, "+
			"and list_sessions to browse."),
	)
	srv.registerTools()
	return srv
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// Serve speaks MCP over the given streams until ctx is done or in closes.
// Protocol errors are logged through slog.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))

	slog.Info("mcp server listening on stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("serve mcp: %w", err)
	}
	return nil
}

// Index runs an incremental scan. Concurrent callers share one run.
func (s *Server) Index(ctx context.Context) (indexer.Stats, error) {
	return s.scan(ctx, "index", s.indexer.Run)
}

// Reindex rebuilds the index from scratch, subject to the rate limit.
// Concurrent callers share one run.
func (s *Server) Reindex(ctx context.Context) (indexer.Stats, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		slog.Warn("reindex rate limited")
		return indexer.Stats{}, ErrRateLimited
	}
	return s.scan(ctx, "reindex", s.indexer.Reindex)
}

func (s *Server) scan(ctx context.Context, kind string, fn func(context.Context) (indexer.Stats, error)) (indexer.Stats, error) {
	// Shared runs outlive any single caller's cancellation.
	runCtx := context.WithoutCancel(ctx)
	v, err, shared := s.flight.Do(kind, func() (any, error) {
		s.runMu.Lock()
		defer s.runMu.Unlock()

		var stats indexer.Stats
		err := store.RetryBusy(runCtx, store.DefaultRetryConfig(), func() error {
			var err error
			stats, err = fn(runCtx)
			return err
		})
		s.record(kind, stats, err)
		return stats, err
	})
	if shared {
		slog.Debug("joined in-flight scan", "kind", kind)
	}
	stats, _ := v.(indexer.Stats)
	return stats, err
}

func (s *Server) record(kind string, stats indexer.Stats, err error) {
	st := &RunStatus{Kind: kind, Finished: time.Now().UTC()}
	if err != nil {
		st.Error = err.Error()
	} else {
		st.Stats = &stats
	}
	s.mu.Lock()
	s.lastRun = st
	s.mu.Unlock()
}

// LastRun returns the most recent scan status, or nil before the first.
func (s *Server) LastRun() *RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	cp := *s.lastRun
	return &cp
}
