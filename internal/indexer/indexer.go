// Package indexer incrementally scans transcript files into the store.
//
// Each file's consumed byte offset is remembered, so a run only reads what
// was appended since the last one. Files that shrank or whose already-read
// prefix changed are treated as rewritten: their earlier messages are
// dropped and the file is read again from the start. A whole run commits in
// one transaction.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/gobwas/glob"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/recall/internal/store"
)

const tracerName = "github.com/nextlevelbuilder/recall/internal/indexer"

// Tagger applies automatic tags inside the run transaction.
type Tagger interface {
	TagMessages(ctx context.Context, tx *store.Tx, r store.IDRange) (int, error)
	TagSession(ctx context.Context, tx *store.Tx, sessionID string) (int, error)
}

// Stats summarizes one run.
type Stats struct {
	RunID           string        `json:"run_id" yaml:"run_id"`
	Files           int           `json:"files" yaml:"files"`
	Messages        int           `json:"messages" yaml:"messages"`
	Sessions        int           `json:"sessions" yaml:"sessions"`
	Skipped         int           `json:"skipped" yaml:"skipped"`
	Invalidated     int           `json:"invalidated" yaml:"invalidated"`
	Duration        time.Duration `json:"-" yaml:"-"`
	DurationSeconds float64       `json:"duration_seconds" yaml:"duration_seconds"`
}

// Indexer scans a transcript root into a store.
type Indexer struct {
	store   *store.Store
	tagger  Tagger
	markers *Markers
	root    string
	exclude []glob.Glob
	tracer  trace.Tracer
}

// New creates an indexer for the transcripts under root. markers may be nil.
func New(s *store.Store, t Tagger, root string, markers *Markers) *Indexer {
	return &Indexer{
		store:   s,
		tagger:  t,
		markers: markers,
		root:    root,
		tracer:  otel.Tracer(tracerName),
	}
}

// Root returns the transcript root directory.
func (ix *Indexer) Root() string { return ix.root }

// SetExclude replaces the exclude patterns applied during discovery.
// Call before the first run.
func (ix *Indexer) SetExclude(patterns []string) error {
	globs, err := CompileExcludes(patterns)
	if err != nil {
		return err
	}
	ix.exclude = globs
	return nil
}

// run carries the mutable state of one scan.
type run struct {
	stats   Stats
	touched map[string]struct{}
}

func newRun() *run {
	return &run{
		stats:   Stats{RunID: store.GenRunID()},
		touched: make(map[string]struct{}),
	}
}

func (r *run) touch(ids ...string) {
	for _, id := range ids {
		r.touched[id] = struct{}{}
	}
}

func (r *run) touchedIDs() []string {
	ids := make([]string, 0, len(r.touched))
	for id := range r.touched {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Run scans every transcript file once and indexes what is new.
func (ix *Indexer) Run(ctx context.Context) (Stats, error) {
	return ix.execute(ctx, "indexer.run", false)
}

// Reindex drops everything derived from transcripts and scans from scratch.
// Manual session tags survive; message tags do not, since message ids are
// reassigned.
func (ix *Indexer) Reindex(ctx context.Context) (Stats, error) {
	return ix.execute(ctx, "indexer.reindex", true)
}

func (ix *Indexer) execute(ctx context.Context, spanName string, reset bool) (Stats, error) {
	start := time.Now()
	r := newRun()
	ctx = store.WithRunID(ctx, r.stats.RunID)
	ctx, span := ix.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("recall.run_id", r.stats.RunID),
		attribute.String("recall.root", ix.root),
	))
	defer span.End()

	files, err := ix.discover()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return r.stats, err
	}
	slog.Info("scanning transcripts", "run", r.stats.RunID, "root", ix.root, "files", len(files), "reindex", reset)

	err = ix.store.WithTx(ctx, func(tx *store.Tx) error {
		if reset {
			if err := tx.Reset(ctx); err != nil {
				return err
			}
		}
		for _, path := range files {
			if err := ix.scanFile(ctx, tx, r, path); err != nil {
				return err
			}
		}
		ids := r.touchedIDs()
		for _, sid := range ids {
			if _, err := ix.tagger.TagSession(ctx, tx, sid); err != nil {
				return err
			}
		}
		if reset {
			_, err := ix.markers.ApplyAll(ctx, tx)
			return err
		}
		_, err := ix.markers.Apply(ctx, tx, ids)
		return err
	})

	r.stats.Sessions = len(r.touched)
	r.stats.Duration = time.Since(start)
	r.stats.DurationSeconds = float64(r.stats.Duration.Round(10*time.Millisecond)) / float64(time.Second)
	span.SetAttributes(
		attribute.Int("recall.files", r.stats.Files),
		attribute.Int("recall.messages", r.stats.Messages),
		attribute.Int("recall.sessions", r.stats.Sessions),
		attribute.Int("recall.skipped", r.stats.Skipped),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("indexing failed", "run", r.stats.RunID, "error", err)
		return Stats{RunID: r.stats.RunID, Duration: r.stats.Duration}, fmt.Errorf("index run: %w", err)
	}

	slog.Info("indexing complete",
		"run", r.stats.RunID,
		"files", r.stats.Files,
		"skipped", r.stats.Skipped,
		"invalidated", r.stats.Invalidated,
		"messages", r.stats.Messages,
		"sessions", r.stats.Sessions,
		"duration", r.stats.Duration.Round(time.Millisecond),
	)
	return r.stats, nil
}

// discover lists transcript files. A missing root is an empty corpus.
func (ix *Indexer) discover() ([]string, error) {
	if _, err := os.Stat(ix.root); errors.Is(err, fs.ErrNotExist) {
		slog.Warn("transcript root does not exist", "root", ix.root)
		return nil, nil
	}
	files, err := Discover(ix.root, ix.exclude...)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", ix.root, err)
	}
	return files, nil
}

// scanFile indexes whatever is new in one file. I/O faults are logged and
// the file is skipped; only store errors are returned.
func (ix *Indexer) scanFile(ctx context.Context, tx *store.Tx, r *run, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("skipping file", "path", path, "error", err)
		return nil
	}
	size := info.Size()

	prev, err := tx.FileState(ctx, path)
	if err != nil {
		return err
	}

	var offset int64
	if prev != nil {
		if size == prev.Size {
			r.stats.Skipped++
			return nil
		}
		rewritten := size < prev.Size
		if !rewritten && prev.HeadHash != "" {
			h, err := headHash(path, prev.ByteOffset)
			if err != nil {
				slog.Warn("skipping file", "path", path, "error", err)
				return nil
			}
			rewritten = h != prev.HeadHash
		}
		if rewritten {
			sessions, removed, err := tx.InvalidateFile(ctx, path)
			if err != nil {
				return err
			}
			r.touch(sessions...)
			r.stats.Invalidated++
			slog.Info("file rewritten, re-indexing", "path", path, "removed", removed)
		} else {
			offset = prev.ByteOffset
		}
	}

	res, err := parseFile(ctx, path, offset, size)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("skipping file", "path", path, "error", err)
		return nil
	}
	if res.bad > 0 {
		slog.Debug("skipped undecodable lines", "path", path, "lines", res.bad)
	}

	for _, d := range res.sessions {
		if err := tx.UpsertSession(ctx, *d); err != nil {
			return err
		}
		r.touch(d.SessionID)
	}
	if len(res.messages) > 0 {
		ids, err := tx.InsertMessages(ctx, res.messages)
		if err != nil {
			return err
		}
		if _, err := ix.tagger.TagMessages(ctx, tx, ids); err != nil {
			return err
		}
		r.stats.Messages += len(res.messages)
	}
	if len(res.messages) > 0 || len(res.sessions) > 0 {
		r.stats.Files++
	}

	hash, err := headHash(path, res.offset)
	if err != nil {
		slog.Warn("failed to fingerprint file", "path", path, "error", err)
		hash = ""
	}
	return tx.PutFileState(ctx, store.IndexedFile{
		Path:       path,
		Size:       size,
		ByteOffset: res.offset,
		HeadHash:   hash,
	})
}
