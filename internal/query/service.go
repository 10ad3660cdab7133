// Package query answers read requests against the index: full-text search,
// conversation retrieval across slug chains, session listing and the tag
// catalogue. It also performs manual tagging.
package query

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/recall/internal/store"
)

const tracerName = "github.com/nextlevelbuilder/recall/internal/query"

// Defaults for caller-omitted limits. The query methods take limits as
// given and clamp them into [1, store.MaxLimit]; callers apply these when
// the caller left the value out.
const (
	DefaultSearchLimit       = 10
	DefaultSessionLimit      = 20
	DefaultConversationLimit = 200
	DefaultWindow            = 10
)

// Service runs queries against one store.
type Service struct {
	store  *store.Store
	db     *sqlx.DB
	tokens TokenCounter
	tracer trace.Tracer
}

// New creates a query service. A nil counter disables token estimates.
func New(s *store.Store, tokens TokenCounter) *Service {
	return &Service{
		store:  s,
		db:     s.DB(),
		tokens: tokens,
		tracer: otel.Tracer(tracerName),
	}
}

// LoadTokenizer resolves the token counter's tables ahead of the first
// query. It is a no-op for counters that need no loading.
func (q *Service) LoadTokenizer() {
	if l, ok := q.tokens.(interface{ Load() bool }); ok {
		l.Load()
	}
}

func (q *Service) span(ctx context.Context, name string) (context.Context, trace.Span) {
	return q.tracer.Start(ctx, name)
}

// DateUpperBound extends a date-only upper bound to the end of that day.
// Values that already carry a time part are returned unchanged.
func DateUpperBound(s string) string {
	if s == "" || strings.Contains(s, "T") {
		return s
	}
	return s + "T23:59:59Z"
}

// filter accumulates WHERE clauses and their arguments.
type filter struct {
	clauses []string
	args    []any
}

func (f *filter) add(clause string, args ...any) {
	f.clauses = append(f.clauses, clause)
	f.args = append(f.args, args...)
}

// where renders "WHERE a AND b", or "" with no clauses.
func (f *filter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(f.clauses, " AND ")
}

// and renders " AND a AND b" for appending to an existing WHERE.
func (f *filter) and() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " AND " + strings.Join(f.clauses, " AND ")
}

func likeSubstring(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// project filters sessions aliased as s by project-path substring.
func (f *filter) project(p string) {
	if p != "" {
		f.add(`s.project_dir LIKE ? ESCAPE '\'`, likeSubstring(p))
	}
}

func uniqueTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := tags[:0:0]
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
