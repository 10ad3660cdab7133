package query

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// SearchParams filters a full-text search. Query uses FTS5 syntax (AND, OR,
// NOT, "phrases"). Tags must all be present on a hit.
type SearchParams struct {
	Query    string
	Project  string
	DateFrom string
	DateTo   string
	Tags     []string
	Limit    int
}

// SearchHit is one matching message with its session context.
type SearchHit struct {
	ID         int64      `db:"id" json:"id"`
	SessionID  string     `db:"session_id" json:"session_id"`
	Slug       *string    `db:"slug" json:"slug"`
	ProjectDir *string    `db:"project_dir" json:"project_dir"`
	GitBranch  *string    `db:"git_branch" json:"git_branch"`
	Role       store.Role `db:"role" json:"role"`
	Timestamp  string     `db:"timestamp" json:"timestamp"`
	Snippet    string     `db:"snippet" json:"snippet"`
}

// Search runs a ranked full-text query over message content.
func (q *Service) Search(ctx context.Context, p SearchParams) ([]SearchHit, error) {
	ctx, span := q.span(ctx, "query.search")
	defer span.End()

	if strings.TrimSpace(p.Query) == "" {
		return nil, fmt.Errorf("search query must not be empty")
	}
	f := &filter{}
	f.add(`messages_fts MATCH ?`, p.Query)
	f.project(p.Project)
	if p.DateFrom != "" {
		f.add(`m.timestamp >= ?`, p.DateFrom)
	}
	if p.DateTo != "" {
		f.add(`m.timestamp <= ?`, DateUpperBound(p.DateTo))
	}
	for _, tag := range uniqueTags(p.Tags) {
		f.add(`EXISTS (SELECT 1 FROM message_tags mt WHERE mt.message_id = m.id AND mt.tag = ?)`, tag)
	}

	sql := `SELECT m.id, m.session_id, s.slug, s.project_dir, s.git_branch, m.role, m.timestamp,
			snippet(messages_fts, 0, '>>>', '<<<', '...', 40) AS snippet
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		JOIN sessions s ON s.session_id = m.session_id
		` + f.where() + `
		ORDER BY rank
		LIMIT ?`
	args := append(f.args, store.ClampLimit(p.Limit))

	hits := []SearchHit{}
	if err := q.db.SelectContext(ctx, &hits, sql, args...); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("search: %w", err)
	}
	span.SetAttributes(attribute.Int("recall.hits", len(hits)))
	return hits, nil
}
