package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sahilm/fuzzy"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// maxSuggestions bounds "did you mean" candidates on a not-found error.
const maxSuggestions = 3

// ListParams filters session listing. DateFrom compares against the
// session's last activity and DateTo against its start, so a session
// overlapping the window matches. With Slug set, only that chain is listed,
// oldest first, and each summary carries its chain position.
type ListParams struct {
	Slug     string
	Project  string
	DateFrom string
	DateTo   string
	Tags     []string
	Limit    int
}

// SessionSummary is one listed session.
type SessionSummary struct {
	store.Session
	Position int         `db:"position" json:"position,omitempty"`
	Tags     []store.Tag `db:"-" json:"tags"`
}

// ListSessions returns session summaries, most recent first, or in chain
// order when a slug is given.
func (q *Service) ListSessions(ctx context.Context, p ListParams) ([]SessionSummary, error) {
	ctx, span := q.span(ctx, "query.list_sessions")
	defer span.End()

	f := &filter{}
	f.project(p.Project)
	if p.DateFrom != "" {
		f.add(`s.last_timestamp >= ?`, p.DateFrom)
	}
	if p.DateTo != "" {
		f.add(`s.first_timestamp <= ?`, DateUpperBound(p.DateTo))
	}
	for _, tag := range uniqueTags(p.Tags) {
		f.add(`EXISTS (SELECT 1 FROM session_tags st WHERE st.session_id = s.session_id AND st.tag = ?)`, tag)
	}

	var (
		query string
		args  []any
	)
	if p.Slug != "" {
		// Positions are numbered over the whole chain before filtering.
		query = `WITH chain AS (
				SELECT ` + sessionColumns + `,
					ROW_NUMBER() OVER (ORDER BY first_timestamp ASC, session_id ASC) AS position
				FROM sessions WHERE slug = ?
			)
			SELECT s.* FROM chain s ` + f.where() + `
			ORDER BY s.position ASC
			LIMIT ?`
		args = append([]any{p.Slug}, f.args...)
	} else {
		query = `SELECT ` + prefixed("s", sessionColumns) + `, 0 AS position
			FROM sessions s ` + f.where() + `
			ORDER BY s.last_timestamp DESC, s.session_id ASC
			LIMIT ?`
		args = f.args
	}
	args = append(args, store.ClampLimit(p.Limit))

	out := []SessionSummary{}
	if err := q.db.SelectContext(ctx, &out, query, args...); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if err := q.attachSessionTags(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachSessionTags loads the tags of every listed session in one query.
func (q *Service) attachSessionTags(ctx context.Context, list []SessionSummary) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	byID := make(map[string]int, len(list))
	for i := range list {
		ids[i] = list[i].SessionID
		byID[list[i].SessionID] = i
		list[i].Tags = []store.Tag{}
	}
	query, args, err := sqlx.In(
		`SELECT session_id, tag, source FROM session_tags WHERE session_id IN (?) ORDER BY tag`, ids)
	if err != nil {
		return fmt.Errorf("build tag query: %w", err)
	}
	var rows []struct {
		SessionID string `db:"session_id"`
		store.Tag
	}
	if err := q.db.SelectContext(ctx, &rows, q.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("load session tags: %w", err)
	}
	for _, r := range rows {
		i := byID[r.SessionID]
		list[i].Tags = append(list[i].Tags, r.Tag)
	}
	return nil
}

// suggest returns known slugs and session ids that fuzzily match id.
// Lookup failures only cost the suggestions.
func (q *Service) suggest(ctx context.Context, id string) []string {
	var candidates []string
	if err := q.db.SelectContext(ctx, &candidates,
		`SELECT DISTINCT slug FROM sessions WHERE slug IS NOT NULL
		 UNION SELECT session_id FROM sessions`); err != nil {
		return nil
	}
	var out []string
	for _, m := range fuzzy.Find(id, candidates) {
		out = append(out, m.Str)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
