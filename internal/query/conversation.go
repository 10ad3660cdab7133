package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// ConversationParams selects messages from one session or a slug chain.
type ConversationParams struct {
	// ID is an exact session id or a slug shared by a chain of sessions.
	ID string
	// Sessions narrows a slug chain by 1-based position, e.g. "2-3".
	// Ignored when ID is an exact session id.
	Sessions string
	Roles    []store.Role
	// Around switches to window mode: Window messages at or before the
	// timestamp and Window after it.
	Around string
	Window int
	// Limit bounds page mode.
	Limit int
}

// Conversation is a chronological message stream over one or more
// sessions.
type Conversation struct {
	Sessions     []store.Session `json:"sessions"`
	Messages     []store.Message `json:"messages"`
	MessageCount int             `json:"message_count"`
	Tokens       int             `json:"approx_tokens,omitempty"`
	// Chain is the length of the whole slug chain before range selection.
	Chain int `json:"chain_length"`
}

const sessionColumns = `session_id, project_dir, slug, first_timestamp, last_timestamp, message_count, git_branch, cwd`

const messageColumns = `id, session_id, role, content, timestamp, model, source_path`

// Conversation resolves p.ID and returns its messages.
func (q *Service) Conversation(ctx context.Context, p ConversationParams) (*Conversation, error) {
	ctx, span := q.span(ctx, "query.conversation")
	defer span.End()

	sessions, err := q.resolve(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	chain := len(sessions)

	if p.Sessions != "" && !isExact(sessions, p.ID) {
		idx, err := ParseSessionRange(p.Sessions, chain)
		if err != nil {
			return nil, err
		}
		picked := make([]store.Session, 0, len(idx))
		for _, i := range idx {
			picked = append(picked, sessions[i])
		}
		sessions = picked
	}

	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.SessionID
	}

	var msgs []store.Message
	if p.Around != "" {
		msgs, err = q.window(ctx, ids, p.Roles, p.Around, p.Window)
	} else {
		msgs, err = q.page(ctx, ids, p.Roles, p.Limit)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c := &Conversation{Sessions: sessions, Messages: msgs, MessageCount: len(msgs), Chain: chain}
	if q.tokens != nil {
		for _, m := range msgs {
			c.Tokens += q.tokens.CountText(m.Content)
		}
	}
	span.SetAttributes(
		attribute.Int("recall.sessions", len(sessions)),
		attribute.Int("recall.messages", len(msgs)),
	)
	return c, nil
}

func isExact(sessions []store.Session, id string) bool {
	return len(sessions) == 1 && sessions[0].SessionID == id
}

// resolve returns the exact session for id, or else every session sharing
// id as slug, oldest first.
func (q *Service) resolve(ctx context.Context, id string) ([]store.Session, error) {
	var s store.Session
	err := q.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	if err == nil {
		return []store.Session{s}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	var chain []store.Session
	if err := q.db.SelectContext(ctx, &chain,
		`SELECT `+sessionColumns+` FROM sessions WHERE slug = ?
		 ORDER BY first_timestamp ASC, session_id ASC`, id); err != nil {
		return nil, fmt.Errorf("resolve slug: %w", err)
	}
	if len(chain) == 0 {
		return nil, &NotFoundError{Kind: "session", ID: id, Suggestions: q.suggest(ctx, id)}
	}
	return chain, nil
}

// messageFilter restricts messages to the given sessions and roles.
func messageFilter(ids []string, roles []store.Role) (string, []any, error) {
	query := `session_id IN (?)`
	args := []any{ids}
	if len(roles) > 0 {
		query += ` AND role IN (?)`
		args = append(args, roles)
	}
	return sqlx.In(query, args...)
}

func (q *Service) page(ctx context.Context, ids []string, roles []store.Role, limit int) ([]store.Message, error) {
	where, args, err := messageFilter(ids, roles)
	if err != nil {
		return nil, fmt.Errorf("build conversation query: %w", err)
	}
	msgs := []store.Message{}
	err = q.db.SelectContext(ctx, &msgs, q.db.Rebind(
		`SELECT `+messageColumns+` FROM messages WHERE `+where+`
		 ORDER BY timestamp ASC, id ASC LIMIT ?`),
		append(args, store.ClampLimit(limit))...)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return msgs, nil
}

func (q *Service) window(ctx context.Context, ids []string, roles []store.Role, around string, n int) ([]store.Message, error) {
	n = store.ClampLimit(n)
	where, args, err := messageFilter(ids, roles)
	if err != nil {
		return nil, fmt.Errorf("build window query: %w", err)
	}

	var before, after []store.Message
	err = q.db.SelectContext(ctx, &before, q.db.Rebind(
		`SELECT `+messageColumns+` FROM messages WHERE `+where+` AND timestamp <= ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`),
		append(slices.Clone(args), around, n)...)
	if err != nil {
		return nil, fmt.Errorf("load window before: %w", err)
	}
	err = q.db.SelectContext(ctx, &after, q.db.Rebind(
		`SELECT `+messageColumns+` FROM messages WHERE `+where+` AND timestamp > ?
		 ORDER BY timestamp ASC, id ASC LIMIT ?`),
		append(slices.Clone(args), around, n)...)
	if err != nil {
		return nil, fmt.Errorf("load window after: %w", err)
	}

	slices.Reverse(before)
	out := make([]store.Message, 0, len(before)+len(after))
	out = append(out, before...)
	return append(out, after...), nil
}
