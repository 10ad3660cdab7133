package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// Tag catalogue scopes.
const (
	ScopeAll     = "all"
	ScopeMessage = "message"
	ScopeSession = "session"
	ScopeBoth    = "both"
)

// TagCount is one catalogue row.
type TagCount struct {
	Tag    string `json:"tag" yaml:"tag"`
	Scope  string `json:"scope" yaml:"scope"`
	Auto   int    `json:"auto" yaml:"auto"`
	Manual int    `json:"manual" yaml:"manual"`
	Total  int    `json:"total" yaml:"total"`
}

type tagSourceCount struct {
	Tag    string          `db:"tag"`
	Source store.TagSource `db:"source"`
	Count  int             `db:"cnt"`
}

// TagCatalogue counts tag usage. scope is "all" (default), "message" or
// "session"; a tag used on both messages and sessions reports scope "both".
// Rows are ordered by total descending, then tag.
func (q *Service) TagCatalogue(ctx context.Context, scope string) ([]TagCount, error) {
	ctx, span := q.span(ctx, "query.tag_catalogue")
	defer span.End()

	if scope == "" {
		scope = ScopeAll
	}
	if scope != ScopeAll && scope != ScopeMessage && scope != ScopeSession {
		return nil, fmt.Errorf("unknown tag scope %q (want all, message or session)", scope)
	}

	byTag := make(map[string]*TagCount)
	collect := func(table, subjectScope string) error {
		var rows []tagSourceCount
		if err := q.db.SelectContext(ctx, &rows,
			`SELECT tag, source, COUNT(*) AS cnt FROM `+table+` GROUP BY tag, source`); err != nil {
			return fmt.Errorf("count %s: %w", table, err)
		}
		for _, r := range rows {
			tc, ok := byTag[r.Tag]
			if !ok {
				tc = &TagCount{Tag: r.Tag, Scope: subjectScope}
				byTag[r.Tag] = tc
			} else if tc.Scope != subjectScope {
				tc.Scope = ScopeBoth
			}
			if r.Source == store.SourceManual {
				tc.Manual += r.Count
			} else {
				tc.Auto += r.Count
			}
			tc.Total += r.Count
		}
		return nil
	}

	if scope == ScopeAll || scope == ScopeMessage {
		if err := collect("message_tags", ScopeMessage); err != nil {
			return nil, err
		}
	}
	if scope == ScopeAll || scope == ScopeSession {
		if err := collect("session_tags", ScopeSession); err != nil {
			return nil, err
		}
	}

	out := make([]TagCount, 0, len(byTag))
	for _, tc := range byTag {
		out = append(out, *tc)
	}
	slices.SortFunc(out, func(a, b TagCount) int {
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		return cmp.Compare(a.Tag, b.Tag)
	})
	return out, nil
}

// MessageTagging is the state of a message after manual tagging.
type MessageTagging struct {
	MessageID int64       `json:"message_id" yaml:"message_id"`
	SessionID string      `json:"session_id" yaml:"session_id"`
	Role      store.Role  `json:"role" yaml:"role"`
	Timestamp string      `json:"timestamp" yaml:"timestamp"`
	Tags      []store.Tag `json:"tags" yaml:"tags"`
}

// SessionTagging is the state of a session after manual tagging.
type SessionTagging struct {
	SessionID string      `json:"session_id" yaml:"session_id"`
	Slug      *string     `json:"slug" yaml:"slug"`
	Tags      []store.Tag `json:"tags" yaml:"tags"`
}

// TagMessage attaches manual tags to a message and returns all its tags.
func (q *Service) TagMessage(ctx context.Context, id int64, tags []string) (*MessageTagging, error) {
	if err := store.ValidateTags(tags); err != nil {
		return nil, err
	}
	var out *MessageTagging
	err := q.store.WithTx(ctx, func(tx *store.Tx) error {
		msgs, err := tx.MessagesInRange(ctx, store.IDRange{First: id, Last: id})
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return &NotFoundError{Kind: "message", ID: strconv.FormatInt(id, 10)}
		}
		for _, tag := range tags {
			if err := tx.AddMessageTag(ctx, id, tag, store.SourceManual); err != nil {
				return err
			}
		}
		all, err := tx.MessageTags(ctx, id)
		if err != nil {
			return err
		}
		m := msgs[0]
		out = &MessageTagging{MessageID: m.ID, SessionID: m.SessionID, Role: m.Role, Timestamp: m.Timestamp, Tags: all}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TagSession attaches manual tags to a session and returns all its tags.
func (q *Service) TagSession(ctx context.Context, id string, tags []string) (*SessionTagging, error) {
	if err := store.ValidateTags(tags); err != nil {
		return nil, err
	}
	var out *SessionTagging
	err := q.store.WithTx(ctx, func(tx *store.Tx) error {
		s, err := tx.GetSession(ctx, id)
		if err != nil {
			return err
		}
		for _, tag := range tags {
			if err := tx.AddSessionTag(ctx, id, tag, store.SourceManual); err != nil {
				return err
			}
		}
		all, err := tx.SessionTags(ctx, id)
		if err != nil {
			return err
		}
		out = &SessionTagging{SessionID: s.SessionID, Slug: s.Slug, Tags: all}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{Kind: "session", ID: id, Suggestions: q.suggest(ctx, id)}
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
