package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/recall/internal/store"
)

const chainSlug = "test-conversation"

// newChainService seeds four sessions s1..s4 sharing one slug, one hour
// apart, each with a user, a tool_summary and an assistant message, plus an
// unrelated session "solo" in another project.
func newChainService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	err = s.WithTx(ctx, func(tx *store.Tx) error {
		for i := 1; i <= 4; i++ {
			sid := fmt.Sprintf("s%d", i)
			hour := 9 + i
			if err := tx.UpsertSession(ctx, store.SessionDelta{
				SessionID:      sid,
				ProjectDir:     "/home/test/project",
				Slug:           chainSlug,
				FirstTimestamp: fmt.Sprintf("2026-01-01T%02d:00:00Z", hour),
				LastTimestamp:  fmt.Sprintf("2026-01-01T%02d:30:00Z", hour),
				MessageCount:   3,
				GitBranch:      "main",
			}); err != nil {
				return err
			}
			if _, err := tx.InsertMessages(ctx, []store.NewMessage{
				{SessionID: sid, Role: store.RoleUser, Content: fmt.Sprintf("Session %d user message", i), Timestamp: fmt.Sprintf("2026-01-01T%02d:00:00Z", hour)},
				{SessionID: sid, Role: store.RoleAssistant, Content: fmt.Sprintf("Session %d assistant message", i), Timestamp: fmt.Sprintf("2026-01-01T%02d:10:00Z", hour)},
				{SessionID: sid, Role: store.RoleToolSummary, Content: fmt.Sprintf("[Read] /path/to/file-%d", i), Timestamp: fmt.Sprintf("2026-01-01T%02d:05:00Z", hour)},
			}); err != nil {
				return err
			}
		}
		if err := tx.UpsertSession(ctx, store.SessionDelta{
			SessionID: "solo", ProjectDir: "/srv/other", FirstTimestamp: "2026-02-01T00:00:00Z",
			LastTimestamp: "2026-02-01T01:00:00Z", MessageCount: 1,
		}); err != nil {
			return err
		}
		_, err := tx.InsertMessages(ctx, []store.NewMessage{
			{SessionID: "solo", Role: store.RoleAssistant, Content: "deploy the sqlite service", Timestamp: "2026-02-01T00:30:00Z"},
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return New(s, HeuristicCounter{}), s
}

func sessionIDs(msgs []store.Message) []string {
	var out []string
	for _, m := range msgs {
		if len(out) == 0 || out[len(out)-1] != m.SessionID {
			out = append(out, m.SessionID)
		}
	}
	return out
}

func TestConversation_Chain(t *testing.T) {
	q, _ := newChainService(t)
	c, err := q.Conversation(context.Background(), ConversationParams{ID: chainSlug, Limit: DefaultConversationLimit})
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if c.MessageCount != 12 || len(c.Sessions) != 4 || c.Chain != 4 {
		t.Errorf("got %d messages over %d sessions (chain %d), want 12 over 4", c.MessageCount, len(c.Sessions), c.Chain)
	}
	if got := sessionIDs(c.Messages); !slices.Equal(got, []string{"s1", "s2", "s3", "s4"}) {
		t.Errorf("session order = %v", got)
	}
	// chronological within a session: user 00, tool 05, assistant 10
	if c.Messages[1].Role != store.RoleToolSummary {
		t.Errorf("second message role = %s, want tool_summary", c.Messages[1].Role)
	}
	if c.Tokens <= 0 {
		t.Errorf("tokens = %d, want > 0", c.Tokens)
	}
}

func TestConversation_SessionRange(t *testing.T) {
	q, _ := newChainService(t)
	tests := []struct {
		expr     string
		count    int
		sessions []string
	}{
		{"2", 3, []string{"s2"}},
		{"2-3", 6, []string{"s2", "s3"}},
		{"1,4", 6, []string{"s1", "s4"}},
		{"4,1,1", 6, []string{"s1", "s4"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := q.Conversation(context.Background(), ConversationParams{ID: chainSlug, Sessions: tt.expr, Limit: DefaultConversationLimit})
			if err != nil {
				t.Fatalf("Conversation: %v", err)
			}
			if c.MessageCount != tt.count {
				t.Errorf("message_count = %d, want %d", c.MessageCount, tt.count)
			}
			if got := sessionIDs(c.Messages); !slices.Equal(got, tt.sessions) {
				t.Errorf("sessions = %v, want %v", got, tt.sessions)
			}
			if len(c.Sessions) != len(tt.sessions) {
				t.Errorf("len(sessions) = %d, want %d", len(c.Sessions), len(tt.sessions))
			}
		})
	}
}

func TestConversation_SessionRangeErrors(t *testing.T) {
	q, _ := newChainService(t)
	_, err := q.Conversation(context.Background(), ConversationParams{ID: chainSlug, Sessions: "5", Limit: DefaultConversationLimit})
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("err = %v, want ErrOutOfRange", err)
	}
	_, err = q.Conversation(context.Background(), ConversationParams{ID: chainSlug, Sessions: "x", Limit: DefaultConversationLimit})
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("err = %v, want ErrInvalidRange", err)
	}
}

func TestConversation_RangeIgnoredForExactID(t *testing.T) {
	q, _ := newChainService(t)
	c, err := q.Conversation(context.Background(), ConversationParams{ID: "s2", Sessions: "1", Limit: DefaultConversationLimit})
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if got := sessionIDs(c.Messages); !slices.Equal(got, []string{"s2"}) {
		t.Errorf("sessions = %v, want [s2]", got)
	}
}

func TestConversation_Window(t *testing.T) {
	q, _ := newChainService(t)
	c, err := q.Conversation(context.Background(), ConversationParams{
		ID: chainSlug, Sessions: "2", Around: "2026-01-01T11:05:00Z", Window: DefaultWindow,
	})
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if c.MessageCount != 3 {
		t.Errorf("message_count = %d, want 3", c.MessageCount)
	}
	if got := sessionIDs(c.Messages); !slices.Equal(got, []string{"s2"}) {
		t.Errorf("sessions = %v", got)
	}

	c, err = q.Conversation(context.Background(), ConversationParams{
		ID: chainSlug, Around: "2026-01-01T11:05:00Z", Window: 2,
	})
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	var ts []string
	for _, m := range c.Messages {
		ts = append(ts, m.Timestamp[11:16])
	}
	want := []string{"11:00", "11:05", "11:10", "12:00"}
	if !slices.Equal(ts, want) {
		t.Errorf("window = %v, want %v", ts, want)
	}
}

func TestConversation_RolesAndLimit(t *testing.T) {
	q, _ := newChainService(t)
	c, err := q.Conversation(context.Background(), ConversationParams{
		ID: chainSlug, Roles: []store.Role{store.RoleUser}, Limit: 3,
	})
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if c.MessageCount != 3 {
		t.Errorf("message_count = %d, want 3", c.MessageCount)
	}
	for _, m := range c.Messages {
		if m.Role != store.RoleUser {
			t.Errorf("role = %s, want user", m.Role)
		}
	}
}

func TestConversation_NotFound(t *testing.T) {
	q, _ := newChainService(t)
	_, err := q.Conversation(context.Background(), ConversationParams{ID: "test-convrsation", Limit: DefaultConversationLimit})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want *NotFoundError", err)
	}
	if !errors.Is(err, store.ErrNotFound) {
		t.Error("NotFoundError does not wrap store.ErrNotFound")
	}
	if !slices.Contains(nf.Suggestions, chainSlug) {
		t.Errorf("suggestions = %v, want %s", nf.Suggestions, chainSlug)
	}
}

func TestListSessions_Recent(t *testing.T) {
	q, _ := newChainService(t)
	got, err := q.ListSessions(context.Background(), ListParams{Limit: DefaultSessionLimit})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	var ids []string
	for _, s := range got {
		ids = append(ids, s.SessionID)
		if s.Position != 0 {
			t.Errorf("%s has position %d without slug", s.SessionID, s.Position)
		}
	}
	if want := []string{"solo", "s4", "s3", "s2", "s1"}; !slices.Equal(ids, want) {
		t.Errorf("order = %v, want %v", ids, want)
	}
}

func TestListSessions_Slug(t *testing.T) {
	q, _ := newChainService(t)
	ctx := context.Background()

	got, err := q.ListSessions(ctx, ListParams{Slug: chainSlug, Limit: DefaultSessionLimit})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	var pos []int
	for _, s := range got {
		pos = append(pos, s.Position)
	}
	if !slices.Equal(pos, []int{1, 2, 3, 4}) {
		t.Errorf("positions = %v", pos)
	}

	got, err = q.ListSessions(ctx, ListParams{Slug: chainSlug, DateFrom: "2026-01-01T12:00:00Z", Limit: DefaultSessionLimit})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	pos = pos[:0]
	for _, s := range got {
		pos = append(pos, s.Position)
	}
	if !slices.Equal(pos, []int{3, 4}) {
		t.Errorf("filtered positions = %v, want [3 4]", pos)
	}

	got, err = q.ListSessions(ctx, ListParams{Slug: "nonexistent-slug", Limit: DefaultSessionLimit})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d sessions for unknown slug", len(got))
	}
}

func TestListSessions_Filters(t *testing.T) {
	q, s := newChainService(t)
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.AddSessionTag(ctx, "s2", "has:tests", store.SourceAuto); err != nil {
			return err
		}
		if err := tx.AddSessionTag(ctx, "s2", "keep", store.SourceManual); err != nil {
			return err
		}
		return tx.AddSessionTag(ctx, "s3", "has:tests", store.SourceAuto)
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		p    ListParams
		want []string
	}{
		{"project", ListParams{Project: "other", Limit: DefaultSessionLimit}, []string{"solo"}},
		{"project_like_escaped", ListParams{Project: "%", Limit: DefaultSessionLimit}, nil},
		{"date_to_day", ListParams{DateTo: "2026-01-01", Limit: DefaultSessionLimit}, []string{"s4", "s3", "s2", "s1"}},
		{"date_window", ListParams{DateFrom: "2026-01-01T11:15:00Z", DateTo: "2026-01-01T12:10:00Z", Limit: DefaultSessionLimit}, []string{"s3", "s2"}},
		{"tags_all", ListParams{Tags: []string{"has:tests", "keep"}, Limit: DefaultSessionLimit}, []string{"s2"}},
		{"limit", ListParams{Limit: 2}, []string{"solo", "s4"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := q.ListSessions(ctx, tt.p)
			if err != nil {
				t.Fatalf("ListSessions: %v", err)
			}
			var ids []string
			for _, s := range got {
				ids = append(ids, s.SessionID)
			}
			if !slices.Equal(ids, tt.want) {
				t.Errorf("got %v, want %v", ids, tt.want)
			}
		})
	}

	got, err := q.ListSessions(ctx, ListParams{Tags: []string{"keep"}, Limit: DefaultSessionLimit})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || len(got[0].Tags) != 2 {
		t.Errorf("tags on listed session = %+v", got)
	}
}

func TestSearch(t *testing.T) {
	q, s := newChainService(t)
	ctx := context.Background()

	hits, err := q.Search(ctx, SearchParams{Query: "assistant", Limit: DefaultSearchLimit})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 4 {
		t.Errorf("got %d hits, want 4", len(hits))
	}
	if !strings.Contains(hits[0].Snippet, ">>>assistant<<<") {
		t.Errorf("snippet = %q", hits[0].Snippet)
	}
	if hits[0].Slug == nil || *hits[0].Slug != chainSlug {
		t.Errorf("slug = %v", hits[0].Slug)
	}

	if err := s.WithTx(ctx, func(tx *store.Tx) error {
		return tx.AddMessageTag(ctx, hits[0].ID, "decision", store.SourceManual)
	}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		p    SearchParams
		want int
	}{
		{"project", SearchParams{Query: "sqlite OR message", Project: "other", Limit: DefaultSearchLimit}, 1},
		{"phrase", SearchParams{Query: `"user message"`, Limit: DefaultSearchLimit}, 4},
		{"date_from", SearchParams{Query: "message", DateFrom: "2026-01-01T12:00:00Z", Limit: DefaultSearchLimit}, 4},
		{"date_to_day", SearchParams{Query: "message", DateTo: "2026-01-01", Limit: DefaultSearchLimit}, 8},
		{"tags", SearchParams{Query: "assistant", Tags: []string{"decision"}, Limit: DefaultSearchLimit}, 1},
		{"tags_all", SearchParams{Query: "assistant", Tags: []string{"decision", "other"}, Limit: DefaultSearchLimit}, 0},
		{"limit", SearchParams{Query: "message", Limit: 3}, 3},
		{"negative_limit", SearchParams{Query: "message", Limit: -1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := q.Search(ctx, tt.p)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d hits, want %d", len(got), tt.want)
			}
		})
	}

	if _, err := q.Search(ctx, SearchParams{Query: "  ", Limit: DefaultSearchLimit}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestLimitsClamped(t *testing.T) {
	q, _ := newChainService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		limit int
		hits  int
		list  int
		conv  int
	}{
		{"zero", 0, 1, 1, 1},
		{"negative", -5, 1, 1, 1},
		{"over_max", store.MaxLimit + 1, 8, 5, 12},
		{"huge", math.MaxInt32, 8, 5, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits, err := q.Search(ctx, SearchParams{Query: "message", Limit: tt.limit})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(hits) != tt.hits {
				t.Errorf("search: got %d hits, want %d", len(hits), tt.hits)
			}

			sessions, err := q.ListSessions(ctx, ListParams{Limit: tt.limit})
			if err != nil {
				t.Fatalf("ListSessions: %v", err)
			}
			if len(sessions) != tt.list {
				t.Errorf("list: got %d sessions, want %d", len(sessions), tt.list)
			}

			c, err := q.Conversation(ctx, ConversationParams{ID: chainSlug, Limit: tt.limit})
			if err != nil {
				t.Fatalf("Conversation: %v", err)
			}
			if c.MessageCount != tt.conv {
				t.Errorf("conversation: message_count = %d, want %d", c.MessageCount, tt.conv)
			}
		})
	}
}

func TestConversation_WindowClamped(t *testing.T) {
	q, _ := newChainService(t)
	for _, n := range []int{0, -3} {
		c, err := q.Conversation(context.Background(), ConversationParams{
			ID: chainSlug, Around: "2026-01-01T11:05:00Z", Window: n,
		})
		if err != nil {
			t.Fatalf("Conversation: %v", err)
		}
		var ts []string
		for _, m := range c.Messages {
			ts = append(ts, m.Timestamp[11:16])
		}
		if want := []string{"11:05", "11:10"}; !slices.Equal(ts, want) {
			t.Errorf("window %d = %v, want %v", n, ts, want)
		}
	}
}

func TestTagCatalogue(t *testing.T) {
	q, s := newChainService(t)
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx *store.Tx) error {
		for _, id := range []int64{1, 2, 3} {
			if err := tx.AddMessageTag(ctx, id, "insight", store.SourceAuto); err != nil {
				return err
			}
		}
		if err := tx.AddMessageTag(ctx, 4, "keep", store.SourceManual); err != nil {
			return err
		}
		if err := tx.AddSessionTag(ctx, "s1", "keep", store.SourceManual); err != nil {
			return err
		}
		return tx.AddSessionTag(ctx, "s1", "has:tests", store.SourceAuto)
	})
	if err != nil {
		t.Fatal(err)
	}

	all, err := q.TagCatalogue(ctx, "")
	if err != nil {
		t.Fatalf("TagCatalogue: %v", err)
	}
	want := []TagCount{
		{Tag: "insight", Scope: ScopeMessage, Auto: 3, Total: 3},
		{Tag: "keep", Scope: ScopeBoth, Manual: 2, Total: 2},
		{Tag: "has:tests", Scope: ScopeSession, Auto: 1, Total: 1},
	}
	if !slices.Equal(all, want) {
		t.Errorf("catalogue = %+v, want %+v", all, want)
	}

	sess, err := q.TagCatalogue(ctx, ScopeSession)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess) != 2 || sess[0].Scope != ScopeSession || sess[1].Scope != ScopeSession {
		t.Errorf("session catalogue = %+v", sess)
	}

	if _, err := q.TagCatalogue(ctx, "files"); err == nil {
		t.Error("expected error for unknown scope")
	}
}

func TestTagMessage(t *testing.T) {
	q, _ := newChainService(t)
	ctx := context.Background()

	res, err := q.TagMessage(ctx, 2, []string{"important", "review:ux", "important"})
	if err != nil {
		t.Fatalf("TagMessage: %v", err)
	}
	if res.SessionID != "s1" || res.Role != store.RoleAssistant {
		t.Errorf("result = %+v", res)
	}
	if len(res.Tags) != 2 || res.Tags[0].Tag != "important" || res.Tags[0].Source != store.SourceManual {
		t.Errorf("tags = %+v", res.Tags)
	}

	_, err = q.TagMessage(ctx, 999, []string{"x"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
	_, err = q.TagMessage(ctx, 2, []string{strings.Repeat("x", 300)})
	if err == nil || !strings.Contains(err.Error(), "too long") {
		t.Errorf("err = %v, want too long", err)
	}
}

func TestTagSession(t *testing.T) {
	q, _ := newChainService(t)
	ctx := context.Background()

	res, err := q.TagSession(ctx, "s3", []string{"workstream:search"})
	if err != nil {
		t.Fatalf("TagSession: %v", err)
	}
	if res.Slug == nil || *res.Slug != chainSlug || len(res.Tags) != 1 {
		t.Errorf("result = %+v", res)
	}

	_, err = q.TagSession(ctx, "s9", []string{"x"})
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "session" {
		t.Errorf("err = %v, want session NotFoundError", err)
	}
}

func TestFormatMarkdown(t *testing.T) {
	q, _ := newChainService(t)
	c, err := q.Conversation(context.Background(), ConversationParams{ID: chainSlug, Sessions: "2-3", Limit: DefaultConversationLimit})
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	c.Messages = append(c.Messages, store.Message{ID: 99, SessionID: "s3", Role: store.RoleUser, Content: "<system-reminder>x</system-reminder>"})

	md := FormatMarkdown(c)
	for _, want := range []string{
		"## test-conversation (2 sessions)",
		"**Project:** /home/test/project | **Branch:** main",
		"**Range:** Jan 01, 2026 11:00-12:30 UTC | **Messages:** 6",
		"*--- Session 1 of 2 ---*",
		"*--- Session 2 of 2 ---*",
		"**Tools** (11:05)\n```\n[Read] /path/to/file-2\n```",
		"**User** (11:00) `#4`",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "system-reminder") {
		t.Error("noise message was rendered")
	}
}

func TestTruncateContent(t *testing.T) {
	long := strings.Repeat("a", 1734)
	got := truncateContent(long, 500)
	if !strings.HasSuffix(got, "*[...1,234 more chars]*") {
		t.Errorf("suffix = %q", got[len(got)-30:])
	}
	if truncateContent("short", 500) != "short" {
		t.Error("short content changed")
	}
}
