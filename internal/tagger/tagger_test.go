package tagger

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/nextlevelbuilder/recall/internal/store"
)

func TestNew_RejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"not_bool", Rule{Tag: "x", Expr: `content.size()`}},
		{"syntax", Rule{Tag: "x", Expr: `content.contains(`}},
		{"unknown_var", Rule{Tag: "x", Expr: `author == "me"`}},
		{"bad_scope", Rule{Tag: "x", Scope: "file", Expr: `true`}},
		{"no_tag", Rule{Expr: `true`}},
		{"session_vars", Rule{Tag: "x", Scope: ScopeSession, Expr: `role == "user"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]Rule{tt.rule})
			if !errors.Is(err, ErrInvalidRule) {
				t.Errorf("New() error = %v, want ErrInvalidRule", err)
			}
		})
	}
}

func TestTagger_CustomRules(t *testing.T) {
	tg, err := New([]Rule{
		{Tag: "mentions:sqlite", Expr: `role == "assistant" && content.contains("sqlite")`},
		{Tag: "has:make", Scope: ScopeSession, Expr: `messages.exists(m, m.content.startsWith("[Bash] make"))`},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := tg.MessageTags(store.RoleAssistant, "use sqlite")
	if !slices.Equal(got, []string{"mentions:sqlite"}) {
		t.Errorf("MessageTags() = %v", got)
	}
	if got := tg.MessageTags(store.RoleUser, "use sqlite"); len(got) != 0 {
		t.Errorf("user MessageTags() = %v, want none", got)
	}

	sess := tg.SessionTags([]store.Message{{Role: store.RoleToolSummary, Content: "[Bash] make test"}})
	if !slices.Equal(sess, []string{"has:make"}) {
		t.Errorf("SessionTags() = %v", sess)
	}
}

func TestTagger_SetRulesKeepsOldOnError(t *testing.T) {
	tg, err := New([]Rule{{Tag: "always", Expr: `true`}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := tg.SetRules([]Rule{{Tag: "bad", Expr: `1`}}); err == nil {
		t.Fatal("SetRules accepted a non-bool rule")
	}
	if got := tg.MessageTags(store.RoleUser, "hi"); !slices.Equal(got, []string{"always"}) {
		t.Errorf("MessageTags() = %v, want [always]", got)
	}
}

func TestTagger_Store(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	tg, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var r store.IDRange
	err = s.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpsertSession(ctx, store.SessionDelta{SessionID: "s1", MessageCount: 3}); err != nil {
			return err
		}
		r, err = tx.InsertMessages(ctx, []store.NewMessage{
			{SessionID: "s1", Role: store.RoleAssistant, Content: "★ Insight: sqlite is fine", Timestamp: "t1"},
			{SessionID: "s1", Role: store.RolePlan, Content: "the plan", Timestamp: "t2"},
			{SessionID: "s1", Role: store.RoleToolSummary, Content: "[Bash] pytest", Timestamp: "t3"},
		})
		if err != nil {
			return err
		}
		n, err := tg.TagMessages(ctx, tx, r)
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("TagMessages() = %d, want 2", n)
		}
		n, err = tg.TagSession(ctx, tx, "s1")
		if err != nil {
			return err
		}
		if n != 2 {
			t.Errorf("TagSession() = %d, want 2", n)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	tags, err := s.MessageTags(ctx, r.First)
	if err != nil {
		t.Fatalf("MessageTags: %v", err)
	}
	if len(tags) != 1 || tags[0].Tag != "insight" || tags[0].Source != store.SourceAuto {
		t.Errorf("first message tags = %+v", tags)
	}
	st, err := s.SessionTags(ctx, "s1")
	if err != nil {
		t.Fatalf("SessionTags: %v", err)
	}
	var names []string
	for _, tag := range st {
		names = append(names, tag.Tag)
	}
	if !slices.Equal(names, []string{"has:planning", "has:tests"}) {
		t.Errorf("session tags = %v", names)
	}
}

func TestCommandNames(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"go test ./...", []string{"go"}},
		{"cd web && npm run test", []string{"cd", "npm"}},
		{"GOFLAGS=-race /usr/local/go/bin/go vet ./... | tee out.txt", []string{"go", "tee"}},
		{"echo done > /tmp/log; docker compose up -d", []string{"echo", "docker"}},
		{`grep -n "a;b" file`, []string{"grep"}},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := CommandNames(tt.line); !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTagger_SessionCommands(t *testing.T) {
	tg, err := New([]Rule{
		{Tag: "has:docker", Scope: ScopeSession, Expr: `"docker" in commands`},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	msgs := []store.Message{
		{Role: store.RoleToolSummary, Content: "[Read] /srv/app/Dockerfile"},
		{Role: store.RoleToolSummary, Content: "[Bash] cd /srv/app && docker build ."},
	}
	if got := tg.SessionTags(msgs); !slices.Contains(got, "has:docker") {
		t.Errorf("SessionTags() = %v, want has:docker", got)
	}
	if got := tg.SessionTags(msgs[:1]); slices.Contains(got, "has:docker") {
		t.Errorf("SessionTags() = %v, want no has:docker", got)
	}
}
