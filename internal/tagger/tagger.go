package tagger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// sessionRoles are the only roles session rules inspect.
var sessionRoles = []store.Role{store.RoleToolSummary, store.RolePlan}

// Tagger applies built-in and custom rules inside a store transaction.
// Safe for concurrent use; SetRules swaps the custom rules atomically.
type Tagger struct {
	mu       sync.RWMutex
	msgRules []compiledRule
	sesRules []compiledRule
}

// New compiles the given custom rules. A nil slice yields the built-ins only.
func New(rules []Rule) (*Tagger, error) {
	t := &Tagger{}
	if err := t.SetRules(rules); err != nil {
		return nil, err
	}
	return t, nil
}

// SetRules replaces the custom rules. On error the previous rules stay.
func (t *Tagger) SetRules(rules []Rule) error {
	msg, sess, err := compileRules(rules)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.msgRules, t.sesRules = msg, sess
	t.mu.Unlock()
	return nil
}

// MessageTags returns every tag, built-in then custom, for one message.
func (t *Tagger) MessageTags(role store.Role, content string) []string {
	tags := MessageTags(role, content)
	t.mu.RLock()
	rules := t.msgRules
	t.mu.RUnlock()
	if len(rules) == 0 {
		return tags
	}
	vars := messageVars(role, content)
	for _, r := range rules {
		if r.eval(vars) {
			tags = append(tags, r.tag)
		}
	}
	return tags
}

// SessionTags returns every tag, built-in then custom, for a session.
func (t *Tagger) SessionTags(msgs []store.Message) []string {
	tags := SessionTags(msgs)
	t.mu.RLock()
	rules := t.sesRules
	t.mu.RUnlock()
	if len(rules) == 0 {
		return tags
	}
	vars := sessionVars(msgs)
	for _, r := range rules {
		if r.eval(vars) {
			tags = append(tags, r.tag)
		}
	}
	return tags
}

// TagMessages tags every message in r and returns how many tags were
// applied.
func (t *Tagger) TagMessages(ctx context.Context, tx *store.Tx, r store.IDRange) (int, error) {
	msgs, err := tx.MessagesInRange(ctx, r)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range msgs {
		for _, tag := range t.MessageTags(m.Role, m.Content) {
			if err := tx.AddMessageTag(ctx, m.ID, tag, store.SourceAuto); err != nil {
				return n, err
			}
			n++
		}
	}
	slog.Debug("messages tagged", "first", r.First, "last", r.Last, "tags", n)
	return n, nil
}

// TagSession evaluates the session rules for one session and returns how
// many tags were applied.
func (t *Tagger) TagSession(ctx context.Context, tx *store.Tx, sessionID string) (int, error) {
	msgs, err := tx.SessionMessages(ctx, sessionID, sessionRoles...)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, tag := range t.SessionTags(msgs) {
		if err := tx.AddSessionTag(ctx, sessionID, tag, store.SourceAuto); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
