// Package tagger attaches automatic tags to newly indexed messages and to
// the sessions they belong to.
//
// Built-in rules are fixed phrase and pattern tables. Extra rules can be
// declared in config as CEL expressions (see custom.go).
package tagger

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// SubstantialThreshold is the minimum content length, in characters, for
// the phrase-based message rules.
const SubstantialThreshold = 500

// messageRule decides whether a message gets a tag. folded is the
// case-folded content.
type messageRule struct {
	tag   string
	match func(role store.Role, content, folded string) bool
}

// sessionRule decides whether a session gets a tag from its tool_summary
// and plan messages.
type sessionRule struct {
	tag   string
	match func(msgs []store.Message) bool
}

var (
	phaseHeading = regexp.MustCompile(`##\s+Phase\s`)
	implHeading  = regexp.MustCompile(`##\s+Implementation`)
)

var messageRules = []messageRule{
	{"review:ux", substantialPhrases("ux review", "usability review", "user experience review", "user experience audit")},
	{"review:architecture", substantialPhrases("architecture review", "system design review", "architectural review", "architecture audit")},
	{"review:code", substantialPhrases("code review", "code quality review")},
	{"review:security", substantialPhrases("security review", "security audit", "vulnerability assessment")},
	{"plan", func(role store.Role, content, _ string) bool {
		if role == store.RolePlan {
			return true
		}
		return substantial(role, content) && phaseHeading.MatchString(content) && implHeading.MatchString(content)
	}},
	{"decision", substantialPhrases("decided to ", "decision:", "the approach is", "chose ", " over ", "trade-off")},
	{"investigation", substantialPhrases("root cause", "the issue was", "found the bug", "the problem was", "debugging revealed")},
	{"insight", func(role store.Role, content, _ string) bool {
		return role == store.RoleAssistant && strings.Contains(content, "★ Insight")
	}},
}

var sessionRules = []sessionRule{
	{"has:browser", anyToolSummary(func(content, folded string) bool {
		return strings.Contains(content, "[browser_") || strings.Contains(folded, "playwright")
	})},
	{"has:tests", anyToolSummary(foldedContainsAny("pytest", "vitest", "npm run test", "npm run check", "go test"))},
	{"has:deploy", anyToolSummary(foldedContainsAny("ssh ", "docker ", "deploy", "rsync"))},
	{"has:planning", func(msgs []store.Message) bool {
		for _, m := range msgs {
			if m.Role == store.RolePlan {
				return true
			}
		}
		return false
	}},
}

// MessageTags returns the built-in tags for one message.
func MessageTags(role store.Role, content string) []string {
	folded := fold(content)
	var tags []string
	for _, r := range messageRules {
		if r.match(role, content, folded) {
			tags = append(tags, r.tag)
		}
	}
	return tags
}

// SessionTags returns the built-in tags for a session given its
// tool_summary and plan messages.
func SessionTags(msgs []store.Message) []string {
	var tags []string
	for _, r := range sessionRules {
		if r.match(msgs) {
			tags = append(tags, r.tag)
		}
	}
	return tags
}

func substantial(role store.Role, content string) bool {
	return role == store.RoleAssistant && utf8.RuneCountInString(content) >= SubstantialThreshold
}

func substantialPhrases(phrases ...string) func(store.Role, string, string) bool {
	return func(role store.Role, content, folded string) bool {
		return substantial(role, content) && containsAny(folded, phrases)
	}
}

func anyToolSummary(match func(content, folded string) bool) func([]store.Message) bool {
	return func(msgs []store.Message) bool {
		for _, m := range msgs {
			if m.Role == store.RoleToolSummary && match(m.Content, fold(m.Content)) {
				return true
			}
		}
		return false
	}
}

func foldedContainsAny(phrases ...string) func(content, folded string) bool {
	return func(_, folded string) bool {
		return containsAny(folded, phrases)
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// fold case-folds s for phrase matching. Casers keep state, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
