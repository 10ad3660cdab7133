package config

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/recall/internal/tagger"
)

var (
	validTagRe   = regexp.MustCompile(`^[a-z0-9][a-z0-9:_./-]{0,99}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9:_./-]+`)
	leadingDash  = regexp.MustCompile(`^-+`)
	trailingDash = regexp.MustCompile(`-+$`)
)

// NormalizeTag converts a user-provided rule tag into canonical form:
// lowercase, at most 100 chars, only [a-z0-9:_./-], runs of other
// characters collapsed to "-", leading/trailing dashes stripped. An empty
// result is returned as "".
func NormalizeTag(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" || validTagRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}

// NormalizeRules canonicalizes tag names and scopes of custom rules. Scope
// defaults to message. Expressions are compiled later by the tagger.
func NormalizeRules(rules []tagger.Rule) ([]tagger.Rule, error) {
	out := make([]tagger.Rule, 0, len(rules))
	for i, r := range rules {
		r.Tag = NormalizeTag(r.Tag)
		if r.Tag == "" {
			return nil, fmt.Errorf("tagging.rules[%d]: tag is required", i)
		}
		r.Expr = strings.TrimSpace(r.Expr)
		if r.Expr == "" {
			return nil, fmt.Errorf("tagging.rules[%d] (%s): expr is required", i, r.Tag)
		}
		r.Scope = strings.ToLower(strings.TrimSpace(r.Scope))
		switch r.Scope {
		case "":
			r.Scope = tagger.ScopeMessage
		case tagger.ScopeMessage, tagger.ScopeSession:
		default:
			return nil, fmt.Errorf("tagging.rules[%d] (%s): unknown scope %q", i, r.Tag, r.Scope)
		}
		out = append(out, r)
	}
	return out, nil
}

// ParseLogLevel maps a level name to a slog level. Empty means info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
