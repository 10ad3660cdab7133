package cmd

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/recall/internal/query"
	"github.com/nextlevelbuilder/recall/internal/store"
)

// formatError turns an error into a message for the terminal. Known
// failure classes get a hint; anything else is shown as is.
func formatError(err error) string {
	raw := err.Error()
	lower := strings.ToLower(raw)

	// 1. Unknown session, slug or message
	var nf *query.NotFoundError
	if errors.As(err, &nf) {
		return raw
	}

	// 2. Another process holds the write lock
	if store.IsBusy(err) {
		return "the index is locked by another recall process (indexing or tagging). Try again in a moment."
	}

	// 3. Session range syntax
	if errors.Is(err, query.ErrInvalidRange) || errors.Is(err, query.ErrOutOfRange) {
		return raw + `. Use positions like "2", "2-3" or "1,3-5".`
	}

	// 4. FTS5 query syntax
	if isQuerySyntaxError(lower) {
		return "invalid search query: " + raw + `. Quote phrases with "..." and use AND, OR, NOT.`
	}

	// 5. Store cannot be opened
	if containsAny(lower, "unable to open database", "out of memory (14)", "readonly database") {
		return raw + ". Check --db or RECALL_DB and the directory permissions."
	}

	slog.Debug("unclassified error", "error", raw)
	return raw
}

// isQuerySyntaxError matches the errors FTS5 raises for malformed MATCH
// expressions.
func isQuerySyntaxError(lower string) bool {
	return containsAny(lower,
		"fts5: syntax error",
		"unterminated string",
		"unknown special query",
	) || (strings.Contains(lower, "no such column") && strings.Contains(lower, "search"))
}

// containsAny returns true if s contains any of the given substrings.
func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
