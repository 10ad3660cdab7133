package store

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxLimit caps any caller-supplied result limit.
const MaxLimit = 500

// MaxTags is the most tags accepted in one tagging request.
const MaxTags = 20

// MaxTagLength is the maximum tag length in characters.
const MaxTagLength = 100

// ClampLimit forces a caller-supplied limit into [1, MaxLimit].
func ClampLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// ValidateTags checks a caller-supplied tag list before it is written.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTags {
		return fmt.Errorf("too many tags: %d (max %d)", len(tags), MaxTags)
	}
	for _, t := range tags {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("tag must not be blank")
		}
		if n := utf8.RuneCountInString(t); n > MaxTagLength {
			return fmt.Errorf("tag too long: %d chars (max %d)", n, MaxTagLength)
		}
	}
	return nil
}
