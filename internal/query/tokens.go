package query

import (
	"log/slog"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many model tokens a text costs.
type TokenCounter interface {
	CountText(text string) int
}

// Tokenizer counts tokens with tiktoken, falling back to a character
// heuristic when the encoding cannot be loaded (e.g. offline without a BPE
// cache). The encoding is loaded by Load, or on first use if Load was never
// called.
type Tokenizer struct {
	encodingName string
	once         sync.Once
	encoder      *tiktoken.Tiktoken
	mu           sync.Mutex
}

// NewTokenizer returns a lazily initialized tiktoken counter.
func NewTokenizer(encodingName string) *Tokenizer {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}
	return &Tokenizer{encodingName: encodingName}
}

// Load resolves the encoding now. tiktoken may download the BPE table on a
// cold cache, so long-running callers load before serving requests. It
// reports whether tiktoken counts are available.
func (t *Tokenizer) Load() bool {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encodingName)
		if err != nil {
			slog.Warn("tiktoken unavailable, using heuristic token counts", "encoding", t.encodingName, "error", err)
			return
		}
		t.encoder = enc
	})
	return t.encoder != nil
}

// CountText returns the token count of text.
func (t *Tokenizer) CountText(text string) int {
	if text == "" {
		return 0
	}
	if !t.Load() {
		return HeuristicCounter{}.CountText(text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoder.Encode(text, nil, nil))
}

// HeuristicCounter estimates tokens from character classes without any
// encoding tables.
type HeuristicCounter struct{}

// CountText returns roughly 1.5 tokens per CJK character and 0.25 per other
// character, at least 1 for non-empty text.
func (HeuristicCounter) CountText(text string) int {
	if text == "" {
		return 0
	}
	cjk, other := 0, 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return max(int(float64(cjk)*1.5+float64(other)*0.25), 1)
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || // CJK Unified
		(r >= 0x3400 && r <= 0x4DBF) || // CJK Extension A
		(r >= 0x3000 && r <= 0x303F) || // CJK Symbols
		(r >= 0xFF00 && r <= 0xFFEF) || // Fullwidth Forms
		(r >= 0xAC00 && r <= 0xD7AF) // Korean Hangul
}
