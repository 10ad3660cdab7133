// Package transcript decodes JSONL transcript entries and extracts the
// indexable records they carry. Everything here is pure: no I/O, no store.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind classifies a decoded transcript entry.
type Kind int

const (
	KindOther     Kind = iota // unknown entry type, produces nothing
	KindUser                  // human input
	KindAssistant             // model output
	KindMarker                // progress/system/snapshot/queue markers
)

// markerTypes are entry types that never carry indexable content.
var markerTypes = map[string]bool{
	"progress":              true,
	"system":                true,
	"file-history-snapshot": true,
	"queue-operation":       true,
}

// Block is one element of an assistant content list.
type Block struct {
	Type  string
	Text  string
	Name  string
	Input map[string]any
}

// Entry is one transcript line decoded into a closed shape. Fields whose JSON
// shape varies across log versions are resolved here once, so the extractor
// never needs to type-check raw values.
type Entry struct {
	Kind      Kind
	Type      string
	SessionID string
	Timestamp string
	Slug      string
	GitBranch string
	CWD       string
	Model     string

	// Text is set for user entries whose content is a plain string.
	Text    string
	HasText bool
	// Plan is the planContent field when it is a string.
	Plan string
	// Blocks is set for assistant entries whose content is a list.
	Blocks    []Block
	HasBlocks bool
}

type rawEntry struct {
	Type        json.RawMessage `json:"type"`
	SessionID   json.RawMessage `json:"sessionId"`
	Timestamp   json.RawMessage `json:"timestamp"`
	Slug        json.RawMessage `json:"slug"`
	GitBranch   json.RawMessage `json:"gitBranch"`
	CWD         json.RawMessage `json:"cwd"`
	PlanContent json.RawMessage `json:"planContent"`
	Message     json.RawMessage `json:"message"`
}

type rawMessage struct {
	Model   json.RawMessage `json:"model"`
	Content json.RawMessage `json:"content"`
}

type rawBlock struct {
	Type  json.RawMessage `json:"type"`
	Text  json.RawMessage `json:"text"`
	Name  json.RawMessage `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Decode parses one JSON object line into an Entry. Only a syntactically
// invalid line (or a non-object) is an error; odd field shapes are tolerated.
func Decode(line []byte) (Entry, error) {
	var raw rawEntry
	if err := json.Unmarshal(line, &raw); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}

	e := Entry{
		Type:      stringOf(raw.Type),
		SessionID: stringOf(raw.SessionID),
		Timestamp: stringOf(raw.Timestamp),
		Slug:      stringOf(raw.Slug),
		GitBranch: stringOf(raw.GitBranch),
		CWD:       stringOf(raw.CWD),
		Plan:      stringOf(raw.PlanContent),
	}

	switch {
	case markerTypes[e.Type]:
		e.Kind = KindMarker
		return e, nil
	case e.Type == "user":
		e.Kind = KindUser
	case e.Type == "assistant":
		e.Kind = KindAssistant
	default:
		e.Kind = KindOther
		return e, nil
	}

	var msg rawMessage
	if !isObject(raw.Message) || json.Unmarshal(raw.Message, &msg) != nil {
		return e, nil
	}
	e.Model = stringOf(msg.Model)

	switch e.Kind {
	case KindUser:
		if isString(msg.Content) {
			e.Text = stringOf(msg.Content)
			e.HasText = true
		}
	case KindAssistant:
		var items []json.RawMessage
		if isArray(msg.Content) && json.Unmarshal(msg.Content, &items) == nil {
			e.HasBlocks = true
			e.Blocks = decodeBlocks(items)
		}
	}
	return e, nil
}

func decodeBlocks(items []json.RawMessage) []Block {
	blocks := make([]Block, 0, len(items))
	for _, item := range items {
		if !isObject(item) {
			continue
		}
		var rb rawBlock
		if json.Unmarshal(item, &rb) != nil {
			continue
		}
		b := Block{
			Type: stringOf(rb.Type),
			Text: stringOf(rb.Text),
			Name: stringOf(rb.Name),
		}
		if isObject(rb.Input) {
			_ = json.Unmarshal(rb.Input, &b.Input)
		}
		if b.Input == nil {
			b.Input = map[string]any{}
		}
		if b.Type == "tool_use" && rb.Name == nil {
			b.Name = "Unknown"
		}
		blocks = append(blocks, b)
	}
	return blocks
}

// stringOf returns the value of a JSON string, or "" for any other shape.
func stringOf(raw json.RawMessage) string {
	if !isString(raw) {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func isString(raw json.RawMessage) bool { return firstByte(raw) == '"' }
func isObject(raw json.RawMessage) bool { return firstByte(raw) == '{' }
func isArray(raw json.RawMessage) bool  { return firstByte(raw) == '[' }

func firstByte(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

// blank reports whether s has no non-whitespace content.
func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
