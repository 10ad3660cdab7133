package transcript

import (
	"strings"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// Record is one normalized message extracted from an entry.
type Record struct {
	Role      store.Role
	Content   string
	Timestamp string
	Model     string
}

// Extract returns the records an entry contributes, in order. Marker and
// unknown entries yield nothing, as do assistant entries whose content is
// not a list.
func Extract(e Entry) []Record {
	switch e.Kind {
	case KindUser:
		return extractUser(e)
	case KindAssistant:
		return extractAssistant(e)
	default:
		return nil
	}
}

func extractUser(e Entry) []Record {
	var out []Record
	// Array content (tool results) is deliberately not indexed as human input.
	if e.HasText && !blank(e.Text) {
		out = append(out, Record{Role: store.RoleUser, Content: e.Text, Timestamp: e.Timestamp})
	}
	if !blank(e.Plan) {
		out = append(out, Record{Role: store.RolePlan, Content: e.Plan, Timestamp: e.Timestamp})
	}
	return out
}

func extractAssistant(e Entry) []Record {
	if !e.HasBlocks {
		return nil
	}

	var texts, tools []string
	for _, b := range e.Blocks {
		switch b.Type {
		case "text":
			if !blank(b.Text) {
				texts = append(texts, b.Text)
			}
		case "tool_use":
			tools = append(tools, FormatToolUse(b.Name, b.Input))
		}
	}

	var out []Record
	if len(texts) > 0 {
		out = append(out, Record{
			Role:      store.RoleAssistant,
			Content:   strings.Join(texts, "\n\n"),
			Timestamp: e.Timestamp,
			Model:     e.Model,
		})
	}
	if len(tools) > 0 {
		out = append(out, Record{
			Role:      store.RoleToolSummary,
			Content:   strings.Join(tools, "\n"),
			Timestamp: e.Timestamp,
			Model:     e.Model,
		})
	}
	return out
}
