package transcript

import (
	"encoding/json"
	"fmt"
)

// bashPreviewRunes caps how much of a shell command is kept in a summary.
const bashPreviewRunes = 200

// toolFormatter renders one tool_use input as a summary line.
type toolFormatter func(input map[string]any) string

// toolFormatters maps tool name to its summary template. Tools not listed
// fall back to a bare "[Name]".
var toolFormatters = map[string]toolFormatter{
	"Read":  fieldFormatter("Read", "file_path"),
	"Edit":  fieldFormatter("Edit", "file_path"),
	"Write": fieldFormatter("Write", "file_path"),
	"Bash": func(in map[string]any) string {
		return "[Bash] " + truncateRunes(field(in, "command"), bashPreviewRunes)
	},
	"Grep": func(in map[string]any) string {
		return fmt.Sprintf("[Grep] pattern=%s path=%s", field(in, "pattern"), field(in, "path"))
	},
	"Glob":         fieldFormatter("Glob", "pattern"),
	"Task":         fieldFormatter("Task", "description"),
	"WebSearch":    fieldFormatter("WebSearch", "query"),
	"WebFetch":     fieldFormatter("WebFetch", "url"),
	"NotebookEdit": fieldFormatter("NotebookEdit", "notebook_path"),
	"TodoWrite": func(in map[string]any) string {
		todos, _ := in["todos"].([]any)
		return fmt.Sprintf("[TodoWrite] %d items", len(todos))
	},
}

// FormatToolUse renders a tool invocation as a compact, searchable line.
func FormatToolUse(name string, input map[string]any) string {
	if f, ok := toolFormatters[name]; ok {
		return f(input)
	}
	return "[" + name + "]"
}

func fieldFormatter(name, key string) toolFormatter {
	return func(in map[string]any) string {
		return "[" + name + "] " + field(in, key)
	}
}

// field renders an input value: strings as-is, missing as "", anything else
// as compact JSON.
func field(in map[string]any, key string) string {
	v, ok := in[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
