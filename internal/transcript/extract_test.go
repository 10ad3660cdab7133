package transcript

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/recall/internal/store"
)

func mustDecode(t *testing.T, line string) Entry {
	t.Helper()
	e, err := Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode(%s): %v", line, err)
	}
	return e
}

func TestExtract_UserText(t *testing.T) {
	e := mustDecode(t, `{"type":"user","sessionId":"s1","timestamp":"2026-01-01T00:00:00Z","message":{"content":"Hello world"}}`)
	recs := Extract(e)
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].Role != store.RoleUser || recs[0].Content != "Hello world" {
		t.Errorf("got %+v", recs[0])
	}
	if recs[0].Timestamp != "2026-01-01T00:00:00Z" {
		t.Errorf("timestamp = %q", recs[0].Timestamp)
	}
}

func TestExtract_UserToolResultSkipped(t *testing.T) {
	e := mustDecode(t, `{"type":"user","message":{"content":[{"type":"tool_result","content":"result"}]}}`)
	if recs := Extract(e); len(recs) != 0 {
		t.Errorf("expected no records for array content, got %+v", recs)
	}
}

func TestExtract_UserBlankSkipped(t *testing.T) {
	e := mustDecode(t, `{"type":"user","message":{"content":"   \n"}}`)
	if recs := Extract(e); len(recs) != 0 {
		t.Errorf("expected no records for blank content, got %+v", recs)
	}
}

func TestExtract_PlanContent(t *testing.T) {
	e := mustDecode(t, `{"type":"user","message":{"content":"approve the plan"},"planContent":"## Phase 1\nDo the thing"}`)
	recs := Extract(e)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[1].Role != store.RolePlan || !strings.Contains(recs[1].Content, "Phase 1") {
		t.Errorf("plan record = %+v", recs[1])
	}
}

func TestExtract_PlanWithToolResult(t *testing.T) {
	e := mustDecode(t, `{"type":"user","message":{"content":[{"type":"tool_result"}]},"planContent":"the plan"}`)
	recs := Extract(e)
	if len(recs) != 1 || recs[0].Role != store.RolePlan {
		t.Errorf("got %+v, want single plan record", recs)
	}
}

func TestExtract_AssistantTextAndTools(t *testing.T) {
	e := mustDecode(t, `{"type":"assistant","message":{"model":"claude-opus-4","content":[
		{"type":"text","text":"Let me check that."},
		{"type":"tool_use","name":"Read","input":{"file_path":"/tmp/test.py"}},
		{"type":"text","text":"And this."},
		{"type":"tool_use","name":"Grep","input":{"pattern":"TODO","path":"src"}}
	]}}`)
	recs := Extract(e)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Role != store.RoleAssistant {
		t.Errorf("first role = %q", recs[0].Role)
	}
	if recs[0].Content != "Let me check that.\n\nAnd this." {
		t.Errorf("assistant content = %q", recs[0].Content)
	}
	if recs[0].Model != "claude-opus-4" {
		t.Errorf("model = %q", recs[0].Model)
	}
	want := "[Read] /tmp/test.py\n[Grep] pattern=TODO path=src"
	if recs[1].Role != store.RoleToolSummary || recs[1].Content != want {
		t.Errorf("tool summary = %+v, want %q", recs[1], want)
	}
}

func TestExtract_AssistantNonListContent(t *testing.T) {
	e := mustDecode(t, `{"type":"assistant","message":{"content":"not a list"}}`)
	if recs := Extract(e); recs != nil {
		t.Errorf("expected nil, got %+v", recs)
	}
}

func TestExtract_AssistantUnknownBlocksIgnored(t *testing.T) {
	e := mustDecode(t, `{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"hmm"},"stray",42]}}`)
	if recs := Extract(e); len(recs) != 0 {
		t.Errorf("expected no records, got %+v", recs)
	}
}

func TestExtract_MarkerTypes(t *testing.T) {
	for _, typ := range []string{"progress", "system", "file-history-snapshot", "queue-operation"} {
		t.Run(typ, func(t *testing.T) {
			e := mustDecode(t, `{"type":"`+typ+`","message":{"content":"x"}}`)
			if e.Kind != KindMarker {
				t.Errorf("kind = %v, want KindMarker", e.Kind)
			}
			if recs := Extract(e); recs != nil {
				t.Errorf("expected nil, got %+v", recs)
			}
		})
	}
}

func TestDecode_MalformedMessage(t *testing.T) {
	e := mustDecode(t, `{"type":"user","sessionId":"s1","message":"oops","timestamp":12}`)
	if e.SessionID != "s1" {
		t.Errorf("session id = %q", e.SessionID)
	}
	if e.Timestamp != "" {
		t.Errorf("non-string timestamp should decode empty, got %q", e.Timestamp)
	}
	if recs := Extract(e); len(recs) != 0 {
		t.Errorf("expected no records, got %+v", recs)
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode([]byte(`{invalid`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFormatToolUse(t *testing.T) {
	long := strings.Repeat("é", 250)
	tests := []struct {
		name  string
		tool  string
		input map[string]any
		want  string
	}{
		{"read", "Read", map[string]any{"file_path": "/a.go"}, "[Read] /a.go"},
		{"edit", "Edit", map[string]any{"file_path": "/b.go"}, "[Edit] /b.go"},
		{"write_missing", "Write", map[string]any{}, "[Write] "},
		{"bash", "Bash", map[string]any{"command": "go test ./..."}, "[Bash] go test ./..."},
		{"bash_truncated", "Bash", map[string]any{"command": long}, "[Bash] " + strings.Repeat("é", 200)},
		{"grep", "Grep", map[string]any{"pattern": "x", "path": "y"}, "[Grep] pattern=x path=y"},
		{"glob", "Glob", map[string]any{"pattern": "**/*.go"}, "[Glob] **/*.go"},
		{"task", "Task", map[string]any{"description": "explore"}, "[Task] explore"},
		{"websearch", "WebSearch", map[string]any{"query": "fts5"}, "[WebSearch] fts5"},
		{"webfetch", "WebFetch", map[string]any{"url": "https://x"}, "[WebFetch] https://x"},
		{"todo", "TodoWrite", map[string]any{"todos": []any{1, 2}}, "[TodoWrite] 2 items"},
		{"unknown", "browser_snapshot", map[string]any{"a": 1}, "[browser_snapshot]"},
		{"non_string", "Read", map[string]any{"file_path": 7.0}, "[Read] 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatToolUse(tt.tool, tt.input); got != tt.want {
				t.Errorf("FormatToolUse(%s) = %q, want %q", tt.tool, got, tt.want)
			}
		})
	}
}

func TestExtract_ToolUseWithoutName(t *testing.T) {
	e := mustDecode(t, `{"type":"assistant","message":{"content":[{"type":"tool_use","input":"bad"}]}}`)
	recs := Extract(e)
	if len(recs) != 1 || recs[0].Content != "[Unknown]" {
		t.Errorf("got %+v, want [Unknown] summary", recs)
	}
}
