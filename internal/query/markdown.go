package query

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// Content limits for the markdown rendering, in characters.
const (
	markdownContentLimit = 500
	markdownPlanLimit    = 800
	markdownToolLines    = 4
)

var roleLabels = map[store.Role]string{
	store.RoleUser:        "User",
	store.RoleAssistant:   "Assistant",
	store.RoleToolSummary: "Tools",
	store.RolePlan:        "Plan",
}

// noiseMarkers flag harness bookkeeping messages that are not conversation.
var noiseMarkers = []string{
	"<command-name>",
	"<command-message>",
	"<local-command-caveat>",
	"<local-command-stdout>",
	"<system-reminder>",
}

var numbers = message.NewPrinter(language.English)

// FormatMarkdown renders a conversation for reading. Long messages are
// truncated, tool summaries are compacted and session boundaries within a
// chain are marked.
func FormatMarkdown(c *Conversation) string {
	if c == nil || len(c.Sessions) == 0 {
		return ""
	}
	var msgs []store.Message
	for _, m := range c.Messages {
		if !isNoise(m.Content) {
			msgs = append(msgs, m)
		}
	}

	var b strings.Builder
	first := c.Sessions[0]
	title := deref(first.Slug)
	if title == "" {
		title = first.SessionID[:min(12, len(first.SessionID))]
	}
	if n := len(c.Sessions); n > 1 {
		fmt.Fprintf(&b, "## %s (%d sessions)\n", title, n)
	} else {
		fmt.Fprintf(&b, "## %s\n", title)
	}

	var meta []string
	if p := deref(first.ProjectDir); p != "" {
		meta = append(meta, "**Project:** "+p)
	}
	if br := deref(first.GitBranch); br != "" {
		meta = append(meta, "**Branch:** "+br)
	}
	if len(meta) > 0 {
		b.WriteString(strings.Join(meta, " | ") + "\n")
	}
	fmt.Fprintf(&b, "**Range:** %s | **Messages:** %d\n\n---\n\n", dateRange(c.Sessions), len(msgs))

	position := make(map[string]int, len(c.Sessions))
	for i, s := range c.Sessions {
		position[s.SessionID] = i + 1
	}

	current := ""
	for _, m := range msgs {
		if len(c.Sessions) > 1 && m.SessionID != current {
			current = m.SessionID
			fmt.Fprintf(&b, "*--- Session %d of %d ---*\n\n", position[current], len(c.Sessions))
		}

		label, ok := roleLabels[m.Role]
		if !ok {
			label = string(m.Role)
		}
		at := shortTime(m.Timestamp)

		switch m.Role {
		case store.RoleToolSummary:
			fmt.Fprintf(&b, "**%s** (%s)\n```\n", label, at)
			lines := strings.Split(strings.TrimSpace(m.Content), "\n")
			if len(lines) <= markdownToolLines {
				b.WriteString(strings.Join(lines, "\n") + "\n")
			} else {
				b.WriteString(strings.Join(lines[:3], "\n") + "\n")
				fmt.Fprintf(&b, "  ...and %d more\n", len(lines)-3)
			}
			b.WriteString("```\n")
		case store.RolePlan:
			fmt.Fprintf(&b, "**%s** (%s) `#%d`\n\n", label, at, m.ID)
			b.WriteString("> " + strings.ReplaceAll(truncateContent(m.Content, markdownPlanLimit), "\n", "\n> ") + "\n")
		default:
			fmt.Fprintf(&b, "**%s** (%s) `#%d`\n\n", label, at, m.ID)
			b.WriteString(truncateContent(m.Content, markdownContentLimit) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func isNoise(content string) bool {
	if strings.TrimSpace(content) == "" {
		return true
	}
	for _, mk := range noiseMarkers {
		if strings.Contains(content, mk) {
			return true
		}
	}
	return false
}

func truncateContent(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + numbers.Sprintf("\n\n*[...%d more chars]*", len(r)-limit)
}

func parseTime(ts string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func shortTime(ts string) string {
	t, ok := parseTime(ts)
	if !ok {
		return "??:??"
	}
	return t.Format("15:04")
}

func dateRange(sessions []store.Session) string {
	first, ok1 := parseTime(deref(sessions[0].FirstTimestamp))
	last, ok2 := parseTime(deref(sessions[len(sessions)-1].LastTimestamp))
	if !ok1 || !ok2 {
		return "unknown"
	}
	if first.Format(time.DateOnly) == last.Format(time.DateOnly) {
		return first.Format("Jan 02, 2006 15:04") + "-" + last.Format("15:04") + " UTC"
	}
	return first.Format("Jan 02 15:04") + " - " + last.Format("Jan 02 15:04, 2006") + " UTC"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
