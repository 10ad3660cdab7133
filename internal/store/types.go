package store

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the kind of an indexed message.
type Role string

const (
	RoleUser        Role = "user"
	RoleAssistant   Role = "assistant"
	RoleToolSummary Role = "tool_summary"
	RolePlan        Role = "plan"
)

// Roles lists every valid role in display order.
var Roles = []Role{RoleUser, RoleAssistant, RoleToolSummary, RolePlan}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleToolSummary, RolePlan:
		return true
	}
	return false
}

// ParseRole validates a caller-supplied role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q (want one of user, assistant, tool_summary, plan)", s)
	}
	return r, nil
}

// TagSource records who attached a tag.
type TagSource string

const (
	SourceAuto   TagSource = "auto"
	SourceManual TagSource = "manual"
)

// IndexedFile tracks how far a transcript file has been consumed.
type IndexedFile struct {
	Path       string `db:"path" json:"path"`
	Size       int64  `db:"size" json:"size"`
	ByteOffset int64  `db:"byte_offset" json:"byte_offset"`
	HeadHash   string `db:"head_hash" json:"head_hash"`
	IndexedAt  string `db:"indexed_at" json:"indexed_at"`
}

// Session is one logical conversation.
type Session struct {
	SessionID      string  `db:"session_id" json:"session_id"`
	ProjectDir     *string `db:"project_dir" json:"project_dir,omitempty"`
	Slug           *string `db:"slug" json:"slug,omitempty"`
	FirstTimestamp *string `db:"first_timestamp" json:"first_timestamp,omitempty"`
	LastTimestamp  *string `db:"last_timestamp" json:"last_timestamp,omitempty"`
	MessageCount   int     `db:"message_count" json:"message_count"`
	GitBranch      *string `db:"git_branch" json:"git_branch,omitempty"`
	CWD            *string `db:"cwd" json:"cwd,omitempty"`
}

// Message is one indexed unit of conversation content.
type Message struct {
	ID         int64   `db:"id" json:"id"`
	SessionID  string  `db:"session_id" json:"session_id"`
	Role       Role    `db:"role" json:"role"`
	Content    string  `db:"content" json:"content"`
	Timestamp  string  `db:"timestamp" json:"timestamp"`
	Model      *string `db:"model" json:"model,omitempty"`
	SourcePath string  `db:"source_path" json:"-"`
}

// Tag is a tag attached to a message or session.
type Tag struct {
	Tag    string    `db:"tag" json:"tag"`
	Source TagSource `db:"source" json:"source"`
}

// SessionDelta is the metadata a scan pass observed for one session. Empty
// strings mean "not observed".
type SessionDelta struct {
	SessionID      string
	ProjectDir     string
	Slug           string
	FirstTimestamp string
	LastTimestamp  string
	MessageCount   int
	GitBranch      string
	CWD            string
}

// Observe widens the timestamp range and fills unset fields. Fields already
// set are kept (first write wins); timestamps always widen.
func (d *SessionDelta) Observe(ts, slug, branch, cwd string) {
	if ts != "" {
		if d.FirstTimestamp == "" || ts < d.FirstTimestamp {
			d.FirstTimestamp = ts
		}
		if d.LastTimestamp == "" || ts > d.LastTimestamp {
			d.LastTimestamp = ts
		}
	}
	if d.Slug == "" {
		d.Slug = slug
	}
	if d.GitBranch == "" {
		d.GitBranch = branch
	}
	if d.CWD == "" {
		d.CWD = cwd
	}
}

// NewMessage is a message waiting to be inserted.
type NewMessage struct {
	SessionID  string
	Role       Role
	Content    string
	Timestamp  string
	Model      string
	SourcePath string
}

// IDRange is an inclusive range of message ids. Empty when First > Last.
type IDRange struct {
	First int64
	Last  int64
}

// Empty reports whether the range holds no ids.
func (r IDRange) Empty() bool { return r.First > r.Last }

// Len returns the number of ids in the range.
func (r IDRange) Len() int {
	if r.Empty() {
		return 0
	}
	return int(r.Last - r.First + 1)
}

// GenRunID generates a time-ordered id for an indexing run.
func GenRunID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
