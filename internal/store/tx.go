package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Tx is a write transaction handed out by Store.WithTx.
type Tx struct {
	tx *sqlx.Tx
}

// FileState returns the stored scan state of a transcript file, or nil when
// the file has never been indexed.
func (t *Tx) FileState(ctx context.Context, path string) (*IndexedFile, error) {
	var f IndexedFile
	err := t.tx.GetContext(ctx, &f,
		`SELECT path, size, byte_offset, head_hash, indexed_at FROM indexed_files WHERE path = ?`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file state: %w", err)
	}
	return &f, nil
}

// PutFileState records how far a file has been consumed.
func (t *Tx) PutFileState(ctx context.Context, f IndexedFile) error {
	if f.IndexedAt == "" {
		f.IndexedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO indexed_files (path, size, byte_offset, head_hash, indexed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			byte_offset = excluded.byte_offset,
			head_hash = excluded.head_hash,
			indexed_at = excluded.indexed_at`,
		f.Path, f.Size, f.ByteOffset, f.HeadHash, f.IndexedAt)
	if err != nil {
		return fmt.Errorf("put file state: %w", err)
	}
	return nil
}

// UpsertSession creates a session or merges a delta into it. Timestamps
// widen, message_count accumulates and the nullable fields keep the first
// non-null value ever written.
func (t *Tx) UpsertSession(ctx context.Context, d SessionDelta) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO sessions
			(session_id, project_dir, slug, first_timestamp, last_timestamp, message_count, git_branch, cwd)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			project_dir = COALESCE(sessions.project_dir, excluded.project_dir),
			slug = COALESCE(sessions.slug, excluded.slug),
			first_timestamp = MIN(COALESCE(sessions.first_timestamp, excluded.first_timestamp),
			                      COALESCE(excluded.first_timestamp, sessions.first_timestamp)),
			last_timestamp = MAX(COALESCE(sessions.last_timestamp, excluded.last_timestamp),
			                     COALESCE(excluded.last_timestamp, sessions.last_timestamp)),
			message_count = sessions.message_count + excluded.message_count,
			git_branch = COALESCE(sessions.git_branch, excluded.git_branch),
			cwd = COALESCE(sessions.cwd, excluded.cwd)`,
		d.SessionID, nullable(d.ProjectDir), nullable(d.Slug),
		nullable(d.FirstTimestamp), nullable(d.LastTimestamp), d.MessageCount,
		nullable(d.GitBranch), nullable(d.CWD))
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", d.SessionID, err)
	}
	return nil
}

// InsertMessages appends messages in order and returns the exact id range
// they were assigned. The write lock is held for the whole transaction, so
// the ids are contiguous.
func (t *Tx) InsertMessages(ctx context.Context, msgs []NewMessage) (IDRange, error) {
	r := IDRange{First: 1, Last: 0}
	if len(msgs) == 0 {
		return r, nil
	}
	stmt, err := t.tx.PreparexContext(ctx,
		`INSERT INTO messages (session_id, role, content, timestamp, model, source_path)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return r, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		res, err := stmt.ExecContext(ctx, m.SessionID, string(m.Role), m.Content, m.Timestamp, nullable(m.Model), m.SourcePath)
		if err != nil {
			return IDRange{First: 1, Last: 0}, fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return IDRange{First: 1, Last: 0}, fmt.Errorf("insert message id: %w", err)
		}
		if i == 0 {
			r.First = id
		}
		r.Last = id
	}
	if r.Len() != len(msgs) {
		return IDRange{First: 1, Last: 0}, fmt.Errorf("insert messages: non-contiguous ids %d..%d for %d rows", r.First, r.Last, len(msgs))
	}
	return r, nil
}

// MaxMessageID returns the highest message id currently stored, 0 if none.
func (t *Tx) MaxMessageID(ctx context.Context) (int64, error) {
	var id int64
	if err := t.tx.GetContext(ctx, &id, `SELECT COALESCE(MAX(id), 0) FROM messages`); err != nil {
		return 0, fmt.Errorf("max message id: %w", err)
	}
	return id, nil
}

// InvalidateFile deletes every message previously read from path, together
// with its message tags. Sessions that lost rows get message_count and
// their timestamps recomputed from the messages that remain, and their auto
// session tags dropped so the caller can re-tag them. It returns the
// affected session ids and the number of messages removed.
func (t *Tx) InvalidateFile(ctx context.Context, path string) ([]string, int64, error) {
	var sessions []string
	if err := t.tx.SelectContext(ctx, &sessions,
		`SELECT DISTINCT session_id FROM messages WHERE source_path = ?`, path); err != nil {
		return nil, 0, fmt.Errorf("find file sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, 0, nil
	}

	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM message_tags WHERE message_id IN (SELECT id FROM messages WHERE source_path = ?)`, path); err != nil {
		return nil, 0, fmt.Errorf("delete file message tags: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM messages WHERE source_path = ?`, path)
	if err != nil {
		return nil, 0, fmt.Errorf("delete file messages: %w", err)
	}
	removed, _ := res.RowsAffected()

	query, args, err := sqlx.In(
		`UPDATE sessions SET
			message_count = (SELECT COUNT(*) FROM messages WHERE messages.session_id = sessions.session_id),
			first_timestamp = (SELECT MIN(NULLIF(timestamp, '')) FROM messages WHERE messages.session_id = sessions.session_id),
			last_timestamp = (SELECT MAX(NULLIF(timestamp, '')) FROM messages WHERE messages.session_id = sessions.session_id)
		 WHERE session_id IN (?)`, sessions)
	if err != nil {
		return nil, 0, fmt.Errorf("build session update: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("recompute sessions: %w", err)
	}

	query, args, err = sqlx.In(
		`DELETE FROM session_tags WHERE source = 'auto' AND session_id IN (?)`, sessions)
	if err != nil {
		return nil, 0, fmt.Errorf("build session tag delete: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("delete auto session tags: %w", err)
	}
	return sessions, removed, nil
}

// MessagesInRange loads the messages with ids in r, in id order.
func (t *Tx) MessagesInRange(ctx context.Context, r IDRange) ([]Message, error) {
	if r.Empty() {
		return nil, nil
	}
	var msgs []Message
	err := t.tx.SelectContext(ctx, &msgs,
		`SELECT id, session_id, role, content, timestamp, model, source_path
		 FROM messages WHERE id BETWEEN ? AND ? ORDER BY id`, r.First, r.Last)
	if err != nil {
		return nil, fmt.Errorf("load message range: %w", err)
	}
	return msgs, nil
}

// SessionMessages loads a session's messages with one of the given roles,
// in id order. No roles means all roles.
func (t *Tx) SessionMessages(ctx context.Context, sessionID string, roles ...Role) ([]Message, error) {
	query := `SELECT id, session_id, role, content, timestamp, model, source_path
		FROM messages WHERE session_id = ?`
	args := []any{sessionID}
	if len(roles) > 0 {
		q, a, err := sqlx.In(query+` AND role IN (?)`, sessionID, roles)
		if err != nil {
			return nil, fmt.Errorf("build session messages: %w", err)
		}
		query, args = q, a
	}
	var msgs []Message
	if err := t.tx.SelectContext(ctx, &msgs, t.tx.Rebind(query+` ORDER BY id`), args...); err != nil {
		return nil, fmt.Errorf("load session messages: %w", err)
	}
	return msgs, nil
}

// AddMessageTag attaches a tag to a message. Existing tags are left as is.
func (t *Tx) AddMessageTag(ctx context.Context, id int64, tag string, src TagSource) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_tags (message_id, tag, source) VALUES (?, ?, ?)`,
		id, tag, string(src))
	if err != nil {
		return fmt.Errorf("add message tag: %w", err)
	}
	return nil
}

// AddSessionTag attaches a tag to a session. Existing tags are left as is.
func (t *Tx) AddSessionTag(ctx context.Context, sessionID, tag string, src TagSource) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO session_tags (session_id, tag, source) VALUES (?, ?, ?)`,
		sessionID, tag, string(src))
	if err != nil {
		return fmt.Errorf("add session tag: %w", err)
	}
	return nil
}

// MessageExists reports whether a message id is stored.
func (t *Tx) MessageExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := t.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("check message: %w", err)
	}
	return n > 0, nil
}

// SessionExists reports whether a session id is stored.
func (t *Tx) SessionExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := t.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM sessions WHERE session_id = ?`, id); err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}

// GetSession loads one session inside the transaction.
func (t *Tx) GetSession(ctx context.Context, id string) (*Session, error) {
	return getSession(ctx, t.tx, id)
}

// MessageTags lists a message's tags inside the transaction.
func (t *Tx) MessageTags(ctx context.Context, id int64) ([]Tag, error) {
	return messageTags(ctx, t.tx, id)
}

// SessionTags lists a session's tags inside the transaction.
func (t *Tx) SessionTags(ctx context.Context, id string) ([]Tag, error) {
	return sessionTags(ctx, t.tx, id)
}

// Reset clears everything a full reindex rebuilds. Manual session tags are
// kept because session ids are stable; message tags are not, since message
// ids are reassigned.
func (t *Tx) Reset(ctx context.Context) error {
	stmts := []string{
		`DELETE FROM message_tags`,
		`DELETE FROM session_tags WHERE source = 'auto'`,
		`DELETE FROM messages`,
		`DELETE FROM sessions`,
		`DELETE FROM indexed_files`,
		`DELETE FROM sqlite_sequence WHERE name = 'messages'`,
		`INSERT INTO messages_fts(messages_fts) VALUES ('rebuild')`,
	}
	for _, stmt := range stmts {
		if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("reset %q: %w", stmt[:min(len(stmt), 40)], err)
		}
	}
	return nil
}

func getSession(ctx context.Context, q sqlx.QueryerContext, id string) (*Session, error) {
	var s Session
	err := sqlx.GetContext(ctx, q, &s,
		`SELECT session_id, project_dir, slug, first_timestamp, last_timestamp, message_count, git_branch, cwd
		 FROM sessions WHERE session_id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get session: %w", err))
	}
	return &s, nil
}

func messageTags(ctx context.Context, q sqlx.QueryerContext, id int64) ([]Tag, error) {
	tags := []Tag{}
	if err := sqlx.SelectContext(ctx, q, &tags,
		`SELECT tag, source FROM message_tags WHERE message_id = ? ORDER BY tag`, id); err != nil {
		return nil, classify(fmt.Errorf("list message tags: %w", err))
	}
	return tags, nil
}

func sessionTags(ctx context.Context, q sqlx.QueryerContext, id string) ([]Tag, error) {
	tags := []Tag{}
	if err := sqlx.SelectContext(ctx, q, &tags,
		`SELECT tag, source FROM session_tags WHERE session_id = ? ORDER BY tag`, id); err != nil {
		return nil, classify(fmt.Errorf("list session tags: %w", err))
	}
	return tags, nil
}
