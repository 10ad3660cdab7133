package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nextlevelbuilder/recall/internal/store"
)

// markerCacheSize bounds the number of parsed marker files kept in memory.
const markerCacheSize = 1024

// markerIDPattern restricts marker file stems to session-id shaped names so
// a stem can never name a path outside the markers directory.
var markerIDPattern = regexp.MustCompile(`^[a-f0-9][a-f0-9-]+[a-f0-9]$`)

// Marker is the content of a session marker file.
type Marker struct {
	Workstream string `json:"workstream"`
}

// Tag returns the session tag the marker asks for, "" if none.
func (m Marker) Tag() string {
	if strings.TrimSpace(m.Workstream) == "" {
		return ""
	}
	return "workstream:" + m.Workstream
}

type markerKey struct {
	path  string
	size  int64
	mtime int64
}

// Markers reads <dir>/<session_id>.json marker files written by external
// tools and applies them as auto session tags.
type Markers struct {
	dir   string
	cache *lru.Cache[markerKey, Marker]
}

// NewMarkers returns a marker reader for dir. An empty dir disables markers.
func NewMarkers(dir string) *Markers {
	cache, err := lru.New[markerKey, Marker](markerCacheSize)
	if err != nil {
		panic(err) // only fails for a non-positive size
	}
	return &Markers{dir: dir, cache: cache}
}

// Dir returns the markers directory.
func (m *Markers) Dir() string { return m.dir }

// Read loads the marker for a session. ok is false when the id is not
// marker-shaped or the file is missing or unreadable.
func (m *Markers) Read(sessionID string) (Marker, bool) {
	if m == nil || m.dir == "" || !markerIDPattern.MatchString(sessionID) {
		return Marker{}, false
	}
	path := filepath.Join(m.dir, sessionID+".json")
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to stat session marker", "path", path, "error", err)
		}
		return Marker{}, false
	}

	key := markerKey{path: path, size: info.Size(), mtime: info.ModTime().UnixNano()}
	if mk, ok := m.cache.Get(key); ok {
		return mk, true
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to read session marker", "path", path, "error", err)
		return Marker{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("failed to read session marker", "path", path, "error", err)
		return Marker{}, false
	}
	var mk Marker
	if ws, ok := raw["workstream"].(string); ok {
		mk.Workstream = ws
	}
	m.cache.Add(key, mk)
	return mk, true
}

// Apply tags each listed session from its marker file, if any. Returns the
// number of tags applied.
func (m *Markers) Apply(ctx context.Context, tx *store.Tx, sessionIDs []string) (int, error) {
	if m == nil || m.dir == "" {
		return 0, nil
	}
	n := 0
	for _, sid := range sessionIDs {
		mk, ok := m.Read(sid)
		if !ok || mk.Tag() == "" {
			continue
		}
		if err := tx.AddSessionTag(ctx, sid, mk.Tag(), store.SourceAuto); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// ApplyAll applies every marker file whose session is stored.
func (m *Markers) ApplyAll(ctx context.Context, tx *store.Tx) (int, error) {
	if m == nil || m.dir == "" {
		return 0, nil
	}
	paths, err := filepath.Glob(filepath.Join(m.dir, "*.json"))
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, p := range paths {
		sid := strings.TrimSuffix(filepath.Base(p), ".json")
		if !markerIDPattern.MatchString(sid) {
			continue
		}
		exists, err := tx.SessionExists(ctx, sid)
		if err != nil {
			return 0, err
		}
		if exists {
			ids = append(ids, sid)
		}
	}
	return m.Apply(ctx, tx, ids)
}
