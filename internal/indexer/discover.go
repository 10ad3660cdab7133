package indexer

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// subagentDir holds side transcripts that duplicate their parent session.
const subagentDir = "subagents"

// CompileExcludes compiles exclude patterns. Patterns match slash-separated
// paths relative to the transcript root; "*" stops at "/" and "**" does not.
func CompileExcludes(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

// Discover returns every *.jsonl file under root in lexical order, skipping
// any directory named "subagents" and any path matching an exclude pattern.
// Unreadable directories are logged and skipped.
func Discover(root string, exclude ...glob.Glob) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			slog.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path != root && excluded(root, path, exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == subagentDir && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".jsonl") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func excluded(root, path string, exclude []glob.Glob) bool {
	if len(exclude) == 0 {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range exclude {
		if g.Match(rel) {
			return true
		}
	}
	return false
}
