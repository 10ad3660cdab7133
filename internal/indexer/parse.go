package indexer

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/recall/internal/store"
	"github.com/nextlevelbuilder/recall/internal/transcript"
)

// headHashBytes is how much of a file's consumed prefix is fingerprinted.
const headHashBytes = 4096

// parseResult is what one pass over a file produced.
type parseResult struct {
	messages []store.NewMessage
	sessions []*store.SessionDelta // in order of first appearance
	offset   int64                 // absolute offset after the last consumed line
	lines    int
	bad      int
}

// parseFile reads path from offset up to size and extracts messages and
// per-session metadata. A final line without a newline that does not decode
// is left for the next run.
func parseFile(ctx context.Context, path string, offset, size int64) (*parseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}

	projectDir := transcript.DecodeProjectDir(filepath.Base(filepath.Dir(path)))
	res := &parseResult{offset: offset}
	byID := make(map[string]*store.SessionDelta)

	r := bufio.NewReaderSize(io.LimitReader(f, size-offset), 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, readErr := r.ReadBytes('\n')
		if len(line) > 0 {
			terminated := line[len(line)-1] == '\n'
			entry, ok, decodeErr := decodeLine(line)
			if decodeErr != nil && !terminated {
				break
			}
			res.offset += int64(len(line))
			res.lines++
			if decodeErr != nil {
				res.bad++
			}
			if ok && entry.SessionID != "" {
				res.add(byID, entry, projectDir, path)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read %s: %w", path, readErr)
		}
	}
	return res, nil
}

func (res *parseResult) add(byID map[string]*store.SessionDelta, e transcript.Entry, projectDir, path string) {
	d, seen := byID[e.SessionID]
	if !seen {
		d = &store.SessionDelta{SessionID: e.SessionID, ProjectDir: projectDir}
		byID[e.SessionID] = d
		res.sessions = append(res.sessions, d)
	}
	d.Observe(e.Timestamp, e.Slug, e.GitBranch, e.CWD)

	for _, rec := range transcript.Extract(e) {
		res.messages = append(res.messages, store.NewMessage{
			SessionID:  e.SessionID,
			Role:       rec.Role,
			Content:    rec.Content,
			Timestamp:  rec.Timestamp,
			Model:      rec.Model,
			SourcePath: path,
		})
		d.MessageCount++
	}
}

// decodeLine returns ok=false for lines that are not entries at all (blank,
// not an object). A non-nil error means the line looked like an entry but
// could not be decoded.
func decodeLine(raw []byte) (transcript.Entry, bool, error) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 || line[0] != '{' {
		return transcript.Entry{}, false, nil
	}
	line = bytes.ToValidUTF8(line, []byte("�"))
	line = bytes.ReplaceAll(line, []byte{0}, nil)
	e, err := transcript.Decode(line)
	if err != nil {
		return transcript.Entry{}, false, err
	}
	return e, true, nil
}

// headHash fingerprints the first min(headHashBytes, n) bytes of path.
func headHash(path string, n int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, min(n, headHashBytes)); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
