package store

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrBusy is returned when the database stayed locked by another
	// writer past the busy timeout. Callers may retry.
	ErrBusy = errors.New("index store is busy")

	// ErrNotFound is returned when a session or message does not exist.
	ErrNotFound = errors.New("not found")
)

// IsBusy reports whether err is a lock-contention failure.
func IsBusy(err error) bool {
	if errors.Is(err, ErrBusy) {
		return true
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

// classify wraps lock contention in ErrBusy and passes other errors through.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrBusy) {
		return err
	}
	if IsBusy(err) {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}
