package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	busyRetries   = 3
	busyBaseDelay = 50 * time.Millisecond
)

// isBusy reports whether err is a SQLite concurrency error worth retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withBusyRetry runs op, retrying with exponential backoff while SQLite
// reports the database as busy or locked.
func withBusyRetry(ctx context.Context, name string, op func() error) error {
	var err error
	for i := range busyRetries {
		err = op()
		if err == nil {
			return nil
		}
		if !isBusy(err) || i == busyRetries-1 {
			break
		}

		delay := busyBaseDelay << i
		slog.Debug("session store busy, retrying", "op", name, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
	}
	return err
}
