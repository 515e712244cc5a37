// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/interview-probe/internal/domain"
)

// ErrStaleSession is returned when a save would move a session's step backwards.
var ErrStaleSession = errors.New("stale session write")

// Repository persists interview sessions keyed by session ID.
type Repository interface {
	// Load returns a copy of the stored session. An unknown ID yields a fresh
	// INTRO session; absence is not an error.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Save overwrites the stored session with a copy of s.
	Save(ctx context.Context, s *domain.Session) error

	// Delete removes one session and reports whether it existed.
	Delete(ctx context.Context, sessionID string) (bool, error)

	// DeleteIdle removes sessions not updated since cutoff and returns their IDs.
	DeleteIdle(ctx context.Context, cutoff time.Time) ([]string, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
