package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	_ "modernc.org/sqlite"

	"github.com/ashureev/interview-probe/internal/domain"
)

// SQLiteStore implements Repository using SQLite. Each session is one row
// holding its JSON-encoded state.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string, clk clock.Clock) (*SQLiteStore, error) {
	if clk == nil {
		clk = clock.New()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets readers proceed while a turn is being saved.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, clock: clk}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS interview_sessions (
		session_id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		step INTEGER NOT NULL,
		state_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interview_sessions_updated ON interview_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load retrieves a session, or a fresh one if the ID is unknown.
func (s *SQLiteStore) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	var stateJSON string
	err := withBusyRetry(ctx, "load session", func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT state_json FROM interview_sessions WHERE session_id = ?`, sessionID,
		).Scan(&stateJSON)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewSession(sessionID, s.clock.Now()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(stateJSON), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

// Save upserts the session. A write carrying a lower step than the stored
// row is rejected with ErrStaleSession.
func (s *SQLiteStore) Save(ctx context.Context, session *domain.Session) error {
	stateJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	query := `
	INSERT INTO interview_sessions (session_id, phase, step, state_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		phase = excluded.phase,
		step = excluded.step,
		state_json = excluded.state_json,
		updated_at = excluded.updated_at
	WHERE excluded.step >= interview_sessions.step`

	var rows int64
	err = withBusyRetry(ctx, "save session", func() error {
		result, err := s.db.ExecContext(ctx, query,
			session.ID, string(session.Phase), session.Step, string(stateJSON),
			session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli(),
		)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s at step %d", ErrStaleSession, session.ID, session.Step)
	}
	return nil
}

// Delete removes the session row with the given ID.
func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) (bool, error) {
	var rows int64
	err := withBusyRetry(ctx, "delete session", func() error {
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM interview_sessions WHERE session_id = ?`, sessionID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return rows > 0, nil
}

// DeleteIdle removes sessions not updated since cutoff.
func (s *SQLiteStore) DeleteIdle(ctx context.Context, cutoff time.Time) ([]string, error) {
	var deleted []string
	err := withBusyRetry(ctx, "delete idle sessions", func() error {
		rows, err := s.db.QueryContext(ctx,
			`DELETE FROM interview_sessions WHERE updated_at < ? RETURNING session_id`, cutoff.UnixMilli())
		if err != nil {
			return err
		}
		defer rows.Close()

		deleted = deleted[:0]
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			deleted = append(deleted, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("delete idle sessions: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
