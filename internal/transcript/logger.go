// Package transcript writes interview conversations as NDJSON for later analysis.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/interview-probe/internal/privacy"
)

// Event types written by the interview service.
const (
	EventUserMessage     = "turn_user_message"
	EventBotReply        = "turn_bot_reply"
	EventSessionComplete = "session_complete"
)

// ConversationLogConfig controls where events are written.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// ConversationLogEvent is one NDJSON line.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	SessionID  string         `json:"session_id"`
	Step       int            `json:"step"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	Phase      string         `json:"phase,omitempty"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger accepts events without blocking the caller.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// NoopLogger discards every event.
type NoopLogger struct{}

// Log does nothing.
func (NoopLogger) Log(ConversationLogEvent) {}

// Close does nothing.
func (NoopLogger) Close() error { return nil }

type fileLogger struct {
	cfg      ConversationLogConfig
	redactor privacy.Redactor
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan ConversationLogEvent
	done   chan struct{}
	global *os.File
}

// NewConversationLogger starts a background writer. Content is passed through
// redactor before it is queued; a nil redactor stores text as given.
func NewConversationLogger(cfg ConversationLogConfig, redactor privacy.Redactor, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return NoopLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	l := &fileLogger{
		cfg:      cfg,
		redactor: redactor,
		logger:   logger,
		queue:    make(chan ConversationLogEvent, cfg.QueueSize),
		done:     make(chan struct{}),
	}

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	go l.run()
	return l, nil
}

func (l *fileLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if l.redactor != nil {
		event.ContentRaw = l.redactor.Redact(event.SessionID, event.ContentRaw)
		if event.Content != "" {
			event.Content = l.redactor.Redact(event.SessionID, event.Content)
		}
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"session_id", event.SessionID,
			"event_type", event.EventType)
	}
}

func (l *fileLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.logger.Warn("failed to encode conversation log event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.cfg.Enabled {
			if err := l.appendSessionLine(event.SessionID, line); err != nil {
				l.logger.Warn("failed to write conversation log", "session_id", event.SessionID, "error", err)
			}
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.logger.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileLogger) appendSessionLine(sessionID string, line []byte) error {
	path := filepath.Join(l.cfg.Dir, safeFileName(sessionID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Close flushes queued events and stops the writer.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	if l.global != nil {
		if err := l.global.Close(); err != nil {
			return fmt.Errorf("close global conversation log: %w", err)
		}
	}
	return nil
}

var (
	ansiRe     = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// cleanForReadability strips terminal escapes and control characters and
// collapses runs of whitespace.
func cleanForReadability(s string) string {
	s = ansiRe.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func safeFileName(id string) string {
	name := unsafeName.ReplaceAllString(id, "_")
	if name == "" {
		return "_"
	}
	return name
}
