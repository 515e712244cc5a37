// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Judge backends.
const (
	JudgeHeuristic = "heuristic"
	JudgeGrpc      = "grpc"
	JudgeGemini    = "gemini"
)

// Failure policies applied when the judge cannot produce a verdict.
const (
	FailOpen   = "fail_open"
	FailClosed = "fail_closed"
)

// MaxFollowUpsPerRoundLimit is the hard upper bound for MAX_FOLLOWUPS_PER_ROUND.
const MaxFollowUpsPerRoundLimit = 3

// Config holds all application configuration.
type Config struct {
	Port            string
	CORSOrigins     []string
	SessionStore    string // "memory" or "sqlite"
	DBPath          string
	SessionTTL      time.Duration // 0 disables the idle-session sweeper
	Interview       InterviewConfig
	Judge           JudgeConfig
	RateLimit       RateLimitConfig
	HTTP            HTTPConfig
	ConversationLog ConversationLogConfig
}

// InterviewConfig controls question flow.
type InterviewConfig struct {
	MaxFollowUpDepth     int // K
	MaxFollowUpsPerRound int // K'
	AuditTimeout         time.Duration
	FailurePolicy        string
	QuestionsFile        string // empty = embedded corpus
	DefaultVariant       string
}

// JudgeConfig selects and configures the sufficiency judge.
type JudgeConfig struct {
	Backend              string
	GrpcAddr             string
	GeminiAPIKey         string
	GeminiModel          string
	MinWords             int
	MinSentences         int
	MinConcrete          int
	MinProceedConfidence float64
}

// RateLimitConfig controls per-session request throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// HTTPConfig holds request limits.
type HTTPConfig struct {
	MaxRequestBodySize int64
	MaxMessageLength   int
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
	RedactPII     bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		CORSOrigins:  getEnvList("CORS_ORIGINS", []string{"*"}),
		SessionStore: strings.ToLower(getEnv("SESSION_STORE", StoreMemory)),
		DBPath:       getEnv("DB_PATH", "./data/interviews.db"),
		SessionTTL:   getEnvDuration("SESSION_TTL", 24*time.Hour),
		Interview: InterviewConfig{
			MaxFollowUpDepth:     getEnvInt("MAX_FOLLOWUP_DEPTH", 3),
			MaxFollowUpsPerRound: getEnvInt("MAX_FOLLOWUPS_PER_ROUND", 1),
			AuditTimeout:         getEnvDuration("AUDIT_TIMEOUT", 15*time.Second),
			FailurePolicy:        strings.ToLower(getEnv("AUDIT_FAILURE_POLICY", FailOpen)),
			QuestionsFile:        getEnv("QUESTIONS_FILE", ""),
			DefaultVariant:       getEnv("DEFAULT_VARIANT", "neutral"),
		},
		Judge: JudgeConfig{
			Backend:              strings.ToLower(getEnv("JUDGE_BACKEND", JudgeHeuristic)),
			GrpcAddr:             getEnv("JUDGE_GRPC_ADDR", "localhost:50051"),
			GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
			GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			MinWords:             getEnvInt("JUDGE_MIN_WORDS", 25),
			MinSentences:         getEnvInt("JUDGE_MIN_SENTENCES", 2),
			MinConcrete:          getEnvInt("JUDGE_MIN_CONCRETE_SIGNALS", 2),
			MinProceedConfidence: getEnvFloat("JUDGE_PROCEED_CONFIDENCE", 0.7),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		HTTP: HTTPConfig{
			MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
			MaxMessageLength:   getEnvInt("MAX_MESSAGE_LENGTH", 8000),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
			RedactPII:     getEnvBool("CONVERSATION_LOG_REDACT_PII", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no environment is set.
// Validation is not applied.
func Default() *Config {
	return &Config{
		Port:         "8080",
		CORSOrigins:  []string{"*"},
		SessionStore: StoreMemory,
		DBPath:       "./data/interviews.db",
		SessionTTL:   24 * time.Hour,
		Interview: InterviewConfig{
			MaxFollowUpDepth:     3,
			MaxFollowUpsPerRound: 1,
			AuditTimeout:         15 * time.Second,
			FailurePolicy:        FailOpen,
			DefaultVariant:       "neutral",
		},
		Judge: JudgeConfig{
			Backend:              JudgeHeuristic,
			GrpcAddr:             "localhost:50051",
			GeminiModel:          "gemini-2.5-flash",
			MinWords:             25,
			MinSentences:         2,
			MinConcrete:          2,
			MinProceedConfidence: 0.7,
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: 30,
			WindowDuration:    time.Minute,
		},
		HTTP: HTTPConfig{
			MaxRequestBodySize: 1 << 20,
			MaxMessageLength:   8000,
		},
		ConversationLog: ConversationLogConfig{
			Dir:        "./data/logs/conversations",
			GlobalPath: "./data/logs/conversations/all.ndjson",
			QueueSize:  1000,
			RedactPII:  true,
		},
	}
}

// Validate checks that all required configuration fields are set.
//
//nolint:gocyclo // Flat list of independent checks.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.SessionStore {
	case StoreMemory:
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty when SESSION_STORE=sqlite")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", StoreMemory, StoreSQLite, c.SessionStore)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must be >= 0")
	}
	if c.Interview.MaxFollowUpDepth < 0 {
		return fmt.Errorf("MAX_FOLLOWUP_DEPTH must be >= 0")
	}
	if c.Interview.MaxFollowUpsPerRound < 1 || c.Interview.MaxFollowUpsPerRound > MaxFollowUpsPerRoundLimit {
		return fmt.Errorf("MAX_FOLLOWUPS_PER_ROUND must be between 1 and %d", MaxFollowUpsPerRoundLimit)
	}
	if c.Interview.AuditTimeout <= 0 {
		return fmt.Errorf("AUDIT_TIMEOUT must be > 0")
	}
	if c.Interview.FailurePolicy != FailOpen && c.Interview.FailurePolicy != FailClosed {
		return fmt.Errorf("AUDIT_FAILURE_POLICY must be %q or %q", FailOpen, FailClosed)
	}
	switch c.Judge.Backend {
	case JudgeHeuristic:
	case JudgeGrpc:
		if c.Judge.GrpcAddr == "" {
			return fmt.Errorf("JUDGE_GRPC_ADDR cannot be empty when JUDGE_BACKEND=grpc")
		}
	case JudgeGemini:
		if c.Judge.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY cannot be empty when JUDGE_BACKEND=gemini")
		}
	default:
		return fmt.Errorf("unknown JUDGE_BACKEND %q", c.Judge.Backend)
	}
	if c.Judge.MinProceedConfidence < 0 || c.Judge.MinProceedConfidence > 1 {
		return fmt.Errorf("JUDGE_PROCEED_CONFIDENCE must be within [0,1]")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.HTTP.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if CORS is wide open, which only makes sense locally.
func (c *Config) IsDevelopment() bool {
	for _, o := range c.CORSOrigins {
		if o == "*" || strings.Contains(o, "localhost") || strings.Contains(o, "127.0.0.1") {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
