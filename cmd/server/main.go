// Interview probe server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"

	"github.com/ashureev/interview-probe/internal/api"
	"github.com/ashureev/interview-probe/internal/config"
	"github.com/ashureev/interview-probe/internal/interview"
	"github.com/ashureev/interview-probe/internal/middleware"
	"github.com/ashureev/interview-probe/internal/privacy"
	"github.com/ashureev/interview-probe/internal/questions"
	"github.com/ashureev/interview-probe/internal/store"
	"github.com/ashureev/interview-probe/internal/transcript"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server",
		"port", cfg.Port,
		"dev", cfg.IsDevelopment(),
		"session_store", cfg.SessionStore,
		"judge_backend", cfg.Judge.Backend)

	clk := clock.New()

	repo, err := openStore(cfg, clk)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}

	corpus, err := questions.Load(cfg.Interview.QuestionsFile)
	if err != nil {
		slog.Error("Failed to load question corpus", "error", err)
		os.Exit(1)
	}
	if !corpus.HasVariant(cfg.Interview.DefaultVariant) {
		slog.Error("DEFAULT_VARIANT is not defined in the question corpus",
			"variant", cfg.Interview.DefaultVariant,
			"available", corpus.VariantNames())
		os.Exit(1)
	}
	slog.Info("Question corpus loaded", "variants", corpus.VariantNames(), "background", len(corpus.Background))

	j, err := buildJudge(context.Background(), cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize judge", "error", err)
		os.Exit(1)
	}
	defer j.close()

	var redactor *privacy.PatternRedactor
	var transcriptRedactor privacy.Redactor
	if cfg.ConversationLog.RedactPII {
		redactor = privacy.NewPatternRedactor()
		transcriptRedactor = redactor
	}
	conversationLogger, err := transcript.NewConversationLogger(transcript.ConversationLogConfig{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, transcriptRedactor, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Warn("Failed to close conversation logger", "error", closeErr)
		}
	}()

	controller := interview.NewController(j.auditor, j.generator, interview.Options{
		MaxFollowUpDepth:     cfg.Interview.MaxFollowUpDepth,
		MaxFollowUpsPerRound: cfg.Interview.MaxFollowUpsPerRound,
		AuditTimeout:         cfg.Interview.AuditTimeout,
		FailurePolicy:        interview.FailurePolicy(cfg.Interview.FailurePolicy),
	}, logger)
	if controller.Options().FailurePolicy == interview.FailOpen {
		slog.Warn("Judge failures will advance the interview without an audit",
			"policy", interview.FailOpen,
			"audit_timeout", cfg.Interview.AuditTimeout)
	}

	deps := interview.ServiceDeps{
		Repo:           repo,
		Locker:         store.NewSessionLocker(),
		Controller:     controller,
		Composer:       interview.NewComposer(),
		Corpus:         corpus,
		DefaultVariant: cfg.Interview.DefaultVariant,
		Transcript:     conversationLogger,
		Clock:          clk,
		Logger:         logger,
	}
	if redactor != nil {
		deps.Redaction = redactor
	}
	svc := interview.NewService(deps)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration, clk)
	defer limiter.Stop()

	handler := api.NewHandler(api.Deps{
		Service:     svc,
		Repo:        repo,
		Config:      cfg,
		JudgeName:   j.name,
		JudgeHealth: j.health,
		Limiter:     limiter,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Interview.AuditTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeperDone := startSweeper(ctx, cfg, repo, clk, svc.ForgetSessions)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	<-sweeperDone

	slog.Info("Server stopped successfully")
}

func openStore(cfg *config.Config, clk clock.Clock) (store.Repository, error) {
	switch cfg.SessionStore {
	case config.StoreSQLite:
		return store.NewSQLite(cfg.DBPath, clk)
	default:
		return store.NewMemoryStore(clk), nil
	}
}

// startSweeper evicts idle sessions when SESSION_TTL is set and hands their IDs
// to onEvict. The returned channel is closed once the sweeper has stopped.
func startSweeper(ctx context.Context, cfg *config.Config, repo store.Repository, clk clock.Clock, onEvict store.EvictCallback) <-chan struct{} {
	if cfg.SessionTTL <= 0 {
		done := make(chan struct{})
		close(done)
		return done
	}
	interval := store.DefaultSweepInterval
	if cfg.SessionTTL < interval {
		interval = cfg.SessionTTL
	}
	return store.StartSweeper(ctx, repo, store.SweeperConfig{
		TTL:      cfg.SessionTTL,
		Interval: interval,
		Clock:    clk,
		OnEvict:  onEvict,
	})
}
