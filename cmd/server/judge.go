package main

import (
	"context"
	"log/slog"

	"github.com/ashureev/interview-probe/internal/config"
	"github.com/ashureev/interview-probe/internal/judge"
)

// judgeSet is the auditor and generator pair the controller runs with.
type judgeSet struct {
	name      string
	auditor   judge.Auditor
	generator judge.FollowUpGenerator
	health    judge.HealthChecker
	close     func()
}

func heuristicJudge(cfg *config.Config) judgeSet {
	return judgeSet{
		name: config.JudgeHeuristic,
		auditor: judge.NewHeuristicAuditor(judge.HeuristicConfig{
			MinWords:     cfg.Judge.MinWords,
			MinSentences: cfg.Judge.MinSentences,
			MinConcrete:  cfg.Judge.MinConcrete,
		}),
		generator: judge.NewTemplateGenerator(),
		close:     func() {},
	}
}

// buildJudge connects the configured judge backend. A gRPC judge that cannot
// be reached at startup is replaced by the heuristic judge.
func buildJudge(ctx context.Context, cfg *config.Config, logger *slog.Logger) (judgeSet, error) {
	switch cfg.Judge.Backend {
	case config.JudgeGrpc:
		slog.Info("Connecting to judge service via gRPC", "address", cfg.Judge.GrpcAddr)
		gj, err := judge.NewGrpcJudge(judge.GrpcJudgeConfig{
			Address:       cfg.Judge.GrpcAddr,
			MinConfidence: cfg.Judge.MinProceedConfidence,
		}, logger)
		if err != nil {
			slog.Warn("Failed to connect to judge service, using heuristic judge", "error", err)
			set := heuristicJudge(cfg)
			set.name = config.JudgeHeuristic + " (grpc unavailable)"
			return set, nil
		}
		return judgeSet{
			name:      config.JudgeGrpc + ":" + cfg.Judge.GrpcAddr,
			auditor:   gj,
			generator: gj,
			health:    gj,
			close:     gj.Close,
		}, nil

	case config.JudgeGemini:
		gm, err := judge.NewGeminiJudge(ctx, judge.GeminiConfig{
			APIKey:        cfg.Judge.GeminiAPIKey,
			Model:         cfg.Judge.GeminiModel,
			MinConfidence: cfg.Judge.MinProceedConfidence,
		}, logger)
		if err != nil {
			return judgeSet{}, err
		}
		return judgeSet{
			name:      gm.Name(),
			auditor:   gm,
			generator: gm,
			close:     func() {},
		}, nil

	default:
		return heuristicJudge(cfg), nil
	}
}
