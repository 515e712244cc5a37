package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashureev/interview-probe/internal/domain"
)

// Judge sidecar RPC names. Requests and replies are google.protobuf.Struct.
const (
	JudgeServiceName = "interview.judge.v1.Judge"
	auditMethod      = "/" + JudgeServiceName + "/Audit"
	followUpsMethod  = "/" + JudgeServiceName + "/GenerateFollowUps"
)

const defaultJudgeAddr = "localhost:50051"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errJudgeNotServing          = errors.New("judge service not serving")
)

// GrpcJudgeConfig holds configuration for the gRPC judge client.
type GrpcJudgeConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
	MinConfidence    float64
	DialOptions      []grpc.DialOption
}

// DefaultGrpcJudgeConfig returns default configuration.
func DefaultGrpcJudgeConfig() GrpcJudgeConfig {
	return GrpcJudgeConfig{
		Address:          defaultJudgeAddr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
		MinConfidence:    0.7,
	}
}

// GrpcJudge talks to a remote judge sidecar. It implements Auditor,
// FollowUpGenerator and HealthChecker.
type GrpcJudge struct {
	conn          *grpc.ClientConn
	health        grpc_health_v1.HealthClient
	addr          string
	minConfidence float64
	logger        *slog.Logger
}

// NewGrpcJudge connects to the judge sidecar and fails fast if it is not serving.
func NewGrpcJudge(cfg GrpcJudgeConfig, logger *slog.Logger) (*GrpcJudge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultGrpcJudgeConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = def.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = def.KeepaliveTimeout
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create judge client for %s: %w", cfg.Address, err)
	}

	j := &GrpcJudge{
		conn:          conn,
		health:        grpc_health_v1.NewHealthClient(conn),
		addr:          cfg.Address,
		minConfidence: cfg.MinConfidence,
		logger:        logger,
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		j.Close()
		return nil, fmt.Errorf("judge at %s not ready: %w", cfg.Address, err)
	}
	if err := j.Health(connectCtx); err != nil {
		j.Close()
		return nil, err
	}

	logger.Info("Connected to judge service", "address", cfg.Address)
	return j, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (j *GrpcJudge) Close() {
	if j.conn != nil {
		if err := j.conn.Close(); err != nil {
			j.logger.Warn("failed to close judge connection", "error", err)
		}
	}
}

// Health checks the sidecar through the standard gRPC health service.
func (j *GrpcJudge) Health(ctx context.Context) error {
	resp, err := j.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: JudgeServiceName})
	if err != nil {
		return fmt.Errorf("judge health check failed: %w", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", errJudgeNotServing, resp.GetStatus())
	}
	return nil
}

// Audit asks the sidecar for a sufficiency verdict.
func (j *GrpcJudge) Audit(ctx context.Context, in AuditInput) (domain.AuditResult, error) {
	prior := make([]any, 0, len(in.Prior))
	for _, ex := range in.Prior {
		prior = append(prior, map[string]any{"question": ex.Question, "answer": ex.Answer})
	}
	req, err := structpb.NewStruct(map[string]any{
		"question":      in.Question,
		"main_question": in.MainQuestion,
		"answer":        in.Answer,
		"prior":         prior,
		"background":    in.Background,
	})
	if err != nil {
		return domain.AuditResult{}, fmt.Errorf("%w: encode request: %w", ErrAuditUnavailable, err)
	}

	reply := &structpb.Struct{}
	if err := j.conn.Invoke(ctx, auditMethod, req, reply); err != nil {
		return domain.AuditResult{}, j.rpcError("audit", err)
	}

	fields := reply.GetFields()
	proceed, ok := fields["should_proceed"]
	if !ok {
		return domain.AuditResult{}, fmt.Errorf("%w: %w: missing should_proceed", ErrAuditUnavailable, errMalformedVerdict)
	}
	result := domain.AuditResult{
		ShouldProceed:  proceed.GetBoolValue(),
		Confidence:     fields["confidence"].GetNumberValue(),
		Reason:         fields["reason"].GetStringValue(),
		GapsIdentified: stringList(fields["gaps"]),
	}
	return applyMinConfidence(result, j.minConfidence), nil
}

// Generate asks the sidecar for follow-up questions.
func (j *GrpcJudge) Generate(ctx context.Context, in FollowUpInput) ([]string, error) {
	req, err := structpb.NewStruct(map[string]any{
		"main_question": in.MainQuestion,
		"question":      in.Question,
		"answer":        in.Answer,
		"gaps":          toAnyList(in.Gaps),
		"already_asked": toAnyList(in.AlreadyAsked),
		"max":           in.Max,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %w", ErrFollowUpGeneration, err)
	}

	reply := &structpb.Struct{}
	if err := j.conn.Invoke(ctx, followUpsMethod, req, reply); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFollowUpGeneration, j.rpcError("generate follow-ups", err))
	}

	out := sanitizeFollowUps(stringList(reply.GetFields()["questions"]), in.AlreadyAsked, in.Max)
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: judge returned no usable questions", ErrFollowUpGeneration)
	}
	return out, nil
}

func (j *GrpcJudge) rpcError(op string, err error) error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s: %w", ErrAuditTimeout, op, err)
	case codes.Canceled:
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s: %w", ErrAuditTimeout, op, err)
		}
	}
	j.logger.Debug("judge rpc failed", "op", op, "address", j.addr, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrAuditUnavailable, op, err)
}

func stringList(v *structpb.Value) []string {
	values := v.GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, item := range values {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toAnyList(items []string) []any {
	out := make([]any, len(items))
	for i, s := range items {
		out[i] = s
	}
	return out
}
