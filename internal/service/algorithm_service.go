package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/internal/policy"
	"github.com/noah-isme/research-portal-api/pkg/compute"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

type algorithmRunner interface {
	Run(ctx context.Context, kind string, input json.RawMessage) (json.RawMessage, error)
	Kinds() []string
}

// AlgorithmService relays computation requests to the external scripts.
type AlgorithmService struct {
	runner  algorithmRunner
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAlgorithmService constructs an AlgorithmService.
func NewAlgorithmService(runner algorithmRunner, metrics *MetricsService, logger *zap.Logger) *AlgorithmService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlgorithmService{runner: runner, metrics: metrics, logger: logger}
}

// Kinds lists the supported algorithms in stable order.
func (s *AlgorithmService) Kinds() []string {
	kinds := s.runner.Kinds()
	sort.Strings(kinds)
	return kinds
}

// Run executes kind with a JSON object input and returns the script output.
func (s *AlgorithmService) Run(ctx context.Context, actor *models.JWTClaims, kind string, input json.RawMessage) (json.RawMessage, error) {
	if err := policy.Authorize(actor, policy.ActionRun, policy.Resource{Kind: models.KindAlgorithm}); err != nil {
		return nil, err
	}
	if !isJSONObject(input) {
		return nil, appErrors.Field("input", "must be a JSON object")
	}

	start := time.Now()
	output, err := s.runner.Run(ctx, kind, input)
	duration := time.Since(start)
	if err != nil {
		var failure *compute.Failure
		switch {
		case errors.Is(err, compute.ErrUnknownKind):
			return nil, appErrors.Field("kind", "unknown algorithm "+kind)
		case errors.As(err, &failure):
			s.metrics.ObserveAlgorithmRun(kind, "failed", duration)
			return nil, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, failure.Message)
		case errors.Is(err, context.DeadlineExceeded):
			s.metrics.ObserveAlgorithmRun(kind, "timeout", duration)
			return nil, appErrors.Wrap(err, appErrors.ErrComputation.Code, appErrors.ErrComputation.Status, "computation timed out")
		default:
			s.metrics.ObserveAlgorithmRun(kind, "error", duration)
			return nil, appErrors.Internal(err, "failed to run algorithm")
		}
	}
	s.metrics.ObserveAlgorithmRun(kind, "ok", duration)
	s.logger.Debug("algorithm completed", zap.String("kind", kind), zap.String("user_id", actor.UserID), zap.Duration("duration", duration))
	return output, nil
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	var fields map[string]json.RawMessage
	return json.Unmarshal(raw, &fields) == nil
}
