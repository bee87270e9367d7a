// Package batch runs synchronous multi-item transcription requests.
package batch

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"vibe-transcriber-service/internal/apperr"
	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability/logging"
	"vibe-transcriber-service/internal/observability/metrics"
	"vibe-transcriber-service/internal/observability/tracing"
	"vibe-transcriber-service/internal/service/asr"
	"vibe-transcriber-service/internal/service/pipeline"
	"vibe-transcriber-service/internal/service/resolver"
)

// Processor runs one work item.
type Processor interface {
	Process(ctx context.Context, origin pipeline.Origin, item models.WorkItem, provider asr.Provider) pipeline.ItemResult
}

// Service orchestrates a batch: validate, select provider, resolve, process
// and aggregate.
type Service struct {
	resolver    *resolver.Resolver
	registry    *asr.Registry
	processor   Processor
	concurrency int
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// New creates a batch service. concurrency < 1 runs items sequentially.
func New(r *resolver.Resolver, reg *asr.Registry, p Processor, concurrency int, m *metrics.Metrics) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		resolver:    r,
		registry:    reg,
		processor:   p,
		concurrency: concurrency,
		metrics:     m,
		log:         logging.WithComponent("batch"),
	}
}

// Validate checks the request shape.
func Validate(req models.BatchRequest) error {
	const op = "batch.validate"
	switch req.Mode() {
	case models.BatchModeByDevice:
		if strings.TrimSpace(req.ByDevice.DeviceID) == "" || strings.TrimSpace(req.ByDevice.LocalDate) == "" {
			return apperr.Errorf(apperr.KindInvalidRequest, op, "device_id and local_date are both required")
		}
	case models.BatchModeExplicit:
		if len(req.Explicit.FileRefs) == 0 {
			return apperr.Errorf(apperr.KindInvalidRequest, op, "file_paths must not be empty")
		}
	default:
		return apperr.Errorf(apperr.KindInvalidRequest, op, "either device_id + local_date or file_paths is required")
	}
	return nil
}

// Run processes every resolved item. Item failures never abort siblings and
// never fail the batch; the returned error is reserved for request-level
// failures (invalid shape, unknown provider, catalog query failure).
func (s *Service) Run(ctx context.Context, req models.BatchRequest) (*models.BatchResult, error) {
	start := time.Now()

	if err := Validate(req); err != nil {
		return nil, err
	}
	provider, err := s.registry.Select(req.Provider, req.Model)
	if err != nil {
		return nil, err
	}

	mode := modeLabel(req.Mode())
	ctx, span := tracing.Tracer().Start(ctx, "batch.run", trace.WithAttributes(
		attribute.String("batch.mode", mode),
		attribute.String("asr.provider", asr.String(provider)),
	))
	defer span.End()

	resolution, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("batch.items", len(resolution.Items)),
		attribute.Int("batch.unresolved", len(resolution.Unresolved)),
	)

	s.log.Info().
		Str("mode", mode).
		Str("provider", asr.String(provider)).
		Int("items", len(resolution.Items)).
		Int("unresolved", len(resolution.Unresolved)).
		Int("concurrency", s.concurrency).
		Msg("Batch started")

	results := s.processAll(ctx, resolution.Items, provider)

	elapsed := time.Since(start)
	out := Aggregate(req, results, resolution.Unresolved, provider, elapsed)
	s.metrics.RecordBatch(mode, len(resolution.Unresolved), elapsed.Seconds())

	s.log.Info().
		Str("mode", mode).
		Int("total", out.Summary.TotalFiles).
		Int("processed", out.Summary.Processed).
		Int("errors", out.Summary.Errors).
		Float64("executionTimeSeconds", out.ExecutionTimeSeconds).
		Msg("Batch finished")
	return out, nil
}

// processAll runs items with bounded concurrency. Results keep item order.
func (s *Service) processAll(ctx context.Context, items []models.WorkItem, provider asr.Provider) []pipeline.ItemResult {
	results := make([]pipeline.ItemResult, len(items))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = s.processor.Process(ctx, pipeline.OriginBatch, item, provider)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func modeLabel(m models.BatchMode) string {
	switch m {
	case models.BatchModeByDevice:
		return "by_device"
	case models.BatchModeExplicit:
		return "explicit"
	default:
		return "none"
	}
}
