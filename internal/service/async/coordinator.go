// Package async accepts single items for background transcription and
// reports each accepted item's outcome exactly once.
package async

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vibe-transcriber-service/internal/apperr"
	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability/logging"
	"vibe-transcriber-service/internal/observability/metrics"
	"vibe-transcriber-service/internal/service/asr"
	"vibe-transcriber-service/internal/service/pipeline"
	"vibe-transcriber-service/internal/service/status"
)

const acceptedMessage = "Processing started in background"

// Processor runs one work item.
type Processor interface {
	Process(ctx context.Context, origin pipeline.Origin, item models.WorkItem, provider asr.Provider) pipeline.ItemResult
}

// Publisher emits terminal events.
type Publisher interface {
	PublishTerminal(ctx context.Context, ev models.TerminalEvent) error
}

// Coordinator runs accepted items in the background. Accepted work is never
// cancelled by the caller; Drain waits for it at shutdown.
type Coordinator struct {
	processor Processor
	provider  asr.Provider
	tracker   *status.Tracker
	publisher Publisher
	metrics   *metrics.Metrics
	log       zerolog.Logger

	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// New creates a coordinator. provider is the fixed provider for async work.
func New(p Processor, provider asr.Provider, tracker *status.Tracker, pub Publisher, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		processor: p,
		provider:  provider,
		tracker:   tracker,
		publisher: pub,
		metrics:   m,
		log:       logging.WithComponent("async"),
	}
}

// Provider returns the fixed async provider.
func (c *Coordinator) Provider() asr.Provider {
	return c.provider
}

// Validate checks that every field of req is present.
func Validate(req models.AsyncRequest) error {
	const op = "async.validate"
	var missing []string
	if strings.TrimSpace(req.FileRef) == "" {
		missing = append(missing, "file_path")
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		missing = append(missing, "device_id")
	}
	if req.RecordedAt.IsZero() {
		missing = append(missing, "recorded_at")
	}
	if len(missing) > 0 {
		return apperr.Errorf(apperr.KindInvalidRequest, op, "missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Accept marks the item processing and starts background work. It performs
// no storage or ASR I/O; the only synchronous write is the best-effort
// status update.
func (c *Coordinator) Accept(ctx context.Context, req models.AsyncRequest) (models.AcceptAck, error) {
	if err := Validate(req); err != nil {
		return models.AcceptAck{}, err
	}
	if req.RecordedAtRaw == "" {
		req.RecordedAtRaw = models.FormatTimestamp(req.RecordedAt)
	}

	item := req.WorkItem()
	jobID := uuid.NewString()
	lc := status.NewLifecycle(item.Key())

	c.tracker.SetBestEffort(ctx, item.Key(), models.StatusProcessing)
	if err := lc.Start(); err != nil {
		return models.AcceptAck{}, apperr.E(apperr.KindInternal, "async.accept", err)
	}

	c.wg.Add(1)
	c.inFlight.Add(1)
	c.metrics.RecordAsyncStart()
	go c.run(context.WithoutCancel(ctx), jobID, lc, req)

	c.log.Info().
		Str("jobId", jobID).
		Str("fileRef", req.FileRef).
		Str("deviceId", req.DeviceID).
		Str("recordedAt", req.RecordedAtRaw).
		Msg("Async item accepted")

	return models.AcceptAck{
		Status:     "accepted",
		Message:    acceptedMessage,
		DeviceID:   req.DeviceID,
		RecordedAt: req.RecordedAtRaw,
	}, nil
}

func (c *Coordinator) run(ctx context.Context, jobID string, lc *status.Lifecycle, req models.AsyncRequest) {
	defer c.wg.Done()
	defer c.inFlight.Add(-1)
	defer c.metrics.RecordAsyncEnd()

	logger := c.log.With().Str("jobId", jobID).Str("key", lc.Key().String()).Logger()
	final := models.StatusFailed
	var cause error

	defer func() {
		if r := recover(); r != nil {
			final = models.StatusFailed
			cause = apperr.E(apperr.KindInternal, "async.run", fmt.Errorf("panic: %v", r))
		}
		c.finish(ctx, logger, lc, req, final, cause)
	}()

	res := c.processor.Process(ctx, pipeline.OriginAsync, req.WorkItem(), c.provider)
	if res.Success {
		final = models.StatusCompleted
	} else {
		cause = res.Err
	}
}

// finish records the terminal status and publishes the single terminal
// event. A failed status write never suppresses the event.
func (c *Coordinator) finish(ctx context.Context, logger zerolog.Logger, lc *status.Lifecycle, req models.AsyncRequest, final models.ProcessingStatus, cause error) {
	if err := lc.Finish(final); err != nil {
		logger.Error().Err(err).Msg("Terminal status already recorded, not publishing again")
		return
	}

	c.tracker.SetBestEffort(ctx, lc.Key(), final)

	ev := models.TerminalEvent{
		DeviceID:    req.DeviceID,
		RecordedAt:  req.RecordedAtRaw,
		FeatureType: c.tracker.Feature(),
		Status:      final,
	}
	if final == models.StatusCompleted {
		ev.ProcessedFiles = []string{req.FileRef}
	} else if cause != nil {
		ev.Error = cause.Error()
	}

	c.publish(ctx, logger, ev)
}

func (c *Coordinator) publish(ctx context.Context, logger zerolog.Logger, ev models.TerminalEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Terminal event publish panicked")
		}
	}()
	if err := c.publisher.PublishTerminal(ctx, ev); err != nil {
		logger.Error().Err(err).Str("status", string(ev.Status)).Msg("Failed to publish terminal event")
		return
	}
	logger.Info().Str("status", string(ev.Status)).Msg("Terminal event published")
}

// InFlight returns the number of accepted items still running.
func (c *Coordinator) InFlight() int64 {
	return c.inFlight.Load()
}

// Drain waits for all accepted work to finish or for ctx to expire.
func (c *Coordinator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
