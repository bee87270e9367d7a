// Package pipeline runs the per-item fetch, transcribe, classify, enrich
// and persist sequence shared by the batch and async paths.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vibe-transcriber-service/internal/apperr"
	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability/logging"
	"vibe-transcriber-service/internal/observability/metrics"
	"vibe-transcriber-service/internal/observability/tracing"
	"vibe-transcriber-service/internal/service/asr"
	"vibe-transcriber-service/internal/storage"
	"vibe-transcriber-service/internal/store"
)

// Origin labels which path ran an item.
type Origin string

const (
	OriginBatch Origin = "batch"
	OriginAsync Origin = "async"
)

// Catalog supplies local date and time for a record key.
type Catalog interface {
	LocalTimestamps(ctx context.Context, key models.RecordKey) (localDate, localTime *string, err error)
}

// Persister writes transcript records.
type Persister interface {
	Upsert(ctx context.Context, rec models.TranscriptRecord) error
}

// ItemResult is the outcome of one work item.
type ItemResult struct {
	Item     models.WorkItem
	Success  bool
	Text     string
	NoSpeech bool
	Err      error
	Duration time.Duration
}

// Kind returns the error classification, or "" for a success.
func (r ItemResult) Kind() string {
	if r.Err == nil {
		return ""
	}
	return apperr.KindOf(r.Err).String()
}

// Config holds the pipeline dependencies.
type Config struct {
	Downloader storage.Downloader
	Catalog    Catalog
	Persister  Persister
	Advisory   QuotaAdvisory
	ScratchDir string
	Metrics    *metrics.Metrics
}

// Pipeline processes work items.
type Pipeline struct {
	downloader storage.Downloader
	catalog    Catalog
	persister  Persister
	advisory   QuotaAdvisory
	scratchDir string
	metrics    *metrics.Metrics

	now       func() time.Time
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		downloader: cfg.Downloader,
		catalog:    cfg.Catalog,
		persister:  cfg.Persister,
		advisory:   cfg.Advisory,
		scratchDir: cfg.ScratchDir,
		metrics:    cfg.Metrics,
		now:        time.Now,
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
	}
}

// Process runs one item to completion. It never returns an error: failures,
// including panics, are captured in the result.
func (p *Pipeline) Process(ctx context.Context, origin Origin, item models.WorkItem, provider asr.Provider) (res ItemResult) {
	start := time.Now()
	logger := logging.WithItem("pipeline", item)
	res.Item = item

	ctx, span := tracing.Tracer().Start(ctx, "pipeline.item", trace.WithAttributes(
		attribute.String("item.file_ref", item.FileRef),
		attribute.String("item.device_id", item.DeviceID),
		attribute.String("item.origin", string(origin)),
		attribute.String("asr.provider", asr.String(provider)),
	))

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Err = apperr.E(apperr.KindInternal, "pipeline.process", fmt.Errorf("panic: %v", r))
		}
		res.Duration = time.Since(start)
		p.metrics.RecordItem(string(origin), res.Success, res.Kind(), res.Duration.Seconds())

		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			logger.Error().
				Err(res.Err).
				Str("kind", res.Kind()).
				Dur("duration", res.Duration).
				Msg("Item failed")
		} else {
			logger.Info().
				Bool("noSpeech", res.NoSpeech).
				Int("textLength", len(res.Text)).
				Dur("duration", res.Duration).
				Msg("Item processed")
		}
		span.End()
	}()

	text, noSpeech, err := p.run(ctx, logger, item, provider)
	res.Text = text
	res.NoSpeech = noSpeech
	res.Err = err
	res.Success = err == nil
	return res
}

func (p *Pipeline) run(ctx context.Context, logger zerolog.Logger, item models.WorkItem, provider asr.Provider) (string, bool, error) {
	dir, err := p.mkdirTemp(p.scratchDir, "vibe-*")
	if err != nil {
		return "", false, apperr.E(apperr.KindInternal, "pipeline.scratch", err)
	}
	defer func() {
		if err := p.removeAll(dir); err != nil {
			logger.Warn().Err(err).Str("dir", dir).Msg("Failed to remove scratch directory")
		}
	}()

	audio, err := p.fetch(ctx, logger, dir, item.FileRef)
	if err != nil {
		return "", false, err
	}

	result, err := p.transcribe(ctx, audio, filepath.Base(item.FileRef), provider)
	if err != nil {
		return "", false, err
	}

	text, noSpeech := p.classify(logger, result, provider)

	rec := models.TranscriptRecord{
		DeviceID:       item.DeviceID,
		RecordedAt:     item.RecordedAt,
		TranscriptText: &text,
	}
	rec.LocalDate, rec.LocalTime = p.enrich(ctx, logger, item)

	if err := p.persister.Upsert(ctx, rec); err != nil {
		return text, noSpeech, err
	}
	return text, noSpeech, nil
}

func (p *Pipeline) fetch(ctx context.Context, logger zerolog.Logger, dir, fileRef string) ([]byte, error) {
	localPath := filepath.Join(dir, filepath.Base(fileRef))
	f, err := os.Create(localPath)
	if err != nil {
		return nil, apperr.E(apperr.KindInternal, "pipeline.fetch", err)
	}

	n, err := p.downloader.Download(ctx, fileRef, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "pipeline.fetch", err)
	}
	logger.Debug().Int64("bytes", n).Msg("Audio downloaded")

	audio, err := os.ReadFile(localPath)
	if err != nil {
		return nil, apperr.E(apperr.KindStorage, "pipeline.fetch", err)
	}
	return audio, nil
}

func (p *Pipeline) transcribe(ctx context.Context, audio []byte, filename string, provider asr.Provider) (*asr.Result, error) {
	ctx, span := tracing.Tracer().Start(ctx, "asr.transcribe", trace.WithAttributes(
		attribute.String("asr.provider", provider.Name()),
		attribute.String("asr.model", provider.Model()),
		attribute.Int("audio.bytes", len(audio)),
	))
	defer span.End()

	start := time.Now()
	result, err := provider.Transcribe(ctx, audio, filename, asr.Options{HighAccuracy: true})
	p.metrics.RecordASR(provider.Name(), provider.Model(), err, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, apperr.E(apperr.KindCapability, "pipeline.transcribe", err)
	}
	if result == nil {
		return &asr.Result{}, nil
	}
	return result, nil
}

// classify maps an ASR result to the stored text. Empty results become the
// no-speech sentinel; the quota advisory never changes the stored value.
func (p *Pipeline) classify(logger zerolog.Logger, result *asr.Result, provider asr.Provider) (string, bool) {
	text := strings.TrimSpace(result.Text)
	if text != "" {
		return text, false
	}

	if !result.NoSpeechDetected && p.advisory.Check(p.now()) {
		p.metrics.RecordQuotaSuspected(provider.Name())
		logger.Warn().
			Str("provider", asr.String(provider)).
			Str("retryAfter", p.advisory.RetryAfter()).
			Msg("Empty result during the quota reset window, the ASR quota may be exhausted; retry after the reset")
	}

	p.metrics.RecordNoSpeech()
	return models.NoSpeechSentinel, true
}

// enrich returns the local date and time for the item. The item's own values
// win; otherwise the catalog is consulted and a miss is tolerated.
func (p *Pipeline) enrich(ctx context.Context, logger zerolog.Logger, item models.WorkItem) (*string, *string) {
	if item.LocalDate != nil || item.LocalTime != nil || p.catalog == nil {
		return item.LocalDate, item.LocalTime
	}

	localDate, localTime, err := p.catalog.LocalTimestamps(ctx, item.Key())
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Warn().Msg("No catalog entry for local timestamps, storing without them")
		return nil, nil
	case err != nil:
		logger.Warn().Err(err).Msg("Local timestamp lookup failed, storing without them")
		return nil, nil
	}
	return localDate, localTime
}
