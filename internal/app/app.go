// Package app builds the process-wide dependency graph once at startup and
// tears it down at shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"vibe-transcriber-service/internal/config"
	"vibe-transcriber-service/internal/events"
	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability"
	"vibe-transcriber-service/internal/observability/logging"
	"vibe-transcriber-service/internal/observability/metrics"
	"vibe-transcriber-service/internal/schema"
	"vibe-transcriber-service/internal/service/asr"
	"vibe-transcriber-service/internal/service/asr/google"
	"vibe-transcriber-service/internal/service/asr/mock"
	"vibe-transcriber-service/internal/service/asr/openai"
	"vibe-transcriber-service/internal/service/async"
	"vibe-transcriber-service/internal/service/batch"
	"vibe-transcriber-service/internal/service/persistence"
	"vibe-transcriber-service/internal/service/pipeline"
	"vibe-transcriber-service/internal/service/resolver"
	"vibe-transcriber-service/internal/service/status"
	"vibe-transcriber-service/internal/storage"
	"vibe-transcriber-service/internal/store"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
	Metrics     *metrics.Metrics

	Store     *store.Store
	Registry  *asr.Registry
	Publisher *events.Publisher
	Validator *schema.Validator
	Pipeline  *pipeline.Pipeline
	Batch     *batch.Service
	Async     *async.Coordinator

	closers []io.Closer
}

// New constructs the application from cfg. On error every client created so
// far is closed.
func New(ctx context.Context, cfg *config.Configuration, m *metrics.Metrics) (_ *Application, err error) {
	a := &Application{
		Cfg:       cfg,
		Metrics:   m,
		Validator: schema.New(),
		Logger:    logging.WithComponent("application"),
	}
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	feature := models.FeatureType(cfg.Service.FeatureType)
	if !feature.Valid() {
		return nil, fmt.Errorf("unknown feature type %q", cfg.Service.FeatureType)
	}

	a.Store, err = store.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, a.Store)

	downloader, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	providers, err := a.buildProviders(ctx, cfg.ASR)
	if err != nil {
		return nil, err
	}
	a.Registry, err = asr.NewRegistry(cfg.ASR.DefaultProvider, providers...)
	if err != nil {
		return nil, err
	}
	asyncProvider, err := a.Registry.Select(cfg.ASR.AsyncProvider, "")
	if err != nil {
		return nil, fmt.Errorf("async provider: %w", err)
	}

	a.Publisher, err = events.NewFromConfig(ctx, cfg.Notify, m)
	if err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}
	a.closers = append(a.closers, a.Publisher)

	advisory, err := pipeline.NewQuotaAdvisory(cfg.Advisory.Timezone, cfg.Advisory.WindowEndHour)
	if err != nil {
		return nil, err
	}

	persister := persistence.New(a.Store, persistence.Config{
		MaxAttempts: cfg.Persistence.MaxAttempts,
		BackoffStep: cfg.Persistence.BackoffStep,
	}, m)

	a.Pipeline = pipeline.New(pipeline.Config{
		Downloader: downloader,
		Catalog:    a.Store,
		Persister:  persister,
		Advisory:   advisory,
		ScratchDir: cfg.Batch.ScratchDir,
		Metrics:    m,
	})

	a.Batch = batch.New(resolver.New(a.Store), a.Registry, a.Pipeline, cfg.Batch.Concurrency, m)

	tracker := status.NewTracker(a.Store, feature, m)
	a.Async = async.New(a.Pipeline, asyncProvider, tracker, a.Publisher, m)

	a.Logger.Info().
		Str("defaultProvider", asr.String(a.Registry.Default())).
		Str("asyncProvider", asr.String(asyncProvider)).
		Strs("providers", a.Registry.Names()).
		Str("storage", cfg.Storage.Backend).
		Str("database", cfg.Database.Driver).
		Str("notify", a.Publisher.Backend()).
		Str("featureType", string(feature)).
		Msg("Vibe transcriber application created")
	return a, nil
}

func (a *Application) buildProviders(ctx context.Context, cfg config.ASRConfig) ([]asr.Provider, error) {
	providers := make([]asr.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		switch pc.Name {
		case "mock":
			providers = append(providers, mock.New(pc.Model))
		case "groq":
			providers = append(providers, openai.New(openai.Config{
				Name:     pc.Name,
				Endpoint: pc.Endpoint,
				APIKey:   pc.APIKey,
				Model:    pc.Model,
				Language: pc.LanguageCode,
				Timeout:  pc.Timeout,
			}, a.Metrics))
		case "google":
			gc := google.DefaultConfig()
			if pc.Model != "" {
				gc.Model = pc.Model
			}
			if pc.LanguageCode != "" {
				gc.LanguageCode = pc.LanguageCode
			}
			gc.SampleRateHz = int32(pc.SampleRateHz)
			gc.Encoding = pc.Encoding
			adapter, err := google.New(ctx, gc, a.Metrics)
			if err != nil {
				return nil, fmt.Errorf("google provider: %w", err)
			}
			a.closers = append(a.closers, adapter)
			providers = append(providers, adapter)
		default:
			return nil, fmt.Errorf("unknown asr provider %q", pc.Name)
		}
	}
	return providers, nil
}

// ReadinessChecks returns the probes served on /readyz.
func (a *Application) ReadinessChecks() map[string]observability.ReadinessCheck {
	return map[string]observability.ReadinessCheck{
		"database": a.Store.Ping,
	}
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Vibe transcriber starting")
	return nil
}

// Shutdown waits for accepted async work, then closes every client.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Logger.Info().Msg("Vibe transcriber shutting down")

	if a.Async != nil {
		if err := a.Async.Drain(ctx); err != nil {
			// Running jobs still need the store and publisher for their
			// terminal status and event; close once they finish.
			a.Logger.Warn().
				Err(err).
				Int64("inFlight", a.Async.InFlight()).
				Msg("Async work still running at shutdown, deferring client close")
			go func() {
				_ = a.Async.Drain(context.Background())
				if err := a.closeAll(); err != nil {
					a.Logger.Error().Err(err).Msg("Deferred client close failed")
				}
			}()
			return fmt.Errorf("drain async: %w", err)
		}
	}
	return a.closeAll()
}

// closeAll closes clients in reverse creation order.
func (a *Application) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
