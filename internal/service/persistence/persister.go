// Package persistence upserts transcript records with bounded retry and
// reconciliation of ambiguous acknowledgments.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"vibe-transcriber-service/internal/apperr"
	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability/logging"
	"vibe-transcriber-service/internal/observability/metrics"
	"vibe-transcriber-service/internal/store"
)

// Datastore is the subset of the store used for transcript writes.
type Datastore interface {
	UpsertTranscript(ctx context.Context, rec models.TranscriptRecord) (store.Ack, error)
	GetTranscript(ctx context.Context, key models.RecordKey) (*models.TranscriptRecord, error)
}

// errUnconfirmed marks an ambiguous ack whose read-back found no row.
var errUnconfirmed = errors.New("upsert acknowledged without a confirmed row")

// Config tunes the retry policy.
type Config struct {
	MaxAttempts int
	// BackoffStep is the linear delay unit: attempt n waits n*BackoffStep.
	BackoffStep time.Duration
}

// DefaultConfig returns 3 attempts with 1s, 2s delays.
func DefaultConfig() Config {
	return Config{MaxAttempts: 3, BackoffStep: time.Second}
}

// Persister writes transcript records.
type Persister struct {
	store   Datastore
	cfg     Config
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a persister.
func New(ds Datastore, cfg Config, m *metrics.Metrics) *Persister {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Persister{
		store:   ds,
		cfg:     cfg,
		metrics: m,
		log:     logging.WithComponent("persistence"),
	}
}

// linearBackOff waits step, 2*step, 3*step, ...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

// Upsert writes rec. Transport errors and unconfirmed acknowledgments are
// retried; an unconfirmed acknowledgment is first reconciled by reading the
// key back. The returned error is classified KindPersistence.
func (p *Persister) Upsert(ctx context.Context, rec models.TranscriptRecord) error {
	key := rec.Key()
	attempt := 0

	op := func() error {
		attempt++
		ack, err := p.store.UpsertTranscript(ctx, rec)
		if err != nil {
			p.metrics.RecordPersistAttempt("error")
			return err
		}
		if ack.Confirmed {
			p.metrics.RecordPersistAttempt("confirmed")
			return nil
		}

		p.metrics.RecordPersistAttempt("ambiguous")
		p.log.Warn().
			Str("key", key.String()).
			Int("attempt", attempt).
			Msg("Upsert returned no confirmed row, checking existing record")

		_, err = p.store.GetTranscript(ctx, key)
		switch {
		case err == nil:
			p.metrics.RecordPersistAttempt("reconciled")
			p.log.Info().Str("key", key.String()).Msg("Existing record found, treating as successful update")
			return nil
		case errors.Is(err, store.ErrNotFound):
			return errUnconfirmed
		default:
			return err
		}
	}

	notify := func(err error, wait time.Duration) {
		p.log.Warn().
			Err(err).
			Str("key", key.String()).
			Int("attempt", attempt).
			Int("maxAttempts", p.cfg.MaxAttempts).
			Dur("retryIn", wait).
			Msg("Upsert failed, retrying")
	}

	var b backoff.BackOff = &linearBackOff{step: p.cfg.BackoffStep}
	b = backoff.WithMaxRetries(b, uint64(p.cfg.MaxAttempts-1))
	b = backoff.WithContext(b, ctx)

	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return apperr.E(apperr.KindPersistence, "persistence.upsert",
			fmt.Errorf("%s after %d attempts: %w", key, attempt, err))
	}
	return nil
}
