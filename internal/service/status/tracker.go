// Package status records per-item processing status for a feature type and
// tracks the in-process lifecycle of async jobs.
package status

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"vibe-transcriber-service/internal/apperr"
	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability/logging"
	"vibe-transcriber-service/internal/observability/metrics"
)

// Writer persists a status value.
type Writer interface {
	SetStatus(ctx context.Context, key models.RecordKey, feature models.FeatureType, status models.ProcessingStatus) error
}

// Tracker writes status for one feature type.
type Tracker struct {
	writer  Writer
	feature models.FeatureType
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewTracker creates a tracker for feature.
func NewTracker(w Writer, feature models.FeatureType, m *metrics.Metrics) *Tracker {
	return &Tracker{
		writer:  w,
		feature: feature,
		metrics: m,
		log:     logging.WithComponent("status"),
	}
}

// Feature returns the tracked feature type.
func (t *Tracker) Feature() models.FeatureType {
	return t.feature
}

// Set writes status and returns a KindStatusUpdate error on failure.
func (t *Tracker) Set(ctx context.Context, key models.RecordKey, status models.ProcessingStatus) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.E(apperr.KindStatusUpdate, "status.set", fmt.Errorf("panic: %v", r))
		}
	}()
	if err := t.writer.SetStatus(ctx, key, t.feature, status); err != nil {
		return apperr.E(apperr.KindStatusUpdate, "status.set", err)
	}
	return nil
}

// SetBestEffort writes status and never fails the caller. Failures are
// logged and counted. It reports whether the write succeeded.
func (t *Tracker) SetBestEffort(ctx context.Context, key models.RecordKey, status models.ProcessingStatus) bool {
	if err := t.Set(ctx, key, status); err != nil {
		t.metrics.RecordStatusUpdateFailure(string(status))
		t.log.Error().
			Err(err).
			Str("key", key.String()).
			Str("feature", string(t.feature)).
			Str("status", string(status)).
			Msg("Status update failed")
		return false
	}
	t.log.Debug().
		Str("key", key.String()).
		Str("feature", string(t.feature)).
		Str("status", string(status)).
		Msg("Status updated")
	return true
}
