// Package events publishes terminal processing events to the downstream
// channel.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"vibe-transcriber-service/internal/config"
	"vibe-transcriber-service/internal/models"
	"vibe-transcriber-service/internal/observability/metrics"
)

// Sink delivers one encoded event.
type Sink interface {
	Name() string
	Write(ctx context.Context, key string, payload []byte, headers map[string]string) error
	Close() error
}

// Publisher marshals events, logs them and hands them to a Sink. With a nil
// sink it runs in log-only mode.
type Publisher struct {
	sink      Sink
	principal string
	metrics   *metrics.Metrics
}

// New creates a publisher over sink.
func New(sink Sink, principal string, m *metrics.Metrics) *Publisher {
	if sink == nil {
		log.Info().Msg("Event sink disabled, using log-only mode")
	}
	return &Publisher{sink: sink, principal: principal, metrics: m}
}

// NewFromConfig builds the sink selected by cfg.Backend.
func NewFromConfig(ctx context.Context, cfg config.NotifyConfig, m *metrics.Metrics) (*Publisher, error) {
	var (
		sink Sink
		err  error
	)
	switch cfg.Backend {
	case "", "log":
	case "kafka":
		sink = NewKafkaSink(cfg.Kafka)
	case "sqs":
		sink, err = NewSQSSinkFromConfig(cfg.SQS)
	case "nats":
		sink, err = NewNATSSink(ctx, cfg.NATS)
	default:
		err = fmt.Errorf("unknown notify backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return New(sink, cfg.Kafka.Principal, m), nil
}

// Backend returns the sink name, or "log".
func (p *Publisher) Backend() string {
	if p.sink == nil {
		return "log"
	}
	return p.sink.Name()
}

// PublishTerminal publishes one terminal event keyed by its record key.
func (p *Publisher) PublishTerminal(ctx context.Context, ev models.TerminalEvent) error {
	start := time.Now()
	backend := p.Backend()
	if ev.Timestamp == 0 {
		ev.Timestamp = start.Unix()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("backend", backend).Msg("Failed to marshal event")
		p.metrics.RecordNotifyPublish(backend, string(ev.Status), err, time.Since(start).Seconds())
		return err
	}

	key := ev.DeviceID + "/" + ev.RecordedAt

	log.Info().
		Str("backend", backend).
		Str("key", key).
		Str("status", string(ev.Status)).
		RawJSON("payload", payload).
		Msg("Publishing terminal event")

	if p.sink == nil {
		p.metrics.RecordNotifyPublish(backend, string(ev.Status), nil, time.Since(start).Seconds())
		return nil
	}

	headers := map[string]string{
		"eventType":   "feature.completed",
		"featureType": string(ev.FeatureType),
	}
	if p.principal != "" {
		headers["principal"] = p.principal
	}

	if err := p.sink.Write(ctx, key, payload, headers); err != nil {
		log.Error().
			Err(err).
			Str("backend", backend).
			Str("key", key).
			Msg("Failed to publish terminal event")
		p.metrics.RecordNotifyPublish(backend, string(ev.Status), err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordNotifyPublish(backend, string(ev.Status), nil, time.Since(start).Seconds())
	return nil
}

// Close closes the sink.
func (p *Publisher) Close() error {
	if p.sink == nil {
		return nil
	}
	if err := p.sink.Close(); err != nil {
		log.Error().Err(err).Str("backend", p.sink.Name()).Msg("Error closing event sink")
		return err
	}
	return nil
}
