package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"vibe-transcriber-service/internal/config"
)

// msgPublisher is the subset of *nats.Conn used by NATSSink.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSSink publishes events on a NATS subject.
type NATSSink struct {
	conn    msgPublisher
	subject string
}

// NewNATSSink connects to cfg.Servers.
func NewNATSSink(ctx context.Context, cfg config.NATSConfig) (*NATSSink, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}
	options := []nats.Option{
		nats.Name("vibe-transcriber"),
		nats.Timeout(5 * time.Second),
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info().Str("servers", url).Str("subject", cfg.Subject).Msg("NATS event sink initialized")
	return &NATSSink{conn: conn, subject: cfg.Subject}, nil
}

// Name returns "nats".
func (s *NATSSink) Name() string { return "nats" }

// Write publishes and flushes so a returned nil means the server has the
// message.
func (s *NATSSink) Write(ctx context.Context, key string, payload []byte, headers map[string]string) error {
	msg := nats.NewMsg(s.subject)
	msg.Data = payload
	msg.Header.Set("key", key)
	for k, v := range headers {
		msg.Header.Set(k, v)
	}
	if err := s.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

// Close drains the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
