package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/rs/zerolog/log"

	"vibe-transcriber-service/internal/config"
)

// SQSSink sends events to an SQS queue.
type SQSSink struct {
	sqs      sqsiface.SQSAPI
	queueURL string
}

// NewSQSSink wraps an existing client.
func NewSQSSink(client sqsiface.SQSAPI, queueURL string) *SQSSink {
	return &SQSSink{sqs: client, queueURL: queueURL}
}

// NewSQSSinkFromConfig creates a session from the default credential chain.
func NewSQSSinkFromConfig(cfg config.SQSConfig) (*SQSSink, error) {
	sess, err := session.NewSession(aws.NewConfig().WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	log.Info().
		Str("queueUrl", cfg.QueueURL).
		Str("region", cfg.Region).
		Msg("SQS event sink initialized")
	return NewSQSSink(sqs.New(sess), cfg.QueueURL), nil
}

// Name returns "sqs".
func (s *SQSSink) Name() string { return "sqs" }

// Write sends the payload as the message body with headers as attributes.
func (s *SQSSink) Write(ctx context.Context, key string, payload []byte, headers map[string]string) error {
	attrs := make(map[string]*sqs.MessageAttributeValue, len(headers)+1)
	attrs["key"] = &sqs.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(key)}
	for k, v := range headers {
		attrs[k] = &sqs.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
	}

	out, err := s.sqs.SendMessageWithContext(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(payload)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	log.Debug().Str("messageId", aws.StringValue(out.MessageId)).Str("key", key).Msg("SQS message sent")
	return nil
}

// Close is a no-op; the SDK client holds no connections to release.
func (s *SQSSink) Close() error { return nil }
