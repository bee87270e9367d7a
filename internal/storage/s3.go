package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"vibe-transcriber-service/internal/config"
)

// S3 downloads objects from a single bucket.
type S3 struct {
	s3     s3iface.S3API
	bucket string
}

// NewS3 returns a downloader over an existing client.
func NewS3(client s3iface.S3API, bucket string) *S3 {
	return &S3{s3: client, bucket: bucket}
}

// NewS3FromConfig creates a session from the default credential chain.
func NewS3FromConfig(cfg config.StorageConfig) (*S3, error) {
	awsCfg := aws.NewConfig().WithRegion(cfg.Region)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return NewS3(s3.New(sess), cfg.Bucket), nil
}

// Download streams s3://bucket/key into w.
func (s *S3) Download(ctx context.Context, key string, w io.Writer) (int64, error) {
	obj, err := s.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, classifyS3Error(s.bucket, key, err)
	}
	defer obj.Body.Close()

	n, err := io.Copy(w, obj.Body)
	if err != nil {
		return n, fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
	}
	return n, nil
}

func classifyS3Error(bucket, key string, err error) error {
	if rf, ok := err.(awserr.RequestFailure); ok {
		switch rf.StatusCode() {
		case http.StatusNotFound:
			return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
		case http.StatusForbidden:
			return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrAccessDenied)
		}
	}
	if ae, ok := err.(awserr.Error); ok {
		switch ae.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
		case "AccessDenied":
			return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrAccessDenied)
		}
	}
	return fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
}
