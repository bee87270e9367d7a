package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"vibe-transcriber-service/internal/observability/metrics"
	"vibe-transcriber-service/internal/observability/tracing"
)

// recoverRPC converts a handler panic into codes.Internal.
func recoverRPC(method string, err *error) {
	if r := recover(); r != nil {
		log.Error().Interface("panic", r).Str("method", method).Msg("gRPC handler panicked")
		*err = status.Error(codes.Internal, "internal error")
	}
}

func observeRPC(m *metrics.Metrics, method string, start time.Time, err error) {
	code := status.Code(err)
	m.RecordGRPCCall(method, code.String())

	ev := log.Debug()
	if code != codes.OK && code != codes.Canceled {
		ev = log.Warn().Err(err)
	}
	ev.Str("method", method).
		Str("code", code.String()).
		Dur("duration", time.Since(start)).
		Msg("gRPC call")
}

// UnaryServerInterceptor records metrics, a span and a log line per call and
// turns panics into codes.Internal.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		start := time.Now()
		ctx, span := tracing.Tracer().Start(ctx, info.FullMethod)
		defer func() {
			span.SetAttributes(attribute.String("rpc.grpc.status_code", status.Code(err).String()))
			if err != nil {
				span.SetStatus(otelcodes.Error, err.Error())
			}
			span.End()
			observeRPC(m, info.FullMethod, start, err)
		}()
		defer recoverRPC(info.FullMethod, &err)

		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming counterpart. Health Watch is the
// only streaming method served.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) (err error) {
		start := time.Now()
		defer func() { observeRPC(m, info.FullMethod, start, err) }()
		defer recoverRPC(info.FullMethod, &err)

		return handler(srv, ss)
	}
}
