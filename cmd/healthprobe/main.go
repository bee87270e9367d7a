// healthprobe checks the gRPC health service and exits non-zero unless every
// requested service reports SERVING.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "vibe-transcriber-service/internal/api/grpc"
	"vibe-transcriber-service/internal/observability/logging"
)

func probe(ctx context.Context, client healthpb.HealthClient, services []string) bool {
	healthy := true
	for _, svc := range services {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
		if err != nil {
			log.Error().Err(err).Str("service", svc).Msg("Health check failed")
			healthy = false
			continue
		}
		status := resp.GetStatus()
		log.Info().Str("service", svc).Str("status", status.String()).Msg("Health check")
		if status != healthpb.HealthCheckResponse_SERVING {
			healthy = false
		}
	}
	return healthy
}

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	timeout := flag.Duration("timeout", 5*time.Second, "Probe timeout")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console", Service: "healthprobe"})

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatal().Err(err).Str("server", *serverAddr).Msg("Failed to connect")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if !probe(ctx, healthpb.NewHealthClient(conn), []string{"", grpcapi.ServiceName}) {
		os.Exit(1)
	}
}
