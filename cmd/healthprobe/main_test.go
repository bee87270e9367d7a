package main

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeHealth struct {
	healthpb.HealthClient
	statuses map[string]healthpb.HealthCheckResponse_ServingStatus
}

func (f *fakeHealth) Check(ctx context.Context, in *healthpb.HealthCheckRequest, _ ...grpc.CallOption) (*healthpb.HealthCheckResponse, error) {
	st, ok := f.statuses[in.GetService()]
	if !ok {
		return nil, errors.New("unknown service")
	}
	return &healthpb.HealthCheckResponse{Status: st}, nil
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name     string
		statuses map[string]healthpb.HealthCheckResponse_ServingStatus
		want     bool
	}{
		{"all serving", map[string]healthpb.HealthCheckResponse_ServingStatus{"": healthpb.HealthCheckResponse_SERVING, "svc": healthpb.HealthCheckResponse_SERVING}, true},
		{"one not serving", map[string]healthpb.HealthCheckResponse_ServingStatus{"": healthpb.HealthCheckResponse_SERVING, "svc": healthpb.HealthCheckResponse_NOT_SERVING}, false},
		{"rpc error", map[string]healthpb.HealthCheckResponse_ServingStatus{"": healthpb.HealthCheckResponse_SERVING}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := probe(context.Background(), &fakeHealth{statuses: tt.statuses}, []string{"", "svc"}); got != tt.want {
				t.Errorf("probe() = %v, want %v", got, tt.want)
			}
		})
	}
}
