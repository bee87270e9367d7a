package grpcapi

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"vibe-transcriber-service/internal/observability"
)

func startServer(t *testing.T, checks map[string]observability.ReadinessCheck) (*Server, grpc_health_v1.HealthClient) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := New(checks, nil)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return s, grpc_health_v1.NewHealthClient(conn)
}

func check(t *testing.T, c grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("check %q: %v", service, err)
	}
	return resp.Status
}

func TestHealth_ServingByDefault(t *testing.T) {
	_, client := startServer(t, nil)

	for _, svc := range []string{"", ServiceName} {
		if got := check(t, client, svc); got != grpc_health_v1.HealthCheckResponse_SERVING {
			t.Errorf("%q: expected SERVING, got %v", svc, got)
		}
	}
}

func TestHealth_RefreshFollowsChecks(t *testing.T) {
	var failing atomic.Bool
	s, client := startServer(t, map[string]observability.ReadinessCheck{
		"database": func(ctx context.Context) error {
			if failing.Load() {
				return errors.New("db down")
			}
			return nil
		},
	})

	failing.Store(true)
	if got := s.Refresh(context.Background()); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
	if got := check(t, client, ServiceName); got != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected client to see NOT_SERVING, got %v", got)
	}

	failing.Store(false)
	s.Refresh(context.Background())
	if got := check(t, client, ServiceName); got != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING after recovery, got %v", got)
	}
}

func TestWatch_StopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	s := New(map[string]observability.ReadinessCheck{
		"database": func(ctx context.Context) error { calls.Add(1); return nil },
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
	if calls.Load() == 0 {
		t.Error("expected at least one refresh")
	}
}
