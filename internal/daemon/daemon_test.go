package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/bus"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/config"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/outbox"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/relay"
)

// shortTempDir keeps Unix socket paths under the platform length limit.
func shortTempDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", pattern)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func healthClient(t *testing.T, socketPath string) healthpb.HealthClient {
	t.Helper()
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func waitStatus(t *testing.T, client healthpb.HealthClient, service string, want healthpb.HealthCheckResponse_ServingStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && resp.Status == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("service %q never reached %v (last: %v, err: %v)", service, want, resp, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthEndpoint(t *testing.T) {
	tmpDir := shortTempDir(t, "relay-test-*")
	socketPath := filepath.Join(tmpDir, "d.sock")

	srv, err := NewServer(Params{DataDir: tmpDir, SocketPath: socketPath}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket permissions = %o, want 0600", perm)
	}

	time.Sleep(50 * time.Millisecond)
	client := healthClient(t, socketPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("daemon status = %v, want SERVING", resp.Status)
	}

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceRelay})
	if err != nil {
		t.Fatalf("Check relay: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("relay status = %v, want NOT_SERVING before connect", resp.Status)
	}

	srv.SetRelayServing(true)
	waitStatus(t, client, ServiceRelay, healthpb.HealthCheckResponse_SERVING)

	srv.SetRelayServing(false)
	waitStatus(t, client, ServiceRelay, healthpb.HealthCheckResponse_NOT_SERVING)
}

func TestServerReplacesStaleSocket(t *testing.T) {
	tmpDir := shortTempDir(t, "relay-stale-*")
	socketPath := filepath.Join(tmpDir, "d.sock")

	// Leftover from a crashed daemon.
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatal(err)
	}

	srv, err := NewServer(Params{DataDir: tmpDir, SocketPath: socketPath}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewServer with stale socket: %v", err)
	}
	srv.Stop(context.Background())

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket not removed on stop: %v", err)
	}
}

func TestObserversUpdateHealth(t *testing.T) {
	tmpDir := shortTempDir(t, "relay-obs-*")
	socketPath := filepath.Join(tmpDir, "d.sock")

	srv, err := NewServer(Params{DataDir: tmpDir, SocketPath: socketPath}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	defer srv.Stop(context.Background())

	b := bus.New()
	obs, err := NewObservers(config.Default(), b, srv, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	obs.Start(context.Background())
	defer obs.Stop()

	time.Sleep(50 * time.Millisecond)
	client := healthClient(t, socketPath)

	b.Publish(bus.Event{
		Kind:      bus.KindConnection,
		Timestamp: time.Now(),
		Payload:   bus.ConnectionChange{Connected: true},
	})
	waitStatus(t, client, ServiceRelay, healthpb.HealthCheckResponse_SERVING)

	b.Publish(bus.Event{
		Kind:      bus.KindConnection,
		Timestamp: time.Now(),
		Payload:   bus.ConnectionChange{Connected: false},
	})
	waitStatus(t, client, ServiceRelay, healthpb.HealthCheckResponse_NOT_SERVING)
}

// TestModuleGraph verifies the fx dependency graph resolves, including the
// sender and engine handles an embedding application would Populate.
func TestModuleGraph(t *testing.T) {
	tmpDir := shortTempDir(t, "relay-fx-*")

	p := Params{
		DataDir:    tmpDir,
		Token:      "123456:test-token",
		SocketPath: filepath.Join(tmpDir, "d.sock"),
	}

	var (
		sender *outbox.Sender
		engine *relay.Engine
	)
	if err := fx.ValidateApp(Module(p), fx.Populate(&sender, &engine)); err != nil {
		t.Fatalf("dependency graph does not resolve: %v", err)
	}
}
