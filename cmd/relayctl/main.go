package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/daemon"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/workdir"
)

var opts struct {
	DataDir string        `long:"data-dir" env:"LEGALFLOW_HOME" description:"relay data directory (default ~/.legalflow)"`
	JSON    bool          `long:"json" description:"output in JSON format"`
	Timeout time.Duration `long:"timeout" default:"10s" description:"request timeout"`
}

func main() {
	args, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	socketPath := workdir.SocketPath(workdir.Resolve(opts.DataDir))
	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot reach relay daemon at %s: %v\n", socketPath, err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	client := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, client, socketPath, opts.JSON)
	case "wait":
		cmdWait(ctx, client, socketPath)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: relayctl [--data-dir <dir>] [--json] [--timeout <d>] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status    Show daemon and transport health")
	fmt.Fprintln(os.Stderr, "  wait      Block until the transport is serving")
}

func cmdStatus(ctx context.Context, client healthpb.HealthClient, socketPath string, jsonOut bool) {
	daemonResp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: relay daemon not reachable at %s: %v\n", socketPath, err)
		os.Exit(1)
	}
	relayResp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: daemon.ServiceRelay})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if jsonOut {
		outputJSON(struct {
			Daemon    string `json:"daemon"`
			Transport string `json:"transport"`
		}{
			Daemon:    statusWord(daemonResp.Status),
			Transport: statusWord(relayResp.Status),
		})
		return
	}

	fmt.Printf("Daemon:    %s\n", statusWord(daemonResp.Status))
	fmt.Printf("Transport: %s\n", statusWord(relayResp.Status))
}

func cmdWait(ctx context.Context, client healthpb.HealthClient, socketPath string) {
	stream, err := client.Watch(ctx, &healthpb.HealthCheckRequest{Service: daemon.ServiceRelay})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: relay daemon not reachable at %s: %v\n", socketPath, err)
		os.Exit(1)
	}
	for {
		resp, err := stream.Recv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if resp.Status == healthpb.HealthCheckResponse_SERVING {
			fmt.Println("Transport serving.")
			return
		}
	}
}

func statusWord(s healthpb.HealthCheckResponse_ServingStatus) string {
	return strings.ToLower(s.String())
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
