// Command clusterd is the reference CLI for the balancer: it re-execs
// itself as N worker children behind a single listening port, routing
// connections round-robin or sticky depending on the chosen transport.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/clusterd-project/clusterd/internal/cluster"
	"github.com/clusterd-project/clusterd/pkg/clusterlog"
	"github.com/clusterd-project/clusterd/pkg/config"
	"github.com/clusterd-project/clusterd/pkg/transport"
	"github.com/clusterd-project/clusterd/pkg/transport/grpctransport"
	"github.com/clusterd-project/clusterd/pkg/transport/httptransport"
	"github.com/clusterd-project/clusterd/pkg/transport/wstransport"
)

func main() {
	pflag.String("config", "", "Path to config file")
	pflag.String("log_level", "info", "Log level (debug|info|warn|error)")
	pflag.String("transport_kind", "http", "Transport plug-in: http|ws|grpc")
	pflag.Int("port", 8080, "TCP port the master listens on")
	pflag.String("hostname", "", "Hostname setting (stored in the config; the master ignores it and listens on all interfaces)")
	pflag.Int("workers", 0, "Worker pool size (0 = number of CPUs)")
	pflag.Bool("respawn", true, "Respawn workers on crash or voluntary close")
	pflag.Int("inspect-brk", 0, "Master's own debug/inspector port, if any (0 = none); children get distinct offset ports")
	pflag.String("override", "", "Override simple config values as comma-separated key:value pairs")

	pflag.Parse()

	config.BindFlags(map[string]string{
		"log_level":      "log_level",
		"transport_kind": "transport_kind",
		"port":           "listen.port",
		"hostname":       "listen.hostname",
		"workers":        "cluster.workers",
		"respawn":        "cluster.respawn",
	})

	cfg := config.Load(pflag.Lookup("config").Value.String(), pflag.Lookup("override").Value.String())

	instance := uuid.New()
	logger := clusterlog.New("clusterd", cfg.LogLevel)
	slog.SetDefault(logger)
	logger = logger.With("instance", instance.String())

	role := cluster.DetectRole()
	logger.Info("starting", "role", roleString(role), "pid", os.Getpid())

	tr, err := buildTransport(config.TransportKind(cfg.TransportKind), cfg.Listen.Port)
	if err != nil {
		logger.Error("failed to build transport", "error", err)
		os.Exit(1)
	}

	workers := cfg.Cluster.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	clusterCfg := cluster.Config{
		Workers:   workers,
		Respawn:   cfg.Cluster.Respawn,
		Env:       cfg.Cluster.Env,
		Transport: tr,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch role {
	case cluster.RoleMaster:
		self, err := os.Executable()
		if err != nil {
			logger.Error("failed to resolve own executable path", "error", err)
			os.Exit(1)
		}
		debugPort, _ := pflag.CommandLine.GetInt("inspect-brk")
		master, err := cluster.NewMaster(clusterCfg, logger, self, debugPort)
		if err != nil {
			logger.Error("failed to build master", "error", err)
			os.Exit(1)
		}
		if err := master.Run(ctx); err != nil {
			logger.Error("master exited with error", "error", err)
			os.Exit(1)
		}
	case cluster.RoleWorker:
		id, _ := cluster.WorkerUniqueID()
		logger = logger.With("worker_id", id)
		worker, err := cluster.NewWorker(clusterCfg, logger)
		if err != nil {
			logger.Error("failed to build worker", "error", err)
			os.Exit(1)
		}
		if err := worker.Run(ctx); err != nil {
			logger.Error("worker exited with error", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("exited gracefully")
}

func roleString(r cluster.Role) string {
	if r == cluster.RoleMaster {
		return "master"
	}
	return "worker"
}

func buildTransport(kind config.TransportKind, port int) (transport.Transport, error) {
	switch kind {
	case config.TransportHTTP, "":
		return httptransport.New(port, nil), nil
	case config.TransportWS:
		return wstransport.New(port, nil), nil
	case config.TransportGRPC:
		return grpctransport.New(port), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}
