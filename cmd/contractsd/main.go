package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/projectvak/contract-pipeline/internal/app"
	"github.com/projectvak/contract-pipeline/internal/common"
	"github.com/projectvak/contract-pipeline/internal/ingest"
	"github.com/projectvak/contract-pipeline/internal/logging"
	"github.com/projectvak/contract-pipeline/internal/pipeline"
)

const workerService = "contracts.worker"

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "YAML config file (optional)")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		slog.Error("config.load.failed", "error", err)
		os.Exit(2)
	}
	logger := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("app.build.failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.DB.HealthCheck(ctx, 5*time.Second); err != nil {
		logger.Error("db.health.failed", "error", err)
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("grpc.listen.failed", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(workerService, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	wake := make(chan string, 1)
	poke := func(p string) {
		select {
		case wake <- p:
		default:
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Storage.Backend == "local" {
		root := filepath.Join(cfg.Storage.LocalRoot, filepath.FromSlash(cfg.Storage.ScanRoot))
		skip := append([]string{cfg.Storage.OrganizedPrefix}, cfg.Storage.ExcludeFolders...)
		events, _, err := ingest.StartWatcher(gctx, ingest.WatchConfig{Root: root, Skip: skip, Debounce: cfg.Ingest.Debounce}, logger)
		if err != nil {
			logger.Warn("watcher.disabled", "root", root, "error", err)
		} else {
			g.Go(func() error {
				for p := range events {
					poke(p)
				}
				return nil
			})
		}
	}

	var queue *ingest.Queue
	if inbox := strings.TrimSpace(cfg.Ingest.InboxDir); inbox != "" {
		importer := ingest.NewImporter(a.Store, cfg.Storage.ScanRoot, logger)
		queue = ingest.NewQueue(importer, logger,
			ingest.WithWorkers(cfg.Ingest.Workers),
			ingest.OnImported(func(r ingest.Result) { poke(r.Destination) }),
		)
		events, _, err := ingest.StartWatcher(gctx, ingest.WatchConfig{Root: inbox, Debounce: cfg.Ingest.Debounce}, logger)
		if err != nil {
			logger.Error("inbox.watch.failed", "inbox", inbox, "error", err)
			os.Exit(1)
		}
		g.Go(func() error {
			queue.Feed(gctx, events)
			return nil
		})
	}

	worker := a.Worker(
		pipeline.WithWake(wake),
		pipeline.WithStateHook(func(s pipeline.State) {
			status := healthpb.HealthCheckResponse_SERVING
			if s == pipeline.StateCooldown {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			hs.SetServingStatus(workerService, status)
			logger.Info("worker.state", "state", s.String())
		}),
	)
	g.Go(func() error { return worker.Run(gctx) })

	g.Go(func() error {
		logger.Info("grpc.serving", "addr", lis.Addr().String())
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hs.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("daemon.stopped", "error", err)
	}
	if queue != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		queue.Shutdown(sctx)
		cancel()
	}
	logger.Info("stopped")
}
