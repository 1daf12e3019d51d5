package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jcmexdev/kitchen-admission/internal/admission/app"
	"github.com/jcmexdev/kitchen-admission/internal/admission/availability"
	"github.com/jcmexdev/kitchen-admission/internal/admission/directory"
	kafkaevents "github.com/jcmexdev/kitchen-admission/internal/admission/events/kafka"
	"github.com/jcmexdev/kitchen-admission/internal/admission/store/sqlite"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/cache"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/config"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/metrics"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "configs/admission.yaml", "path to the YAML config file")
	metricsAddr := flag.String("metrics-addr", ":9102", "address serving /metrics")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg.Service = cfg.Service + "-availability-worker"
	telemetry.InitLogger(cfg.Service, cfg.Log.Level)

	if !cfg.Kafka.Enabled() {
		slog.Error("availability worker needs kafka brokers (KAFKA_BROKERS)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *metricsAddr); err != nil {
		slog.Error("availability worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, metricsAddr string) error {
	ctx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	if cfg.Telemetry.Enabled {
		_, shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
			Service:     cfg.Service,
			Endpoint:    cfg.Telemetry.Endpoint,
			Environment: cfg.Telemetry.Environment,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("tracer shutdown error", "error", err)
			}
		}()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return err
	}
	store, err := sqlite.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	dir, err := directory.Load(cfg.Seed.Directory)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var menuCache cache.Cache
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedisCache(cfg.Redis.Addr, "kitchen-admission")
		if err := rc.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, menu reads fall back to the store", "addr", cfg.Redis.Addr, "error", err)
		}
		defer rc.Close()
		menuCache = rc
	}

	svc := app.Build(app.Deps{
		Store:     store,
		Directory: dir,
		Cache:     menuCache,
		Metrics:   metrics.New(reg),
	})

	consumer, err := kafkaevents.NewReader(kafkaevents.Config{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		GroupID: cfg.Kafka.GroupID,
	})
	if err != nil {
		return err
	}
	source := kafkaevents.NewSource(consumer)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.Availability.RunTimeWindows(ctx, dir, cfg.Worker.TimeWindowTick)
	}()

	slog.Info("availability worker running", "topic", cfg.Kafka.Topic, "group_id", cfg.Kafka.GroupID)
	runErr := availability.NewWorker(source, svc.Availability).Run(ctx)

	if err := source.Close(); err != nil {
		slog.Error("kafka reader close error", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	stopBackground()
	wg.Wait()
	return runErr
}
