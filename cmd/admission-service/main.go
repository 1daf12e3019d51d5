package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jcmexdev/kitchen-admission/internal/admission/app"
	"github.com/jcmexdev/kitchen-admission/internal/admission/availability"
	"github.com/jcmexdev/kitchen-admission/internal/admission/directory"
	"github.com/jcmexdev/kitchen-admission/internal/admission/events"
	kafkaevents "github.com/jcmexdev/kitchen-admission/internal/admission/events/kafka"
	"github.com/jcmexdev/kitchen-admission/internal/admission/grpcx"
	"github.com/jcmexdev/kitchen-admission/internal/admission/httpx"
	statussqlite "github.com/jcmexdev/kitchen-admission/internal/admission/statuslog/sqlite"
	"github.com/jcmexdev/kitchen-admission/internal/admission/store/sqlite"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/cache"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/config"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/interceptors"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/metrics"
	"github.com/jcmexdev/kitchen-admission/internal/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "configs/admission.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	telemetry.InitLogger(cfg.Service, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("admission service stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	ctx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	var tp trace.TracerProvider = otel.GetTracerProvider()
	if cfg.Telemetry.Enabled {
		sdk, shutdown, err := telemetry.SetupTracer(ctx, telemetry.TracerConfig{
			Service:     cfg.Service,
			Endpoint:    cfg.Telemetry.Endpoint,
			Environment: cfg.Telemetry.Environment,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return err
		}
		tp = sdk
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

	history, err := statussqlite.New(store.DB())
	if err != nil {
		return err
	}

	dir, err := directory.Load(cfg.Seed.Directory)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var menuCache cache.Cache
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedisCache(cfg.Redis.Addr, "kitchen-admission")
		if err := rc.Ping(ctx); err != nil {
			slog.Warn("redis unreachable, menu reads fall back to the store", "addr", cfg.Redis.Addr, "error", err)
		}
		defer rc.Close()
		menuCache = rc
	}

	var (
		pub events.Publisher
		bus *events.Bus
	)
	if cfg.Kafka.Enabled() {
		producer, err := kafkaevents.NewWriter(kafkaevents.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			ClientID:     cfg.Service,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, tp)
		if err != nil {
			return err
		}
		kp := kafkaevents.NewPublisher(producer)
		defer kp.Close()
		pub = kp
		slog.Info("publishing stock changes to kafka", "topic", cfg.Kafka.Topic)
	} else {
		bus = events.NewBus(cfg.Worker.BusBuffer)
		defer bus.Close()
		pub = bus
	}

	svc := app.Build(app.Deps{
		Store:     store,
		Directory: dir,
		History:   history,
		Publisher: pub,
		Cache:     menuCache,
		Metrics:   m,
	})

	if cfg.Seed.Catalog != "" {
		n, err := svc.Catalog.LoadFile(ctx, cfg.Seed.Catalog)
		if err != nil {
			return err
		}
		slog.Info("catalog loaded", "file", cfg.Seed.Catalog, "menu_items", n)
	}

	var wg sync.WaitGroup
	if bus != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := availability.NewWorker(bus, svc.Availability).Run(ctx); err != nil {
				slog.Error("availability worker stopped", "error", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.Availability.RunTimeWindows(ctx, dir, cfg.Worker.TimeWindowTick)
	}()

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return err
	}
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(interceptors.TraceServerInterceptor()),
	)
	health := grpcx.Register(grpcServer, grpcx.NewServer(svc))

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpx.NewRouter(httpx.NewHandler(svc, store.DB()), reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		slog.Info("admission gRPC running", "addr", cfg.GRPC.Addr)
		errc <- grpcServer.Serve(lis)
	}()
	go func() {
		slog.Info("admission HTTP running", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}

	slog.Info("shutting down")
	health.SetServingStatus(grpcx.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	grpcServer.GracefulStop()
	if bus != nil {
		_ = bus.Close()
	}
	stopBackground()
	wg.Wait()
	return serveErr
}
