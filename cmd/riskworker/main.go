// Command riskworker consumes assessment jobs from Redis, validates each
// submitted system model against the loaded domain models and publishes a
// result per job.
//
// Usage:
//
//	riskworker -config riskworker.yaml
//
// Every setting can be overridden from the environment, for example
// RISK_REDIS__URL=redis://cache:6379 or RISK_WORKER__CONCURRENCY=8.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	modeller "github.com/Spyderisk/system-modeller-sub004"
	"github.com/Spyderisk/system-modeller-sub004/catalog"
	"github.com/Spyderisk/system-modeller-sub004/queue"
	"github.com/Spyderisk/system-modeller-sub004/serve"
	"github.com/Spyderisk/system-modeller-sub004/store"
	"github.com/Spyderisk/system-modeller-sub004/worker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configPath := flag.String("config", "riskworker.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "riskworker: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("riskworker failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	tel, err := setupTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	engine := modeller.NewEngine(engineOptions(cfg, logger, tel)...)
	models, err := engine.LoadDomainDir(cfg.DomainDir)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return fmt.Errorf("no domain models found in %s", cfg.DomainDir)
	}

	client, err := queue.NewRedisClient(queue.RedisOptions{
		URL:         cfg.Redis.URL,
		PollTimeout: cfg.Redis.PollTimeout,
	})
	if err != nil {
		return err
	}
	defer modeller.CloseWithLog(client, logger, "queue client")

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer modeller.CloseWithLog(st, logger, "store")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := worker.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	health, err := serve.NewServer(&cfg.Health, logger)
	if err != nil {
		return err
	}

	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = newWorkerID()
	}

	if cfg.Catalog.Enabled {
		cat, err := catalog.NewClient(cfg.Catalog.Etcd)
		if err != nil {
			health.Stop()
			return err
		}
		defer modeller.CloseWithLog(cat, logger, "catalog client")

		endpoint := cfg.Catalog.Endpoint
		if endpoint == "" {
			endpoint = advertisedAddr(cfg.Health.Host, health.Port())
		}
		if err := cat.RegisterModels(ctx, workerID, endpoint, models); err != nil {
			health.Stop()
			return err
		}
		logger.Info("domain models registered in catalog", "models", len(models), "endpoint", endpoint)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return health.Serve(gctx)
	})

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			logger.Info("metrics server listening", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return worker.Run(gctx, worker.Options{
			Client:            client,
			Assessor:          engine,
			Store:             st,
			WorkerID:          workerID,
			Version:           version,
			Domains:           engine.Domains(),
			Concurrency:       cfg.Worker.Concurrency,
			JobTimeout:        cfg.Worker.JobTimeout,
			ShutdownTimeout:   cfg.Worker.ShutdownTimeout,
			HeartbeatInterval: cfg.Worker.HeartbeatInterval,
			Logger:            logger,
			Metrics:           metrics,
			OnServing:         health.SetServing,
		})
	})

	return g.Wait()
}

func engineOptions(cfg *Config, logger *slog.Logger, tel *telemetry) []modeller.EngineOption {
	opts := []modeller.EngineOption{
		modeller.WithLogger(logger),
		modeller.WithTracer(tel.tracer),
		modeller.WithMeter(tel.meter),
	}
	if cfg.Engine.Namespace != "" {
		opts = append(opts, modeller.WithNamespace(cfg.Engine.Namespace))
	}
	if cfg.Engine.Concurrency > 0 {
		opts = append(opts, modeller.WithConcurrency(cfg.Engine.Concurrency))
	}
	if cfg.Engine.MaxExpansions > 0 {
		opts = append(opts, modeller.WithMaxExpansions(cfg.Engine.MaxExpansions))
	}
	if cfg.Engine.SearchTimeout > 0 {
		opts = append(opts, modeller.WithSearchTimeout(cfg.Engine.SearchTimeout))
	}
	return opts
}

// openStore opens the configured assessment store.
func openStore(cfg *Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	case "redis":
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		var storeOpts []store.RedisOption
		if cfg.Store.TTL > 0 {
			storeOpts = append(storeOpts, store.WithTTL(cfg.Store.TTL))
		}
		return store.NewRedis(redis.NewClient(opts), storeOpts...), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func advertisedAddr(host string, port int) string {
	if host == "" {
		if h, err := os.Hostname(); err == nil {
			host = h
		} else {
			host = "localhost"
		}
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func newWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "riskworker"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}
