package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Spyderisk/system-modeller-sub004/catalog"
	"github.com/Spyderisk/system-modeller-sub004/serve"
	"github.com/Spyderisk/system-modeller-sub004/worker"
)

// envPrefix marks environment overrides. Nested keys are separated by a
// double underscore: RISK_WORKER__JOB_TIMEOUT sets worker.job_timeout.
const envPrefix = "RISK_"

// Config is the riskworker configuration.
type Config struct {
	LogLevel  string `koanf:"log_level" validate:"oneof=debug info warn error"`
	DomainDir string `koanf:"domain_dir" validate:"required"`

	Engine  EngineConfig  `koanf:"engine"`
	Redis   RedisConfig   `koanf:"redis"`
	Store   StoreConfig   `koanf:"store"`
	Worker  WorkerConfig  `koanf:"worker"`
	Metrics MetricsConfig `koanf:"metrics"`
	Health  serve.Config  `koanf:"health"`
	Catalog CatalogConfig `koanf:"catalog"`

	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// EngineConfig bounds the pattern search.
type EngineConfig struct {
	Namespace     string        `koanf:"namespace"`
	Concurrency   int           `koanf:"concurrency" validate:"gte=0"`
	MaxExpansions int           `koanf:"max_expansions" validate:"gte=0"`
	SearchTimeout time.Duration `koanf:"search_timeout" validate:"gte=0"`
}

type RedisConfig struct {
	URL         string        `koanf:"url" validate:"required"`
	PollTimeout time.Duration `koanf:"poll_timeout" validate:"gte=0"`
}

// StoreConfig selects where assessments and control states are kept.
type StoreConfig struct {
	Backend    string        `koanf:"backend" validate:"oneof=memory redis sqlite"`
	SQLitePath string        `koanf:"sqlite_path" validate:"required_if=Backend sqlite"`
	TTL        time.Duration `koanf:"ttl" validate:"gte=0"`
}

type WorkerConfig struct {
	ID                string        `koanf:"id"`
	Concurrency       int           `koanf:"concurrency" validate:"gte=1"`
	JobTimeout        time.Duration `koanf:"job_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval" validate:"gt=0"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
	Path string `koanf:"path" validate:"startswith=/"`
}

// CatalogConfig controls registration of the loaded domain models in etcd.
type CatalogConfig struct {
	Enabled bool `koanf:"enabled"`

	// Endpoint is advertised to catalog readers. Defaults to the health
	// server address.
	Endpoint string `koanf:"endpoint"`

	Etcd catalog.Config `koanf:"etcd"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:  "info",
		DomainDir: "domains",
		Redis: RedisConfig{
			URL:         "redis://localhost:6379",
			PollTimeout: time.Second,
		},
		Store: StoreConfig{
			Backend:    "redis",
			SQLitePath: "riskengine.db",
		},
		Worker: WorkerConfig{
			Concurrency:       worker.DefaultConcurrency,
			JobTimeout:        worker.DefaultJobTimeout,
			ShutdownTimeout:   worker.DefaultShutdownTimeout,
			HeartbeatInterval: worker.DefaultHeartbeatInterval,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
		Health: *serve.DefaultConfig(),
		Telemetry: TelemetryConfig{
			ServiceName:    "riskworker",
			SamplingRate:   1,
			ExportTimeout:  10 * time.Second,
			ExportInterval: 30 * time.Second,
		},
		Catalog: CatalogConfig{
			Etcd: catalog.Config{
				Endpoints: []string{"localhost:2379"},
				Namespace: "riskengine",
				TTL:       30,
				TLS:       &catalog.TLSConfig{},
			},
		},
	}
}

// LoadConfig layers defaults, the optional YAML file at path and RISK_
// environment variables, then validates the result.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// A comma separated env value arrives as a single element.
	cfg.Catalog.Etcd.Endpoints = catalog.ParseEndpoints(strings.Join(cfg.Catalog.Etcd.Endpoints, ","))

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Catalog.Enabled && len(cfg.Catalog.Etcd.Endpoints) == 0 {
		return nil, errors.New("invalid config: catalog.etcd.endpoints is required when the catalog is enabled")
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// Level maps LogLevel to a slog level.
func (c *Config) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
