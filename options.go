package modeller

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/Spyderisk/system-modeller-sub004/pattern"
)

// EngineOption configures the Engine.
type EngineOption func(*engineConfig)

// engineConfig holds configuration for the Engine instance.
type engineConfig struct {
	logger        *slog.Logger
	tracer        trace.Tracer
	meter         metric.Meter
	concurrency   int
	maxExpansions *int
	searchTimeout time.Duration
	namespace     string
	policy        pattern.PresencePolicy
}

// WithLogger sets a custom logger for the engine.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for validation and search spans.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(c *engineConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets the OpenTelemetry meter validation metrics are recorded on.
func WithMeter(meter metric.Meter) EngineOption {
	return func(c *engineConfig) {
		c.meter = meter
	}
}

// WithConcurrency bounds the number of pattern searches run at once per
// assessment. Defaults to GOMAXPROCS.
func WithConcurrency(n int) EngineOption {
	return func(c *engineConfig) {
		c.concurrency = n
	}
}

// WithMaxExpansions bounds the search states explored per (threat, anchor)
// search. Zero or less means unbounded.
func WithMaxExpansions(n int) EngineOption {
	return func(c *engineConfig) {
		c.maxExpansions = &n
	}
}

// WithSearchTimeout bounds the time spent on each (threat, anchor) search.
func WithSearchTimeout(d time.Duration) EngineOption {
	return func(c *engineConfig) {
		c.searchTimeout = d
	}
}

// WithNamespace sets the URI prefix of instantiated threats, misbehaviour
// sets, control sets and control strategies.
func WithNamespace(ns string) EngineOption {
	return func(c *engineConfig) {
		c.namespace = ns
	}
}

// WithPresencePolicy sets how necessary roles and sufficient groups combine.
// Defaults to pattern.NecessaryOrSufficient.
func WithPresencePolicy(p pattern.PresencePolicy) EngineOption {
	return func(c *engineConfig) {
		c.policy = p
	}
}
