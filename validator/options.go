package validator

import (
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Spyderisk/system-modeller-sub004/matcher"
	"github.com/Spyderisk/system-modeller-sub004/pattern"
)

// Option configures a Validator.
type Option func(*config)

type config struct {
	logger        *slog.Logger
	tracer        trace.Tracer
	meter         metric.Meter
	concurrency   int
	maxExpansions int
	searchTimeout time.Duration
	namespace     string
	policy        pattern.PresencePolicy
	now           func() time.Time
}

func defaultConfig() config {
	return config{
		logger:        slog.Default(),
		tracer:        noop.NewTracerProvider().Tracer("validator"),
		meter:         metricnoop.NewMeterProvider().Meter("validator"),
		concurrency:   runtime.GOMAXPROCS(0),
		maxExpansions: matcher.DefaultMaxExpansions,
		now:           time.Now,
	}
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used for validation and search spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithMeter sets the meter the validation metrics are recorded on.
func WithMeter(meter metric.Meter) Option {
	return func(c *config) {
		if meter != nil {
			c.meter = meter
		}
	}
}

// WithConcurrency bounds the number of searches run at once. Values below
// one are ignored.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithMaxExpansions bounds the states explored by each search.
// Zero or less means unbounded.
func WithMaxExpansions(n int) Option {
	return func(c *config) {
		c.maxExpansions = n
	}
}

// WithSearchTimeout bounds the time of each (threat, anchor) search.
// Zero means no per-search limit beyond the caller's context.
func WithSearchTimeout(d time.Duration) Option {
	return func(c *config) {
		c.searchTimeout = d
	}
}

// WithNamespace sets the URI prefix of instantiated entities.
func WithNamespace(ns string) Option {
	return func(c *config) {
		c.namespace = ns
	}
}

// WithPresencePolicy sets the policy patterns are compiled with.
func WithPresencePolicy(p pattern.PresencePolicy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithClock sets the clock used to stamp assessments.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}
