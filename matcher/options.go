package matcher

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultMaxExpansions bounds the number of search states one Match call
// explores before it gives up and reports an incomplete result.
const DefaultMaxExpansions = 100000

// Option configures a Matcher.
type Option func(*config)

type config struct {
	logger        *slog.Logger
	tracer        trace.Tracer
	maxExpansions int
}

func defaultConfig() config {
	return config{
		logger:        slog.Default(),
		tracer:        noop.NewTracerProvider().Tracer("matcher"),
		maxExpansions: DefaultMaxExpansions,
	}
}

// WithLogger sets the logger used for search diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the tracer used to record a span per Match call.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithMaxExpansions bounds the number of search states explored per Match
// call. Zero or a negative value disables the bound.
func WithMaxExpansions(n int) Option {
	return func(c *config) {
		c.maxExpansions = n
	}
}
