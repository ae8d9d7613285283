package validator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the instruments recorded per validation run.
type metrics struct {
	runs       metric.Int64Counter
	matches    metric.Int64Counter
	threats    metric.Int64Counter
	incomplete metric.Int64Counter
	duration   metric.Float64Histogram
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.runs, err = meter.Int64Counter(
		"validator.runs",
		metric.WithDescription("Number of validation runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create runs counter: %w", err)
	}

	m.matches, err = meter.Int64Counter(
		"validator.matches",
		metric.WithDescription("Pattern matches found"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create matches counter: %w", err)
	}

	m.threats, err = meter.Int64Counter(
		"validator.threats",
		metric.WithDescription("Threats instantiated"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create threats counter: %w", err)
	}

	m.incomplete, err = meter.Int64Counter(
		"validator.searches.incomplete",
		metric.WithDescription("Searches stopped before exhausting the search space"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create incomplete counter: %w", err)
	}

	m.duration, err = meter.Float64Histogram(
		"validator.duration",
		metric.WithDescription("Validation run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return m, nil
}

func (m *metrics) record(ctx context.Context, a *Assessment, elapsed time.Duration) {
	opts := metric.WithAttributes(
		attribute.String("domain", a.Domain),
		attribute.String("domain.version", a.DomainVersion),
	)
	m.runs.Add(ctx, 1, opts)
	m.matches.Add(ctx, int64(a.Matches), opts)
	m.threats.Add(ctx, int64(len(a.Model.Threats())), opts)
	m.incomplete.Add(ctx, int64(len(a.Incomplete)), opts)
	m.duration.Record(ctx, float64(elapsed.Milliseconds()), opts)
}
