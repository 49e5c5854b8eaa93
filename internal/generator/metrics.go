// internal/generator/metrics.go
package generator

import (
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/telemetry"
)

const tracerName = "github.com/thepurplechild/manthan-creator-suite-v0.1/generator"

var genMetrics struct {
	candidates       metric.Int64Counter
	fallbacks        metric.Int64Counter
	pitches          metric.Int64Counter
	providerDuration metric.Float64Histogram
}

var genMetricsOnce sync.Once

// initGenMetrics registers instruments against the current global provider.
// Instrument errors are ignored; the returned no-op instruments stay usable.
func initGenMetrics() {
	m := telemetry.Meter(tracerName)
	genMetrics.candidates, _ = m.Int64Counter("manthan.generation.candidates",
		metric.WithDescription("Candidates produced, by stage and source"),
		metric.WithUnit("{candidate}"),
	)
	genMetrics.fallbacks, _ = m.Int64Counter("manthan.generation.fallbacks",
		metric.WithDescription("Template substitutions, by stage and reason"),
		metric.WithUnit("{candidate}"),
	)
	genMetrics.pitches, _ = m.Int64Counter("manthan.generation.pitches",
		metric.WithDescription("Pitch packs produced, by source"),
		metric.WithUnit("{pitch}"),
	)
	genMetrics.providerDuration, _ = m.Float64Histogram("manthan.provider.duration",
		metric.WithDescription("Provider call duration including retries"),
		metric.WithUnit("ms"),
	)
}
