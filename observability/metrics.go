package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	oracleMetricsOnce sync.Once
	oracleRegistry    *PriceFeedMetrics

	engineMetricsOnce sync.Once
	engineRegistry    *EngineMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// HTTP module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "collar",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "collar",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "collar",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// EngineMetrics bundles collectors tracking settlement and roll activity.
type EngineMetrics struct {
	settlements *prometheus.CounterVec
	rolls       *prometheus.CounterVec
	locked      *prometheus.GaugeVec
	errors      *prometheus.CounterVec
}

// Engine exposes the metrics registry for the collar engines.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "collar",
				Subsystem: "engine",
				Name:      "settlements_total",
				Help:      "Count of settled positions segmented by kind.",
			}, []string{"kind"}),
			rolls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "collar",
				Subsystem: "engine",
				Name:      "rolls_total",
				Help:      "Count of roll offer transitions segmented by step.",
			}, []string{"step"}),
			locked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "collar",
				Subsystem: "engine",
				Name:      "locked_units",
				Help:      "Currently locked collateral per side in integer units.",
			}, []string{"side"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "collar",
				Subsystem: "engine",
				Name:      "errors_total",
				Help:      "Count of engine failures segmented by operation and reason.",
			}, []string{"operation", "reason"}),
		}
		prometheus.MustRegister(
			engineRegistry.settlements,
			engineRegistry.rolls,
			engineRegistry.locked,
			engineRegistry.errors,
		)
	})
	return engineRegistry
}

// RecordSettlement increments the settlement counter. Kind should be a stable
// string such as "priced" or "cancelled".
func (m *EngineMetrics) RecordSettlement(kind string) {
	if m == nil {
		return
	}
	if kind = strings.TrimSpace(kind); kind == "" {
		kind = "unknown"
	}
	m.settlements.WithLabelValues(kind).Inc()
}

// RecordRoll increments the roll counter for the supplied step ("created",
// "cancelled", "executed").
func (m *EngineMetrics) RecordRoll(step string) {
	if m == nil {
		return
	}
	if step = strings.TrimSpace(step); step == "" {
		step = "unknown"
	}
	m.rolls.WithLabelValues(step).Inc()
}

// RecordLocked updates the locked collateral gauge for a side.
func (m *EngineMetrics) RecordLocked(side string, amount *big.Int) {
	if m == nil {
		return
	}
	m.locked.WithLabelValues(strings.ToLower(strings.TrimSpace(side))).Set(bigToFloat(amount))
}

// RecordError increments the error counter for the supplied reason.
func (m *EngineMetrics) RecordError(operation, reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.errors.WithLabelValues(operation, reason).Inc()
}

// PriceFeedMetrics bundles collectors for oracle sampling and freshness.
type PriceFeedMetrics struct {
	samples   *prometheus.CounterVec
	freshness *prometheus.GaugeVec
}

// PriceFeed returns the metrics registry for price feed instrumentation.
func PriceFeed() *PriceFeedMetrics {
	oracleMetricsOnce.Do(func() {
		oracleRegistry = &PriceFeedMetrics{
			samples: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "collar",
				Subsystem: "pricefeed",
				Name:      "samples_total",
				Help:      "Count of price samples recorded per source.",
			}, []string{"source"}),
			freshness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "collar",
				Subsystem: "pricefeed",
				Name:      "freshness_seconds",
				Help:      "Age in seconds of the most recent accepted sample per source.",
			}, []string{"source"}),
		}
		prometheus.MustRegister(oracleRegistry.samples, oracleRegistry.freshness)
	})
	return oracleRegistry
}

// RecordSample increments the sample counter for a source.
func (m *PriceFeedMetrics) RecordSample(source string) {
	if m == nil {
		return
	}
	m.samples.WithLabelValues(labelSource(source)).Inc()
}

// RecordFreshness records how stale the accepted sample was.
func (m *PriceFeedMetrics) RecordFreshness(source string, age time.Duration) {
	if m == nil {
		return
	}
	m.freshness.WithLabelValues(labelSource(source)).Set(age.Seconds())
}

func labelSource(source string) string {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
