package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_gateway_requests_total",
			Help: "Total number of generation requests processed",
		},
		[]string{"provider", "model", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_gateway_request_duration_seconds",
			Help:    "Generation request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider", "model"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_gateway_tokens_total",
			Help: "Total number of tokens processed",
		},
		[]string{"provider", "model", "type"},
	)

	CostTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_gateway_cost_usd_total",
			Help: "Total inference cost in USD",
		},
		[]string{"provider", "model"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_gateway_cache_hits_total",
			Help: "Total number of cache hits by tier",
		},
		[]string{"tier"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_gateway_cache_misses_total",
			Help: "Total number of cache misses by tier",
		},
		[]string{"tier"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_gateway_retries_total",
			Help: "Total number of retried provider calls",
		},
		[]string{"provider"},
	)

	InflightJoins = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inference_gateway_inflight_joins_total",
			Help: "Requests that joined an identical in-flight provider call",
		},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_gateway_provider_errors_total",
			Help: "Total number of provider errors",
		},
		[]string{"provider", "error_type"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inference_gateway_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_gateway_rate_limit_denials_total",
			Help: "Outbound calls denied by the provider rate limiter",
		},
		[]string{"provider"},
	)

	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inference_gateway_batch_size",
			Help:    "Number of requests per batch dispatch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	SpendRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inference_gateway_spend_budget_ratio",
			Help: "Current run spend as a fraction of the configured budget (0-1)",
		},
	)
)

func RecordRequest(provider, model, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(provider, model, status).Inc()
	RequestDuration.WithLabelValues(provider, model).Observe(durationSec)
}

func RecordTokens(provider, model string, inputTokens, outputTokens int) {
	TokensTotal.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	TokensTotal.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
}

func RecordCost(provider, model string, costUSD float64) {
	CostTotal.WithLabelValues(provider, model).Add(costUSD)
}

func RecordCacheHit(tier string) {
	CacheHits.WithLabelValues(tier).Inc()
}

func RecordCacheMiss(tier string) {
	CacheMisses.WithLabelValues(tier).Inc()
}

func RecordRetry(provider string) {
	RetriesTotal.WithLabelValues(provider).Inc()
}

func RecordProviderError(provider, errorType string) {
	ProviderErrors.WithLabelValues(provider, errorType).Inc()
}

func RecordRateLimitDenial(provider string) {
	RateLimitDenials.WithLabelValues(provider).Inc()
}

func SetCircuitBreakerState(provider string, state int) {
	CircuitBreakerState.WithLabelValues(provider).Set(float64(state))
}

func SetSpendRatio(ratio float64) {
	SpendRatio.Set(ratio)
}
