// Package dispatch is the façade callers use to generate text. It owns the
// cache lookups, in-flight de-duplication, provider pacing, retry, and cost
// accounting that surround every provider call.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/agentlab/inference-gateway/internal/cache"
	"github.com/agentlab/inference-gateway/internal/circuitbreaker"
	"github.com/agentlab/inference-gateway/internal/domain"
	"github.com/agentlab/inference-gateway/internal/ledger"
	"github.com/agentlab/inference-gateway/internal/metrics"
	"github.com/agentlab/inference-gateway/internal/provider"
	"github.com/agentlab/inference-gateway/internal/ratelimit"
	"github.com/agentlab/inference-gateway/internal/repository"
	"github.com/agentlab/inference-gateway/internal/retry"
	"github.com/agentlab/inference-gateway/internal/router"
	"github.com/agentlab/inference-gateway/internal/spend"
	"github.com/agentlab/inference-gateway/internal/telemetry"
)

// Options are the dispatch knobs read once at startup.
type Options struct {
	// ConcurrencyLimit bounds how many batch items run at once.
	ConcurrencyLimit int
	// RequestTimeout is the per-caller deadline for a single generation.
	// Zero disables it.
	RequestTimeout time.Duration
	// ProviderRPM is the outbound requests-per-minute budget per provider.
	// Zero disables pacing.
	ProviderRPM int
}

// Deps are the collaborators a Dispatcher is wired with. Semantic, Limiter,
// Usage, and Monitor are optional; the rest are required.
type Deps struct {
	Router   *router.Router
	Exact    *cache.ExactCache
	Semantic *cache.SemanticCache
	Retrier  *retry.Controller
	Breakers *circuitbreaker.Manager
	Limiter  ratelimit.Limiter
	Ledger   *ledger.Ledger
	Pricing  *ledger.Calculator
	Usage    repository.UsageStore
	Monitor  *spend.Monitor
	Logger   *slog.Logger
}

type Dispatcher struct {
	router   *router.Router
	exact    *cache.ExactCache
	semantic *cache.SemanticCache
	retrier  *retry.Controller
	breakers *circuitbreaker.Manager
	limiter  ratelimit.Limiter
	ledger   *ledger.Ledger
	pricing  *ledger.Calculator
	usage    repository.UsageStore
	monitor  *spend.Monitor
	logger   *slog.Logger

	group singleflight.Group
	opts  Options

	now func() time.Time
}

func New(deps Deps, opts Options) *Dispatcher {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.ConcurrencyLimit <= 0 {
		opts.ConcurrencyLimit = 4
	}
	return &Dispatcher{
		router:   deps.Router,
		exact:    deps.Exact,
		semantic: deps.Semantic,
		retrier:  deps.Retrier,
		breakers: deps.Breakers,
		limiter:  deps.Limiter,
		ledger:   deps.Ledger,
		pricing:  deps.Pricing,
		usage:    deps.Usage,
		monitor:  deps.Monitor,
		logger:   deps.Logger,
		opts:     opts,
		now:      time.Now,
	}
}

// Generate serves a single request: exact cache, then semantic cache, then
// at most one provider call per exact-match key shared among concurrent
// identical requests.
func (d *Dispatcher) Generate(ctx context.Context, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	adapter, err := d.router.SelectAdapter(req.Model)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "dispatch.Generate")
	defer span.End()
	telemetry.AddRequestAttributes(span, adapter.ID(), req.Model, "")

	if result, ok := d.exact.Get(ctx, req); ok {
		result.ServedFromCache = domain.CacheExact
		metrics.RecordCacheHit("exact")
		telemetry.AddCacheAttribute(span, result.ServedFromCache.String())
		return &result, nil
	}
	metrics.RecordCacheMiss("exact")

	if d.semantic != nil {
		result, ok, err := d.semantic.Get(ctx, req.Model, req.CombinedPrompt())
		if err != nil {
			d.logger.Warn("semantic cache lookup failed", "model", req.Model, "error", err)
		} else if ok {
			result.ServedFromCache = domain.CacheSemantic
			metrics.RecordCacheHit("semantic")
			telemetry.AddCacheAttribute(span, result.ServedFromCache.String())
			return &result, nil
		}
		metrics.RecordCacheMiss("semantic")
	}

	// The shared call runs on a context detached from this caller so a
	// caller hitting its deadline does not tear down the generation other
	// waiters are joined to. The call still carries its own timeout.
	key := cache.Key(req)
	ch := d.group.DoChan(key, func() (any, error) {
		callCtx := context.WithoutCancel(ctx)
		if d.opts.RequestTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, d.opts.RequestTimeout)
			defer cancel()
		}
		return d.callProvider(callCtx, adapter, req)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: model %s", domain.ErrTimeout, req.Model)
	case res := <-ch:
		if res.Err != nil {
			telemetry.AddErrorAttribute(span, res.Err)
			return nil, res.Err
		}
		if res.Shared {
			metrics.InflightJoins.Inc()
		}
		result := *res.Val.(*domain.GenerationResult)
		return &result, nil
	}
}

// GenerateBatch dispatches each request through the single-request path with
// bounded parallelism. The returned slice matches the input order; one
// item's failure never aborts its siblings.
func (d *Dispatcher) GenerateBatch(ctx context.Context, reqs []domain.GenerationRequest) []domain.BatchItem {
	items := make([]domain.BatchItem, len(reqs))
	if len(reqs) == 0 {
		return items
	}
	metrics.BatchSize.Observe(float64(len(reqs)))

	sem := semaphore.NewWeighted(int64(d.opts.ConcurrencyLimit))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req domain.GenerationRequest) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				items[i] = domain.BatchItem{Err: fmt.Errorf("%w: model %s", domain.ErrTimeout, req.Model)}
				return
			}
			defer sem.Release(1)

			result, err := d.Generate(ctx, req)
			items[i] = domain.BatchItem{Result: result, Err: err}
		}(i, req)
	}
	wg.Wait()

	return items
}

// ReportCost renders the cumulative ledger as a human-readable string.
func (d *Dispatcher) ReportCost() string {
	return d.ledger.Report(d.pricing)
}

// TotalCost is the cumulative spend in US dollars since the last reset.
func (d *Dispatcher) TotalCost() float64 {
	return d.ledger.TotalCost(d.pricing)
}

// ResetLedger zeroes the cost ledger.
func (d *Dispatcher) ResetLedger() {
	d.ledger.Reset()
}

// callProvider is the shared body of one de-duplicated generation: pacing,
// circuit breaking, retry, accounting, and cache inserts.
func (d *Dispatcher) callProvider(ctx context.Context, adapter provider.Adapter, req domain.GenerationRequest) (*domain.GenerationResult, error) {
	providerID := adapter.ID()
	breaker := d.breakers.Get(providerID)
	start := d.now()

	var gen *domain.Generation
	attempts := 0
	err := d.retrier.Do(ctx, providerID, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			metrics.RecordRetry(providerID)
		}

		if d.limiter != nil && d.opts.ProviderRPM > 0 {
			ok, _, _, lerr := d.limiter.Allow(ctx, providerID, d.opts.ProviderRPM)
			if lerr != nil {
				// Fail open: pacing is advisory, the provider enforces
				// its own limits.
				d.logger.Warn("rate limiter unavailable", "provider", providerID, "error", lerr)
			} else if !ok {
				metrics.RecordRateLimitDenial(providerID)
				return &domain.ProviderError{
					Provider:  providerID,
					Status:    429,
					Transient: true,
					Message:   "outbound request budget reached",
				}
			}
		}

		if err := breaker.Allow(ctx); err != nil {
			return err
		}

		result, err := adapter.Generate(ctx, req)
		if err != nil {
			breaker.RecordFailure(ctx)
			metrics.SetCircuitBreakerState(providerID, int(breaker.State(ctx)))
			metrics.RecordProviderError(providerID, errorType(err))
			return err
		}
		breaker.RecordSuccess(ctx)
		metrics.SetCircuitBreakerState(providerID, int(breaker.State(ctx)))
		gen = result
		return nil
	})
	latency := d.now().Sub(start)
	if err != nil {
		metrics.RecordRequest(providerID, req.Model, "error", latency.Seconds())
		return nil, err
	}

	d.account(ctx, providerID, req, gen.Usage, latency)

	result := domain.GenerationResult{
		Text:            gen.Text,
		InputTokens:     gen.Usage.InputTokens,
		OutputTokens:    gen.Usage.OutputTokens,
		Model:           req.Model,
		ServedFromCache: domain.CacheNone,
	}
	metrics.RecordRequest(providerID, req.Model, "success", latency.Seconds())

	d.exact.Put(ctx, req, result)
	if d.semantic != nil {
		if err := d.semantic.Put(ctx, req.Model, req.CombinedPrompt(), result); err != nil {
			d.logger.Warn("semantic cache insert failed", "model", req.Model, "error", err)
		}
	}

	return &result, nil
}

// account records a successful generation in the ledger, usage store, and
// spend monitor. Accounting failures never fail the request.
func (d *Dispatcher) account(ctx context.Context, providerID string, req domain.GenerationRequest, usage domain.Usage, latency time.Duration) {
	d.ledger.Add(req.Model, usage.InputTokens, usage.OutputTokens)
	cost := d.pricing.CostOf(req.Model, usage)

	metrics.RecordTokens(providerID, req.Model, usage.InputTokens, usage.OutputTokens)
	metrics.RecordCost(providerID, req.Model, cost)

	if d.usage != nil {
		record := repository.UsageRecord{
			RequestID:    uuid.NewString(),
			Model:        req.Model,
			Provider:     providerID,
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			CostUSD:      cost,
			CacheSource:  domain.CacheNone.String(),
			LatencyMs:    latency.Milliseconds(),
			Timestamp:    d.now(),
		}
		if err := d.usage.Record(ctx, record); err != nil {
			d.logger.Warn("usage record write failed", "model", req.Model, "error", err)
		}
	}

	if d.monitor != nil {
		d.monitor.Check(ctx)
	}

	if !req.Quiet {
		d.logger.Info("generation accounted",
			"model", req.Model,
			"provider", providerID,
			"input_tokens", usage.InputTokens,
			"output_tokens", usage.OutputTokens,
			"cost_usd", cost,
			"total_usd", d.ledger.TotalCost(d.pricing))
	}
}

func errorType(err error) string {
	if domain.IsTransient(err) {
		return "transient"
	}
	return "permanent"
}
