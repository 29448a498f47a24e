package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentlab/inference-gateway/internal/api"
	"github.com/agentlab/inference-gateway/internal/auth"
	"github.com/agentlab/inference-gateway/internal/cache"
	"github.com/agentlab/inference-gateway/internal/circuitbreaker"
	"github.com/agentlab/inference-gateway/internal/config"
	"github.com/agentlab/inference-gateway/internal/crypto"
	"github.com/agentlab/inference-gateway/internal/dispatch"
	"github.com/agentlab/inference-gateway/internal/embedding"
	"github.com/agentlab/inference-gateway/internal/ledger"
	"github.com/agentlab/inference-gateway/internal/notifications"
	"github.com/agentlab/inference-gateway/internal/provider"
	"github.com/agentlab/inference-gateway/internal/provider/anthropic"
	"github.com/agentlab/inference-gateway/internal/provider/bedrock"
	"github.com/agentlab/inference-gateway/internal/provider/deepseek"
	"github.com/agentlab/inference-gateway/internal/provider/ollama"
	"github.com/agentlab/inference-gateway/internal/provider/openai"
	"github.com/agentlab/inference-gateway/internal/queue"
	"github.com/agentlab/inference-gateway/internal/ratelimit"
	"github.com/agentlab/inference-gateway/internal/repository"
	"github.com/agentlab/inference-gateway/internal/retry"
	"github.com/agentlab/inference-gateway/internal/router"
	"github.com/agentlab/inference-gateway/internal/secrets"
	"github.com/agentlab/inference-gateway/internal/spend"
	"github.com/agentlab/inference-gateway/internal/telemetry"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting inference gateway", "addr", cfg.Addr, "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, "inference-gateway", cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	resolveProviderKeys(ctx, cfg)

	adapters := buildAdapters(ctx, cfg)
	if len(adapters) == 0 {
		slog.Error("no providers configured")
		os.Exit(1)
	}

	providerRouter := router.New(adapters...)

	exactCache := buildExactCache(cfg)
	semanticCache := buildSemanticCache(cfg)

	book := ledger.New()
	pricing := ledger.NewCalculator(providerRouter.Models())

	var breakerOpts []circuitbreaker.ManagerOption
	if cfg.UseDistributedCircuitBreaker && cfg.RedisURL != "" {
		breakerOpts = append(breakerOpts, circuitbreaker.WithRedis(cfg.RedisURL))
		slog.Info("using redis circuit breakers")
	}
	breakers := circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), breakerOpts...)

	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		limiter, err = ratelimit.NewRedisLimiter(cfg.RedisURL)
		if err != nil {
			slog.Warn("failed to connect to redis for rate limiting, using in-memory", "error", err)
			limiter = ratelimit.NewMemoryLimiter()
		} else {
			slog.Info("using redis rate limiter")
		}
	} else {
		limiter = ratelimit.NewMemoryLimiter()
	}

	retrier := retry.NewController(retry.Policy{
		BaseDelay:   cfg.RetryBaseDelay,
		MaxAttempts: cfg.RetryMaxAttempts,
		MaxElapsed:  cfg.RetryMaxElapsed,
	}, slog.Default())

	usageStore := buildUsageStore(cfg)
	monitor := buildSpendMonitor(ctx, cfg, book, pricing)

	dispatcher := dispatch.New(dispatch.Deps{
		Router:   providerRouter,
		Exact:    exactCache,
		Semantic: semanticCache,
		Retrier:  retrier,
		Breakers: breakers,
		Limiter:  limiter,
		Ledger:   book,
		Pricing:  pricing,
		Usage:    usageStore,
		Monitor:  monitor,
		Logger:   slog.Default(),
	}, dispatch.Options{
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		RequestTimeout:   cfg.RequestTimeout,
		ProviderRPM:      cfg.ProviderRPM,
	})

	jobQueue := buildJobQueue(ctx, cfg)
	if jobQueue != nil {
		worker := queue.NewWorker(jobQueue, dispatcher, slog.Default())
		go worker.Run(ctx)
		slog.Info("batch job worker started")
	}

	handler := api.NewHandler(api.HandlerConfig{
		Service:  dispatcher,
		Router:   providerRouter,
		Breakers: breakers,
		Queue:    jobQueue,
	})

	var authenticator *auth.Authenticator
	if cfg.AdminAuthEnabled {
		authenticator = auth.NewAuthenticator(cfg.AdminUsername, cfg.AdminPasswordHash)
	}
	adminHandler := api.NewAdminHandler(dispatcher, usageStore, authenticator)

	mux := http.NewServeMux()
	mux.Handle("/admin/", adminHandler)
	mux.Handle("/", handler)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("final spend", "report", book.Report(pricing))
	slog.Info("server stopped")
}

// resolveProviderKeys fills in any provider keys missing from the
// environment from AWS Secrets Manager, when configured.
func resolveProviderKeys(ctx context.Context, cfg *config.Config) {
	if cfg.SecretsName == "" {
		return
	}

	store, err := secrets.NewAWSSecretsManager(ctx, cfg.AWSRegion)
	if err != nil {
		slog.Warn("failed to connect to secrets manager", "error", err)
		return
	}

	keys, err := secrets.ResolveProviderKeys(ctx, store, cfg.SecretsName)
	if err != nil {
		slog.Warn("failed to resolve provider keys", "secret", cfg.SecretsName, "error", err)
		return
	}

	if cfg.OpenAIAPIKey == "" {
		cfg.OpenAIAPIKey = keys.OpenAI
	}
	if cfg.AnthropicAPIKey == "" {
		cfg.AnthropicAPIKey = keys.Anthropic
	}
	if cfg.DeepSeekAPIKey == "" {
		cfg.DeepSeekAPIKey = keys.DeepSeek
	}
	slog.Info("provider keys resolved from secrets manager", "secret", cfg.SecretsName)
}

func buildAdapters(ctx context.Context, cfg *config.Config) []provider.Adapter {
	var adapters []provider.Adapter

	if cfg.OpenAIAPIKey != "" {
		adapters = append(adapters, openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL))
		slog.Info("registered provider", "provider", "openai")
	}
	if cfg.DeepSeekAPIKey != "" {
		adapters = append(adapters, deepseek.New(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL))
		slog.Info("registered provider", "provider", "deepseek")
	}
	if cfg.AnthropicAPIKey != "" {
		adapters = append(adapters, anthropic.New(cfg.AnthropicAPIKey))
		slog.Info("registered provider", "provider", "anthropic")
	}
	if cfg.OllamaBaseURL != "" {
		adapters = append(adapters, ollama.New(cfg.OllamaBaseURL))
		slog.Info("registered provider", "provider", "ollama", "url", cfg.OllamaBaseURL)
	}
	if cfg.BedrockEnabled {
		adapter, err := bedrock.New(ctx, cfg.AWSRegion)
		if err != nil {
			slog.Warn("failed to initialize bedrock", "error", err)
		} else {
			adapters = append(adapters, adapter)
			slog.Info("registered provider", "provider", "bedrock", "region", cfg.AWSRegion)
		}
	}

	return adapters
}

func buildExactCache(cfg *config.Config) *cache.ExactCache {
	var durable cache.DurableStore
	if cfg.RedisURL != "" {
		var encryptor *crypto.Encryptor
		if cfg.EncryptionKey != "" {
			enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
			if err != nil {
				slog.Warn("invalid encryption key, storing cache entries unencrypted", "error", err)
			} else {
				encryptor = enc
			}
		}

		store, err := cache.NewRedisStore(cfg.RedisURL, encryptor)
		if err != nil {
			slog.Warn("failed to connect to redis for cache, using memory only", "error", err)
		} else {
			durable = store
			slog.Info("using redis durable cache", "encrypted", encryptor != nil)
		}
	}

	return cache.NewExactCache(cfg.ExactCacheSize, cfg.ExactCacheTTL, durable)
}

func buildSemanticCache(cfg *config.Config) *cache.SemanticCache {
	if cfg.OpenAIAPIKey == "" {
		slog.Info("semantic cache disabled: no embedding credentials")
		return nil
	}

	embedder := embedding.New(cfg.OpenAIAPIKey, cfg.EmbeddingBaseURL, cfg.EmbeddingModel)
	slog.Info("semantic cache enabled",
		"model", cfg.EmbeddingModel,
		"threshold", cfg.SimilarityThreshold,
	)
	return cache.NewSemanticCache(embedder, cfg.SimilarityThreshold, cfg.SemanticCacheSize)
}

func buildUsageStore(cfg *config.Config) repository.UsageStore {
	if cfg.DatabaseURL == "" {
		return repository.NewInMemoryUsageStore()
	}

	store, err := repository.NewPostgresUsageStore(cfg.DatabaseURL)
	if err != nil {
		slog.Warn("failed to connect to postgres, using in-memory usage store", "error", err)
		return repository.NewInMemoryUsageStore()
	}
	slog.Info("using postgres usage store")
	return store
}

func buildSpendMonitor(ctx context.Context, cfg *config.Config, book *ledger.Ledger, pricing *ledger.Calculator) *spend.Monitor {
	if cfg.RunBudgetUSD <= 0 {
		return nil
	}

	var notifier notifications.Notifier
	if cfg.SNSTopicARN != "" {
		sns, err := notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.SNSTopicARN)
		if err != nil {
			slog.Warn("failed to initialize sns notifier", "error", err)
			notifier = notifications.NewInMemoryNotifier()
		} else {
			notifier = sns
			slog.Info("spend alerts publishing to sns", "topic", cfg.SNSTopicARN)
		}
	} else {
		notifier = notifications.NewInMemoryNotifier()
	}

	var dedup spend.Deduplicator
	if cfg.RedisURL != "" {
		redisDedup, err := spend.NewRedisDeduplicator(cfg.RedisURL, time.Hour)
		if err != nil {
			slog.Warn("failed to connect to redis for alert dedup, using in-memory", "error", err)
			dedup = spend.NewInMemoryDeduplicator()
		} else {
			dedup = redisDedup
		}
	} else {
		dedup = spend.NewInMemoryDeduplicator()
	}

	slog.Info("spend monitoring enabled", "budget_usd", cfg.RunBudgetUSD)
	return spend.NewMonitor(
		cfg.RunBudgetUSD,
		spend.DefaultThresholds(),
		func() float64 { return book.TotalCost(pricing) },
		dedup,
		notifier,
		slog.Default(),
	)
}

func buildJobQueue(ctx context.Context, cfg *config.Config) queue.Queue {
	if cfg.SQSRequestQueueURL == "" || cfg.SQSResponseQueueURL == "" {
		return nil
	}

	q, err := queue.NewSQSQueue(ctx, cfg.AWSRegion, cfg.SQSRequestQueueURL, cfg.SQSResponseQueueURL)
	if err != nil {
		slog.Warn("failed to initialize sqs queue, async jobs disabled", "error", err)
		return nil
	}
	slog.Info("sqs job queue enabled")
	return q
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
