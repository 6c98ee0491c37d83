package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"secondmind/internal/config"
	"secondmind/internal/fallback"
	"secondmind/internal/metrics"
	"secondmind/internal/providers"
	"secondmind/internal/providers/registry"
	"secondmind/internal/queue"
	"secondmind/internal/server"
	"secondmind/internal/storage"
	"secondmind/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("listen", cfg.Server.ListenAddr).
		Int("candidates", len(cfg.AI.Candidates)).
		Bool("ai_configured", cfg.AI.Configured()).
		Msg("starting secondmind")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, cfg.DB.AutoMigrate, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer rdb.Close()

	m := metrics.Global()
	httpClient := &http.Client{Timeout: cfg.HTTP.ClientTimeout}

	providerMap, err := buildProviders(cfg, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build providers")
	}

	orchestrator := fallback.New(fallback.Config{
		Candidates:       toFallbackCandidates(cfg.AI.Candidates),
		Providers:        providerMap,
		AbortOnRateLimit: cfg.AI.AbortOnRateLimit,
		Logger:           log.Logger,
		Metrics:          m,
	})

	syncQueue := queue.NewStreamQueue(rdb, cfg.Redis.SyncStream, cfg.Redis.SyncGroup, cfg.Worker.ConsumerName, cfg.Redis.SyncBlock)

	errCh := make(chan error, 2)

	w := worker.New(worker.Config{
		Store:         store,
		Queue:         syncQueue,
		Dedupe:        queue.NewJobDeduplicator(rdb, cfg.Redis.JobTTL),
		MaxJobRetries: cfg.Worker.MaxRetries,
		Logger:        log.Logger,
		Metrics:       m,
	})
	go func() {
		if err := w.Start(ctx, cfg.Worker.Concurrency); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("worker failed: %w", err)
		}
	}()
	log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("sync worker started")

	srv := server.New(server.Config{
		Store:   store,
		Queue:   syncQueue,
		Runner:  orchestrator,
		AI:      cfg.AI,
		Logger:  log.Logger,
		Metrics: m,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Router(cfg.Server.HealthPath, cfg.Server.MetricsPath),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

// buildProviders creates one adapter per distinct provider that has a
// credential. Candidates without one stay unmapped and are skipped by the
// fallback chain at request time.
func buildProviders(cfg *config.Config, httpClient *http.Client) (map[string]providers.Provider, error) {
	out := make(map[string]providers.Provider)
	for _, cand := range cfg.AI.Candidates {
		if _, ok := out[cand.Provider]; ok {
			continue
		}
		key := cfg.AI.Keys[cand.Provider]
		if strings.TrimSpace(key) == "" {
			log.Warn().Str("provider", cand.Provider).Msg("no API key, provider disabled")
			continue
		}
		p, err := registry.Build(registry.BuildOptions{
			Kind:        cand.Provider,
			BaseURL:     cfg.AI.BaseURLs[cand.Provider],
			APIKey:      key,
			HTTPClient:  httpClient,
			MaxRetries:  cfg.HTTP.MaxRetries,
			BackoffBase: cfg.HTTP.BackoffBase,
		})
		if err != nil {
			return nil, fmt.Errorf("build provider %q: %w", cand.Provider, err)
		}
		out[cand.Provider] = p
	}
	return out, nil
}

func toFallbackCandidates(in []config.Candidate) []fallback.Candidate {
	out := make([]fallback.Candidate, 0, len(in))
	for _, c := range in {
		out = append(out, fallback.Candidate{Provider: c.Provider, Model: c.Model})
	}
	return out
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
