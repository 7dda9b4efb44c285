package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"readingly/internal/ratelimit"
	"readingly/internal/util"
	"readingly/pkg/ai"
	"readingly/pkg/store"
	"readingly/services/recommend/internal/app"
	"readingly/services/recommend/internal/config"
	"readingly/services/recommend/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	generator := ai.NewOpenAICompatGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, ai.GeneratorOptions{
		Temperature: 0.7,
	})
	embedder := ai.NewOpenAICompatEmbedder(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.EmbeddingModel)

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, "", "readingly:recommend", 30, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	collector := app.NewProfileCollector(st, app.NewInterestExtractor(st, embedder))
	httpServer := server.New(server.Config{
		Recommender: app.NewRecommendationService(st, generator, collector, logger, cfg.DefaultLocale),
		Embeddings:  app.NewEmbeddingService(st, embedder),
		Limiter:     limiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("recommend server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
