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
	"readingly/services/notes/internal/app"
	"readingly/services/notes/internal/config"
	"readingly/services/notes/internal/server"
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

	// lower temperature than the other services: clustering output
	// should be reproducible for the same inputs
	generator := ai.NewOpenAICompatGenerator(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, ai.GeneratorOptions{
		Temperature: 0.3,
	})

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, "", "readingly:notes", 30, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		Structures: app.NewStructureService(st, app.NewChain(generator)),
		Limiter:    limiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("notes server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
