package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"readingly/internal/ratelimit"
	"readingly/internal/util"
	"readingly/pkg/push"
	"readingly/pkg/queue"
	"readingly/pkg/store"
	"readingly/services/nudge/internal/app"
	"readingly/services/nudge/internal/config"
	"readingly/services/nudge/internal/server"
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

	raw, err := os.ReadFile(cfg.FCMCredentialsFile)
	if err != nil {
		log.Fatalf("failed to read FCM credentials: %v", err)
	}
	account, err := push.ParseServiceAccount(raw)
	if err != nil {
		log.Fatalf("failed to parse FCM credentials: %v", err)
	}
	sender := push.NewFCMClient(account)

	jobs, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Stream:   cfg.QueueStream,
		Group:    cfg.QueueGroup,
	})
	if err != nil {
		log.Fatalf("failed to init job queue: %v", err)
	}

	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "readingly:nudge", 30, time.Minute)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}

	nudges := app.NewNudgeService(st, app.NewAnalyzer(st), sender, jobs, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	nudges.StartWorkers(ctx, cfg.WorkerConcurrency)

	httpServer := server.New(server.Config{
		Nudges:  nudges,
		Jobs:    jobs,
		Limiter: limiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("nudge server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
