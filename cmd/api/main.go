package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/trial-booking/cmd/mainconfig"
	"github.com/wolfman30/trial-booking/internal/api/router"
	"github.com/wolfman30/trial-booking/internal/app/bootstrap"
	"github.com/wolfman30/trial-booking/internal/bookings"
	appconfig "github.com/wolfman30/trial-booking/internal/config"
	"github.com/wolfman30/trial-booking/internal/conversation"
	"github.com/wolfman30/trial-booking/internal/observability/metrics"
	"github.com/wolfman30/trial-booking/internal/webchat"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

func main() {
	appconfig.LoadDotEnv()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting trial-booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	trialMetrics, metricsHandler := bootstrap.BuildMetrics()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}
	pg, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	models, err := bootstrap.BuildModels(ctx, cfg, awsCfg, trialMetrics, logger)
	if err != nil {
		logger.Error("failed to configure language models", "error", err)
		os.Exit(1)
	}
	notifier, _ := bootstrap.BuildNotifier(cfg, &awsCfg, logger)
	stores := bootstrap.BuildStores(cfg, redisClient, pg, logger)

	turns, err := bootstrap.BuildTurnService(ctx, bootstrap.TurnDeps{
		Config:   cfg,
		AWS:      &awsCfg,
		Models:   models,
		Stores:   stores,
		Postgres: pg,
		Notifier: notifier,
		Metrics:  trialMetrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to build turn service", "error", err)
		os.Exit(1)
	}

	msg := bootstrap.BuildMessaging(cfg, &awsCfg, logger)
	publisher := conversation.NewPublisher(msg.Queue, logger)
	webChat := webchat.NewHandler(publisher, stores.Transcript, logger)

	worker := setupInlineWorker(ctx, cfg, logger, turns.Service, msg, webchat.NewReplyMessenger(webChat, logger), trialMetrics)

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(turns.Service, publisher, msg.Jobs, logger),
		AdminConversations:  conversation.NewAdminHandler(turns.Service, stores.Turns(), logger),
		AdminBookings:       bookings.NewHandler(turns.Bookings, logger),
		WebChat:             webChat,
		MetricsHandler:      metricsHandler,
		AdminAuthSecret:     cfg.AdminJWTSecret,
		RateLimitPerMinute:  cfg.RateLimitPerMinute,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		HealthChecks:        healthChecks(redisClient, pg),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	cancel()
	waitForInlineWorker(worker, logger)
	logger.Info("server stopped")
}

// setupInlineWorker runs the worker inside the API process when the queue is in
// memory. Web chat replies can only be pushed from here, since the sockets live in
// this process.
func setupInlineWorker(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, svc conversation.Service, msg bootstrap.Messaging, webchatReplies conversation.ReplyMessenger, m *metrics.TrialMetrics) *conversation.Worker {
	if !msg.InMemory || msg.Queue == nil {
		return nil
	}
	opts := []conversation.WorkerOption{
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithWorkerMetrics(m),
	}
	if webchatReplies != nil {
		opts = append(opts, conversation.WithReplyMessenger(conversation.ChannelWebChat, webchatReplies))
	}
	worker := conversation.NewWorker(svc, msg.Queue, msg.Jobs, logger, opts...)
	worker.Start(ctx)
	logger.Info("inline conversation worker started", "workers", cfg.WorkerCount)
	return worker
}

func waitForInlineWorker(worker *conversation.Worker, logger *logging.Logger) {
	if worker == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline conversation worker stopped")
	case <-time.After(30 * time.Second):
		logger.Error("inline conversation worker shutdown timed out")
	}
}

func healthChecks(redisClient *redis.Client, pg *bootstrap.Postgres) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if pg != nil {
		checks["postgres"] = pg.Ping
	}
	return checks
}

