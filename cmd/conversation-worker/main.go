package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/wolfman30/trial-booking/cmd/mainconfig"
	"github.com/wolfman30/trial-booking/internal/app/bootstrap"
	appconfig "github.com/wolfman30/trial-booking/internal/config"
	"github.com/wolfman30/trial-booking/internal/conversation"
	"github.com/wolfman30/trial-booking/pkg/logging"
)

func main() {
	appconfig.LoadDotEnv()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	msg := bootstrap.BuildMessaging(cfg, &awsConfig, logger)
	if msg.InMemory {
		logger.Error("conversation worker needs CONVERSATION_QUEUE_URL; the in-memory queue is served by the API process")
		os.Exit(1)
	}

	trialMetrics, _ := bootstrap.BuildMetrics()
	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	} else {
		logger.Warn("worker running without redis; conversation state is not shared with the API")
	}
	pg, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	models, err := bootstrap.BuildModels(ctx, cfg, awsConfig, trialMetrics, logger)
	if err != nil {
		logger.Error("failed to configure language models", "error", err)
		os.Exit(1)
	}
	notifier, _ := bootstrap.BuildNotifier(cfg, &awsConfig, logger)

	turns, err := bootstrap.BuildTurnService(ctx, bootstrap.TurnDeps{
		Config:   cfg,
		AWS:      &awsConfig,
		Models:   models,
		Stores:   bootstrap.BuildStores(cfg, redisClient, pg, logger),
		Postgres: pg,
		Notifier: notifier,
		Metrics:  trialMetrics,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("failed to build turn service", "error", err)
		os.Exit(1)
	}

	worker := conversation.NewWorker(
		turns.Service,
		msg.Queue,
		msg.Jobs,
		logger,
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithWorkerMetrics(trialMetrics),
	)
	worker.Start(ctx)
	logger.Info("conversation worker started", "workers", cfg.WorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down conversation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
	case <-doneCtx.Done():
		logger.Error("conversation worker shutdown timed out", "error", doneCtx.Err())
	}
}
