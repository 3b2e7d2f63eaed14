package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"go-smslog/internal/broker"
	"go-smslog/internal/config"
	"go-smslog/internal/observability"
	"go-smslog/internal/pipeline"
	"go-smslog/internal/retry"
	"go-smslog/internal/store"
)

func main() {
	envFile := flag.String("env-file", "", "optional .env file with configuration overrides")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.Logging.Level, cfg.Logging.Console, cfg.Logging.FilePath)
	logger := observability.GetLogger()
	logBanner(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewInMemoryMetrics()
	router := pipeline.NewRouter(pipeline.Config{
		LogCollection:  cfg.Mongo.LogCollection,
		UserCollection: cfg.Mongo.UserCollection,
		Privacy:        cfg.Privacy,
		Metrics:        metrics,
		Logger:         logger,
	})

	// Each supervisor gets its own budget built from the same configured
	// maximum; they never share state.
	brokerPolicy := retry.NewPolicy(cfg.Retry.Enabled, cfg.Retry.MaxRetries, cfg.Retry.Delay)
	storePolicy := retry.NewPolicy(cfg.Retry.Enabled, cfg.Retry.MaxRetries, cfg.Retry.Delay)

	var mongoStore *store.Mongo
	storeConnect := func(ctx context.Context) error {
		m, err := store.Connect(ctx, cfg.Mongo.ConnectionString, cfg.Mongo.Database, storePolicy, logger)
		if err != nil {
			return err
		}
		if mongoStore != nil {
			_ = mongoStore.Close(context.Background())
		}
		mongoStore = m
		router.SetStore(m)
		return nil
	}

	supervisor := broker.NewSupervisor(broker.Config{
		Host:      cfg.AMQP.Host,
		Port:      cfg.AMQP.Port,
		VHost:     cfg.AMQP.VHost,
		Username:  cfg.AMQP.Username,
		Password:  cfg.AMQP.Password,
		Heartbeat: cfg.AMQP.Heartbeat,
	}, brokerPolicy, metrics, logger)

	err = supervisor.Run(ctx, storeConnect, router.Handle)
	if mongoStore != nil {
		_ = mongoStore.Close(context.Background())
	}
	if err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("Pipeline stopped")
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func logBanner(logger *logrus.Logger, cfg *config.Config) {
	retries := "forever"
	if cfg.Retry.MaxRetries > 0 {
		retries = fmt.Sprintf("%d", cfg.Retry.MaxRetries)
	}
	logger.WithFields(logrus.Fields{
		"amqp_host":       cfg.AMQP.Host,
		"amqp_port":       cfg.AMQP.Port,
		"amqp_vhost":      cfg.AMQP.VHost,
		"amqp_username":   cfg.AMQP.Username,
		"amqp_heartbeat":  cfg.AMQP.Heartbeat.String(),
		"retry_enabled":   cfg.Retry.Enabled,
		"retry_count":     retries,
		"retry_delay":     cfg.Retry.Delay.String(),
		"mongo_database":  cfg.Mongo.Database,
		"log_collection":  cfg.Mongo.LogCollection,
		"user_collection": cfg.Mongo.UserCollection,
		"privacy":         cfg.Privacy,
		"log_level":       cfg.Logging.Level,
	}).Info("Starting SMS gateway logger")
}
