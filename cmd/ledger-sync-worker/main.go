package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fundledger/internal/amqp"
	"fundledger/internal/backend"
	"fundledger/internal/cli"
	"fundledger/internal/log"
	"fundledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting ledger-sync-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.InitStore(logger, cfg.SQLiteDBPath)
	defer store.Close()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid mirror configuration", "error", err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.Logger.With(log.FieldComponent, log.ComponentBackend))
	sink, err := factory.CreateSink(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize mirror sink", "error", err)
		os.Exit(1)
	}
	if sink.Cleanup != nil {
		defer func() {
			if err := sink.Cleanup(); err != nil {
				logger.Warn("Mirror cleanup failed", "error", err)
			}
		}()
	}

	if sink.Writer == nil {
		logger.Info("Mirror disabled - nothing to do", "backend", sink.Type.String())
		return
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - relying on periodic sweep only")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if err := run(ctx, logger, worker.NewSyncWorker(store, sink.Writer, cfg.SyncBatchSize), amqpClient, cfg.SyncInterval); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("ledger-sync-worker stopped")
}

// run supervises the consumer and the sweep; the first failure stops both.
func run(ctx context.Context, logger *log.Logger, w *worker.SyncWorker, client *amqp.Client, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.Run(ctx, interval)
	})

	if client != nil {
		g.Go(func() error {
			err := client.ConsumeOperationPosted(ctx, w.HandleOperationPosted)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	logger.Info("Worker running", "interval", interval, "amqp", client != nil)
	return g.Wait()
}
