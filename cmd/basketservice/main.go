package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/delicb/toy-basket/basket"
	"github.com/delicb/toy-basket/config"
	"github.com/delicb/toy-basket/cqrs"
	"github.com/delicb/toy-basket/logger"
	"github.com/delicb/toy-basket/natsbus"
	"github.com/delicb/toy-basket/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("BASKET_CONFIG_FILE"))
	if err != nil {
		panic(err)
	}
	if err := logger.Init(&cfg.Log, cfg.IsDevelopment()); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Named("basketservice")

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	natsConn, err := natsbus.Connect(cfg.NATS.URL, "basketservice", cfg.Server.ShutdownTimeout, log)
	if err != nil {
		log.Fatal("failed to connect to nats", zap.String("url", cfg.NATS.URL), zap.Error(err))
	}

	repo, closeStore, err := storage.Open(rootCtx, &cfg.Store, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}

	dispatcher := cqrs.NewDispatcher()
	dispatcher.SubscribeAll(cqrs.LoggingSubscriber(log.Named("events")))

	publisher := cqrs.FanOut(
		natsbus.NewPublisher(natsConn, basket.EventSerializer, natsbus.WithFlush(), natsbus.WithLogger(log)),
		dispatcher,
	)
	handler := basket.NewCommandHandler(repo, publisher, cqrs.ExecutorOptions{
		Logger:         log.Named("executor"),
		ConflictRetry:  cfg.Retry.Conflict,
		PublishRetry:   cfg.Retry.Publish,
		PublishTimeout: cfg.Retry.PublishTimeout,
	})

	l := newListener(rootCtx, handler, natsConn, log)

	log.Info("subscribing to commands", zap.String("subject", basket.CommandSubjectPrefix+">"))
	if _, err := natsConn.Subscribe(basket.CommandSubjectPrefix+">", l.onMessage); err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("waiting for the stop signal")
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-signalCh
	log.Info("got signal, stopping", zap.Stringer("signal", sig))

	// commands already received are executed and answered before the store goes away
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+time.Second)
	defer drainCancel()
	if err := natsConn.Drain(drainCtx); err != nil {
		log.Error("nats drain failed", zap.Error(err))
		natsConn.Close()
	}
	if err := closeStore(); err != nil {
		log.Error("failed to close store", zap.Error(err))
	}
}
