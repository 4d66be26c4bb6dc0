package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/delicb/toy-basket/basket"
	"github.com/delicb/toy-basket/config"
	"github.com/delicb/toy-basket/cqrs"
	"github.com/delicb/toy-basket/logger"
	"github.com/delicb/toy-basket/natsbus"
	"github.com/delicb/toy-basket/storage/postgres"
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
	log := logger.Named("denormalizer")

	log.Info("starting denormalizer")
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Store.Driver != "postgres" {
		log.Fatal("denormalizer requires postgres store", zap.String("driver", cfg.Store.Driver))
	}
	pool, err := postgres.Connect(rootCtx, &cfg.Store)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	proj := &projector{db: pool}
	if err := proj.migrate(rootCtx); err != nil {
		log.Fatal("failed to create projection tables", zap.Error(err))
	}

	natsConn, err := natsbus.Connect(cfg.NATS.URL, "denormalizer", cfg.Server.ShutdownTimeout, log)
	if err != nil {
		log.Fatal("failed to connect to nats", zap.Error(err))
	}

	events := make(chan *cqrs.Event, 32)
	done := make(chan struct{})

	_, err = natsConn.Subscribe(natsbus.Subject(basket.AggregateType+".>"), func(msg *nats.Msg) {
		ev, err := basket.EventSerializer.Unmarshal(msg.Data)
		if err != nil {
			log.Error("failed to unmarshal event", zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		events <- ev
	})
	if err != nil {
		log.Fatal("failed to subscribe to events", zap.Error(err))
	}

	go func() {
		defer close(done)
		eventProcessor(rootCtx, proj, events, log)
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-signalCh
	log.Info("got signal, terminating", zap.Stringer("signal", sig))

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+time.Second)
	defer drainCancel()
	if err := natsConn.Drain(drainCtx); err != nil {
		// some handler may still be sending, events can not be closed
		log.Error("nats drain failed, dropping queued events", zap.Error(err))
		natsConn.Close()
		cancel()
	} else {
		close(events)
	}
	<-done
	pool.Close()
}

// eventProcessor projects events until events is closed or ctx is done.
func eventProcessor(ctx context.Context, proj *projector, events <-chan *cqrs.Event, log *zap.Logger) {
	for {
		var ev *cqrs.Event
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			ev = e
		}
		if err := proj.apply(ctx, ev); err != nil {
			log.Error("failed to apply event to database",
				zap.String("event_id", string(ev.EventID)),
				zap.String("aggregate_id", ev.AggregateID),
				zap.String("correlation_id", ev.CorrelationID),
				zap.Error(err),
			)
			continue
		}
		log.Debug("event projected", zap.String("event_id", string(ev.EventID)), zap.String("aggregate_id", ev.AggregateID))
	}
}
