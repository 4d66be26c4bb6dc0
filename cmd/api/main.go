package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/delicb/toy-basket/basket"
	"github.com/delicb/toy-basket/config"
	"github.com/delicb/toy-basket/cqrs"
	"github.com/delicb/toy-basket/logger"
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
	log := logger.Named("api")

	rootContext, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeStore, err := storage.Open(rootContext, &cfg.Store, log)
	if err != nil {
		log.Fatal("failed to open store", zap.Error(err))
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error("failed to close store", zap.Error(err))
		}
	}()

	var baskets basket.Client
	switch cfg.Server.Mode {
	case "nats":
		natsConn, err := nats.Connect(cfg.NATS.URL, nats.Name("api"))
		if err != nil {
			log.Fatal("failed to connect to nats", zap.String("url", cfg.NATS.URL), zap.Error(err))
		}
		defer natsConn.Close()
		baskets = basket.NewClient(natsConn, cfg.NATS.RequestTimeout, cfg.NATS.ReplyTimeout, log.Named("client"))
	default:
		handler := basket.NewCommandHandler(repo, newLocalEvents(log.Named("events")), cqrs.ExecutorOptions{
			Logger:         log.Named("executor"),
			ConflictRetry:  cfg.Retry.Conflict,
			PublishRetry:   cfg.Retry.Publish,
			PublishTimeout: cfg.Retry.PublishTimeout,
		})
		baskets = newLocalClient(handler)
	}
	log.Info("serving baskets", zap.String("mode", cfg.Server.Mode), zap.String("store", cfg.Store.Driver))

	httpServer := &server{
		baskets: baskets,
		reader:  repo,
		logger:  log,
	}
	app := newApp(httpServer, &cfg.Server, log)
	app.Server.ReadTimeout = cfg.Server.ReadTimeout
	app.Server.WriteTimeout = cfg.Server.WriteTimeout

	go func() {
		if err := app.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-signalCh
	log.Info("got signal, stopping", zap.Stringer("signal", sig))

	ctx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := app.Shutdown(ctx); err != nil {
		log.Error("http server shutdown failed", zap.Error(err))
	}
}

func newApp(s *server, cfg *config.ServerConfig, log *zap.Logger) *echo.Echo {
	app := echo.New()
	app.HideBanner = true
	app.HidePort = true
	app.HTTPErrorHandler = errorHandler(log)

	app.Use(middleware.Recover())
	app.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.Info("request", fields...)
			return nil
		},
	}))
	if cfg.RateLimit.Enabled {
		app.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit.Rate),
				Burst:     cfg.RateLimit.Burst,
				ExpiresIn: 3 * time.Minute,
			},
		)))
	}

	g := app.Group("/api/basket/:basketId", validBasketID)
	g.GET("", s.getBasket)
	g.PUT("", s.addItem)
	g.PUT("/items", s.changeQuantity)
	g.DELETE("/clear", s.clearBasket)
	return app
}
