package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/event-ticketing/internal/broadcast"
	"github.com/iliyamo/event-ticketing/internal/cart"
	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/database"
	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/logging"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/router"
	"github.com/iliyamo/event-ticketing/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		dsn := database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err := migrations.Apply(ctx, dsn, logger.Named("migrate")); err != nil {
			return err
		}
	}
	inv := repository.NewInventory(db)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		logger.Warn("redis unreachable, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	var notifier cart.Notifier = broadcast.Nop{}
	var subs handler.Subscriber
	if cfg.AMQPURL != "" {
		pub := broadcast.NewPublisher(cfg.AMQPURL, cfg.BroadcastExchange, logger)
		pub.DialTimeout = cfg.PublishTimeout
		defer pub.Close()
		async := broadcast.NewAsync(pub, 1024, cfg.PublishTimeout, logger)
		defer async.Close()
		notifier = async
		sub := broadcast.NewSubscriber(cfg.AMQPURL, cfg.BroadcastExchange, logger)
		sub.DialTimeout = cfg.PublishTimeout
		subs = sub
	} else {
		logger.Warn("AMQP_URL not set, broadcasts disabled")
	}

	store := cart.NewStore()
	engine := cart.NewEngine(inv, store,
		cart.WithLogger(logger.Named("cart")),
		cart.WithNotifier(notifier),
		cart.WithPublishTimeout(cfg.PublishTimeout),
	)

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.RequestID())
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))

	router.RegisterRoutes(e, db)
	router.RegisterCatalog(e,
		handler.NewCatalogHandler(inv, logger),
		handler.NewStreamHandler(inv, subs, logger),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	)
	router.RegisterCart(e,
		handler.NewCartHandler(engine, store, logger),
		cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger.Named("ratelimit")),
	)

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down", zap.Int("connections", store.Len()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
