package main

import (
	"context"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"portfolioalerts/internal/cache"
	"portfolioalerts/internal/config"
	"portfolioalerts/internal/database"
	"portfolioalerts/internal/handlers"
	"portfolioalerts/internal/logger"
	"portfolioalerts/internal/push"
	"portfolioalerts/internal/tracing"

	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	port := flag.String("port", cfg.HTTP.Port, "Port for alerts service")
	instance := flag.String("instance", cfg.HTTP.Instance, "Instance ID for this server")
	dbConn := flag.String("db", cfg.Database.DSN, "Database connection string")
	flag.Parse()

	logger.InitLoggerWithOptions(logger.Options{
		Level:      cfg.Log.Level,
		FileName:   cfg.Log.FileName,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
		Console:    cfg.Log.Console,
	})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.InitTracer("alerts-service", cfg.Tracing.Endpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Log.Error("Failed to shutdown tracer", zap.Error(err))
			}
		}()
	}

	store, err := database.Open(*dbConn)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Log.Fatal("Failed to prepare database schema", zap.Error(err))
	}

	redisCache, err := cache.New(ctx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, *instance)
	if err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	sub, err := redisCache.Subscribe(ctx, cache.NotificationsChannel)
	if err != nil {
		logger.Log.Fatal("Failed to subscribe to notification events", zap.Error(err))
	}
	defer sub.Close()

	hub := push.NewHub()
	server := handlers.NewServer(store, handlers.Options{
		Instance:      *instance,
		Cache:         redisCache,
		CacheTTL:      cfg.HTTP.CacheTTL,
		Limiter:       redis_rate.NewLimiter(redisCache.Client()),
		RatePerMinute: cfg.HTTP.RatePerMinute,
		Stream:        hub,
	})

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx, sub)
		return nil
	})
	g.Go(func() error {
		logger.Log.Info("Alerts service starting",
			zap.String("port", *port),
			zap.String("instance", *instance),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.Timeout)
		defer cancel()
		logger.Log.Info("Alerts service shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Error("Alerts service stopped with error", zap.Error(err))
	}
}
