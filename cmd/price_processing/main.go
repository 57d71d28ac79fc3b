package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"portfolioalerts/internal/cache"
	"portfolioalerts/internal/config"
	"portfolioalerts/internal/database"
	"portfolioalerts/internal/logger"
	"portfolioalerts/internal/models"
	"portfolioalerts/internal/processing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

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

	store, err := database.Open(cfg.Database.DSN)
	if err != nil {
		logger.Log.Fatal("Database connection failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Log.Fatal("Failed to prepare database schema", zap.Error(err))
	}

	redisCache, err := cache.New(ctx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, "price-processing")
	if err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Kafka.Broker,
		"group.id":          cfg.Kafka.GroupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		logger.Log.Fatal("Failed to create Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	if err := consumer.Subscribe(cfg.Kafka.Topic, nil); err != nil {
		logger.Log.Fatal("Failed to subscribe to Kafka topic", zap.String("topic", cfg.Kafka.Topic), zap.Error(err))
	}

	evaluator := processing.NewEvaluator(store, redisCache, cache.NotificationsChannel, cfg.Processing.Cooldown)
	logger.Log.Info("Listening for price updates", zap.String("topic", cfg.Kafka.Topic))

	for ctx.Err() == nil {
		msg, err := consumer.ReadMessage(time.Second)
		if err != nil {
			var kErr kafka.Error
			if errors.As(err, &kErr) && kErr.IsTimeout() {
				continue
			}
			logger.Log.Error("Kafka consumer error", zap.Error(err))
			continue
		}

		var update models.PriceUpdate
		if err := json.Unmarshal(msg.Value, &update); err != nil {
			logger.Log.Error("Error parsing price update", zap.Error(err))
			continue
		}

		logger.Log.Debug("Received price update",
			zap.String("symbol", update.Symbol),
			zap.Float64("price", update.Price),
		)

		if _, err := evaluator.Process(ctx, update); err != nil {
			logger.Log.Error("Failed to process price update", zap.String("symbol", update.Symbol), zap.Error(err))
		}
	}

	logger.Log.Info("Price processing shutting down")
}
