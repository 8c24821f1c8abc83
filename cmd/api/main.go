// cmd/api/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pulss-notifications/internal/api"
	"pulss-notifications/internal/common/config"
	"pulss-notifications/internal/common/database"
	"pulss-notifications/internal/common/logger"
	"pulss-notifications/internal/common/observability"
	"pulss-notifications/internal/events"
	"pulss-notifications/internal/notify/analytics"
	"pulss-notifications/internal/notify/enqueue"
	"pulss-notifications/internal/notify/preference"
	"pulss-notifications/internal/notify/render"
	"pulss-notifications/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification api...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("notification-api")
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Wire the enqueue pipeline and read side ---
	jobs := store.NewJobStore(pg.DB)
	eventStore := store.NewEventStore(pg.DB)
	stats := store.NewAnalyticsStore(pg.DB)
	templates := store.NewTemplateStore(pg.DB)
	providers := store.NewProviderStore(pg.DB)
	prefs := store.NewPreferenceStore(pg.DB)

	filter := preference.NewFilter(prefs, cfg.Notifications.CriticalTypes, log)
	renderer := render.NewRenderer(templates, cfg.Notifications.SMSMaxRunes, log)

	pipeline, err := enqueue.NewPipeline(jobs, filter, renderer, enqueue.Options{
		// max_retries counts retries after the first attempt.
		MaxAttempts:  cfg.Dispatcher.MaxRetries + 1,
		TypeChannels: cfg.Notifications.TypeChannels,
	}, log)
	if err != nil {
		zapLog.Fatal("pipeline init failed", zap.Error(err))
	}

	recorder := analytics.NewRecorder(eventStore, stats, redis,
		config.GetDuration(cfg.Notifications.DedupeTTL), log)

	server := api.NewServer(api.Deps{
		Pipeline:   pipeline,
		Jobs:       jobs,
		Events:     eventStore,
		Exporter:   analytics.NewExporter(stats),
		Recorder:   recorder,
		Templates:  templates,
		Providers:  providers,
		Prefs:      prefs,
		Log:        log,
		AdminToken: cfg.API.SuperadminToken,
	})

	// --- Optional AMQP trigger consumer ---
	if cfg.Events.Enabled {
		var consumer *events.Consumer
		err = retryWithBackoff(func() error {
			var err error
			consumer, err = events.NewConsumer(cfg.Events, pipeline, log)
			return err
		}, 10, 2*time.Second, zapLog, "RabbitMQ connection")
		if err != nil {
			zapLog.Fatal("rabbitmq failed after retries", zap.Error(err))
		}
		defer consumer.Close()

		go func() {
			if err := consumer.Run(ctx); err != nil {
				zapLog.Error("event consumer stopped", zap.Error(err))
			}
		}()
		zapLog.Info("RabbitMQ consumer started")
	}

	if err := server.Run(ctx, cfg.API.ListenAddress); err != nil {
		zapLog.Error("api server stopped", zap.Error(err))
	}
	zapLog.Info("Shutdown complete")
	os.Exit(0)
}
